package checkout

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ManuelReschke/ChaletBook/internal/pkg/apperr"
	"github.com/ManuelReschke/ChaletBook/internal/pkg/sanitize"
)

const (
	// MaxNights bounds a single stay.
	MaxNights = 365
	// MaxAmount is the exclusive upper bound of prices and totals in major
	// units; booking amounts are stored as DECIMAL(12,3).
	MaxAmount = 1e9
)

// Request is the untrusted checkout input sent by the booking UI.
type Request struct {
	ChaletID      string  `json:"chaletId" validate:"required,max=64"`
	ChaletName    string  `json:"chaletName" validate:"max=200"`
	UserID        string  `json:"userId" validate:"max=64"`
	StartDate     string  `json:"startDate" validate:"required"`
	EndDate       string  `json:"endDate" validate:"required"`
	GuestName     string  `json:"guestName" validate:"required,max=150"`
	GuestEmail    string  `json:"guestEmail" validate:"required,email,max=200"`
	GuestPhone    string  `json:"guestPhone" validate:"required,max=40"`
	Guests        Numeric `json:"guests"`
	PricePerNight Numeric `json:"pricePerNight"`
	Nights        Numeric `json:"nights"`
	TotalPrice    Numeric `json:"totalPrice"`
}

// Defaults fill numeric fields that were not sent at all.
type Defaults struct {
	PricePerNight float64
	Guests        int
}

// sanitized returns a copy with every string field cleaned.
func (r Request) sanitized() Request {
	r.ChaletID = sanitize.String(r.ChaletID)
	r.ChaletName = sanitize.String(r.ChaletName)
	r.UserID = sanitize.String(r.UserID)
	r.StartDate = sanitize.String(r.StartDate)
	r.EndDate = sanitize.String(r.EndDate)
	r.GuestName = sanitize.String(r.GuestName)
	r.GuestEmail = strings.ToLower(sanitize.String(r.GuestEmail))
	r.GuestPhone = sanitize.String(r.GuestPhone)
	return r
}

// normalize validates the request and resolves it into booking metadata.
// Absent numeric fields take defaults; present but malformed ones are
// rejected.
func normalize(v *validator.Validate, req Request, d Defaults, cur Currency) (Metadata, error) {
	r := req.sanitized()
	if err := v.Struct(r); err != nil {
		return Metadata{}, validationError(err)
	}

	start, err := parseRequestDate("startDate", r.StartDate)
	if err != nil {
		return Metadata{}, err
	}
	end, err := parseRequestDate("endDate", r.EndDate)
	if err != nil {
		return Metadata{}, err
	}
	if !end.After(start) {
		return Metadata{}, fmt.Errorf("%w: endDate must be after startDate", apperr.ClientInput)
	}
	// both dates are UTC midnights, so whole days divide exactly
	days := (end.Unix() - start.Unix()) / 86400
	if days > MaxNights {
		return Metadata{}, fmt.Errorf("%w: stays are limited to %d nights", apperr.ClientInput, MaxNights)
	}
	stayNights := int(days)

	nights := stayNights
	if r.Nights.Present() {
		if nights, err = r.Nights.Int(); err != nil {
			return Metadata{}, fmt.Errorf("%w: nights %v", apperr.ClientInput, err)
		}
		if nights != stayNights {
			return Metadata{}, fmt.Errorf("%w: nights %d does not match the %d nights between startDate and endDate", apperr.ClientInput, nights, stayNights)
		}
	}

	guests := d.Guests
	if guests < 1 {
		guests = 1
	}
	if r.Guests.Present() {
		if guests, err = r.Guests.Int(); err != nil {
			return Metadata{}, fmt.Errorf("%w: guests %v", apperr.ClientInput, err)
		}
	}

	price := d.PricePerNight
	if r.PricePerNight.Present() {
		if price, err = r.PricePerNight.Float(); err != nil {
			return Metadata{}, fmt.Errorf("%w: pricePerNight %v", apperr.ClientInput, err)
		}
	}
	if price <= 0 {
		return Metadata{}, fmt.Errorf("%w: pricePerNight is required", apperr.ClientInput)
	}
	if price >= MaxAmount {
		return Metadata{}, fmt.Errorf("%w: pricePerNight must be below %.0f", apperr.ClientInput, MaxAmount)
	}
	price = cur.Round(price)

	unit, err := cur.ToMinor(price)
	if err != nil {
		return Metadata{}, fmt.Errorf("%w: pricePerNight %v", apperr.ClientInput, err)
	}
	if unit > math.MaxInt64/int64(nights) {
		return Metadata{}, fmt.Errorf("%w: totalPrice is out of range", apperr.ClientInput)
	}
	expectedTotal := unit * int64(nights)
	total := cur.FromMinor(expectedTotal)
	if total >= MaxAmount {
		return Metadata{}, fmt.Errorf("%w: totalPrice must be below %.0f", apperr.ClientInput, MaxAmount)
	}
	if r.TotalPrice.Present() {
		sent, err := r.TotalPrice.Float()
		if err != nil {
			return Metadata{}, fmt.Errorf("%w: totalPrice %v", apperr.ClientInput, err)
		}
		sentMinor, err := cur.ToMinor(sent)
		if err != nil {
			return Metadata{}, fmt.Errorf("%w: totalPrice %v", apperr.ClientInput, err)
		}
		if sentMinor != expectedTotal {
			return Metadata{}, fmt.Errorf("%w: totalPrice %v does not match pricePerNight × nights", apperr.ClientInput, sent)
		}
	}

	return Metadata{
		ChaletID:      r.ChaletID,
		ChaletName:    r.ChaletName,
		UserID:        r.UserID,
		GuestName:     r.GuestName,
		GuestEmail:    r.GuestEmail,
		GuestPhone:    r.GuestPhone,
		Guests:        guests,
		StartDate:     start,
		EndDate:       end,
		Nights:        nights,
		PricePerNight: price,
		TotalPrice:    total,
		Currency:      strings.ToLower(cur.Code),
	}, nil
}

func parseRequestDate(field, v string) (time.Time, error) {
	if t, err := time.Parse(DateLayout, v); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s %q is not a date", apperr.ClientInput, field, v)
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", apperr.ClientInput, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := jsonFieldName(fe.Field())
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		case "email":
			msgs = append(msgs, field+" must be a valid email address")
		case "max":
			msgs = append(msgs, field+" is too long")
		default:
			msgs = append(msgs, field+" is invalid")
		}
	}
	return fmt.Errorf("%w: %s", apperr.ClientInput, strings.Join(msgs, ", "))
}

func jsonFieldName(structField string) string {
	if structField == "" {
		return structField
	}
	if structField == "ChaletID" {
		return "chaletId"
	}
	if structField == "UserID" {
		return "userId"
	}
	return strings.ToLower(structField[:1]) + structField[1:]
}
