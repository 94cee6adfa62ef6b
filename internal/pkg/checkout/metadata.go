package checkout

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/ManuelReschke/ChaletBook/internal/pkg/apperr"
)

const (
	DateLayout = "2006-01-02"

	// GuestUserID marks bookings made without an account.
	GuestUserID = "guest"
)

const (
	metaChaletID      = "chaletId"
	metaChaletName    = "chaletName"
	metaUserID        = "userId"
	metaGuestName     = "guestName"
	metaGuestEmail    = "guestEmail"
	metaGuestPhone    = "guestPhone"
	metaGuests        = "guests"
	metaStartDate     = "startDate"
	metaEndDate       = "endDate"
	metaNights        = "nights"
	metaPricePerNight = "pricePerNight"
	metaTotalPrice    = "totalPrice"
	metaCurrency      = "currency"
)

// Metadata is everything needed to rebuild a booking from a completed
// session. It crosses the provider as a flat string map.
type Metadata struct {
	ChaletID      string
	ChaletName    string
	UserID        string
	GuestName     string
	GuestEmail    string
	GuestPhone    string
	Guests        int
	StartDate     time.Time
	EndDate       time.Time
	Nights        int
	PricePerNight float64
	TotalPrice    float64
	Currency      string
}

// Encode renders the metadata as provider strings.
func (m Metadata) Encode() map[string]string {
	userID := m.UserID
	if userID == "" {
		userID = GuestUserID
	}
	return map[string]string{
		metaChaletID:      m.ChaletID,
		metaChaletName:    m.ChaletName,
		metaUserID:        userID,
		metaGuestName:     m.GuestName,
		metaGuestEmail:    m.GuestEmail,
		metaGuestPhone:    m.GuestPhone,
		metaGuests:        strconv.Itoa(m.Guests),
		metaStartDate:     m.StartDate.Format(DateLayout),
		metaEndDate:       m.EndDate.Format(DateLayout),
		metaNights:        strconv.Itoa(m.Nights),
		metaPricePerNight: strconv.FormatFloat(m.PricePerNight, 'f', -1, 64),
		metaTotalPrice:    strconv.FormatFloat(m.TotalPrice, 'f', -1, 64),
		metaCurrency:      m.Currency,
	}
}

// ParseMetadata validates provider metadata. It fails closed: a missing or
// malformed field is an apperr.MaterializationData error, never a default.
func ParseMetadata(raw map[string]string) (Metadata, error) {
	var m Metadata
	var err error

	get := func(key string) string { return strings.TrimSpace(raw[key]) }
	required := func(key string) (string, error) {
		v := get(key)
		if v == "" {
			return "", fmt.Errorf("%w: missing %s", apperr.MaterializationData, key)
		}
		return v, nil
	}

	if m.ChaletID, err = required(metaChaletID); err != nil {
		return Metadata{}, err
	}
	if m.GuestName, err = required(metaGuestName); err != nil {
		return Metadata{}, err
	}
	if m.GuestEmail, err = required(metaGuestEmail); err != nil {
		return Metadata{}, err
	}
	m.ChaletName = get(metaChaletName)
	m.GuestPhone = get(metaGuestPhone)
	m.Currency = strings.ToLower(get(metaCurrency))
	if uid := get(metaUserID); uid != GuestUserID {
		m.UserID = uid
	}

	if m.StartDate, err = parseMetaDate(raw, metaStartDate); err != nil {
		return Metadata{}, err
	}
	if m.EndDate, err = parseMetaDate(raw, metaEndDate); err != nil {
		return Metadata{}, err
	}
	if !m.EndDate.After(m.StartDate) {
		return Metadata{}, fmt.Errorf("%w: endDate must be after startDate", apperr.MaterializationData)
	}

	if m.Guests, err = parseMetaInt(raw, metaGuests); err != nil {
		return Metadata{}, err
	}
	if m.Nights, err = parseMetaInt(raw, metaNights); err != nil {
		return Metadata{}, err
	}
	if m.PricePerNight, err = parseMetaFloat(raw, metaPricePerNight); err != nil {
		return Metadata{}, err
	}
	if m.TotalPrice, err = parseMetaFloat(raw, metaTotalPrice); err != nil {
		return Metadata{}, err
	}
	return m, nil
}

func parseMetaDate(raw map[string]string, key string) (time.Time, error) {
	v := strings.TrimSpace(raw[key])
	if v == "" {
		return time.Time{}, fmt.Errorf("%w: missing %s", apperr.MaterializationData, key)
	}
	t, err := time.Parse(DateLayout, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s %q is not a date", apperr.MaterializationData, key, v)
	}
	return t, nil
}

func parseMetaInt(raw map[string]string, key string) (int, error) {
	v := strings.TrimSpace(raw[key])
	if v == "" {
		return 0, fmt.Errorf("%w: missing %s", apperr.MaterializationData, key)
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %s %q is not a positive integer", apperr.MaterializationData, key, v)
	}
	return n, nil
}

func parseMetaFloat(raw map[string]string, key string) (float64, error) {
	v := strings.TrimSpace(raw[key])
	if v == "" {
		return 0, fmt.Errorf("%w: missing %s", apperr.MaterializationData, key)
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, fmt.Errorf("%w: %s %q is not a positive amount", apperr.MaterializationData, key, v)
	}
	return f, nil
}
