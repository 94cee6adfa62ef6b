package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ChaletBook/app/models"
	"github.com/ManuelReschke/ChaletBook/internal/pkg/apperr"
	"github.com/ManuelReschke/ChaletBook/internal/pkg/metrics"
	"github.com/ManuelReschke/ChaletBook/internal/pkg/payment"
)

const productNamePrefix = "Séjour"

// SessionCreator opens a hosted checkout session at the payment provider.
type SessionCreator interface {
	CreateCheckoutSession(ctx context.Context, p payment.SessionParams) (*payment.Session, error)
}

// ChaletLookup resolves chalet details for display name and default price.
type ChaletLookup interface {
	GetChaletByID(ctx context.Context, id string) (*models.Chalet, error)
}

type Config struct {
	Currency             Currency
	DefaultPricePerNight float64
}

// Session is returned to the browser to redirect into the hosted checkout.
type Session struct {
	ID  string `json:"sessionId"`
	URL string `json:"url"`
}

type Builder struct {
	provider SessionCreator
	chalets  ChaletLookup
	cfg      Config
	validate *validator.Validate
	metrics  *metrics.Recorder
}

// NewBuilder wires a builder. chalets and rec may be nil.
func NewBuilder(provider SessionCreator, chalets ChaletLookup, cfg Config, rec *metrics.Recorder) *Builder {
	if cfg.Currency.Code == "" {
		cfg.Currency = DefaultCurrency
	}
	return &Builder{
		provider: provider,
		chalets:  chalets,
		cfg:      cfg,
		validate: validator.New(),
		metrics:  rec,
	}
}

// CreateSession validates req and makes exactly one provider call. Invalid
// input never reaches the provider.
func (b *Builder) CreateSession(ctx context.Context, req Request, successURL, cancelURL string) (*Session, error) {
	defaults := Defaults{PricePerNight: b.cfg.DefaultPricePerNight, Guests: 1}

	chalet := b.lookupChalet(ctx, strings.TrimSpace(req.ChaletID))
	if chalet != nil && chalet.PricePerNight > 0 {
		defaults.PricePerNight = chalet.PricePerNight
	}

	meta, err := normalize(b.validate, req, defaults, b.cfg.Currency)
	if err != nil {
		b.metrics.CheckoutSession("invalid")
		return nil, err
	}
	if chalet != nil && chalet.MaxGuests > 0 && meta.Guests > chalet.MaxGuests {
		b.metrics.CheckoutSession("invalid")
		return nil, fmt.Errorf("%w: guests %d exceeds the capacity of %d", apperr.ClientInput, meta.Guests, chalet.MaxGuests)
	}
	if meta.ChaletName == "" && chalet != nil {
		meta.ChaletName = chalet.Name
	}
	if meta.ChaletName == "" {
		meta.ChaletName = meta.ChaletID
	}

	unit, err := b.cfg.Currency.ToMinor(meta.PricePerNight)
	if err != nil {
		b.metrics.CheckoutSession("invalid")
		return nil, fmt.Errorf("%w: %v", apperr.ClientInput, err)
	}

	params := payment.SessionParams{
		SuccessURL:    successURL,
		CancelURL:     cancelURL,
		Currency:      meta.Currency,
		ProductName:   fmt.Sprintf("%s %s", productNamePrefix, meta.ChaletName),
		Description:   fmt.Sprintf("%s → %s · %d nuit(s) · %d voyageur(s)", meta.StartDate.Format(DateLayout), meta.EndDate.Format(DateLayout), meta.Nights, meta.Guests),
		UnitAmount:    unit,
		Quantity:      int64(meta.Nights),
		CustomerEmail: meta.GuestEmail,
		Metadata:      meta.Encode(),
	}
	if meta.UserID != "" {
		params.ClientReferenceID = meta.UserID
	}

	sess, err := b.provider.CreateCheckoutSession(ctx, params)
	if err != nil {
		b.metrics.CheckoutSession("provider_error")
		if !errors.Is(err, apperr.UpstreamProvider) {
			err = fmt.Errorf("%w: %v", apperr.UpstreamProvider, err)
		}
		log.Errorf("checkout: session creation failed for chalet %s: %v", meta.ChaletID, err)
		return nil, err
	}

	b.metrics.CheckoutSession("created")
	log.Infof("checkout: session %s created for chalet %s (%d nights, %s %.3f)", sess.ID, meta.ChaletID, meta.Nights, b.cfg.Currency, meta.TotalPrice)
	return &Session{ID: sess.ID, URL: sess.URL}, nil
}

func (b *Builder) lookupChalet(ctx context.Context, id string) *models.Chalet {
	if b.chalets == nil || id == "" {
		return nil
	}
	chalet, err := b.chalets.GetChaletByID(ctx, id)
	if err != nil {
		if !errors.Is(err, apperr.NotFound) {
			log.Warnf("checkout: chalet lookup %s failed: %v", id, err)
		}
		return nil
	}
	return chalet
}
