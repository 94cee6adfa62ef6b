// Package booking turns completed checkout sessions into durable bookings.
// The provider session id is the idempotency key: any number of deliveries
// for the same session produce one row and one confirmation.
package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/ManuelReschke/ChaletBook/app/models"
	"github.com/ManuelReschke/ChaletBook/internal/pkg/apperr"
	"github.com/ManuelReschke/ChaletBook/internal/pkg/checkout"
	"github.com/ManuelReschke/ChaletBook/internal/pkg/metrics"
)

const (
	defaultStoreTimeout  = 10 * time.Second
	defaultNotifyTimeout = 30 * time.Second
)

// Store persists bookings. CreateIfAbsent must be a single atomic
// conditional insert on the session id: it returns the stored row and
// whether this call created it.
type Store interface {
	CreateIfAbsent(ctx context.Context, b *models.Booking) (*models.Booking, bool, error)
	GetBySessionID(ctx context.Context, sessionID string) (*models.Booking, error)
	MarkRefunded(ctx context.Context, paymentIntentID string, at time.Time) (*models.Booking, error)
}

// ChaletLookup resolves the chalet owner for the confirmation copy.
type ChaletLookup interface {
	GetChaletByID(ctx context.Context, id string) (*models.Chalet, error)
}

// CompletedSession is the part of a completed checkout the materializer needs.
type CompletedSession struct {
	SessionID       string
	PaymentIntentID string
	Metadata        map[string]string
	AmountTotal     int64
	Currency        string
}

type Outcome struct {
	Booking *models.Booking
	Created bool
}

type Config struct {
	Currency      checkout.Currency
	StoreTimeout  time.Duration
	NotifyTimeout time.Duration
}

type Materializer struct {
	store    Store
	notifier Notifier
	chalets  ChaletLookup
	cfg      Config
	metrics  *metrics.Recorder
	now      func() time.Time
}

// NewMaterializer wires a materializer. notifier, chalets and rec may be nil.
func NewMaterializer(store Store, notifier Notifier, chalets ChaletLookup, cfg Config, rec *metrics.Recorder) *Materializer {
	if cfg.Currency.Code == "" {
		cfg.Currency = checkout.DefaultCurrency
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = defaultStoreTimeout
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = defaultNotifyTimeout
	}
	return &Materializer{
		store:    store,
		notifier: notifier,
		chalets:  chalets,
		cfg:      cfg,
		metrics:  rec,
		now:      time.Now,
	}
}

// Materialize creates the booking for a completed session unless it exists.
// A notification failure returns the outcome together with an
// apperr.Notification error; the booking is kept either way.
func (m *Materializer) Materialize(ctx context.Context, s CompletedSession) (Outcome, error) {
	sessionID := strings.TrimSpace(s.SessionID)
	if sessionID == "" {
		return Outcome{}, fmt.Errorf("%w: missing session id", apperr.MaterializationData)
	}
	meta, err := checkout.ParseMetadata(s.Metadata)
	if err != nil {
		return Outcome{}, fmt.Errorf("session %s: %w", sessionID, err)
	}

	currency := meta.Currency
	if currency == "" {
		currency = strings.ToLower(strings.TrimSpace(s.Currency))
	}
	if currency == "" {
		return Outcome{}, fmt.Errorf("%w: session %s has no currency", apperr.MaterializationData, sessionID)
	}
	m.checkAmount(sessionID, meta, s.AmountTotal)

	b := &models.Booking{
		Reference:             uuid.New().String(),
		ChaletID:              meta.ChaletID,
		ChaletName:            meta.ChaletName,
		StartDate:             meta.StartDate,
		EndDate:               meta.EndDate,
		GuestName:             meta.GuestName,
		GuestEmail:            meta.GuestEmail,
		GuestPhone:            meta.GuestPhone,
		Guests:                meta.Guests,
		Nights:                meta.Nights,
		PricePerNight:         meta.PricePerNight,
		TotalPrice:            meta.TotalPrice,
		Currency:              currency,
		Status:                models.BookingStatusConfirmed,
		PaymentStatus:         models.PaymentStatusPaid,
		StripeSessionID:       sessionID,
		StripePaymentIntentID: strings.TrimSpace(s.PaymentIntentID),
	}
	if meta.UserID != "" {
		uid := meta.UserID
		b.UserID = &uid
	}
	if err := b.Validate(); err != nil {
		return Outcome{}, fmt.Errorf("%w: session %s: %v", apperr.MaterializationData, sessionID, err)
	}

	storeCtx, cancel := context.WithTimeout(ctx, m.cfg.StoreTimeout)
	stored, created, err := m.store.CreateIfAbsent(storeCtx, b)
	cancel()
	if err != nil {
		return Outcome{}, fmt.Errorf("booking: persist session %s: %w", sessionID, err)
	}
	out := Outcome{Booking: stored, Created: created}
	if !created {
		log.Infof("booking: session %s already materialized as %s", sessionID, stored.Reference)
		return out, nil
	}

	m.metrics.BookingCreated()
	log.Infof("booking: created %s for chalet %s (session %s)", stored.Reference, stored.ChaletID, sessionID)

	if err := m.notify(ctx, stored); err != nil {
		m.metrics.NotificationFailed()
		log.Errorf("booking: confirmation for %s failed: %v", stored.Reference, err)
		return out, fmt.Errorf("%w: booking %s: %v", apperr.Notification, stored.Reference, err)
	}
	return out, nil
}

// Refund marks the booking paid by paymentIntentID as refunded and cancelled.
func (m *Materializer) Refund(ctx context.Context, paymentIntentID string) (*models.Booking, error) {
	paymentIntentID = strings.TrimSpace(paymentIntentID)
	if paymentIntentID == "" {
		return nil, fmt.Errorf("%w: refund without payment intent", apperr.MaterializationData)
	}
	storeCtx, cancel := context.WithTimeout(ctx, m.cfg.StoreTimeout)
	defer cancel()
	b, err := m.store.MarkRefunded(storeCtx, paymentIntentID, m.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("booking: refund %s: %w", paymentIntentID, err)
	}
	log.Infof("booking: %s refunded and cancelled", b.Reference)
	return b, nil
}

func (m *Materializer) notify(ctx context.Context, b *models.Booking) error {
	if m.notifier == nil {
		return nil
	}
	c := Confirmation{Booking: *b}
	if owner := m.owner(ctx, b.ChaletID); owner != nil {
		c.OwnerName = owner.OwnerName
		c.OwnerEmail = owner.OwnerEmail
		if c.Booking.ChaletName == "" {
			c.Booking.ChaletName = owner.Name
		}
	}
	notifyCtx, cancel := context.WithTimeout(ctx, m.cfg.NotifyTimeout)
	defer cancel()
	return m.notifier.SendBookingConfirmation(notifyCtx, c)
}

func (m *Materializer) owner(ctx context.Context, chaletID string) *models.Chalet {
	if m.chalets == nil {
		return nil
	}
	lookupCtx, cancel := context.WithTimeout(ctx, m.cfg.StoreTimeout)
	defer cancel()
	chalet, err := m.chalets.GetChaletByID(lookupCtx, chaletID)
	if err != nil {
		if !errors.Is(err, apperr.NotFound) {
			log.Warnf("booking: owner lookup for chalet %s failed: %v", chaletID, err)
		}
		return nil
	}
	return chalet
}

// checkAmount logs when the charged amount differs from the metadata total.
// The provider amount is authoritative for money; the booking is still kept.
func (m *Materializer) checkAmount(sessionID string, meta checkout.Metadata, amountTotal int64) {
	if amountTotal <= 0 {
		return
	}
	expected, err := m.cfg.Currency.ToMinor(meta.TotalPrice)
	if err != nil || expected != amountTotal {
		log.Errorf("booking: session %s charged %d minor units, metadata total is %.3f", sessionID, amountTotal, meta.TotalPrice)
	}
}
