// Package webhook verifies payment provider deliveries and routes them by
// event type. Only authentication and payload errors reach the caller;
// processing failures are logged, counted and acknowledged.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ChaletBook/app/models"
	"github.com/ManuelReschke/ChaletBook/internal/pkg/apperr"
	"github.com/ManuelReschke/ChaletBook/internal/pkg/booking"
	"github.com/ManuelReschke/ChaletBook/internal/pkg/metrics"
	"github.com/ManuelReschke/ChaletBook/internal/pkg/payment"
)

// BookingProcessor is the booking side of the pipeline.
type BookingProcessor interface {
	Materialize(ctx context.Context, s booking.CompletedSession) (booking.Outcome, error)
	Refund(ctx context.Context, paymentIntentID string) (*models.Booking, error)
}

// EventLog is the audit trail of verified deliveries.
type EventLog interface {
	CreateWebhookEventIfNotExists(ctx context.Context, event *models.PaymentWebhookEvent) (bool, *models.PaymentWebhookEvent, error)
	MarkWebhookProcessed(ctx context.Context, id uint, processingError string) error
}

// Archiver keeps a copy of raw verified payloads.
type Archiver interface {
	Archive(ctx context.Context, eventID, eventType string, payload []byte) error
}

type Config struct {
	Secret    string
	Tolerance time.Duration
}

// Result is acknowledged to the provider whenever Handle returns nil.
type Result struct {
	Received  bool   `json:"received"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Ignored   bool   `json:"ignored,omitempty"`
	EventID   string `json:"-"`
	EventType string `json:"-"`
}

type handlerFunc func(ctx context.Context, ev *payment.Event) error

type Dispatcher struct {
	cfg      Config
	bookings BookingProcessor
	events   EventLog
	archive  Archiver
	metrics  *metrics.Recorder
	handlers map[string]handlerFunc
	now      func() time.Time
}

// Option configures optional collaborators.
type Option func(*Dispatcher)

func WithEventLog(l EventLog) Option { return func(d *Dispatcher) { d.events = l } }

func WithArchiver(a Archiver) Option { return func(d *Dispatcher) { d.archive = a } }

func WithMetrics(r *metrics.Recorder) Option { return func(d *Dispatcher) { d.metrics = r } }

func WithClock(now func() time.Time) Option { return func(d *Dispatcher) { d.now = now } }

func NewDispatcher(cfg Config, bookings BookingProcessor, opts ...Option) *Dispatcher {
	if cfg.Tolerance == 0 {
		cfg.Tolerance = payment.DefaultTolerance
	}
	d := &Dispatcher{
		cfg:      cfg,
		bookings: bookings,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.handlers = map[string]handlerFunc{
		payment.EventCheckoutSessionCompleted:             d.handleSessionCompleted,
		payment.EventCheckoutSessionAsyncPaymentSucceeded: d.handleSessionCompleted,
		payment.EventCheckoutSessionAsyncPaymentFailed:    d.handleAsyncPaymentFailed,
		payment.EventCheckoutSessionExpired:               d.handleSessionExpired,
		payment.EventPaymentIntentSucceeded:               d.handlePaymentSucceeded,
		payment.EventPaymentIntentFailed:                  d.handlePaymentFailed,
		payment.EventChargeRefunded:                       d.handleChargeRefunded,
	}
	return d
}

// Handle verifies and dispatches one delivery. The signature is checked on
// the raw bytes before anything is decoded.
func (d *Dispatcher) Handle(ctx context.Context, rawBody []byte, signatureHeader string) (Result, error) {
	if err := payment.VerifySignature(rawBody, signatureHeader, d.cfg.Secret, d.cfg.Tolerance, d.now()); err != nil {
		return Result{}, err
	}

	ev, err := payment.ParseEvent(rawBody)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", apperr.ClientInput, err)
	}
	res := Result{Received: true, EventID: ev.ID, EventType: ev.Type}

	handler, known := d.handlers[ev.Type]
	metricType := ev.Type
	if !known {
		metricType = "other"
	}
	d.metrics.WebhookEvent(metricType)

	stored, duplicate := d.record(ctx, ev, rawBody)
	if duplicate {
		log.Infof("webhook: event %s (%s) already processed", ev.ID, ev.Type)
		res.Duplicate = true
		return res, nil
	}
	d.archivePayload(ctx, ev, rawBody)

	if !known {
		log.Debugf("webhook: ignoring event %s of type %s", ev.ID, ev.Type)
		d.markProcessed(ctx, stored, nil)
		res.Ignored = true
		return res, nil
	}

	procErr := handler(ctx, ev)
	if procErr != nil {
		d.metrics.WebhookFailure(metricType)
		if errors.Is(procErr, apperr.Notification) {
			log.Warnf("webhook: event %s (%s) processed with notification failure: %v", ev.ID, ev.Type, procErr)
		} else {
			log.Errorf("webhook: event %s (%s) failed: %v", ev.ID, ev.Type, procErr)
		}
	}
	d.markProcessed(ctx, stored, procErr)
	return res, nil
}

// record writes the audit row. It reports duplicate only when an earlier
// delivery of the same event finished without error.
func (d *Dispatcher) record(ctx context.Context, ev *payment.Event, rawBody []byte) (*models.PaymentWebhookEvent, bool) {
	if d.events == nil || strings.TrimSpace(ev.ID) == "" {
		return nil, false
	}
	created, stored, err := d.events.CreateWebhookEventIfNotExists(ctx, &models.PaymentWebhookEvent{
		Provider:        models.PaymentProviderStripe,
		ProviderEventID: ev.ID,
		EventType:       ev.Type,
		PayloadJSON:     string(rawBody),
	})
	if err != nil {
		log.Warnf("webhook: could not record event %s: %v", ev.ID, err)
		return nil, false
	}
	if !created && stored.Succeeded() {
		return stored, true
	}
	return stored, false
}

func (d *Dispatcher) markProcessed(ctx context.Context, stored *models.PaymentWebhookEvent, procErr error) {
	if d.events == nil || stored == nil {
		return
	}
	msg := ""
	// A failed notification still leaves a materialized booking behind.
	if procErr != nil && !errors.Is(procErr, apperr.Notification) {
		msg = procErr.Error()
	}
	if err := d.events.MarkWebhookProcessed(ctx, stored.ID, msg); err != nil {
		log.Warnf("webhook: could not mark event %s processed: %v", stored.ProviderEventID, err)
	}
}

func (d *Dispatcher) archivePayload(ctx context.Context, ev *payment.Event, rawBody []byte) {
	if d.archive == nil {
		return
	}
	if err := d.archive.Archive(ctx, ev.ID, ev.Type, rawBody); err != nil {
		log.Warnf("webhook: could not archive event %s: %v", ev.ID, err)
	}
}

func (d *Dispatcher) handleSessionCompleted(ctx context.Context, ev *payment.Event) error {
	sess, err := ev.CheckoutSession()
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.MaterializationData, err)
	}
	if sess.PaymentStatus != "" && sess.PaymentStatus != "paid" && sess.PaymentStatus != "no_payment_required" {
		log.Infof("webhook: session %s completed with payment status %s, waiting for payment", sess.ID, sess.PaymentStatus)
		return nil
	}
	out, err := d.bookings.Materialize(ctx, booking.CompletedSession{
		SessionID:       sess.ID,
		PaymentIntentID: string(sess.PaymentIntent),
		Metadata:        sess.Metadata,
		AmountTotal:     sess.AmountTotal,
		Currency:        sess.Currency,
	})
	if err != nil {
		return err
	}
	if out.Created {
		log.Infof("webhook: session %s materialized as booking %s", sess.ID, out.Booking.Reference)
	}
	return nil
}

func (d *Dispatcher) handleAsyncPaymentFailed(ctx context.Context, ev *payment.Event) error {
	sess, err := ev.CheckoutSession()
	if err != nil {
		return err
	}
	log.Warnf("webhook: delayed payment for checkout session %s failed, no booking created", sess.ID)
	return nil
}

func (d *Dispatcher) handleSessionExpired(ctx context.Context, ev *payment.Event) error {
	sess, err := ev.CheckoutSession()
	if err != nil {
		return err
	}
	log.Infof("webhook: checkout session %s expired", sess.ID)
	return nil
}

func (d *Dispatcher) handlePaymentSucceeded(ctx context.Context, ev *payment.Event) error {
	pi, err := ev.PaymentIntent()
	if err != nil {
		return err
	}
	log.Infof("webhook: payment intent %s succeeded (%d %s)", pi.ID, pi.Amount, strings.ToUpper(pi.Currency))
	return nil
}

func (d *Dispatcher) handlePaymentFailed(ctx context.Context, ev *payment.Event) error {
	pi, err := ev.PaymentIntent()
	if err != nil {
		return err
	}
	reason := "unknown"
	if pi.LastPaymentError != nil && pi.LastPaymentError.Message != "" {
		reason = pi.LastPaymentError.Message
	}
	log.Warnf("webhook: payment intent %s failed: %s", pi.ID, reason)
	return nil
}

func (d *Dispatcher) handleChargeRefunded(ctx context.Context, ev *payment.Event) error {
	ch, err := ev.Charge()
	if err != nil {
		return err
	}
	if !ch.Refunded {
		log.Infof("webhook: charge %s partially refunded (%d of %d)", ch.ID, ch.AmountRefunded, ch.Amount)
		return nil
	}
	_, err = d.bookings.Refund(ctx, string(ch.PaymentIntent))
	return err
}
