// Package metrics exposes the pipeline's prometheus counters. A nil
// *Recorder is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "chaletbook"

// Recorder groups the counters written by the checkout and webhook paths.
type Recorder struct {
	checkoutSessions   *prometheus.CounterVec
	rateLimited        *prometheus.CounterVec
	webhookEvents      *prometheus.CounterVec
	webhookFailures    *prometheus.CounterVec
	bookingsCreated    prometheus.Counter
	notificationErrors prometheus.Counter
}

// New registers the counters on reg.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		checkoutSessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_sessions_total",
			Help:      "Checkout session creation attempts by outcome.",
		}, []string{"outcome"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_requests_total",
			Help:      "Requests rejected by the rate limiter.",
		}, []string{"policy"}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Verified webhook deliveries by event type.",
		}, []string{"type"}),
		webhookFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_processing_failures_total",
			Help:      "Acknowledged webhook deliveries whose processing failed.",
		}, []string{"type"}),
		bookingsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_created_total",
			Help:      "Bookings materialized from completed checkout sessions.",
		}),
		notificationErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_failures_total",
			Help:      "Booking confirmations that could not be delivered.",
		}),
	}
	reg.MustRegister(
		r.checkoutSessions,
		r.rateLimited,
		r.webhookEvents,
		r.webhookFailures,
		r.bookingsCreated,
		r.notificationErrors,
	)
	return r
}

func (r *Recorder) CheckoutSession(outcome string) {
	if r == nil {
		return
	}
	r.checkoutSessions.WithLabelValues(outcome).Inc()
}

func (r *Recorder) RateLimited(policy string) {
	if r == nil {
		return
	}
	r.rateLimited.WithLabelValues(policy).Inc()
}

func (r *Recorder) WebhookEvent(eventType string) {
	if r == nil {
		return
	}
	r.webhookEvents.WithLabelValues(eventType).Inc()
}

func (r *Recorder) WebhookFailure(eventType string) {
	if r == nil {
		return
	}
	r.webhookFailures.WithLabelValues(eventType).Inc()
}

func (r *Recorder) BookingCreated() {
	if r == nil {
		return
	}
	r.bookingsCreated.Inc()
}

func (r *Recorder) NotificationFailed() {
	if r == nil {
		return
	}
	r.notificationErrors.Inc()
}
