package mq

import (
	"context"
	"fmt"
	"time"

	"github.com/ManuelReschke/ChaletBook/internal/pkg/booking"
	"github.com/ManuelReschke/ChaletBook/internal/pkg/checkout"
)

const RoutingKeyBookingConfirmed = "booking.confirmed"

// JSONPublisher is satisfied by *Publisher.
type JSONPublisher interface {
	PublishJSON(ctx context.Context, key string, v any) error
}

// BookingConfirmed is the event body consumers receive.
type BookingConfirmed struct {
	Reference       string    `json:"reference"`
	ChaletID        string    `json:"chalet_id"`
	ChaletName      string    `json:"chalet_name"`
	GuestEmail      string    `json:"guest_email"`
	OwnerEmail      string    `json:"owner_email,omitempty"`
	StartDate       string    `json:"start_date"`
	EndDate         string    `json:"end_date"`
	Nights          int       `json:"nights"`
	Guests          int       `json:"guests"`
	TotalPrice      float64   `json:"total_price"`
	Currency        string    `json:"currency"`
	StripeSessionID string    `json:"stripe_session_id"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// BookingNotifier publishes a booking.confirmed event per new booking.
type BookingNotifier struct {
	pub JSONPublisher
	now func() time.Time
}

func NewBookingNotifier(pub JSONPublisher) *BookingNotifier {
	return &BookingNotifier{pub: pub, now: time.Now}
}

func (n *BookingNotifier) SendBookingConfirmation(ctx context.Context, c booking.Confirmation) error {
	b := c.Booking
	ev := BookingConfirmed{
		Reference:       b.Reference,
		ChaletID:        b.ChaletID,
		ChaletName:      b.ChaletName,
		GuestEmail:      b.GuestEmail,
		OwnerEmail:      c.OwnerEmail,
		StartDate:       b.StartDate.Format(checkout.DateLayout),
		EndDate:         b.EndDate.Format(checkout.DateLayout),
		Nights:          b.Nights,
		Guests:          b.Guests,
		TotalPrice:      b.TotalPrice,
		Currency:        b.Currency,
		StripeSessionID: b.StripeSessionID,
		OccurredAt:      n.now().UTC(),
	}
	if err := n.pub.PublishJSON(ctx, RoutingKeyBookingConfirmed, ev); err != nil {
		return fmt.Errorf("mq: publish %s for %s: %w", RoutingKeyBookingConfirmed, b.Reference, err)
	}
	return nil
}
