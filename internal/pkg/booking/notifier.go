package booking

import (
	"context"
	"errors"

	"github.com/ManuelReschke/ChaletBook/app/models"
)

// Confirmation is what a notifier needs to tell the guest and owner.
type Confirmation struct {
	Booking    models.Booking
	OwnerName  string
	OwnerEmail string
}

// Notifier delivers a booking confirmation.
type Notifier interface {
	SendBookingConfirmation(ctx context.Context, c Confirmation) error
}

// Notifiers fans a confirmation out to every notifier and joins the errors.
type Notifiers []Notifier

func (ns Notifiers) SendBookingConfirmation(ctx context.Context, c Confirmation) error {
	var errs []error
	for _, n := range ns {
		if n == nil {
			continue
		}
		if err := n.SendBookingConfirmation(ctx, c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
