package controllers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/ChaletBook/app/models"
	"github.com/ManuelReschke/ChaletBook/internal/pkg/apperr"
	"github.com/ManuelReschke/ChaletBook/internal/pkg/checkout"
)

const lookupTimeout = 10 * time.Second

// BookingFinder is satisfied by the booking stores.
type BookingFinder interface {
	GetBySessionID(ctx context.Context, sessionID string) (*models.Booking, error)
}

type BookingController struct {
	Bookings BookingFinder
}

// bookingView is what the success page may show; contact details stay out.
type bookingView struct {
	Reference     string  `json:"reference"`
	ChaletID      string  `json:"chaletId"`
	ChaletName    string  `json:"chaletName"`
	StartDate     string  `json:"startDate"`
	EndDate       string  `json:"endDate"`
	Nights        int     `json:"nights"`
	Guests        int     `json:"guests"`
	TotalPrice    float64 `json:"totalPrice"`
	Currency      string  `json:"currency"`
	Status        string  `json:"status"`
	PaymentStatus string  `json:"paymentStatus"`
}

// HandleGetBySession answers GET /api/bookings/session/:sessionId.
func (h *BookingController) HandleGetBySession(c *fiber.Ctx) error {
	sessionID := strings.TrimSpace(c.Params("sessionId"))
	if sessionID == "" || len(sessionID) > 191 {
		return respondError(c, fmt.Errorf("%w: session id missing", apperr.ClientInput))
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), lookupTimeout)
	defer cancel()

	b, err := h.Bookings.GetBySessionID(ctx, sessionID)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(bookingView{
		Reference:     b.Reference,
		ChaletID:      b.ChaletID,
		ChaletName:    b.ChaletName,
		StartDate:     b.StartDate.Format(checkout.DateLayout),
		EndDate:       b.EndDate.Format(checkout.DateLayout),
		Nights:        b.Nights,
		Guests:        b.Guests,
		TotalPrice:    b.TotalPrice,
		Currency:      b.Currency,
		Status:        b.Status,
		PaymentStatus: b.PaymentStatus,
	})
}
