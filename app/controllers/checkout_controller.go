package controllers

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/ChaletBook/internal/pkg/apperr"
	"github.com/ManuelReschke/ChaletBook/internal/pkg/checkout"
)

const checkoutTimeout = 20 * time.Second

// SessionBuilder is satisfied by *checkout.Builder.
type SessionBuilder interface {
	CreateSession(ctx context.Context, req checkout.Request, successURL, cancelURL string) (*checkout.Session, error)
}

type CheckoutController struct {
	Builder    SessionBuilder
	SuccessURL string
	CancelURL  string
}

// HandleCreateSession answers POST /api/checkout/session.
func (h *CheckoutController) HandleCreateSession(c *fiber.Ctx) error {
	var req checkout.Request
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, fmt.Errorf("%w: invalid JSON body: %v", apperr.ClientInput, err))
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), checkoutTimeout)
	defer cancel()

	sess, err := h.Builder.CreateSession(ctx, req, h.SuccessURL, h.CancelURL)
	if err != nil {
		if apperr.HTTPStatus(err) >= fiber.StatusInternalServerError {
			// returned errors are rendered by ErrorHandler and never stored
			// under the idempotency key, so a retry reaches the provider again
			return err
		}
		return respondError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(sess)
}
