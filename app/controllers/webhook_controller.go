package controllers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ChaletBook/internal/pkg/payment"
	"github.com/ManuelReschke/ChaletBook/internal/pkg/webhook"
)

const webhookTimeout = 15 * time.Second

// WebhookHandler is satisfied by *webhook.Dispatcher.
type WebhookHandler interface {
	Handle(ctx context.Context, rawBody []byte, signatureHeader string) (webhook.Result, error)
}

type WebhookController struct {
	Dispatcher WebhookHandler
}

// HandleStripeWebhook answers POST /api/webhooks/stripe. The body is passed
// on byte-for-byte because the signature covers the raw payload.
func (h *WebhookController) HandleStripeWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := c.Get(payment.SignatureHeader)

	ctx, cancel := context.WithTimeout(c.UserContext(), webhookTimeout)
	defer cancel()

	res, err := h.Dispatcher.Handle(ctx, rawBody, signature)
	if err != nil {
		log.Warnf("webhook rejected from %s: %v", c.IP(), err)
		return respondError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(res)
}
