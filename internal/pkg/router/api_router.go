package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/idempotency"

	"github.com/ManuelReschke/ChaletBook/internal/pkg/constants"
	"github.com/ManuelReschke/ChaletBook/internal/pkg/ratelimit"
)

const idempotencyLifetime = 30 * time.Minute

type ApiRouter struct {
	deps Deps
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	d := h.deps
	api := app.Group(constants.APIPrefix)
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	if d.Checkout != nil {
		api.Post(constants.CheckoutSessionRoute,
			ratelimit.Middleware(d.Limiter, d.CheckoutPolicy, d.ClientKey, d.Metrics),
			idempotency.New(idempotency.Config{
				Lifetime:  idempotencyLifetime,
				KeyHeader: "X-Idempotency-Key",
				Storage:   d.IdempotencyStorage,
			}),
			d.Checkout.HandleCreateSession,
		)
	}

	// The provider retries deliveries itself, so webhooks are not rate-limited.
	if d.Webhook != nil {
		api.Post(constants.StripeWebhookRoute, d.Webhook.HandleStripeWebhook)
	}

	if d.Bookings != nil {
		api.Get(constants.BookingBySessionRoute,
			ratelimit.Middleware(d.Limiter, d.LookupPolicy, d.ClientKey, d.Metrics),
			d.Bookings.HandleGetBySession,
		)
	}
}

func NewApiRouter(deps Deps) *ApiRouter {
	return &ApiRouter{deps: deps}
}
