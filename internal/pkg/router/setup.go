package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ManuelReschke/ChaletBook/app/controllers"
	"github.com/ManuelReschke/ChaletBook/internal/pkg/constants"
	"github.com/ManuelReschke/ChaletBook/internal/pkg/metrics"
	"github.com/ManuelReschke/ChaletBook/internal/pkg/ratelimit"
)

// Router installs a group of routes on the app.
type Router interface {
	InstallRouter(app *fiber.App)
}

// Deps are the collaborators route handlers are built from.
type Deps struct {
	Checkout *controllers.CheckoutController
	Webhook  *controllers.WebhookController
	Bookings *controllers.BookingController

	Limiter        *ratelimit.Limiter
	ClientKey      ratelimit.KeyFunc
	CheckoutPolicy string
	LookupPolicy   string

	// IdempotencyStorage backs X-Idempotency-Key replays; nil keeps them in memory.
	IdempotencyStorage fiber.Storage

	Metrics  *metrics.Recorder
	Gatherer prometheus.Gatherer
}

func InstallRouter(app *fiber.App, deps Deps) {
	if deps.CheckoutPolicy == "" {
		deps.CheckoutPolicy = ratelimit.PolicyDefault
	}
	if deps.LookupPolicy == "" {
		deps.LookupPolicy = ratelimit.PolicyDefault
	}
	if deps.ClientKey == nil {
		deps.ClientKey = ratelimit.ClientIP(false)
	}
	if deps.Limiter == nil {
		log.Warn("[Router] no rate limiter configured, API routes are not throttled")
	}
	setup(app, NewHealthRouter(deps.Gatherer), NewApiRouter(deps))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}

type HealthRouter struct {
	gatherer prometheus.Gatherer
}

func NewHealthRouter(g prometheus.Gatherer) *HealthRouter {
	return &HealthRouter{gatherer: g}
}

func (h HealthRouter) InstallRouter(app *fiber.App) {
	app.Get(constants.HealthRoute, func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})
	if h.gatherer != nil {
		app.Get(constants.MetricsRoute, adaptor.HTTPHandler(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))
	}
}
