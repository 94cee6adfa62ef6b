package constants

// Route constants
const (
	APIPrefix = "/api"

	// Below APIPrefix
	CheckoutSessionRoute  = "/checkout/session"
	StripeWebhookRoute    = "/webhooks/stripe"
	BookingBySessionRoute = "/bookings/session/:sessionId"

	HealthRoute  = "/healthz"
	MetricsRoute = "/metrics"
)
