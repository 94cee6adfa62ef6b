package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// RateSpec is a "<max>/<window>" pair such as "100/60s" or "10/15m".
type RateSpec struct {
	MaxRequests int
	Window      time.Duration
}

func (r *RateSpec) Decode(value string) error {
	n, w, ok := strings.Cut(strings.TrimSpace(value), "/")
	if !ok {
		return fmt.Errorf("rate %q: want <max>/<window>", value)
	}
	max, err := strconv.Atoi(strings.TrimSpace(n))
	if err != nil || max <= 0 {
		return fmt.Errorf("rate %q: max must be a positive integer", value)
	}
	window, err := time.ParseDuration(strings.TrimSpace(w))
	if err != nil || window <= 0 {
		return fmt.Errorf("rate %q: window must be a positive duration", value)
	}
	r.MaxRequests = max
	r.Window = window
	return nil
}

type App struct {
	Env        string `envconfig:"APP_ENV" default:"prod"`
	Listen     string `envconfig:"APP_LISTEN" default:":4000"`
	PublicURL  string `envconfig:"PUBLIC_DOMAIN" default:"http://localhost:4000"`
	TrustProxy bool   `envconfig:"TRUST_PROXY" default:"false"`
	DocsPath   string `envconfig:"OPENAPI_FILE" default:"public/docs/v1/openapi.yml"`

	// DB
	DBDriver   string `envconfig:"DB_DRIVER" default:"mysql"`
	DBHost     string `envconfig:"DB_HOST" default:"127.0.0.1"`
	DBPort     string `envconfig:"DB_PORT" default:"3306"`
	DBUser     string `envconfig:"DB_USER"`
	DBPassword string `envconfig:"DB_PASSWORD"`
	DBName     string `envconfig:"DB_NAME" default:"chaletbook"`
	DBPath     string `envconfig:"DB_PATH" default:"chaletbook.db"`

	// Cache
	CacheHost     string `envconfig:"CACHE_HOST" default:"localhost"`
	CachePort     string `envconfig:"CACHE_PORT" default:"6379"`
	CachePassword string `envconfig:"CACHE_PASSWORD"`
	CacheEnabled  bool   `envconfig:"CACHE_ENABLED" default:"false"`

	// Payment provider
	StripeSecretKey     string        `envconfig:"STRIPE_SECRET_KEY"`
	StripeAPIBaseURL    string        `envconfig:"STRIPE_API_BASE_URL" default:"https://api.stripe.com/v1"`
	StripeWebhookSecret string        `envconfig:"STRIPE_WEBHOOK_SECRET"`
	WebhookTolerance    time.Duration `envconfig:"STRIPE_WEBHOOK_TOLERANCE" default:"5m"`
	ProviderTimeout     time.Duration `envconfig:"STRIPE_TIMEOUT" default:"15s"`

	// Checkout
	Currency             string  `envconfig:"CHECKOUT_CURRENCY" default:"tnd"`
	CurrencyDecimals     int     `envconfig:"CHECKOUT_CURRENCY_DECIMALS" default:"3"`
	DefaultPricePerNight float64 `envconfig:"CHECKOUT_DEFAULT_PRICE_PER_NIGHT" default:"0"`
	SuccessPath          string  `envconfig:"CHECKOUT_SUCCESS_PATH" default:"/booking/success?session_id={CHECKOUT_SESSION_ID}"`
	CancelPath           string  `envconfig:"CHECKOUT_CANCEL_PATH" default:"/booking/cancel"`

	// Rate limits
	RateDefault    RateSpec      `envconfig:"RATE_LIMIT_DEFAULT" default:"100/60s"`
	RateAuth       RateSpec      `envconfig:"RATE_LIMIT_AUTH" default:"10/15m"`
	RateStrict     RateSpec      `envconfig:"RATE_LIMIT_STRICT" default:"5/60s"`
	RateSweep      time.Duration `envconfig:"RATE_LIMIT_SWEEP_INTERVAL" default:"5m"`
	RateLimitRedis bool          `envconfig:"RATE_LIMIT_REDIS" default:"false"`

	// Mail
	SMTPHost     string `envconfig:"SMTP_HOST"`
	SMTPPort     string `envconfig:"SMTP_PORT" default:"587"`
	SMTPUsername string `envconfig:"SMTP_USERNAME"`
	SMTPPassword string `envconfig:"SMTP_PASSWORD"`
	SMTPSender   string `envconfig:"SMTP_SENDER"`

	// Booking events
	RabbitURL       string `envconfig:"RABBIT_URL"`
	BookingExchange string `envconfig:"BOOKING_EXCHANGE" default:"booking.exchange"`

	// Webhook archive
	S3Bucket          string `envconfig:"WEBHOOK_ARCHIVE_BUCKET"`
	S3Region          string `envconfig:"WEBHOOK_ARCHIVE_REGION" default:"eu-central-1"`
	S3Endpoint        string `envconfig:"WEBHOOK_ARCHIVE_ENDPOINT"`
	S3AccessKeyID     string `envconfig:"WEBHOOK_ARCHIVE_ACCESS_KEY_ID"`
	S3SecretAccessKey string `envconfig:"WEBHOOK_ARCHIVE_SECRET_ACCESS_KEY"`
	S3Prefix          string `envconfig:"WEBHOOK_ARCHIVE_PREFIX" default:"webhooks/stripe"`
}

func Load() (App, error) {
	var c App
	if err := envconfig.Process("", &c); err != nil {
		return c, err
	}
	return c, c.validate()
}

func (c App) validate() error {
	switch c.DBDriver {
	case "mysql", "sqlite", "bolt":
	default:
		return fmt.Errorf("DB_DRIVER %q: want mysql, sqlite or bolt", c.DBDriver)
	}
	if c.CurrencyDecimals < 0 || c.CurrencyDecimals > 4 {
		return fmt.Errorf("CHECKOUT_CURRENCY_DECIMALS %d out of range", c.CurrencyDecimals)
	}
	if c.DefaultPricePerNight < 0 {
		return fmt.Errorf("CHECKOUT_DEFAULT_PRICE_PER_NIGHT must not be negative")
	}
	return nil
}

func (c App) IsDev() bool {
	return c.Env == "dev"
}

// SuccessURL is where the provider sends the guest after paying.
func (c App) SuccessURL() string {
	return strings.TrimRight(c.PublicURL, "/") + c.SuccessPath
}

func (c App) CancelURL() string {
	return strings.TrimRight(c.PublicURL, "/") + c.CancelPath
}

func (c App) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}
