package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/juju/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/ManuelReschke/ChaletBook/app/controllers"
	"github.com/ManuelReschke/ChaletBook/app/repository"
	"github.com/ManuelReschke/ChaletBook/internal/pkg/archive"
	"github.com/ManuelReschke/ChaletBook/internal/pkg/booking"
	"github.com/ManuelReschke/ChaletBook/internal/pkg/cache"
	"github.com/ManuelReschke/ChaletBook/internal/pkg/checkout"
	"github.com/ManuelReschke/ChaletBook/internal/pkg/config"
	"github.com/ManuelReschke/ChaletBook/internal/pkg/database"
	"github.com/ManuelReschke/ChaletBook/internal/pkg/env"
	"github.com/ManuelReschke/ChaletBook/internal/pkg/mail"
	"github.com/ManuelReschke/ChaletBook/internal/pkg/metrics"
	"github.com/ManuelReschke/ChaletBook/internal/pkg/mq"
	"github.com/ManuelReschke/ChaletBook/internal/pkg/payment"
	"github.com/ManuelReschke/ChaletBook/internal/pkg/ratelimit"
	"github.com/ManuelReschke/ChaletBook/internal/pkg/router"
	"github.com/ManuelReschke/ChaletBook/internal/pkg/webhook"
)

const (
	idempotencyDatabase = 1
	shutdownTimeout     = 10 * time.Second
)

func main() {
	if file, err := env.SetupEnvFile(); err != nil {
		log.Fatalf("Error loading .env file: %v", err)
	} else if file != "" {
		log.Infof("Loaded environment from %s", file)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if cfg.IsDev() {
		log.SetLevel(log.LevelDebug)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, cleanup, err := NewApplication(ctx, cfg)
	if err != nil {
		log.Fatalf("Startup failed: %v", err)
	}
	defer cleanup()

	go func() {
		<-ctx.Done()
		log.Info("Shutting down")
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			log.Errorf("Shutdown: %v", err)
		}
	}()

	if err := app.Listen(cfg.Listen); err != nil {
		log.Errorf("Server stopped: %v", err)
	}
}

// stores are the persistence backends picked by DB_DRIVER.
type stores struct {
	bookings interface {
		booking.Store
		controllers.BookingFinder
	}
	chalets checkout.ChaletLookup
	events  webhook.EventLog
	close   func()
}

func openStores(cfg config.App) (*stores, error) {
	if cfg.DBDriver == "bolt" {
		bs, err := booking.OpenBoltStore(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		log.Infof("Using bolt booking store at %s", cfg.DBPath)
		// no chalet catalogue or webhook audit log without a relational database
		return &stores{bookings: bs, close: func() { _ = bs.Close() }}, nil
	}

	db, err := database.SetupDatabase(cfg)
	if err != nil {
		return nil, err
	}
	repos := repository.NewFactory(db).GetRepositories()
	return &stores{
		bookings: repos.Booking,
		chalets:  repos.Chalet,
		events:   repos.WebhookEvent,
		close: func() {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		},
	}, nil
}

func ratePolicies(cfg config.App) map[string]ratelimit.Policy {
	policy := func(name string, spec config.RateSpec) ratelimit.Policy {
		return ratelimit.Policy{Name: name, Window: spec.Window, MaxRequests: spec.MaxRequests}
	}
	return map[string]ratelimit.Policy{
		ratelimit.PolicyDefault: policy(ratelimit.PolicyDefault, cfg.RateDefault),
		ratelimit.PolicyAuth:    policy(ratelimit.PolicyAuth, cfg.RateAuth),
		ratelimit.PolicyStrict:  policy(ratelimit.PolicyStrict, cfg.RateStrict),
	}
}

func newNotifier(cfg config.App, currency checkout.Currency) (booking.Notifier, func(), error) {
	var notifiers booking.Notifiers
	cleanup := func() {}

	if cfg.SMTPHost != "" {
		mailer := mail.NewSMTPMailer(mail.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPSender,
		})
		confirmations, err := mail.NewConfirmationNotifier(mailer, currency)
		if err != nil {
			return nil, cleanup, err
		}
		notifiers = append(notifiers, confirmations)
	} else {
		log.Warn("SMTP_HOST not set, booking confirmations are not emailed")
	}

	if cfg.RabbitURL != "" {
		pub, err := mq.NewPublisher(cfg.RabbitURL, cfg.BookingExchange)
		if err != nil {
			return nil, cleanup, err
		}
		notifiers = append(notifiers, mq.NewBookingNotifier(pub))
		cleanup = func() { _ = pub.Close() }
	}

	if len(notifiers) == 0 {
		return nil, cleanup, nil
	}
	return notifiers, cleanup, nil
}

// NewApplication wires the booking pipeline into a fiber app. The returned
// cleanup releases stores and connections.
func NewApplication(ctx context.Context, cfg config.App) (*fiber.App, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*fiber.App, func(), error) {
		cleanup()
		return nil, func() {}, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := metrics.New(registry)

	st, err := openStores(cfg)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, st.close)

	var limiterStore ratelimit.Store = ratelimit.NewMemoryStore()
	var idempotencyStorage fiber.Storage
	if cfg.CacheEnabled {
		client, err := cache.NewClient(ctx, cfg)
		if err != nil {
			log.Warnf("Cache unavailable, using in-process stores: %v", err)
		} else {
			closers = append(closers, func() { _ = client.Close() })
			if cfg.RateLimitRedis {
				limiterStore = ratelimit.NewRedisStore(client, "")
			}
			if storage, err := cache.NewFiberStorage(cfg, idempotencyDatabase); err != nil {
				log.Warnf("Idempotency storage unavailable: %v", err)
			} else {
				idempotencyStorage = storage
				closers = append(closers, func() { _ = storage.Close() })
			}
		}
	}

	limiter := ratelimit.New(limiterStore, ratePolicies(cfg), clock.WallClock)
	limiter.Start(cfg.RateSweep)
	closers = append(closers, limiter.Stop)

	currency := checkout.Currency{Code: cfg.Currency, Decimals: cfg.CurrencyDecimals}
	if cfg.StripeSecretKey == "" {
		log.Warn("STRIPE_SECRET_KEY not set, checkout sessions will fail")
	}
	provider := payment.NewClient(cfg.StripeSecretKey, cfg.StripeAPIBaseURL, cfg.ProviderTimeout)
	builder := checkout.NewBuilder(provider, st.chalets, checkout.Config{
		Currency:             currency,
		DefaultPricePerNight: cfg.DefaultPricePerNight,
	}, rec)

	notifier, closeNotifier, err := newNotifier(cfg, currency)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, closeNotifier)

	materializer := booking.NewMaterializer(st.bookings, notifier, st.chalets, booking.Config{Currency: currency}, rec)

	opts := []webhook.Option{webhook.WithMetrics(rec)}
	if st.events != nil {
		opts = append(opts, webhook.WithEventLog(st.events))
	}
	archiveCfg := archive.Config{
		AccessKeyID:     cfg.S3AccessKeyID,
		SecretAccessKey: cfg.S3SecretAccessKey,
		Region:          cfg.S3Region,
		BucketName:      cfg.S3Bucket,
		EndpointURL:     cfg.S3Endpoint,
		Prefix:          cfg.S3Prefix,
	}
	if archiveCfg.IsEnabled() {
		client, err := archive.NewS3Client(ctx, archiveCfg)
		if err != nil {
			return fail(err)
		}
		opts = append(opts, webhook.WithArchiver(archive.NewS3Archiver(client, archiveCfg)))
	}
	if cfg.StripeWebhookSecret == "" {
		log.Warn("STRIPE_WEBHOOK_SECRET not set, every webhook will be rejected")
	}
	dispatcher := webhook.NewDispatcher(webhook.Config{
		Secret:    cfg.StripeWebhookSecret,
		Tolerance: cfg.WebhookTolerance,
	}, materializer, opts...)

	app := fiber.New(fiber.Config{
		AppName:      "ChaletBook",
		BodyLimit:    1 << 20,
		ErrorHandler: controllers.ErrorHandler,
	})
	app.Use(recover.New(), requestid.New(), logger.New())

	app.Use(swagger.New(swagger.Config{
		BasePath: "/docs/api/",
		FilePath: cfg.DocsPath,
		Path:     "v1",
	}))

	router.InstallRouter(app, router.Deps{
		Checkout: &controllers.CheckoutController{
			Builder:    builder,
			SuccessURL: cfg.SuccessURL(),
			CancelURL:  cfg.CancelURL(),
		},
		Webhook:            &controllers.WebhookController{Dispatcher: dispatcher},
		Bookings:           &controllers.BookingController{Bookings: st.bookings},
		Limiter:            limiter,
		ClientKey:          ratelimit.ClientIP(cfg.TrustProxy),
		IdempotencyStorage: idempotencyStorage,
		Metrics:            rec,
		Gatherer:           registry,
	})

	return app, cleanup, nil
}
