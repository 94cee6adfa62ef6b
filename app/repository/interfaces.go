package repository

import (
	"context"
	"time"

	"github.com/ManuelReschke/ChaletBook/app/models"
	"gorm.io/gorm"
)

// BookingRepository defines the booking persistence used by the materializer
type BookingRepository interface {
	CreateIfAbsent(ctx context.Context, booking *models.Booking) (*models.Booking, bool, error)
	GetBySessionID(ctx context.Context, sessionID string) (*models.Booking, error)
	MarkRefunded(ctx context.Context, paymentIntentID string, at time.Time) (*models.Booking, error)
	Count(ctx context.Context) (int64, error)
}

// ChaletRepository defines read access to chalets
type ChaletRepository interface {
	GetChaletByID(ctx context.Context, id string) (*models.Chalet, error)
	Save(ctx context.Context, chalet *models.Chalet) error
}

// WebhookEventRepository defines the audit trail of provider deliveries
type WebhookEventRepository interface {
	CreateWebhookEventIfNotExists(ctx context.Context, event *models.PaymentWebhookEvent) (bool, *models.PaymentWebhookEvent, error)
	MarkWebhookProcessed(ctx context.Context, id uint, processingError string) error
	GetByProviderEventID(ctx context.Context, provider, providerEventID string) (*models.PaymentWebhookEvent, error)
}

// Repositories struct holds all repository instances
type Repositories struct {
	Booking      BookingRepository
	Chalet       ChaletRepository
	WebhookEvent WebhookEventRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Booking:      NewBookingRepository(db),
		Chalet:       NewChaletRepository(db),
		WebhookEvent: NewWebhookEventRepository(db),
	}
}
