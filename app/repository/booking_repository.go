package repository

import (
	"context"
	"time"

	"github.com/ManuelReschke/ChaletBook/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// bookingRepository implements the BookingRepository interface
type bookingRepository struct {
	db *gorm.DB
}

// NewBookingRepository creates a new booking repository instance
func NewBookingRepository(db *gorm.DB) BookingRepository {
	return &bookingRepository{db: db}
}

// CreateIfAbsent inserts the booking unless one exists for its session id.
// The unique index on stripe_session_id decides; there is no read-then-write.
func (r *bookingRepository) CreateIfAbsent(ctx context.Context, booking *models.Booking) (*models.Booking, bool, error) {
	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "stripe_session_id"}},
		DoNothing: true,
	}).Create(booking)
	if tx.Error != nil {
		return nil, false, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.Booking
	if err := r.db.WithContext(ctx).Where("stripe_session_id = ?", booking.StripeSessionID).
		First(&stored).Error; err != nil {
		return nil, false, err
	}
	return &stored, created, nil
}

// GetBySessionID retrieves a booking by its checkout session id
func (r *bookingRepository) GetBySessionID(ctx context.Context, sessionID string) (*models.Booking, error) {
	var booking models.Booking
	err := r.db.WithContext(ctx).Where("stripe_session_id = ?", sessionID).First(&booking).Error
	if err != nil {
		return nil, notFound(err, "booking for session "+sessionID)
	}
	return &booking, nil
}

// MarkRefunded cancels the booking paid by paymentIntentID. Repeated calls
// keep the first refund timestamp.
func (r *bookingRepository) MarkRefunded(ctx context.Context, paymentIntentID string, at time.Time) (*models.Booking, error) {
	err := r.db.WithContext(ctx).Model(&models.Booking{}).
		Where("stripe_payment_intent_id = ? AND payment_status <> ?", paymentIntentID, models.PaymentStatusRefunded).
		Updates(map[string]interface{}{
			"payment_status": models.PaymentStatusRefunded,
			"status":         models.BookingStatusCancelled,
			"refunded_at":    &at,
		}).Error
	if err != nil {
		return nil, err
	}

	var booking models.Booking
	if err := r.db.WithContext(ctx).Where("stripe_payment_intent_id = ?", paymentIntentID).
		First(&booking).Error; err != nil {
		return nil, notFound(err, "booking for payment intent "+paymentIntentID)
	}
	return &booking, nil
}

// Count returns the total number of bookings
func (r *bookingRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Booking{}).Count(&count).Error
	return count, err
}
