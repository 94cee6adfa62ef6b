package models

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	BookingStatusConfirmed = "CONFIRMED"
	BookingStatusCancelled = "CANCELLED"
	BookingStatusPending   = "PENDING"
)

const (
	PaymentStatusPaid     = "PAID"
	PaymentStatusUnpaid   = "UNPAID"
	PaymentStatusRefunded = "REFUNDED"
)

// Booking is the durable record of a paid stay. StripeSessionID is the
// idempotency key: one checkout session yields at most one booking. Rows are
// never deleted, cancellation is a status transition.
type Booking struct {
	ID                    uint       `gorm:"primaryKey" json:"id"`
	Reference             string     `gorm:"type:varchar(36);uniqueIndex:ux_bookings_reference;not null" json:"reference"`
	ChaletID              string     `gorm:"type:varchar(64);not null;index" json:"chalet_id" validate:"required,max=64"`
	ChaletName            string     `gorm:"type:varchar(200)" json:"chalet_name" validate:"max=200"`
	UserID                *string    `gorm:"type:varchar(64);index" json:"user_id,omitempty"`
	StartDate             time.Time  `gorm:"type:date;not null" json:"start_date" validate:"required"`
	EndDate               time.Time  `gorm:"type:date;not null" json:"end_date" validate:"required,gtfield=StartDate"`
	GuestName             string     `gorm:"type:varchar(150);not null" json:"guest_name" validate:"required,max=150"`
	GuestEmail            string     `gorm:"type:varchar(200);not null;index" json:"guest_email" validate:"required,email,max=200"`
	GuestPhone            string     `gorm:"type:varchar(40)" json:"guest_phone" validate:"max=40"`
	Guests                int        `gorm:"not null;default:1" json:"guests" validate:"min=1"`
	Nights                int        `gorm:"not null" json:"nights" validate:"min=1"`
	PricePerNight         float64    `gorm:"type:decimal(12,3);not null" json:"price_per_night" validate:"gt=0,lt=1000000000"`
	TotalPrice            float64    `gorm:"type:decimal(12,3);not null" json:"total_price" validate:"gt=0,lt=1000000000"`
	Currency              string     `gorm:"type:varchar(3);not null" json:"currency" validate:"required,len=3"`
	Status                string     `gorm:"type:varchar(16);not null;default:'PENDING';index" json:"status" validate:"oneof=CONFIRMED CANCELLED PENDING"`
	PaymentStatus         string     `gorm:"type:varchar(16);not null;default:'UNPAID';index" json:"payment_status" validate:"oneof=PAID UNPAID REFUNDED"`
	StripeSessionID       string     `gorm:"type:varchar(191);not null;uniqueIndex:ux_bookings_stripe_session_id" json:"stripe_session_id" validate:"required"`
	StripePaymentIntentID string     `gorm:"type:varchar(191);index" json:"stripe_payment_intent_id"`
	RefundedAt            *time.Time `gorm:"type:timestamp;default:null" json:"refunded_at,omitempty"`
	CreatedAt             time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (b *Booking) Validate() error {
	v := validator.New()
	return v.Struct(b)
}

func (b *Booking) BeforeCreate(tx *gorm.DB) error {
	if b.Reference == "" {
		b.Reference = uuid.New().String()
	}
	return nil
}
