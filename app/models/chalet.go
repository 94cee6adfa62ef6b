package models

import (
	"time"

	"gorm.io/gorm"
)

// Chalet is read by the booking pipeline to resolve display names, default
// nightly prices and the owner to notify.
type Chalet struct {
	ID            string         `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Name          string         `gorm:"type:varchar(200);not null" json:"name"`
	OwnerName     string         `gorm:"type:varchar(150)" json:"owner_name"`
	OwnerEmail    string         `gorm:"type:varchar(200)" json:"owner_email"`
	PricePerNight float64        `gorm:"type:decimal(12,3);not null;default:0" json:"price_per_night"`
	MaxGuests     int            `gorm:"not null;default:0" json:"max_guests"`
	IsActive      bool           `gorm:"default:true;index" json:"is_active"`
	CreatedAt     time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}
