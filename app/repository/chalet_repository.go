package repository

import (
	"context"

	"github.com/ManuelReschke/ChaletBook/app/models"
	"gorm.io/gorm"
)

// chaletRepository implements the ChaletRepository interface
type chaletRepository struct {
	db *gorm.DB
}

// NewChaletRepository creates a new chalet repository instance
func NewChaletRepository(db *gorm.DB) ChaletRepository {
	return &chaletRepository{db: db}
}

// GetChaletByID retrieves an active chalet
func (r *chaletRepository) GetChaletByID(ctx context.Context, id string) (*models.Chalet, error) {
	var chalet models.Chalet
	err := r.db.WithContext(ctx).Where("id = ? AND is_active = ?", id, true).First(&chalet).Error
	if err != nil {
		return nil, notFound(err, "chalet "+id)
	}
	return &chalet, nil
}

// Save creates or updates a chalet
func (r *chaletRepository) Save(ctx context.Context, chalet *models.Chalet) error {
	return r.db.WithContext(ctx).Save(chalet).Error
}
