package repository

import (
	"errors"
	"fmt"

	"github.com/ManuelReschke/ChaletBook/internal/pkg/apperr"
	"gorm.io/gorm"
)

// notFound maps gorm's missing-record error onto apperr.NotFound
func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", apperr.NotFound, what)
	}
	return err
}
