package database

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/juju/clock"
	"github.com/juju/retry"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/ManuelReschke/ChaletBook/app/models"
	"github.com/ManuelReschke/ChaletBook/internal/pkg/config"
)

const maxRetries = 5
const retryDelay = 5 * time.Second

// SetupDatabase connects with retries and migrates the booking schema.
func SetupDatabase(cfg config.App) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.DBDriver {
	case "mysql":
		dialector = mysql.New(mysql.Config{
			DSN:                       cfg.MySQLDSN(),
			DefaultStringSize:         256,
			DisableDatetimePrecision:  true,
			DontSupportRenameIndex:    true,
			DontSupportRenameColumn:   true,
			SkipInitializeWithVersion: false,
		})
	case "sqlite":
		dialector = sqlite.Open(cfg.DBPath + "?_busy_timeout=5000&_journal_mode=WAL")
	default:
		return nil, fmt.Errorf("database: driver %q is not relational", cfg.DBDriver)
	}

	var db *gorm.DB
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			var err error
			db, err = gorm.Open(dialector, &gorm.Config{})
			if err != nil {
				return err
			}
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Ping()
		},
		NotifyFunc: func(err error, attempt int) {
			log.Warnf("Failed to connect to database (try %d/%d): %v", attempt, maxRetries, err)
		},
		Attempts: maxRetries,
		Delay:    retryDelay,
		Clock:    clock.WallClock,
	})
	if err != nil {
		return nil, fmt.Errorf("database: connect: %w", retry.LastError(err))
	}

	if cfg.DBDriver == "sqlite" {
		// sqlite allows a single writer
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.SetMaxOpenConns(1)
		}
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate creates or updates the tables the pipeline writes.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Chalet{},
		&models.Booking{},
		&models.PaymentWebhookEvent{},
	); err != nil {
		return fmt.Errorf("database: migrate: %w", err)
	}
	return nil
}
