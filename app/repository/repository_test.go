package repository

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ManuelReschke/ChaletBook/app/models"
	"github.com/ManuelReschke/ChaletBook/internal/pkg/apperr"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "chaletbook.db") + "?_busy_timeout=5000"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&models.Chalet{}, &models.Booking{}, &models.PaymentWebhookEvent{}))
	return db
}

func newBooking(sessionID string) *models.Booking {
	return &models.Booking{
		ChaletID:              "c1",
		ChaletName:            "Chalet",
		StartDate:             time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		EndDate:               time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC),
		GuestName:             "Amel",
		GuestEmail:            "amel@example.com",
		Guests:                2,
		Nights:                2,
		PricePerNight:         100,
		TotalPrice:            200,
		Currency:              "tnd",
		Status:                models.BookingStatusConfirmed,
		PaymentStatus:         models.PaymentStatusPaid,
		StripeSessionID:       sessionID,
		StripePaymentIntentID: "pi_" + sessionID,
	}
}

func TestBookingRepository_CreateIfAbsent(t *testing.T) {
	repos := NewFactory(setupTestDB(t)).GetRepositories()
	ctx := context.Background()

	first, created, err := repos.Booking.CreateIfAbsent(ctx, newBooking("cs_1"))
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotZero(t, first.ID)
	assert.Len(t, first.Reference, 36)

	second, created, err := repos.Booking.CreateIfAbsent(ctx, newBooking("cs_1"))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Reference, second.Reference)

	count, err := repos.Booking.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	bySession, err := repos.Booking.GetBySessionID(ctx, "cs_1")
	require.NoError(t, err)
	assert.Equal(t, first.Reference, bySession.Reference)
}

func TestBookingRepository_ConcurrentCreateIfAbsent(t *testing.T) {
	repo := NewBookingRepository(setupTestDB(t))
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := repo.CreateIfAbsent(ctx, newBooking("cs_race"))
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestBookingRepository_NotFound(t *testing.T) {
	repo := NewBookingRepository(setupTestDB(t))
	_, err := repo.GetBySessionID(context.Background(), "cs_missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.NotFound))
}

func TestBookingRepository_MarkRefunded(t *testing.T) {
	repo := NewBookingRepository(setupTestDB(t))
	ctx := context.Background()
	_, _, err := repo.CreateIfAbsent(ctx, newBooking("cs_r"))
	require.NoError(t, err)

	at := time.Date(2025, 6, 10, 8, 0, 0, 0, time.UTC)
	b, err := repo.MarkRefunded(ctx, "pi_cs_r", at)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusRefunded, b.PaymentStatus)
	assert.Equal(t, models.BookingStatusCancelled, b.Status)
	require.NotNil(t, b.RefundedAt)
	assert.True(t, at.Equal(*b.RefundedAt))

	again, err := repo.MarkRefunded(ctx, "pi_cs_r", at.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, at.Equal(*again.RefundedAt))

	_, err = repo.MarkRefunded(ctx, "pi_unknown", at)
	assert.True(t, errors.Is(err, apperr.NotFound))
}

func TestChaletRepository_GetChaletByID(t *testing.T) {
	repo := NewChaletRepository(setupTestDB(t))
	ctx := context.Background()
	require.NoError(t, repo.Save(ctx, &models.Chalet{ID: "c1", Name: "Chalet", OwnerEmail: "owner@example.com", PricePerNight: 120, IsActive: true}))

	c, err := repo.GetChaletByID(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "owner@example.com", c.OwnerEmail)
	assert.Equal(t, 120.0, c.PricePerNight)

	_, err = repo.GetChaletByID(ctx, "c404")
	assert.True(t, errors.Is(err, apperr.NotFound))
}

func TestWebhookEventRepository_Dedupe(t *testing.T) {
	repo := NewWebhookEventRepository(setupTestDB(t))
	ctx := context.Background()

	event := func() *models.PaymentWebhookEvent {
		return &models.PaymentWebhookEvent{
			Provider:        models.PaymentProviderStripe,
			ProviderEventID: "evt_1",
			EventType:       "checkout.session.completed",
			PayloadJSON:     `{}`,
		}
	}

	created, stored, err := repo.CreateWebhookEventIfNotExists(ctx, event())
	require.NoError(t, err)
	assert.True(t, created)
	assert.False(t, stored.Succeeded())

	require.NoError(t, repo.MarkWebhookProcessed(ctx, stored.ID, "boom"))
	created, again, err := repo.CreateWebhookEventIfNotExists(ctx, event())
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, stored.ID, again.ID)
	assert.False(t, again.Succeeded())
	assert.Equal(t, 1, again.Attempts)

	require.NoError(t, repo.MarkWebhookProcessed(ctx, stored.ID, ""))
	final, err := repo.GetByProviderEventID(ctx, models.PaymentProviderStripe, "evt_1")
	require.NoError(t, err)
	assert.True(t, final.Succeeded())
	assert.Equal(t, 2, final.Attempts)

	_, err = repo.GetByProviderEventID(ctx, models.PaymentProviderStripe, fmt.Sprintf("evt_%d", 404))
	assert.True(t, errors.Is(err, apperr.NotFound))
}
