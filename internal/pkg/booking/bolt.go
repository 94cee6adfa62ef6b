package booking

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/boltdb/bolt"

	"github.com/ManuelReschke/ChaletBook/app/models"
	"github.com/ManuelReschke/ChaletBook/internal/pkg/apperr"
)

var (
	bucketBookings       = []byte("bookings")
	bucketPaymentIntents = []byte("bookings_by_payment_intent")
)

// BoltStore keeps bookings in an embedded bolt file, keyed by session id.
// Bolt serializes write transactions, so the existence check and the insert
// in CreateIfAbsent cannot interleave.
type BoltStore struct {
	db *bolt.DB
}

// OpenBoltStore opens or creates the database file and its buckets.
func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt store %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketBookings, bucketPaymentIntents} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) CreateIfAbsent(ctx context.Context, b *models.Booking) (*models.Booking, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	var result models.Booking
	created := false

	err := s.db.Update(func(tx *bolt.Tx) error {
		bookings := tx.Bucket(bucketBookings)
		key := []byte(b.StripeSessionID)
		if existing := bookings.Get(key); existing != nil {
			return json.Unmarshal(existing, &result)
		}

		id, err := bookings.NextSequence()
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		row := *b
		row.ID = uint(id)
		row.CreatedAt = now
		row.UpdatedAt = now

		data, err := json.Marshal(row)
		if err != nil {
			return err
		}
		if err := bookings.Put(key, data); err != nil {
			return err
		}
		if row.StripePaymentIntentID != "" {
			if err := tx.Bucket(bucketPaymentIntents).Put([]byte(row.StripePaymentIntentID), key); err != nil {
				return err
			}
		}
		result = row
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &result, created, nil
}

func (s *BoltStore) GetBySessionID(ctx context.Context, sessionID string) (*models.Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var result models.Booking
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketBookings).Get([]byte(sessionID))
		if v == nil {
			return fmt.Errorf("%w: booking for session %s", apperr.NotFound, sessionID)
		}
		return json.Unmarshal(v, &result)
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// MarkRefunded is a no-op write when the booking is already refunded.
func (s *BoltStore) MarkRefunded(ctx context.Context, paymentIntentID string, at time.Time) (*models.Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var result models.Booking
	err := s.db.Update(func(tx *bolt.Tx) error {
		key := tx.Bucket(bucketPaymentIntents).Get([]byte(paymentIntentID))
		if key == nil {
			return fmt.Errorf("%w: booking for payment intent %s", apperr.NotFound, paymentIntentID)
		}
		bookings := tx.Bucket(bucketBookings)
		v := bookings.Get(key)
		if v == nil {
			return fmt.Errorf("%w: booking for payment intent %s", apperr.NotFound, paymentIntentID)
		}
		if err := json.Unmarshal(v, &result); err != nil {
			return err
		}
		if result.PaymentStatus == models.PaymentStatusRefunded {
			return nil
		}
		result.PaymentStatus = models.PaymentStatusRefunded
		result.Status = models.BookingStatusCancelled
		result.RefundedAt = &at
		result.UpdatedAt = at
		data, err := json.Marshal(result)
		if err != nil {
			return err
		}
		// key is only valid inside the transaction; copy before reuse.
		return bookings.Put(append([]byte(nil), key...), data)
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}
