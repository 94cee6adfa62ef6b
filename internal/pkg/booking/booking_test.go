package booking

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/ChaletBook/app/models"
	"github.com/ManuelReschke/ChaletBook/internal/pkg/apperr"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []Confirmation
	err  error
}

func (n *recordingNotifier) SendBookingConfirmation(ctx context.Context, c Confirmation) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, c)
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

type chaletMap map[string]*models.Chalet

func (c chaletMap) GetChaletByID(ctx context.Context, id string) (*models.Chalet, error) {
	if ch, ok := c[id]; ok {
		return ch, nil
	}
	return nil, apperr.NotFound
}

func openTestStore(t *testing.T) *BoltStore {
	t.Helper()
	s, err := OpenBoltStore(filepath.Join(t.TempDir(), "bookings.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func completedSession(id string) CompletedSession {
	return CompletedSession{
		SessionID:       id,
		PaymentIntentID: "pi_" + id,
		AmountTotal:     200000,
		Currency:        "tnd",
		Metadata: map[string]string{
			"chaletId":      "c1",
			"chaletName":    "Chalet Aïn Draham",
			"userId":        "guest",
			"guestName":     "Amel Ben Salah",
			"guestEmail":    "amel@example.com",
			"guestPhone":    "+21620000000",
			"guests":        "2",
			"startDate":     "2025-06-01",
			"endDate":       "2025-06-03",
			"nights":        "2",
			"pricePerNight": "100",
			"totalPrice":    "200",
			"currency":      "tnd",
		},
	}
}

func TestMaterializeCreatesConfirmedBooking(t *testing.T) {
	store := openTestStore(t)
	notifier := &recordingNotifier{}
	chalets := chaletMap{"c1": {ID: "c1", Name: "Chalet", OwnerName: "Hedi", OwnerEmail: "owner@example.com"}}
	m := NewMaterializer(store, notifier, chalets, Config{}, nil)

	out, err := m.Materialize(context.Background(), completedSession("cs_1"))
	require.NoError(t, err)
	require.True(t, out.Created)

	b := out.Booking
	assert.Equal(t, models.BookingStatusConfirmed, b.Status)
	assert.Equal(t, models.PaymentStatusPaid, b.PaymentStatus)
	assert.Equal(t, "cs_1", b.StripeSessionID)
	assert.Equal(t, "pi_cs_1", b.StripePaymentIntentID)
	assert.Equal(t, 2, b.Nights)
	assert.Equal(t, 200.0, b.TotalPrice)
	assert.Nil(t, b.UserID)
	assert.Len(t, b.Reference, 36)
	assert.Equal(t, time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC), b.EndDate)

	require.Equal(t, 1, notifier.count())
	assert.Equal(t, "owner@example.com", notifier.sent[0].OwnerEmail)
	assert.Equal(t, "Chalet Aïn Draham", notifier.sent[0].Booking.ChaletName)
}

func TestMaterializeIsIdempotentPerSession(t *testing.T) {
	store := openTestStore(t)
	notifier := &recordingNotifier{}
	m := NewMaterializer(store, notifier, nil, Config{}, nil)

	first, err := m.Materialize(context.Background(), completedSession("cs_dup"))
	require.NoError(t, err)
	second, err := m.Materialize(context.Background(), completedSession("cs_dup"))
	require.NoError(t, err)

	assert.True(t, first.Created)
	assert.False(t, second.Created)
	assert.Equal(t, first.Booking.ID, second.Booking.ID)
	assert.Equal(t, first.Booking.Reference, second.Booking.Reference)
	assert.Equal(t, 1, notifier.count())
}

func TestMaterializeConcurrentDeliveriesCreateOneBooking(t *testing.T) {
	store := openTestStore(t)
	notifier := &recordingNotifier{}
	m := NewMaterializer(store, notifier, nil, Config{}, nil)

	const workers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	refs := map[string]struct{}{}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := m.Materialize(context.Background(), completedSession("cs_race"))
			assert.NoError(t, err)
			mu.Lock()
			defer mu.Unlock()
			if out.Created {
				created++
			}
			if out.Booking != nil {
				refs[out.Booking.Reference] = struct{}{}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Len(t, refs, 1)
	assert.Equal(t, 1, notifier.count())
}

func TestMaterializeRejectsMissingMetadata(t *testing.T) {
	store := openTestStore(t)
	notifier := &recordingNotifier{}
	m := NewMaterializer(store, notifier, nil, Config{}, nil)

	s := completedSession("cs_bad")
	delete(s.Metadata, "chaletId")
	_, err := m.Materialize(context.Background(), s)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.MaterializationData))

	s = completedSession("cs_bad")
	s.Metadata["nights"] = "two"
	_, err = m.Materialize(context.Background(), s)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.MaterializationData))

	_, err = store.GetBySessionID(context.Background(), "cs_bad")
	assert.True(t, errors.Is(err, apperr.NotFound))
	assert.Zero(t, notifier.count())
}

func TestMaterializeKeepsBookingWhenNotificationFails(t *testing.T) {
	store := openTestStore(t)
	notifier := &recordingNotifier{err: errors.New("smtp: connection refused")}
	m := NewMaterializer(store, notifier, nil, Config{}, nil)

	out, err := m.Materialize(context.Background(), completedSession("cs_mail"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.Notification))
	require.NotNil(t, out.Booking)
	assert.True(t, out.Created)

	stored, err := store.GetBySessionID(context.Background(), "cs_mail")
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusConfirmed, stored.Status)
}

func TestRefundCancelsBooking(t *testing.T) {
	store := openTestStore(t)
	m := NewMaterializer(store, nil, nil, Config{}, nil)
	_, err := m.Materialize(context.Background(), completedSession("cs_ref"))
	require.NoError(t, err)

	b, err := m.Refund(context.Background(), "pi_cs_ref")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusRefunded, b.PaymentStatus)
	assert.Equal(t, models.BookingStatusCancelled, b.Status)
	require.NotNil(t, b.RefundedAt)

	again, err := m.Refund(context.Background(), "pi_cs_ref")
	require.NoError(t, err)
	assert.Equal(t, b.RefundedAt.Unix(), again.RefundedAt.Unix())

	_, err = m.Refund(context.Background(), "pi_unknown")
	assert.True(t, errors.Is(err, apperr.NotFound))
}

func TestNotifiersJoinErrors(t *testing.T) {
	ok := &recordingNotifier{}
	bad := &recordingNotifier{err: errors.New("down")}
	err := Notifiers{ok, nil, bad}.SendBookingConfirmation(context.Background(), Confirmation{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "down")
	assert.Equal(t, 1, ok.count())
	assert.Equal(t, 1, bad.count())
}
