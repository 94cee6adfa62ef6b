package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/ChaletBook/internal/pkg/apperr"
)

const testSecret = "whsec_test"

func TestVerifySignature(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed"}`)
	now := time.Unix(1_750_000_000, 0)

	header := SignPayload(payload, testSecret, now)
	require.NoError(t, VerifySignature(payload, header, testSecret, DefaultTolerance, now))

	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write([]byte("1750000000." + string(payload)))
	manual := "t=1750000000,v1=" + hex.EncodeToString(mac.Sum(nil))
	assert.Equal(t, manual, header)

	// a rotated secret produces a second v1 entry
	rotated := "t=1750000000,v1=deadbeef," + manual[len("t=1750000000,"):]
	require.NoError(t, VerifySignature(payload, rotated, testSecret, DefaultTolerance, now))
}

func TestVerifySignature_Rejections(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	now := time.Unix(1_750_000_000, 0)
	valid := SignPayload(payload, testSecret, now)

	tests := []struct {
		name    string
		payload []byte
		header  string
		secret  string
		now     time.Time
	}{
		{name: "missing header", payload: payload, header: "", secret: testSecret, now: now},
		{name: "missing secret", payload: payload, header: valid, secret: "", now: now},
		{name: "malformed header", payload: payload, header: "garbage", secret: testSecret, now: now},
		{name: "wrong secret", payload: payload, header: valid, secret: "other", now: now},
		{name: "tampered body", payload: []byte(`{"id":"evt_2"}`), header: valid, secret: testSecret, now: now},
		{name: "reformatted body", payload: []byte(`{ "id": "evt_1" }`), header: valid, secret: testSecret, now: now},
		{name: "stale timestamp", payload: payload, header: valid, secret: testSecret, now: now.Add(10 * time.Minute)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifySignature(tt.payload, tt.header, tt.secret, DefaultTolerance, tt.now)
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperr.SignatureVerification))
		})
	}
}

func TestParseEvent_CheckoutSession(t *testing.T) {
	raw := []byte(`{
		"id": "evt_1",
		"type": "checkout.session.completed",
		"data": {"object": {
			"id": "cs_test_1",
			"payment_intent": "pi_1",
			"payment_status": "paid",
			"amount_total": 200000,
			"currency": "tnd",
			"metadata": {"chaletId": "c1", "nights": "2"}
		}}
	}`)

	ev, err := ParseEvent(raw)
	require.NoError(t, err)
	assert.Equal(t, EventCheckoutSessionCompleted, ev.Type)

	sess, err := ev.CheckoutSession()
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", sess.ID)
	assert.Equal(t, ExpandableID("pi_1"), sess.PaymentIntent)
	assert.Equal(t, int64(200000), sess.AmountTotal)
	assert.Equal(t, "2", sess.Metadata["nights"])
}

func TestParseEvent_ExpandedPaymentIntent(t *testing.T) {
	raw := []byte(`{"id":"evt_2","type":"charge.refunded","data":{"object":{"id":"ch_1","payment_intent":{"id":"pi_9","object":"payment_intent"},"refunded":true}}}`)
	ev, err := ParseEvent(raw)
	require.NoError(t, err)

	ch, err := ev.Charge()
	require.NoError(t, err)
	assert.Equal(t, ExpandableID("pi_9"), ch.PaymentIntent)
	assert.True(t, ch.Refunded)
}

func TestParseEvent_Invalid(t *testing.T) {
	_, err := ParseEvent([]byte(`not json`))
	require.Error(t, err)

	_, err = ParseEvent([]byte(`{"id":"evt_3"}`))
	require.Error(t, err)
}

func TestCreateCheckoutSession(t *testing.T) {
	var gotForm map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, _, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "sk_test", user)
		assert.Equal(t, "/checkout/sessions", r.URL.Path)
		require.NoError(t, r.ParseForm())
		gotForm = map[string]string{}
		for k := range r.PostForm {
			gotForm[k] = r.PostForm.Get(k)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cs_test_1","url":"https://checkout.example/cs_test_1"}`))
	}))
	defer srv.Close()

	c := NewClient("sk_test", srv.URL, time.Second)
	sess, err := c.CreateCheckoutSession(context.Background(), SessionParams{
		SuccessURL:  "https://chalets.example/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:   "https://chalets.example/cancel",
		Currency:    "TND",
		ProductName: "Dune Chalet",
		UnitAmount:  100000,
		Quantity:    2,
		Metadata:    map[string]string{"nights": "2"},
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", sess.ID)
	assert.Equal(t, "https://checkout.example/cs_test_1", sess.URL)

	assert.Equal(t, "payment", gotForm["mode"])
	assert.Equal(t, "tnd", gotForm["line_items[0][price_data][currency]"])
	assert.Equal(t, "100000", gotForm["line_items[0][price_data][unit_amount]"])
	assert.Equal(t, "2", gotForm["line_items[0][quantity]"])
	assert.Equal(t, "2", gotForm["metadata[nights]"])
}

func TestCreateCheckoutSession_ProviderErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"currency not supported"}}`))
	}))
	defer srv.Close()

	params := SessionParams{Currency: "tnd", ProductName: "x", UnitAmount: 1, Quantity: 1}

	_, err := NewClient("sk_test", srv.URL, time.Second).CreateCheckoutSession(context.Background(), params)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.UpstreamProvider))
	assert.Contains(t, err.Error(), "currency not supported")

	_, err = NewClient("", srv.URL, time.Second).CreateCheckoutSession(context.Background(), params)
	assert.True(t, errors.Is(err, apperr.UpstreamProvider))

	srv.Close()
	_, err = NewClient("sk_test", srv.URL, time.Second).CreateCheckoutSession(context.Background(), params)
	assert.True(t, errors.Is(err, apperr.UpstreamProvider))
}
