package payment

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	EventCheckoutSessionCompleted = "checkout.session.completed"
	EventCheckoutSessionExpired   = "checkout.session.expired"
	EventPaymentIntentSucceeded   = "payment_intent.succeeded"
	EventPaymentIntentFailed      = "payment_intent.payment_failed"
	EventChargeRefunded           = "charge.refunded"

	// Sessions paid by delayed methods complete unpaid and settle later.
	EventCheckoutSessionAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"
	EventCheckoutSessionAsyncPaymentFailed    = "checkout.session.async_payment_failed"
)

// Event is the envelope of a provider webhook delivery.
type Event struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Created  int64  `json:"created"`
	Livemode bool   `json:"livemode"`
	Data     struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// ExpandableID decodes a reference that is either an id string or an
// expanded object carrying an "id" field.
type ExpandableID string

func (e *ExpandableID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*e = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*e = ExpandableID(s)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	*e = ExpandableID(obj.ID)
	return nil
}

// CheckoutSession is the object of checkout.session.* events.
type CheckoutSession struct {
	ID            string            `json:"id"`
	PaymentIntent ExpandableID      `json:"payment_intent"`
	PaymentStatus string            `json:"payment_status"`
	Status        string            `json:"status"`
	AmountTotal   int64             `json:"amount_total"`
	Currency      string            `json:"currency"`
	CustomerEmail string            `json:"customer_email"`
	Metadata      map[string]string `json:"metadata"`
}

// PaymentIntent is the object of payment_intent.* events.
type PaymentIntent struct {
	ID               string `json:"id"`
	Status           string `json:"status"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	LastPaymentError *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"last_payment_error"`
}

// Charge is the object of charge.* events.
type Charge struct {
	ID             string       `json:"id"`
	PaymentIntent  ExpandableID `json:"payment_intent"`
	Amount         int64        `json:"amount"`
	AmountRefunded int64        `json:"amount_refunded"`
	Refunded       bool         `json:"refunded"`
}

// ParseEvent decodes the envelope of a verified delivery.
func ParseEvent(raw []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	if strings.TrimSpace(ev.Type) == "" {
		return nil, errors.New("decode event: missing type")
	}
	return &ev, nil
}

func (e *Event) decodeObject(v any) error {
	if len(e.Data.Object) == 0 {
		return fmt.Errorf("event %s has no data.object", e.ID)
	}
	if err := json.Unmarshal(e.Data.Object, v); err != nil {
		return fmt.Errorf("decode %s object: %w", e.Type, err)
	}
	return nil
}

// CheckoutSession decodes data.object as a checkout session.
func (e *Event) CheckoutSession() (*CheckoutSession, error) {
	var s CheckoutSession
	if err := e.decodeObject(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

// PaymentIntent decodes data.object as a payment intent.
func (e *Event) PaymentIntent() (*PaymentIntent, error) {
	var pi PaymentIntent
	if err := e.decodeObject(&pi); err != nil {
		return nil, err
	}
	return &pi, nil
}

// Charge decodes data.object as a charge.
func (e *Event) Charge() (*Charge, error) {
	var ch Charge
	if err := e.decodeObject(&ch); err != nil {
		return nil, err
	}
	return &ch, nil
}
