package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ManuelReschke/ChaletBook/internal/pkg/apperr"
)

const (
	DefaultAPIBaseURL = "https://api.stripe.com/v1"
	defaultTimeout    = 15 * time.Second
)

// Client creates hosted checkout sessions through the provider's form API.
type Client struct {
	SecretKey  string
	APIBaseURL string

	HTTPClient *http.Client
}

// SessionParams describes a single-line-item hosted checkout.
type SessionParams struct {
	SuccessURL        string
	CancelURL         string
	Currency          string
	ProductName       string
	Description       string
	UnitAmount        int64
	Quantity          int64
	CustomerEmail     string
	ClientReferenceID string
	Metadata          map[string]string
}

// Session is the subset of the provider session returned to callers.
type Session struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type apiError struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// NewClient creates a client with a bounded request timeout.
func NewClient(secretKey, apiBaseURL string, timeout time.Duration) *Client {
	if apiBaseURL == "" {
		apiBaseURL = DefaultAPIBaseURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		SecretKey:  strings.TrimSpace(secretKey),
		APIBaseURL: strings.TrimRight(strings.TrimSpace(apiBaseURL), "/"),
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (p SessionParams) form() url.Values {
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("payment_method_types[0]", "card")
	form.Set("success_url", p.SuccessURL)
	form.Set("cancel_url", p.CancelURL)
	form.Set("line_items[0][quantity]", strconv.FormatInt(p.Quantity, 10))
	form.Set("line_items[0][price_data][currency]", strings.ToLower(p.Currency))
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(p.UnitAmount, 10))
	form.Set("line_items[0][price_data][product_data][name]", p.ProductName)
	if p.Description != "" {
		form.Set("line_items[0][price_data][product_data][description]", p.Description)
	}
	if p.CustomerEmail != "" {
		form.Set("customer_email", p.CustomerEmail)
	}
	if p.ClientReferenceID != "" {
		form.Set("client_reference_id", p.ClientReferenceID)
	}

	keys := make([]string, 0, len(p.Metadata))
	for k := range p.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		form.Set("metadata["+k+"]", p.Metadata[k])
		form.Set("payment_intent_data[metadata]["+k+"]", p.Metadata[k])
	}
	return form
}

// CreateCheckoutSession sends exactly one session-creation request. Every
// failure is an apperr.UpstreamProvider error; the call is never retried.
func (c *Client) CreateCheckoutSession(ctx context.Context, p SessionParams) (*Session, error) {
	if c.SecretKey == "" {
		return nil, fmt.Errorf("%w: STRIPE_SECRET_KEY is not configured", apperr.UpstreamProvider)
	}
	if p.UnitAmount <= 0 || p.Quantity <= 0 {
		return nil, errors.New("unit amount and quantity must be positive")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIBaseURL+"/checkout/sessions", strings.NewReader(p.form().Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.UpstreamProvider, err)
	}
	req.SetBasicAuth(c.SecretKey, "")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.UpstreamProvider, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr apiError
		msg := string(body)
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
			msg = apiErr.Error.Message
		}
		return nil, fmt.Errorf("%w: checkout session creation failed: status=%d message=%s", apperr.UpstreamProvider, resp.StatusCode, msg)
	}

	var out Session
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%w: decode checkout session: %v", apperr.UpstreamProvider, err)
	}
	if strings.TrimSpace(out.ID) == "" {
		return nil, fmt.Errorf("%w: checkout session response without id", apperr.UpstreamProvider)
	}
	return &out, nil
}
