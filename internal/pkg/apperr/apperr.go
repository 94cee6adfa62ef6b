// Package apperr holds the error kinds shared by the checkout and webhook
// pipeline. Kinds are compared with errors.Is; concrete errors wrap them
// with fmt.Errorf("%w: ...").
package apperr

import (
	"errors"
	"net/http"

	jujuerrors "github.com/juju/errors"
)

const (
	// ClientInput marks missing or malformed request fields.
	ClientInput = jujuerrors.ConstError("invalid request")
	// RateLimited marks a request rejected by the rate limiter.
	RateLimited = jujuerrors.ConstError("rate limited")
	// UpstreamProvider marks a failed call to the payment provider.
	UpstreamProvider = jujuerrors.ConstError("payment provider failure")
	// SignatureVerification marks a webhook delivery that failed authentication.
	SignatureVerification = jujuerrors.ConstError("signature verification failed")
	// MaterializationData marks malformed metadata on an authenticated webhook.
	MaterializationData = jujuerrors.ConstError("malformed booking metadata")
	// Notification marks a failed best-effort confirmation message.
	Notification = jujuerrors.ConstError("notification failed")
	// NotFound marks a missing record.
	NotFound = jujuerrors.ConstError("not found")
)

// HTTPStatus maps an error to the status code returned to API clients.
// MaterializationData and Notification never reach a client, they map to 200
// because the webhook flow acknowledges them.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ClientInput), errors.Is(err, SignatureVerification):
		return http.StatusBadRequest
	case errors.Is(err, RateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, NotFound):
		return http.StatusNotFound
	case errors.Is(err, MaterializationData), errors.Is(err, Notification):
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}
