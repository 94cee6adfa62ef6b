package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ManuelReschke/ChaletBook/internal/pkg/apperr"
)

// SignatureHeader carries "t=<unix>,v1=<hex>" pairs.
const SignatureHeader = "Stripe-Signature"

// DefaultTolerance bounds the accepted age of a signed timestamp.
const DefaultTolerance = 5 * time.Minute

// SignPayload builds a signature header for payload, as the provider does.
func SignPayload(payload []byte, secret string, ts time.Time) string {
	t := strconv.FormatInt(ts.Unix(), 10)
	return fmt.Sprintf("t=%s,v1=%s", t, hex.EncodeToString(computeSignature(payload, t, []byte(secret))))
}

// VerifySignature checks header against the raw, unparsed payload. A
// tolerance of zero disables the timestamp check.
func VerifySignature(payload []byte, header, secret string, tolerance time.Duration, now time.Time) error {
	h := strings.TrimSpace(header)
	s := strings.TrimSpace(secret)
	if h == "" {
		return fmt.Errorf("%w: missing %s header", apperr.SignatureVerification, SignatureHeader)
	}
	if s == "" {
		return fmt.Errorf("%w: webhook secret is not configured", apperr.SignatureVerification)
	}

	timestamp, signatures := parseSignatureHeader(h)
	if timestamp == "" || len(signatures) == 0 {
		return fmt.Errorf("%w: malformed %s header", apperr.SignatureVerification, SignatureHeader)
	}
	unix, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: invalid timestamp", apperr.SignatureVerification)
	}

	expected := computeSignature(payload, timestamp, []byte(s))
	matched := false
	for _, sig := range signatures {
		decoded, err := hex.DecodeString(strings.ToLower(sig))
		if err != nil {
			continue
		}
		if hmac.Equal(expected, decoded) {
			matched = true
		}
	}
	if !matched {
		return fmt.Errorf("%w: no matching signature", apperr.SignatureVerification)
	}

	if tolerance > 0 {
		age := now.Sub(time.Unix(unix, 0))
		if age > tolerance || age < -tolerance {
			return fmt.Errorf("%w: timestamp outside tolerance", apperr.SignatureVerification)
		}
	}
	return nil
}

func parseSignatureHeader(header string) (string, []string) {
	var timestamp string
	var signatures []string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			timestamp = v
		case "v1":
			signatures = append(signatures, v)
		}
	}
	return timestamp, signatures
}

func computeSignature(payload []byte, timestamp string, secret []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	return mac.Sum(nil)
}
