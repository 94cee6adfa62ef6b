package ratelimit

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ChaletBook/internal/pkg/metrics"
)

const (
	HeaderLimit     = "X-RateLimit-Limit"
	HeaderRemaining = "X-RateLimit-Remaining"
	HeaderReset     = "X-RateLimit-Reset"
)

// KeyFunc derives the client identity used as limiter key.
type KeyFunc func(c *fiber.Ctx) string

// ClientIP identifies clients by address. With trustProxy the Cloudflare and
// X-Forwarded-For headers are honoured, otherwise only the socket address.
func ClientIP(trustProxy bool) KeyFunc {
	return func(c *fiber.Ctx) string {
		if trustProxy {
			if ip := strings.TrimSpace(c.Get("CF-Connecting-IP")); ip != "" {
				return normalizeIP(ip)
			}
			if xff := c.Get(fiber.HeaderXForwardedFor); xff != "" {
				// first entry is the original client
				if ip := strings.TrimSpace(strings.Split(xff, ",")[0]); ip != "" {
					return normalizeIP(ip)
				}
			}
		}
		return normalizeIP(c.IP())
	}
}

func normalizeIP(ip string) string {
	// IPv4-mapped IPv6 (::ffff:192.168.1.1)
	if strings.HasPrefix(ip, "::ffff:") && strings.Contains(ip, ".") {
		return strings.TrimPrefix(ip, "::ffff:")
	}
	return ip
}

// Middleware throttles requests under the named policy. Store failures fail
// open: the limiter is abuse protection, not accounting. A nil limiter
// disables throttling.
func Middleware(l *Limiter, policy string, key KeyFunc, rec *metrics.Recorder) fiber.Handler {
	if l == nil {
		return func(c *fiber.Ctx) error {
			return c.Next()
		}
	}
	if key == nil {
		key = ClientIP(false)
	}
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()

		res, err := l.Check(ctx, key(c), policy)
		if err != nil {
			log.Warnf("[RateLimit] check failed for policy %s, allowing request: %v", policy, err)
			return c.Next()
		}

		c.Set(HeaderLimit, strconv.Itoa(res.Limit))
		c.Set(HeaderRemaining, strconv.Itoa(res.Remaining))
		c.Set(HeaderReset, strconv.FormatInt(res.ResetInMs(), 10))

		if !res.Allowed {
			rec.RateLimited(policy)
			retryAfter := int64((res.ResetIn + time.Second - 1) / time.Second)
			c.Set(fiber.HeaderRetryAfter, strconv.FormatInt(retryAfter, 10))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":     "too_many_requests",
				"remaining": res.Remaining,
				"resetIn":   res.ResetInMs(),
			})
		}
		return c.Next()
	}
}
