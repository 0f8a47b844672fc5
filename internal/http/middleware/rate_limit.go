package middleware

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sifan077/PowerLink/internal/app/ratelimit"
	httpUtil "github.com/sifan077/PowerLink/internal/http/util"
	metrics "github.com/sifan077/PowerLink/internal/infra/prometheus"
)

// RateLimit gates requests through the engine's fixed-window limiter, keyed
// by the hashed requester identity. The limiter fails open, so an unavailable
// counter store never turns into a 429.
func RateLimit(limiter *ratelimit.Limiter, limit int) fiber.Handler {
	return func(c *fiber.Ctx) error {
		identity := httpUtil.HashIdentity(httpUtil.ClientIP(c))

		allowed, remaining := limiter.Allow(c.Context(), identity, limit)

		c.Set("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(limiter.Window()).Unix(), 10))

		if !allowed {
			metrics.RateLimitDenied.Inc()
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Rate limit exceeded. Please try again later.",
			})
		}

		return c.Next()
	}
}
