package middleware

import (
	"fmt"
	"strconv"

	"go-inventory-predict/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

// RateLimit limits requests per client IP. rate uses the limiter format,
// e.g. "100-S".
func RateLimit(rate string) (fiber.Handler, error) {
	r, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, fmt.Errorf("rate limit %q: %w", rate, err)
	}
	instance := limiter.New(memory.NewStore(), r)

	return func(c *fiber.Ctx) error {
		lc, err := instance.Get(c.UserContext(), c.IP())
		if err != nil {
			// fail open
			logger.Error("rate limiter failed", "error", err)
			return c.Next()
		}

		c.Set("X-RateLimit-Limit", strconv.FormatInt(lc.Limit, 10))
		c.Set("X-RateLimit-Remaining", strconv.FormatInt(lc.Remaining, 10))
		c.Set("X-RateLimit-Reset", strconv.FormatInt(lc.Reset, 10))

		if lc.Reached {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "Too many requests"})
		}
		return c.Next()
	}, nil
}
