package middleware

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"agent-runtime/internal/entities"
	"agent-runtime/internal/ratelimit"
	"agent-runtime/internal/reqctx"

	"github.com/gofiber/fiber/v2"
)

// RateLimit applies the token bucket per team, or per client IP for
// anonymous callers. A nil limiter disables the check.
func RateLimit(l *ratelimit.Limiter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if l == nil {
			return c.Next()
		}

		ok, wait := l.Allow(limitKey(c), time.Now())
		if !ok {
			secs := int(math.Ceil(wait.Seconds()))
			if secs < 1 {
				secs = 1
			}
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(secs))
			return fmt.Errorf("%w: retry in %ds", entities.ErrRateLimited, secs)
		}
		return c.Next()
	}
}

func limitKey(c *fiber.Ctx) string {
	if rc, ok := reqctx.From(c.UserContext()); ok {
		if p := rc.Principal(); p != nil {
			if p.Admin {
				return "admin"
			}
			return "team:" + p.TeamID
		}
	}
	return "ip:" + c.IP()
}
