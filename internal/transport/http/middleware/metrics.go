package middleware

import (
	"time"

	"agent-runtime/internal/metrics"

	"github.com/gofiber/fiber/v2"
)

// Metrics records request counts and latency by route template.
// It must wrap RequestLogger so that chain errors are already rendered.
func Metrics() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		route := c.Route().Path
		metrics.RecordHTTPRequest(c.Method(), route, c.Response().StatusCode(), time.Since(start))
		return err
	}
}
