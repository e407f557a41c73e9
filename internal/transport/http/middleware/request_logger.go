// Package middleware contains HTTP middlewares for delivery.
package middleware

import (
	"time"

	"agent-runtime/internal/reqctx"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// RequestLogger logs HTTP requests with method, path, status and duration.
// Errors returned by the chain are rendered here through the app error
// handler so the logged status is the one sent to the client.
func RequestLogger(log *zap.SugaredLogger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		if err := c.Next(); err != nil {
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}
		dur := time.Since(start)

		l := log
		if rc, ok := reqctx.From(c.UserContext()); ok {
			l = rc.Logger()
		} else {
			reqID, _ := c.Locals("requestid").(string)
			if reqID == "" {
				reqID = c.Get(fiber.HeaderXRequestID)
			}
			l = l.With("request_id", reqID)
		}
		l.Infow("http",
			"method", c.Method(),
			"path", c.OriginalURL(),
			"status", c.Response().StatusCode(),
			"duration_ms", float64(dur.Microseconds())/1000.0,
		)
		return nil
	}
}
