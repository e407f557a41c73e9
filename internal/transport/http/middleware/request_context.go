package middleware

import (
	"agent-runtime/internal/reqctx"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RequestContext creates the per-request state and puts it on the fiber
// user context. It must run after the requestid middleware.
func RequestContext(log *zap.SugaredLogger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("requestid").(string)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		rc := reqctx.New(reqID, log)
		c.SetUserContext(reqctx.With(c.UserContext(), rc))
		return c.Next()
	}
}

