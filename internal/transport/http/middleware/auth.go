package middleware

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"agent-runtime/internal/entities"
	"agent-runtime/internal/reqctx"

	"github.com/gofiber/fiber/v2"
)

// HeaderAPIKey is the alternative to a bearer token.
const HeaderAPIKey = "X-API-KEY"

// Authenticator resolves an API key to a principal.
type Authenticator interface {
	Authenticate(ctx context.Context, key string) (*entities.Principal, error)
}

// Auth resolves the caller from the Authorization or X-API-KEY header. When
// required is false a missing key passes as anonymous, a wrong one does not.
func Auth(a Authenticator, required bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		rc := reqctx.MustFrom(c.UserContext())

		key := apiKey(c)
		if key == "" {
			if required {
				return fmt.Errorf("%w: api key is required", entities.ErrUnauthorized)
			}
			return c.Next()
		}

		p, err := a.Authenticate(c.UserContext(), key)
		if err != nil {
			if errors.Is(err, entities.ErrUnauthorized) {
				return fmt.Errorf("%w: invalid api key", entities.ErrUnauthorized)
			}
			return err
		}
		rc.SetPrincipal(p)
		return c.Next()
	}
}

// RequireAdmin lets only the operator key through.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		p := reqctx.MustFrom(c.UserContext()).Principal()
		if p == nil {
			return fmt.Errorf("%w: api key is required", entities.ErrUnauthorized)
		}
		if !p.Admin {
			return fmt.Errorf("%w: admin key required", entities.ErrForbidden)
		}
		return c.Next()
	}
}

func apiKey(c *fiber.Ctx) string {
	if h := strings.TrimSpace(c.Get(fiber.HeaderAuthorization)); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "bearer") {
			return strings.TrimSpace(token)
		}
	}
	return strings.TrimSpace(c.Get(HeaderAPIKey))
}
