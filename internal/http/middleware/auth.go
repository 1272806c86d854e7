package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// SubjectLocalKey holds the authenticated subject in Fiber's context locals.
const SubjectLocalKey = "auth_subject"

// TokenVerifier validates a bearer token and returns its subject.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// RequireAuth rejects requests without a valid "Authorization: Bearer" token.
// onFail writes the rejection so that the error envelope stays in one place.
func RequireAuth(v TokenVerifier, onFail func(c *fiber.Ctx, message string) error) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		if header == "" {
			return onFail(c, "authorization header required")
		}
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			return onFail(c, "invalid authorization header format")
		}
		sub, err := v.Verify(strings.TrimSpace(token))
		if err != nil {
			return onFail(c, "invalid or expired token")
		}
		c.Locals(SubjectLocalKey, sub)
		return c.Next()
	}
}
