package auth

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-portal/internal/domain"
)

// RequireViewer ensures a viewer is authenticated.
func RequireViewer() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := PrincipalFromContext(c); !ok {
			return fiber.NewError(http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		}
		return c.Next()
	}
}

// RequireOwner rejects callers acting on another identity. An empty identity
// means the caller's own.
func RequireOwner(c *fiber.Ctx, identity string) (string, error) {
	principal, ok := PrincipalFromContext(c)
	if !ok {
		return "", fiber.NewError(http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
	}
	if strings.TrimSpace(identity) == "" {
		return principal.Email, nil
	}
	if domain.NormalizeIdentity(identity) != domain.NormalizeIdentity(principal.Email) {
		return "", fiber.NewError(http.StatusForbidden, "identity does not match token")
	}
	return domain.NormalizeIdentity(identity), nil
}
