package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	apperrors "github.com/spec-kit/ticket-portal/pkg/util/errorutil"
)

const (
	principalKey  = "auth_principal"
	credentialKey = "backend_credential"

	// SessionTokenHeader carries the viewer's backend session token.
	SessionTokenHeader = "X-Session-Token"
	sessionTokenQuery  = "session_token"
)

// Principal represents the authenticated viewer.
type Principal struct {
	Email         string
	BackendUserID int
}

// AuthMiddleware validates bearer tokens.
type AuthMiddleware struct {
	tokens *TokenManager
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	claims, err := m.tokens.ParseToken(parts[1])
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}

	c.Locals(principalKey, &Principal{Email: claims.Email, BackendUserID: claims.BackendUserID})
	return c.Next()
}

// PrincipalFromContext retrieves the authenticated viewer.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}

// BackendCredential requires a backend session token from the header, or from
// the query for resources loaded by the browser directly.
func BackendCredential(c *fiber.Ctx) error {
	cred := strings.TrimSpace(c.Get(SessionTokenHeader))
	if cred == "" {
		cred = strings.TrimSpace(c.Query(sessionTokenQuery))
	}
	if cred == "" {
		return apperrors.NewUnauthorized("missing session token")
	}
	c.Locals(credentialKey, cred)
	return c.Next()
}

// CredentialFromContext returns the credential stored by BackendCredential.
func CredentialFromContext(c *fiber.Ctx) (string, bool) {
	cred, ok := c.Locals(credentialKey).(string)
	return cred, ok && cred != ""
}
