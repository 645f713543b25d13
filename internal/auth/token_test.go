package auth

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	apperrors "github.com/spec-kit/ticket-portal/pkg/util/errorutil"
)

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", 30)
	token, viewer, err := tm.GenerateToken(" Ana@Example.com ", 5)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if viewer.Email != "ana@example.com" || viewer.ExpiresAt.Sub(viewer.IssuedAt) != 30*time.Minute {
		t.Fatalf("unexpected viewer %+v", viewer)
	}

	claims, err := tm.ParseToken(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Email != "ana@example.com" || claims.BackendUserID != 5 {
		t.Fatalf("unexpected claims %+v", claims)
	}

	if _, err := NewTokenManager("other", 30).ParseToken(token); err == nil {
		t.Fatal("token signed with another secret accepted")
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	tm := NewTokenManager("secret", 1)
	tm.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, _, err := tm.GenerateToken("ana@example.com", 0)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	tm.now = time.Now
	if _, err := tm.ParseToken(token); err == nil {
		t.Fatal("expired token accepted")
	}
}

func newAuthApp(tm *TokenManager) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			de := apperrors.ToDomainError(err)
			return c.Status(de.HTTPStatus).SendString(de.Code)
		},
	})
	mw := NewAuthMiddleware(tm)
	app.Get("/me", mw.Handle, RequireViewer(), func(c *fiber.Ctx) error {
		p, _ := PrincipalFromContext(c)
		return c.SendString(p.Email)
	})
	app.Get("/owner/:email", mw.Handle, func(c *fiber.Ctx) error {
		owner, err := RequireOwner(c, c.Params("email"))
		if err != nil {
			return err
		}
		return c.SendString(owner)
	})
	app.Get("/cred", BackendCredential, func(c *fiber.Ctx) error {
		cred, _ := CredentialFromContext(c)
		return c.SendString(cred)
	})
	return app
}

func TestMiddleware(t *testing.T) {
	tm := NewTokenManager("secret", 30)
	token, _, err := tm.GenerateToken("ana@example.com", 5)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	app := newAuthApp(tm)

	tests := []struct {
		name   string
		path   string
		header map[string]string
		status int
		body   string
	}{
		{"missing header", "/me", nil, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"bad scheme", "/me", map[string]string{"Authorization": "Basic x"}, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"valid", "/me", map[string]string{"Authorization": "Bearer " + token}, http.StatusOK, "ana@example.com"},
		{"own identity", "/owner/ANA@example.com", map[string]string{"Authorization": "Bearer " + token}, http.StatusOK, "ana@example.com"},
		{"other identity", "/owner/luis@example.com", map[string]string{"Authorization": "Bearer " + token}, http.StatusForbidden, "FORBIDDEN"},
		{"credential header", "/cred", map[string]string{SessionTokenHeader: "sess-1"}, http.StatusOK, "sess-1"},
		{"credential query", "/cred?session_token=sess-2", nil, http.StatusOK, "sess-2"},
		{"credential missing", "/cred", nil, http.StatusUnauthorized, "UNAUTHORIZED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("request: %v", err)
			}
			body, _ := io.ReadAll(resp.Body)
			if resp.StatusCode != tt.status || string(body) != tt.body {
				t.Fatalf("got %d %q, want %d %q", resp.StatusCode, body, tt.status, tt.body)
			}
		})
	}
}
