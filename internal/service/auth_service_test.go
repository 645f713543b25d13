package service

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-portal/internal/config"
	"github.com/spec-kit/ticket-portal/internal/domain"
	apperrors "github.com/spec-kit/ticket-portal/pkg/util/errorutil"
)

func TestIssueViewerToken(t *testing.T) {
	cfg := config.AuthConfig{JWTSecret: "secret", AccessTokenTTLMinutes: 10, AllowedEmailDomain: "@example.com"}
	known := &fakeBackend{user: &domain.BackendUser{ID: 5, Email: "ana@example.com"}}

	tests := []struct {
		name    string
		account *ServiceAccount
		email   string
		status  int
		userID  int
	}{
		{"invalid email", nil, "not-an-email", http.StatusBadRequest, 0},
		{"foreign domain", nil, "ana@other.org", http.StatusForbidden, 0},
		{"no lookup without account", nil, "ana@example.com", http.StatusOK, 0},
		{"known user", NewServiceAccount(known, "tok", zap.NewNop()), " ANA@example.com ", http.StatusOK, 5},
		{"unknown user", NewServiceAccount(&fakeBackend{}, "tok", zap.NewNop()), "luis@example.com", http.StatusUnauthorized, 0},
		{"backend down", NewServiceAccount(&fakeBackend{initErr: errors.New("down")}, "tok", zap.NewNop()), "ana@example.com", http.StatusBadGateway, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewAuthService(cfg, tt.account, nil)
			token, viewer, err := svc.IssueViewerToken(context.Background(), tt.email)
			if tt.status != http.StatusOK {
				if de := apperrors.ToDomainError(err); de == nil || de.HTTPStatus != tt.status {
					t.Fatalf("expected status %d, got %v", tt.status, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("issue: %v", err)
			}
			claims, err := svc.TokenManager().ParseToken(token)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if claims.Email != "ana@example.com" || viewer.BackendUserID != tt.userID || claims.BackendUserID != tt.userID {
				t.Fatalf("claims %+v viewer %+v", claims, viewer)
			}
		})
	}
}
