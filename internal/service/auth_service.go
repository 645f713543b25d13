package service

import (
	"context"
	"net/mail"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-portal/internal/auth"
	"github.com/spec-kit/ticket-portal/internal/config"
	"github.com/spec-kit/ticket-portal/internal/domain"
	"github.com/spec-kit/ticket-portal/internal/glpi"
	apperrors "github.com/spec-kit/ticket-portal/pkg/util/errorutil"
)

// AuthService issues viewer tokens to requesters known to the backend.
type AuthService struct {
	tokenMgr      *auth.TokenManager
	account       *ServiceAccount
	allowedDomain string
	logger        *zap.Logger
}

// NewAuthService builds the service. Without a service account the backend
// lookup is skipped and only the email checks apply.
func NewAuthService(cfg config.AuthConfig, account *ServiceAccount, logger *zap.Logger) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		tokenMgr:      auth.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTLMinutes),
		account:       account,
		allowedDomain: strings.ToLower(strings.TrimPrefix(strings.TrimSpace(cfg.AllowedEmailDomain), "@")),
		logger:        logger,
	}
}

// IssueViewerToken validates email and returns a signed token for it.
func (s *AuthService) IssueViewerToken(ctx context.Context, email string) (string, domain.Viewer, error) {
	email = domain.NormalizeIdentity(email)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", domain.Viewer{}, apperrors.NewValidationError("invalid email", map[string]any{"email": "a valid email is required"})
	}
	if s.allowedDomain != "" && !strings.HasSuffix(email, "@"+s.allowedDomain) {
		return "", domain.Viewer{}, apperrors.NewForbidden("email domain not allowed")
	}

	backendUserID := 0
	if s.account.Configured() {
		err := s.account.Do(ctx, func(ctx context.Context, b Backend, session string) error {
			u, err := b.FindUserByEmail(ctx, session, email)
			if err != nil {
				return err
			}
			backendUserID = u.ID
			return nil
		})
		switch {
		case glpi.IsNotFound(err):
			return "", domain.Viewer{}, apperrors.NewUnauthorized("email not registered")
		case err != nil:
			return "", domain.Viewer{}, apperrors.NewBadGateway("user lookup failed", err)
		}
	}

	token, viewer, err := s.tokenMgr.GenerateToken(email, backendUserID)
	if err != nil {
		return "", domain.Viewer{}, apperrors.NewInternalError(err)
	}
	s.logger.Info("viewer token issued", zap.String("email", viewer.Email), zap.Int("backend_user_id", backendUserID))
	return token, viewer, nil
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}

