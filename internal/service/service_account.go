package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-portal/internal/domain"
)

// ErrServiceAccountDisabled is returned when no backend user token is set.
var ErrServiceAccountDisabled = errors.New("service account not configured")

// Backend is the ticketing backend as used by the service account.
type Backend interface {
	InitSession(ctx context.Context, userToken string) (string, error)
	KillSession(ctx context.Context, session string) error
	GetTicket(ctx context.Context, session string, id int, expandDropdowns bool) (*domain.TicketRecord, error)
	LatestFollowup(ctx context.Context, session string, ticketID int) (*domain.FollowupRecord, error)
	RequesterEmail(ctx context.Context, session string, ticketID int) (string, error)
	FindUserByEmail(ctx context.Context, session, email string) (*domain.BackendUser, error)
}

// ServiceAccount runs backend calls under a short-lived session of the
// portal's own backend user.
type ServiceAccount struct {
	backend   Backend
	userToken string
	logger    *zap.Logger
}

// NewServiceAccount returns an account; a nil backend or empty token disables it.
func NewServiceAccount(backend Backend, userToken string, logger *zap.Logger) *ServiceAccount {
	return &ServiceAccount{backend: backend, userToken: userToken, logger: logger}
}

// Configured reports whether backend calls can be made.
func (a *ServiceAccount) Configured() bool {
	return a != nil && a.backend != nil && a.userToken != ""
}

// Do opens a session, runs fn and always closes the session.
func (a *ServiceAccount) Do(ctx context.Context, fn func(ctx context.Context, b Backend, session string) error) error {
	if !a.Configured() {
		return ErrServiceAccountDisabled
	}
	session, err := a.backend.InitSession(ctx, a.userToken)
	if err != nil {
		return fmt.Errorf("open backend session: %w", err)
	}
	defer func() {
		// a cancelled request must still release the backend session
		if err := a.backend.KillSession(context.WithoutCancel(ctx), session); err != nil {
			a.logger.Warn("close backend session failed", zap.Error(err))
		}
	}()
	return fn(ctx, a.backend, session)
}
