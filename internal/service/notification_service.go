package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-portal/internal/domain"
	"github.com/spec-kit/ticket-portal/internal/push"
)

// TicketNotifier pushes ticket updates to a requester's devices.
type TicketNotifier interface {
	Enabled() bool
	NotifyTicket(ctx context.Context, owner string, u domain.TicketUpdate) (push.Report, error)
}

// NotificationService decides who hears about a ticket update.
type NotificationService struct {
	notifier TicketNotifier
	logger   *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(notifier TicketNotifier, logger *zap.Logger) *NotificationService {
	return &NotificationService{notifier: notifier, logger: logger}
}

// NotifyRequester pushes the update to its requester. It returns nil when
// there is nobody to notify or delivery is disabled.
func (n *NotificationService) NotifyRequester(ctx context.Context, u domain.TicketUpdate) *push.Report {
	email := strings.TrimSpace(u.RequesterEmail)
	if email == "" || n.notifier == nil || !n.notifier.Enabled() {
		return nil
	}
	if u.Kind == domain.UpdateKindDelete {
		n.logger.Debug("skip push for deleted ticket", zap.Int("ticket_id", u.TicketID))
		return nil
	}
	report, err := n.notifier.NotifyTicket(ctx, email, u)
	if err != nil {
		n.logger.Error("push notification failed", zap.Int("ticket_id", u.TicketID), zap.Error(err))
		return nil
	}
	n.logger.Info("push notification sent",
		zap.Int("ticket_id", u.TicketID),
		zap.Int("sent", report.Sent),
		zap.Int("failed", report.Failed),
		zap.Int("pruned", report.Pruned))
	return &report
}
