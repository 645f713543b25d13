// Package push manages Web Push subscriptions and delivers ticket
// notifications to them.
package push

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-portal/internal/config"
	"github.com/spec-kit/ticket-portal/internal/domain"
	"github.com/spec-kit/ticket-portal/internal/repository"
	apperrors "github.com/spec-kit/ticket-portal/pkg/util/errorutil"
)

// Report summarizes a fan-out to one owner's devices.
type Report struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
	Total  int `json:"total"`
	Pruned int `json:"pruned"`
}

// SubscribeInput is a device registration request.
type SubscribeInput struct {
	OwnerIdentity string
	EndpointURL   string
	P256dh        string
	Auth          string
	DeviceClass   string
	UserAgent     string
}

// SubscribeResult tells the caller whether a row was created.
type SubscribeResult struct {
	Subscription *domain.PushSubscription
	Created      bool
}

// Service owns the subscription directory and delivery fan-out.
type Service struct {
	repo   repository.PushSubscriptionRepository
	sender Sender
	cfg    config.PushConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates the service.
func NewService(repo repository.PushSubscriptionRepository, sender Sender, cfg config.PushConfig, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, sender: sender, cfg: cfg, logger: logger, now: time.Now}
}

// Enabled reports whether delivery is configured.
func (s *Service) Enabled() bool {
	return s.cfg.Enabled() && s.sender != nil
}

// PublicKey returns the VAPID application server key for clients.
func (s *Service) PublicKey() string {
	return s.cfg.VAPIDPublicKey
}

// Subscribe registers or refreshes a device. An endpoint already bound to a
// different owner is rejected with a conflict and left untouched.
func (s *Service) Subscribe(ctx context.Context, in SubscribeInput) (SubscribeResult, error) {
	if err := validateSubscribe(in); err != nil {
		return SubscribeResult{}, err
	}
	owner := domain.NormalizeIdentity(in.OwnerIdentity)
	deviceClass := strings.TrimSpace(in.DeviceClass)
	if deviceClass == "" {
		deviceClass = domain.DeviceClassFromUserAgent(in.UserAgent)
	}

	for attempt := 0; attempt < 2; attempt++ {
		existing, err := s.repo.GetByEndpoint(ctx, in.EndpointURL)
		switch {
		case err == nil:
			return s.refresh(ctx, existing, owner, in, deviceClass)
		case !errors.Is(err, pgx.ErrNoRows):
			return SubscribeResult{}, fmt.Errorf("lookup endpoint: %w", err)
		}

		now := s.now()
		sub := &domain.PushSubscription{
			ID:            uuid.NewString(),
			OwnerIdentity: owner,
			EndpointURL:   in.EndpointURL,
			Keys:          domain.PushKeys{P256dh: in.P256dh, Auth: in.Auth},
			DeviceClass:   deviceClass,
			UserAgent:     in.UserAgent,
			CreatedAt:     now,
			LastSeenAt:    now,
		}
		err = s.repo.Create(ctx, sub)
		if err == nil {
			s.logger.Info("push subscription created",
				zap.String("owner", owner),
				zap.String("subscription_id", sub.ID),
				zap.String("device_class", deviceClass))
			return SubscribeResult{Subscription: sub, Created: true}, nil
		}
		if !errors.Is(err, repository.ErrDuplicateEndpoint) {
			return SubscribeResult{}, fmt.Errorf("create subscription: %w", err)
		}
		// Lost a race with a concurrent registration of the same endpoint.
	}
	return SubscribeResult{}, apperrors.NewConflict("push endpoint registration raced, retry", nil)
}

func (s *Service) refresh(ctx context.Context, existing *domain.PushSubscription, owner string, in SubscribeInput, deviceClass string) (SubscribeResult, error) {
	if !existing.OwnedBy(owner) {
		s.logger.Warn("push endpoint claimed by another owner",
			zap.String("owner", owner),
			zap.String("subscription_id", existing.ID))
		return SubscribeResult{}, apperrors.NewConflict("push endpoint is registered to another user", nil)
	}
	existing.Keys = domain.PushKeys{P256dh: in.P256dh, Auth: in.Auth}
	existing.DeviceClass = deviceClass
	if in.UserAgent != "" {
		existing.UserAgent = in.UserAgent
	}
	existing.LastSeenAt = s.now()
	if err := s.repo.Refresh(ctx, existing); err != nil {
		return SubscribeResult{}, fmt.Errorf("refresh subscription: %w", err)
	}
	return SubscribeResult{Subscription: existing}, nil
}

func validateSubscribe(in SubscribeInput) error {
	details := map[string]any{}
	owner := strings.TrimSpace(in.OwnerIdentity)
	if owner == "" || !strings.Contains(owner, "@") {
		details["ownerIdentity"] = "a valid email is required"
	}
	if u, err := url.Parse(in.EndpointURL); err != nil || u.Scheme != "https" || u.Host == "" {
		details["endpointURL"] = "an https endpoint is required"
	}
	if strings.TrimSpace(in.P256dh) == "" {
		details["p256dh"] = "required"
	}
	if strings.TrimSpace(in.Auth) == "" {
		details["auth"] = "required"
	}
	if len(details) > 0 {
		return apperrors.NewValidationError("invalid push subscription", details)
	}
	return nil
}

// Unsubscribe removes one of the owner's endpoints.
func (s *Service) Unsubscribe(ctx context.Context, owner, endpoint string) error {
	if strings.TrimSpace(endpoint) == "" {
		return apperrors.NewValidationError("endpointURL required", nil)
	}
	deleted, err := s.repo.DeleteByEndpoint(ctx, domain.NormalizeIdentity(owner), endpoint)
	if err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	if !deleted {
		return apperrors.NewNotFound("push subscription", nil)
	}
	return nil
}

// List returns the owner's devices, most recently seen first.
func (s *Service) List(ctx context.Context, owner string) ([]domain.PushSubscription, error) {
	return s.repo.ListByOwner(ctx, domain.NormalizeIdentity(owner))
}

// NotifyTicket pushes a ticket update to every device of owner.
func (s *Service) NotifyTicket(ctx context.Context, owner string, u domain.TicketUpdate) (Report, error) {
	n := TicketNotification(s.cfg, owner, u)
	return s.Send(ctx, owner, n, webpush.UrgencyNormal)
}

// SendTest pushes a sample notification that is never collapsed.
func (s *Service) SendTest(ctx context.Context, owner string) (Report, error) {
	now := s.now()
	n := Notification{
		Title: "Notificación de prueba",
		Body:  "Las notificaciones push están funcionando correctamente",
		Icon:  s.cfg.Icon,
		Badge: s.cfg.Badge,
		Tag:   "test-" + strconv.FormatInt(now.Unix(), 10),
		Data: NotificationData{
			URL:       strings.TrimRight(s.cfg.AppURL, "/") + "/",
			UserEmail: domain.NormalizeIdentity(owner),
		},
	}
	return s.Send(ctx, owner, n, webpush.UrgencyHigh)
}

// Send delivers n to every device of owner concurrently. Endpoints reported
// gone (404/410) are deleted; other failures are logged and kept.
func (s *Service) Send(ctx context.Context, owner string, n Notification, urgency webpush.Urgency) (Report, error) {
	if !s.Enabled() {
		s.logger.Debug("push delivery disabled", zap.String("owner", owner))
		return Report{}, nil
	}
	subs, err := s.repo.ListByOwner(ctx, domain.NormalizeIdentity(owner))
	if err != nil {
		return Report{}, fmt.Errorf("list subscriptions: %w", err)
	}
	report := Report{Total: len(subs)}
	if len(subs) == 0 {
		return report, nil
	}
	payload, err := n.encode()
	if err != nil {
		return Report{}, fmt.Errorf("encode notification: %w", err)
	}
	msg := Message{Payload: payload, Topic: topicFor(n.Tag), Urgency: urgency}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, sub := range subs {
		wg.Add(1)
		go func(sub domain.PushSubscription) {
			defer wg.Done()
			sent, pruned := s.deliver(ctx, sub, msg)
			mu.Lock()
			defer mu.Unlock()
			if sent {
				report.Sent++
			} else {
				report.Failed++
			}
			if pruned {
				report.Pruned++
			}
		}(sub)
	}
	wg.Wait()

	s.logger.Info("push fan-out complete",
		zap.String("owner", owner),
		zap.String("tag", n.Tag),
		zap.Int("sent", report.Sent),
		zap.Int("failed", report.Failed),
		zap.Int("pruned", report.Pruned))
	return report, nil
}

func (s *Service) deliver(ctx context.Context, sub domain.PushSubscription, msg Message) (sent, pruned bool) {
	err := s.sender.Send(ctx, sub, msg)
	if err == nil {
		if err := s.repo.MarkUsed(ctx, sub.ID, s.now()); err != nil {
			s.logger.Warn("mark subscription used", zap.String("subscription_id", sub.ID), zap.Error(err))
		}
		return true, false
	}

	var deliveryErr *DeliveryError
	if errors.As(err, &deliveryErr) && deliveryErr.Permanent() {
		if delErr := s.repo.Delete(ctx, sub.ID); delErr != nil {
			s.logger.Error("prune dead subscription", zap.String("subscription_id", sub.ID), zap.Error(delErr))
			return false, false
		}
		s.logger.Info("pruned dead subscription",
			zap.String("subscription_id", sub.ID),
			zap.Int("status", deliveryErr.StatusCode))
		return false, true
	}
	s.logger.Warn("push delivery failed", zap.String("subscription_id", sub.ID), zap.Error(err))
	return false, false
}

// topicFor keeps only characters allowed in a Topic header.
func topicFor(tag string) string {
	var b strings.Builder
	for _, r := range tag {
		if r == '-' || r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
		if b.Len() == 32 {
			break
		}
	}
	return b.String()
}
