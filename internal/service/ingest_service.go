package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-portal/internal/domain"
	"github.com/spec-kit/ticket-portal/internal/events"
	"github.com/spec-kit/ticket-portal/internal/normalizer"
	"github.com/spec-kit/ticket-portal/internal/observability"
	"github.com/spec-kit/ticket-portal/internal/push"
	"github.com/spec-kit/ticket-portal/internal/repository"
)

// Quarantine keeps payloads that could not be routed to a ticket.
type Quarantine interface {
	Push(ctx context.Context, payload repository.QuarantinedPayload) error
}

// IngestResult describes what happened to one backend notification.
type IngestResult struct {
	Routed   bool
	Update   domain.TicketUpdate
	Delivery events.Delivery
	Push     *push.Report
	Enriched bool
	Override *normalizer.StatusOverride
}

// IngestService turns raw backend notifications into published ticket updates.
type IngestService struct {
	normalizer    *normalizer.Normalizer
	bus           events.Bus
	account       *ServiceAccount
	notifications *NotificationService
	quarantine    Quarantine
	metrics       *observability.Metrics
	logger        *zap.Logger
	enrich        bool
	now           func() time.Time
}

// IngestDependencies bundles the collaborators of IngestService.
type IngestDependencies struct {
	Normalizer    *normalizer.Normalizer
	Bus           events.Bus
	Account       *ServiceAccount
	Notifications *NotificationService
	Quarantine    Quarantine
	Metrics       *observability.Metrics
	Logger        *zap.Logger
	Enrich        bool
}

// NewIngestService builds the service.
func NewIngestService(deps IngestDependencies) *IngestService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	norm := deps.Normalizer
	if norm == nil {
		norm = normalizer.New()
	}
	return &IngestService{
		normalizer:    norm,
		bus:           deps.Bus,
		account:       deps.Account,
		notifications: deps.Notifications,
		quarantine:    deps.Quarantine,
		metrics:       deps.Metrics,
		logger:        logger,
		enrich:        deps.Enrich,
		now:           time.Now,
	}
}

// Ingest normalizes raw, enriches it from the backend when possible, publishes
// it and pushes it to the requester. A payload without a ticket id is
// quarantined and reported as unrouted; only an empty payload is an error.
func (s *IngestService) Ingest(ctx context.Context, raw []byte) (*IngestResult, error) {
	s.metrics.Inc(observability.CounterWebhookReceived)

	parsed, err := s.normalizer.Normalize(raw)
	switch {
	case errors.Is(err, normalizer.ErrNoTicketID):
		s.metrics.Inc(observability.CounterWebhookUnrouted)
		s.logger.Warn("webhook without ticket id", zap.Int("bytes", len(raw)))
		s.quarantinePayload(ctx, raw, "no ticket id")
		return &IngestResult{}, nil
	case err != nil:
		return nil, err
	}

	result := &IngestResult{Routed: true, Update: parsed.Update, Override: parsed.Override}
	if s.enrich && s.account.Configured() {
		update, override, err := s.enrichUpdate(ctx, parsed)
		if err != nil {
			s.metrics.Inc(observability.CounterWebhookEnrichFailed)
			s.logger.Warn("ticket enrichment failed, publishing payload fields",
				zap.Int("ticket_id", parsed.Update.TicketID), zap.Error(err))
		} else {
			result.Update, result.Override, result.Enriched = update, override, true
		}
	}

	if o := result.Override; o != nil && o.Suspicious() {
		s.logger.Warn("status text reopens a closed ticket",
			zap.Int("ticket_id", result.Update.TicketID),
			zap.Int("from", o.From),
			zap.Int("to", o.To),
			zap.String("text", o.Text))
	}

	result.Delivery = s.bus.Publish(ctx, result.Update)
	s.metrics.Inc(observability.CounterUpdatesPublished)
	s.logger.Info("ticket update published",
		zap.Int("ticket_id", result.Update.TicketID),
		zap.String("kind", string(result.Update.Kind)),
		zap.String("source", parsed.Source),
		zap.Bool("enriched", result.Enriched),
		zap.Int("listeners", result.Delivery.Subscribers),
		zap.Int("failed", result.Delivery.Failed))

	if s.notifications != nil {
		if report := s.notifications.NotifyRequester(ctx, result.Update); report != nil {
			result.Push = report
			s.metrics.Add(observability.CounterPushSent, int64(report.Sent))
			s.metrics.Add(observability.CounterPushFailed, int64(report.Failed))
			s.metrics.Add(observability.CounterPushPruned, int64(report.Pruned))
		}
	}
	return result, nil
}

func (s *IngestService) enrichUpdate(ctx context.Context, parsed normalizer.Parsed) (domain.TicketUpdate, *normalizer.StatusOverride, error) {
	id := parsed.Update.TicketID
	var snap normalizer.Snapshot
	err := s.account.Do(ctx, func(ctx context.Context, b Backend, session string) error {
		ticket, err := b.GetTicket(ctx, session, id, true)
		if err != nil {
			return fmt.Errorf("fetch ticket %d: %w", id, err)
		}
		snap.Ticket = ticket

		if fu, err := b.LatestFollowup(ctx, session, id); err != nil {
			s.logger.Debug("latest followup unavailable", zap.Int("ticket_id", id), zap.Error(err))
		} else if fu != nil {
			snap.LastFollowup = fu.Content
		}

		if email, err := b.RequesterEmail(ctx, session, id); err != nil {
			s.logger.Debug("requester email unavailable", zap.Int("ticket_id", id), zap.Error(err))
		} else {
			snap.RequesterEmail = email
		}
		return nil
	})
	if err != nil {
		return domain.TicketUpdate{}, nil, err
	}
	update, override := s.normalizer.Enrich(parsed, snap)
	return update, override, nil
}

func (s *IngestService) quarantinePayload(ctx context.Context, raw []byte, reason string) {
	if s.quarantine == nil {
		return
	}
	err := s.quarantine.Push(ctx, repository.QuarantinedPayload{
		ReceivedAt: s.now().UTC(),
		Reason:     reason,
		Raw:        string(raw),
	})
	if err != nil {
		s.logger.Error("quarantine payload failed", zap.Error(err))
	}
}

// Status summarizes the ingestion side for the webhook status endpoint.
type Status struct {
	ActiveListeners int `json:"activeListeners"`
	PendingUpdates  int `json:"pendingUpdates"`
}

// Status reports bus listeners and replayable updates.
func (s *IngestService) Status() Status {
	return Status{
		ActiveListeners: s.bus.SubscriberCount(),
		PendingUpdates:  len(s.bus.Recent()),
	}
}
