package handlers

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-portal/internal/api/dto"
	"github.com/spec-kit/ticket-portal/internal/auth"
	"github.com/spec-kit/ticket-portal/internal/domain"
	"github.com/spec-kit/ticket-portal/internal/events"
	"github.com/spec-kit/ticket-portal/internal/glpi"
	"github.com/spec-kit/ticket-portal/internal/observability"
	"github.com/spec-kit/ticket-portal/internal/stream"
	"github.com/spec-kit/ticket-portal/internal/timeline"
	apperrors "github.com/spec-kit/ticket-portal/pkg/util/errorutil"
)

// DocumentFetcher downloads backend documents.
type DocumentFetcher interface {
	DownloadDocument(ctx context.Context, session string, docID int) (io.ReadCloser, string, error)
}

// SolutionUpdater records approval decisions on the backend.
type SolutionUpdater interface {
	UpdateSolutionStatus(ctx context.Context, session string, solutionID, status, approverID int) error
	UpdateTicketStatus(ctx context.Context, session string, ticketID, status int) error
}

// TimelineHandler serves reconciled ticket conversations.
type TimelineHandler struct {
	engine    *timeline.Engine
	sessions  *timeline.SessionRegistry
	watcher   *timeline.Watcher
	gateway   *stream.Gateway
	documents DocumentFetcher
	solutions SolutionUpdater
	metrics   *observability.Metrics
	logger    *zap.Logger
}

// TimelineDependencies bundles the collaborators of TimelineHandler.
type TimelineDependencies struct {
	Engine    *timeline.Engine
	Sessions  *timeline.SessionRegistry
	Watcher   *timeline.Watcher
	Gateway   *stream.Gateway
	Documents DocumentFetcher
	Solutions SolutionUpdater
	Metrics   *observability.Metrics
	Logger    *zap.Logger
}

// NewTimelineHandler constructs handler.
func NewTimelineHandler(deps TimelineDependencies) *TimelineHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TimelineHandler{
		engine:    deps.Engine,
		sessions:  deps.Sessions,
		watcher:   deps.Watcher,
		gateway:   deps.Gateway,
		documents: deps.Documents,
		solutions: deps.Solutions,
		metrics:   deps.Metrics,
		logger:    logger,
	}
}

// Timeline handles GET /tickets/:id/timeline.
func (h *TimelineHandler) Timeline(c *fiber.Ctx) error {
	ticketID, sess, err := h.viewContext(c)
	if err != nil {
		return err
	}
	tl, err := h.engine.GetTimeline(c.UserContext(), sess, ticketID)
	h.metrics.Inc(observability.CounterTimelinePasses)
	if err != nil {
		return backendError(err)
	}
	if len(tl.Degraded) > 0 {
		h.metrics.Inc(observability.CounterTimelineDegraded)
	}
	return c.JSON(fiber.Map{"data": tl})
}

// Agents handles GET /tickets/:id/agents.
func (h *TimelineHandler) Agents(c *fiber.Ctx) error {
	ticketID, sess, err := h.viewContext(c)
	if err != nil {
		return err
	}
	set, err := h.engine.GetAgentSet(c.UserContext(), sess, ticketID)
	if err != nil {
		return backendError(err)
	}
	return c.JSON(fiber.Map{"data": dto.AgentsResponse{TicketID: ticketID, AgentIDs: set.IDs()}})
}

// Stream handles GET /tickets/:id/timeline/stream.
func (h *TimelineHandler) Stream(c *fiber.Ctx) error {
	ticketID, sess, err := h.viewContext(c)
	if err != nil {
		return err
	}
	openEventStream(c, func(ctx context.Context, w *bufio.Writer) error {
		return h.gateway.ServeSource(ctx, w, func(emit func(stream.Frame)) func() {
			return h.watcher.Start(ctx, sess, ticketID, func(tl *domain.Timeline) {
				h.metrics.Inc(observability.CounterTimelinePasses)
				emit(stream.Frame{Event: events.EventTimeline, Data: tl})
			})
		})
	}, h.logger)
	return nil
}

// Solution handles PUT /tickets/:id/solutions/:sid. Only the active solution
// of a freshly assembled timeline can be decided. Approving closes the ticket
// and rejecting reopens it, both best effort.
func (h *TimelineHandler) Solution(c *fiber.Ctx) error {
	ticketID, sess, err := h.viewContext(c)
	if err != nil {
		return err
	}
	solutionID, err := positiveParam(c, "sid")
	if err != nil {
		return err
	}
	var req dto.SolutionDecisionRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if req.Status != domain.SolutionStatusApproved && req.Status != domain.SolutionStatusRejected {
		return apperrors.NewValidationError("status must be 3 (approve) or 4 (reject)", map[string]any{"status": req.Status})
	}

	ctx := c.UserContext()
	tl, err := h.engine.GetTimeline(ctx, sess, ticketID)
	if err != nil {
		return backendError(err)
	}
	if tl.ActiveSolutionID == nil || *tl.ActiveSolutionID != solutionID {
		details := map[string]any{"solutionId": solutionID}
		if tl.ActiveSolutionID != nil {
			details["activeSolutionId"] = *tl.ActiveSolutionID
		}
		return apperrors.NewConflict("solution is not the active proposal", details)
	}

	cred := sess.Credential()
	if err := h.solutions.UpdateSolutionStatus(ctx, cred, solutionID, req.Status, req.UsersID); err != nil {
		return backendError(err)
	}

	res := dto.SolutionDecisionResponse{
		SolutionID: solutionID,
		TicketID:   ticketID,
		State:      domain.SolutionStateFromCode(req.Status),
	}
	next := domain.StatusClosed
	if req.Status == domain.SolutionStatusRejected {
		next = domain.StatusAssigned
	}
	if err := h.solutions.UpdateTicketStatus(ctx, cred, ticketID, next); err != nil {
		h.logger.Warn("ticket status follow-up failed",
			zap.Int("ticket_id", ticketID), zap.Int("status", next), zap.Error(err))
	} else if next == domain.StatusClosed {
		res.TicketClosed = true
	} else {
		res.TicketReopened = true
	}
	return c.JSON(fiber.Map{"data": res})
}

// CloseSession handles DELETE /session.
func (h *TimelineHandler) CloseSession(c *fiber.Ctx) error {
	cred, ok := auth.CredentialFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("missing session token")
	}
	if !h.sessions.Close(cred) {
		return apperrors.NewNotFound("view session", nil)
	}
	return c.SendStatus(http.StatusNoContent)
}

// Document handles GET <proxy>/:id by streaming the backend file.
func (h *TimelineHandler) Document(c *fiber.Ctx) error {
	docID, err := positiveParam(c, "id")
	if err != nil {
		return err
	}
	cred, ok := auth.CredentialFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("missing session token")
	}
	// the body outlives the handler, so the request timeout must not cancel it
	body, contentType, err := h.documents.DownloadDocument(context.Background(), cred, docID)
	if err != nil {
		return backendError(err)
	}
	if contentType != "" {
		c.Set(fiber.HeaderContentType, contentType)
	}
	c.Set(fiber.HeaderCacheControl, "private, max-age=300")
	return c.SendStream(body)
}

func (h *TimelineHandler) viewContext(c *fiber.Ctx) (int, *timeline.Session, error) {
	ticketID, err := positiveParam(c, "id")
	if err != nil {
		return 0, nil, err
	}
	cred, ok := auth.CredentialFromContext(c)
	if !ok {
		return 0, nil, apperrors.NewUnauthorized("missing session token")
	}
	return ticketID, h.sessions.Acquire(cred), nil
}

func positiveParam(c *fiber.Ctx, name string) (int, error) {
	id, err := strconv.Atoi(c.Params(name))
	if err != nil || id <= 0 {
		return 0, apperrors.NewValidationError("invalid "+name, map[string]any{name: c.Params(name)})
	}
	return id, nil
}

func backendError(err error) error {
	switch {
	case glpi.IsUnauthorized(err):
		return apperrors.NewUnauthorized("backend session rejected")
	case glpi.IsNotFound(err):
		return apperrors.NewNotFound("ticket resource", nil)
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.NewBadGateway("ticketing backend timed out", err)
	default:
		return apperrors.NewBadGateway("ticketing backend unavailable", err)
	}
}
