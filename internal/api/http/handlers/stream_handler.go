package handlers

import (
	"bufio"
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-portal/internal/api/dto"
	"github.com/spec-kit/ticket-portal/internal/domain"
	"github.com/spec-kit/ticket-portal/internal/events"
	"github.com/spec-kit/ticket-portal/internal/stream"
)

// StreamHandler serves live ticket updates.
type StreamHandler struct {
	gateway *stream.Gateway
	bus     events.Bus
	logger  *zap.Logger
}

// NewStreamHandler constructs handler.
func NewStreamHandler(gateway *stream.Gateway, bus events.Bus, logger *zap.Logger) *StreamHandler {
	return &StreamHandler{gateway: gateway, bus: bus, logger: logger}
}

// Events handles GET /tickets/events.
func (h *StreamHandler) Events(c *fiber.Ctx) error {
	filter, err := stream.ParseFilter(c.Query("ticket_id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	openEventStream(c, func(ctx context.Context, w *bufio.Writer) error {
		return h.gateway.Serve(ctx, w, filter)
	}, h.logger)
	return nil
}

// Updates handles GET /tickets/updates?ids=1,2.
func (h *StreamHandler) Updates(c *fiber.Ctx) error {
	ids, err := parseIDs(c.Query("ids"))
	if err != nil {
		return err
	}
	updates := h.bus.Recent(ids...)
	if updates == nil {
		updates = []domain.TicketUpdate{}
	}
	return c.JSON(fiber.Map{"data": dto.UpdatesResponse{Updates: updates}})
}

// openEventStream switches the response to text/event-stream and runs serve
// once the handler returns. The request context is not usable there, so the
// stream gets its own and ends on write failure or gateway shutdown.
func openEventStream(c *fiber.Ctx, serve func(ctx context.Context, w *bufio.Writer) error, logger *zap.Logger) {
	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		if err := serve(ctx, w); err != nil {
			logger.Debug("event stream ended", zap.Error(err))
		}
	})
}

func parseIDs(raw string) ([]int, error) {
	var ids []int
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.Atoi(part)
		if err != nil || id <= 0 {
			return nil, fiber.NewError(http.StatusBadRequest, "invalid ticket id "+strconv.Quote(part))
		}
		ids = append(ids, id)
	}
	return ids, nil
}
