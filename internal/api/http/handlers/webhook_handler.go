package handlers

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-portal/internal/api/dto"
	"github.com/spec-kit/ticket-portal/internal/normalizer"
	"github.com/spec-kit/ticket-portal/internal/service"
)

// WebhookHandler receives change notifications from the ticketing backend.
type WebhookHandler struct {
	ingest *service.IngestService
}

// NewWebhookHandler constructs handler.
func NewWebhookHandler(ingest *service.IngestService) *WebhookHandler {
	return &WebhookHandler{ingest: ingest}
}

// Receive handles POST /webhook/glpi. Any non-empty body is acknowledged with
// 200 so the backend never retries a payload it cannot change.
func (h *WebhookHandler) Receive(c *fiber.Ctx) error {
	raw := append([]byte(nil), c.Body()...)
	res, err := h.ingest.Ingest(c.UserContext(), raw)
	switch {
	case errors.Is(err, normalizer.ErrEmptyPayload):
		return fiber.NewError(http.StatusBadRequest, "empty payload")
	case err != nil:
		return err
	}

	if !res.Routed {
		return c.JSON(dto.WebhookResponse{
			Success: true,
			Warning: "no id found",
			Raw:     string(raw),
		})
	}
	return c.JSON(dto.WebhookResponse{
		Success:           true,
		TicketID:          res.Update.TicketID,
		ListenersNotified: res.Delivery.Subscribers,
		PushNotifications: res.Push,
	})
}

// Status handles GET /webhook/glpi.
func (h *WebhookHandler) Status(c *fiber.Ctx) error {
	st := h.ingest.Status()
	return c.JSON(dto.WebhookStatus{
		Status:          "active",
		ActiveListeners: st.ActiveListeners,
		PendingUpdates:  st.PendingUpdates,
	})
}
