package handlers

import (
	"context"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-portal/internal/api/dto"
	"github.com/spec-kit/ticket-portal/internal/auth"
	"github.com/spec-kit/ticket-portal/internal/domain"
	"github.com/spec-kit/ticket-portal/internal/push"
)

// PushService is the notification delivery surface used over HTTP.
type PushService interface {
	Enabled() bool
	PublicKey() string
	Subscribe(ctx context.Context, in push.SubscribeInput) (push.SubscribeResult, error)
	Unsubscribe(ctx context.Context, owner, endpoint string) error
	List(ctx context.Context, owner string) ([]domain.PushSubscription, error)
	SendTest(ctx context.Context, owner string) (push.Report, error)
}

// PushHandler manages device subscriptions.
type PushHandler struct {
	push PushService
}

// NewPushHandler constructs handler.
func NewPushHandler(svc PushService) *PushHandler {
	return &PushHandler{push: svc}
}

// PublicKey handles GET /push/public-key.
func (h *PushHandler) PublicKey(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": fiber.Map{
		"enabled":   h.push.Enabled(),
		"publicKey": h.push.PublicKey(),
	}})
}

// Subscribe handles POST /push/subscribe.
func (h *PushHandler) Subscribe(c *fiber.Ctx) error {
	var req dto.SubscribeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	req.Normalize()
	owner, err := auth.RequireOwner(c, req.OwnerIdentity)
	if err != nil {
		return err
	}

	res, err := h.push.Subscribe(c.UserContext(), push.SubscribeInput{
		OwnerIdentity: owner,
		EndpointURL:   req.EndpointURL,
		P256dh:        req.CryptoKeys.P256dh,
		Auth:          req.CryptoKeys.Auth,
		DeviceClass:   req.DeviceClass,
		UserAgent:     c.Get(fiber.HeaderUserAgent),
	})
	if err != nil {
		return err
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	return c.Status(status).JSON(fiber.Map{
		"data": dto.NewSubscriptionResponse(*res.Subscription),
	})
}

// Unsubscribe handles DELETE /push/subscribe.
func (h *PushHandler) Unsubscribe(c *fiber.Ctx) error {
	var req dto.UnsubscribeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	owner, err := auth.RequireOwner(c, "")
	if err != nil {
		return err
	}
	if err := h.push.Unsubscribe(c.UserContext(), owner, req.Target()); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// List handles GET /push/subscriptions.
func (h *PushHandler) List(c *fiber.Ctx) error {
	owner, err := auth.RequireOwner(c, "")
	if err != nil {
		return err
	}
	subs, err := h.push.List(c.UserContext(), owner)
	if err != nil {
		return err
	}
	out := make([]dto.SubscriptionResponse, 0, len(subs))
	for _, s := range subs {
		out = append(out, dto.NewSubscriptionResponse(s))
	}
	return c.JSON(fiber.Map{"data": out})
}

// Test handles POST /push/test.
func (h *PushHandler) Test(c *fiber.Ctx) error {
	owner, err := auth.RequireOwner(c, "")
	if err != nil {
		return err
	}
	report, err := h.push.SendTest(c.UserContext(), owner)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": report})
}
