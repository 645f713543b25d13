package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-portal/internal/api/dto"
	"github.com/spec-kit/ticket-portal/internal/service"
)

// AuthHandler issues viewer tokens.
type AuthHandler struct {
	auth *service.AuthService
}

// NewAuthHandler constructs handler.
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: authService}
}

// Token handles POST /auth/token.
func (h *AuthHandler) Token(c *fiber.Ctx) error {
	var req dto.TokenRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if strings.TrimSpace(req.Email) == "" {
		return fiber.NewError(http.StatusBadRequest, "email required")
	}

	token, viewer, err := h.auth.IssueViewerToken(c.UserContext(), req.Email)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"data": dto.AuthResponse{Token: token, Email: viewer.Email, ExpiresAt: viewer.ExpiresAt},
	})
}
