package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-portal/internal/api/http/handlers"
	"github.com/spec-kit/ticket-portal/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health            *handlers.HealthHandler
	Metrics           *handlers.MetricsHandler
	Webhook           *handlers.WebhookHandler
	Stream            *handlers.StreamHandler
	Auth              *handlers.AuthHandler
	Push              *handlers.PushHandler
	Timeline          *handlers.TimelineHandler
	AuthMiddleware    *auth.AuthMiddleware
	DocumentProxyPath string
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", cfg.Metrics.Snapshot)

	app.Post("/webhook/glpi", cfg.Webhook.Receive)
	app.Get("/webhook/glpi", cfg.Webhook.Status)

	app.Get("/tickets/events", cfg.Stream.Events)
	app.Get("/tickets/updates", cfg.Stream.Updates)

	app.Post("/auth/token", cfg.Auth.Token)

	app.Get("/push/public-key", cfg.Push.PublicKey)
	pushGroup := app.Group("/push", cfg.AuthMiddleware.Handle, auth.RequireViewer())
	pushGroup.Post("/subscribe", cfg.Push.Subscribe)
	pushGroup.Delete("/subscribe", cfg.Push.Unsubscribe)
	pushGroup.Get("/subscriptions", cfg.Push.List)
	pushGroup.Post("/test", cfg.Push.Test)

	app.Get("/tickets/:id/timeline", auth.BackendCredential, cfg.Timeline.Timeline)
	app.Get("/tickets/:id/timeline/stream", auth.BackendCredential, cfg.Timeline.Stream)
	app.Get("/tickets/:id/agents", auth.BackendCredential, cfg.Timeline.Agents)
	app.Put("/tickets/:id/solutions/:sid", auth.BackendCredential, cfg.Timeline.Solution)
	app.Delete("/session", auth.BackendCredential, cfg.Timeline.CloseSession)

	proxyPath := cfg.DocumentProxyPath
	if proxyPath == "" {
		proxyPath = "/documents"
	}
	app.Get(proxyPath+"/:id", auth.BackendCredential, cfg.Timeline.Document)
}
