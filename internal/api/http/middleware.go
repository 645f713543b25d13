package http

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-portal/internal/observability"
	apperrors "github.com/spec-kit/ticket-portal/pkg/util/errorutil"
)

// MiddlewareConfig tunes the global middleware chain.
type MiddlewareConfig struct {
	RequestTimeout   time.Duration
	CORSAllowOrigins string
}

// RegisterMiddlewares attaches global middlewares such as error handling and logging.
func RegisterMiddlewares(app *fiber.App, logger *zap.Logger, metrics *observability.Metrics, cfg MiddlewareConfig) {
	app.Use(errorHandlingMiddleware(logger, metrics))
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c *fiber.Ctx, e interface{}) {
			logger.Error("panic recovered", zap.String("path", c.Path()), zap.String("panic", fmt.Sprint(e)), zap.StackSkip("stack", 3))
		},
	}))
	if cfg.CORSAllowOrigins != "" {
		app.Use(cors.New(cors.Config{
			AllowOrigins: cfg.CORSAllowOrigins,
			AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Session-Token",
			AllowMethods: "GET,POST,DELETE,OPTIONS",
		}))
	}
	if cfg.RequestTimeout > 0 {
		app.Use(requestTimeoutMiddleware(cfg.RequestTimeout))
	}
	app.Use(observability.RequestLogger(logger, metrics))
}

func requestTimeoutMiddleware(timeout time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), timeout)
		defer cancel()
		c.SetUserContext(ctx)
		return c.Next()
	}
}

func errorHandlingMiddleware(logger *zap.Logger, metrics *observability.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()
		if err == nil {
			return nil
		}
		domainErr := apperrors.ToDomainError(err)
		metrics.RecordError(c.Path(), c.Method(), domainErr.Code)
		response := fiber.Map{"error": fiber.Map{
			"code":    domainErr.Code,
			"message": domainErr.Message,
		}}
		if len(domainErr.Details) > 0 {
			response["error"].(fiber.Map)["details"] = domainErr.Details
		}
		if domainErr.HTTPStatus >= 500 {
			logger.Error("request failed", zap.String("path", c.Path()), zap.Error(domainErr))
		}
		return c.Status(domainErr.HTTPStatus).JSON(response)
	}
}
