package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/ticket-portal/internal/api/http"
	"github.com/spec-kit/ticket-portal/internal/api/http/handlers"
	"github.com/spec-kit/ticket-portal/internal/auth"
	"github.com/spec-kit/ticket-portal/internal/config"
	"github.com/spec-kit/ticket-portal/internal/events"
	"github.com/spec-kit/ticket-portal/internal/glpi"
	"github.com/spec-kit/ticket-portal/internal/normalizer"
	"github.com/spec-kit/ticket-portal/internal/observability"
	"github.com/spec-kit/ticket-portal/internal/persistence"
	"github.com/spec-kit/ticket-portal/internal/push"
	"github.com/spec-kit/ticket-portal/internal/repository"
	"github.com/spec-kit/ticket-portal/internal/service"
	"github.com/spec-kit/ticket-portal/internal/stream"
	"github.com/spec-kit/ticket-portal/internal/timeline"
	"github.com/spec-kit/ticket-portal/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()
	if pg.PoolHandle() == nil {
		logger.Fatal("POSTGRES_DSN is required to store push subscriptions")
	}

	if cfg.Postgres.RunMigrations {
		applied, err := persistence.RunMigrations(ctx, pg.PoolHandle(), persistence.DefaultMigrationsDir, logger)
		if err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
		logger.Info("migrations complete", zap.Int("applied", applied))
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	backend, err := glpi.NewClient(cfg.GLPI, nil, logger.Named("glpi"))
	if err != nil {
		logger.Fatal("failed to init ticketing backend client", zap.Error(err))
	}
	backend.SetDocumentConcurrency(cfg.Timeline.MaxConcurrentDocuments)

	metrics := observability.NewMetrics()
	bus := events.NewInMemoryBus(
		events.WithReplayWindow(cfg.Events.ReplayWindow()),
		events.WithLogger(logger.Named("bus")),
	)
	gateway := stream.NewGateway(bus, stream.Config{
		Heartbeat: cfg.Stream.Heartbeat(),
		QueueSize: cfg.Stream.QueueSize,
	}, logger.Named("stream"))

	pushService := push.NewService(
		repository.NewPushSubscriptionRepository(pg.PoolHandle()),
		push.NewWebPushSender(cfg.Push, nil),
		cfg.Push,
		logger.Named("push"),
	)
	if !pushService.Enabled() {
		logger.Warn("VAPID keys not provided; push delivery disabled")
	}

	account := service.NewServiceAccount(backend, cfg.GLPI.UserToken, logger)
	ingestService := service.NewIngestService(service.IngestDependencies{
		Normalizer:    buildNormalizer(cfg.Webhook, cfg.GLPI.TimeZone, logger),
		Bus:           bus,
		Account:       account,
		Notifications: service.NewNotificationService(pushService, logger),
		Quarantine:    buildQuarantine(cfg.Webhook, redis),
		Metrics:       metrics,
		Logger:        logger.Named("ingest"),
		Enrich:        cfg.Webhook.Enrich,
	})

	authService := service.NewAuthService(cfg.Auth, account, logger)
	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager())

	engine := timeline.NewEngine(backend, cfg.GLPI.DocumentProxyPath, logger.Named("timeline"))
	sessions := timeline.NewSessionRegistry(cfg.Timeline.SessionIdle())
	watcher := timeline.NewWatcher(engine, bus, cfg.Timeline.PollInterval(), logger.Named("watcher"))
	janitorDone := worker.StartSessionJanitor(ctx, sessions, cfg.Timeline.SweepInterval(), logger)

	metrics.RegisterGauge("stream_connections", func() int64 { return int64(gateway.ActiveConnections()) })
	metrics.RegisterGauge("bus_subscribers", func() int64 { return int64(bus.SubscriberCount()) })
	metrics.RegisterGauge("replayable_updates", func() int64 { return int64(len(bus.Recent())) })
	metrics.RegisterGauge("view_sessions", func() int64 { return int64(sessions.Len()) })

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, httptransport.MiddlewareConfig{
		RequestTimeout:   cfg.App.RequestTimeout(),
		CORSAllowOrigins: cfg.App.CORSAllowOrigins,
	})

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, map[string]handlers.Pinger{
			"postgres": pg,
			"redis":    redis,
		}),
		Metrics: handlers.NewMetricsHandler(metrics),
		Webhook: handlers.NewWebhookHandler(ingestService),
		Stream:  handlers.NewStreamHandler(gateway, bus, logger.Named("stream")),
		Auth:    handlers.NewAuthHandler(authService),
		Push:    handlers.NewPushHandler(pushService),
		Timeline: handlers.NewTimelineHandler(handlers.TimelineDependencies{
			Engine:    engine,
			Sessions:  sessions,
			Watcher:   watcher,
			Gateway:   gateway,
			Documents: backend,
			Solutions: backend,
			Metrics:   metrics,
			Logger:    logger.Named("timeline"),
		}),
		AuthMiddleware:    authMiddleware,
		DocumentProxyPath: cfg.GLPI.DocumentProxyPath,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	// streams only end once the gateway is closed
	gateway.Close()
	cancel()
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	<-janitorDone
}

func buildNormalizer(cfg config.WebhookConfig, timeZone string, logger *zap.Logger) *normalizer.Normalizer {
	loc, err := time.LoadLocation(timeZone)
	if err != nil {
		logger.Fatal("invalid backend time zone", zap.String("time_zone", timeZone), zap.Error(err))
	}
	opts := []normalizer.Option{normalizer.WithLocation(loc)}
	if cfg.StatusDictionaryPath != "" {
		dict, err := normalizer.LoadStatusDictionary(cfg.StatusDictionaryPath)
		if err != nil {
			logger.Fatal("failed to load status dictionary", zap.String("path", cfg.StatusDictionaryPath), zap.Error(err))
		}
		logger.Info("status dictionary loaded", zap.Int("labels", dict.Len()))
		opts = append(opts, normalizer.WithStatusDictionary(dict))
	}
	return normalizer.New(opts...)
}

func buildQuarantine(cfg config.WebhookConfig, redis *persistence.Redis) service.Quarantine {
	if !redis.Configured() {
		return nil
	}
	return repository.NewQuarantineRepository(redis.Client, cfg.QuarantineKey, cfg.QuarantineMax)
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
