package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/queue-service/internal/api/http"
	"github.com/spec-kit/queue-service/internal/api/http/handlers"
	"github.com/spec-kit/queue-service/internal/auth"
	"github.com/spec-kit/queue-service/internal/config"
	"github.com/spec-kit/queue-service/internal/events"
	"github.com/spec-kit/queue-service/internal/observability"
	"github.com/spec-kit/queue-service/internal/persistence"
	"github.com/spec-kit/queue-service/internal/realtime"
	"github.com/spec-kit/queue-service/internal/repository"
	"github.com/spec-kit/queue-service/internal/service"
	"github.com/spec-kit/queue-service/internal/token"
	"github.com/spec-kit/queue-service/internal/worker"
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

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	metrics := observability.NewMetrics()
	datastore := repository.NewDatastore(pg.PoolHandle())

	broadcaster := events.NewBroadcaster(logger, metrics)
	hub := realtime.NewHub(logger)
	if redis.Ping(ctx) == nil {
		// Cross-instance delivery: publish to Redis, replay into local rooms.
		broadcaster.AddSink(events.NewRedisSink(redis.Client, logger))
		go hub.ListenRedis(ctx, redis.Client)
	} else {
		broadcaster.AddSink(hub)
	}

	dispatchService := service.NewDispatchService(service.DispatchDependencies{
		Datastore:     datastore,
		TokenGen:      token.NewGenerator(cfg.Queue.TokenMaxPerDay),
		Selector:      service.SelectorFromPolicy(cfg.Queue.RoutingPolicy),
		Broadcaster:   broadcaster,
		Logger:        logger,
		TokenAttempts: cfg.Queue.TokenMaxAttempts,
	})
	categoryService := service.NewCategoryService(datastore, broadcaster)
	userService := service.NewUserService(*cfg, datastore)
	authService := service.NewAuthService(*cfg, datastore)
	notificationService := service.NewNotificationService(broadcaster, logger, cfg.Notification)
	worker.StartNotificationWorker(notificationService)

	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager(), datastore.Users())

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Public:         handlers.NewPublicHandler(dispatchService, categoryService),
		Queue:          handlers.NewQueueHandler(dispatchService, categoryService),
		AdminTickets:   handlers.NewAdminTicketsHandler(dispatchService),
		Categories:     handlers.NewCategoriesHandler(categoryService),
		Users:          handlers.NewUsersHandler(authService, userService),
		WS:             handlers.NewWSHandler(hub, authMiddleware),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
