package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"go.uber.org/zap"

	httptransport "github.com/mernacademy/student-auth/internal/api/http"
	"github.com/mernacademy/student-auth/internal/api/http/handlers"
	"github.com/mernacademy/student-auth/internal/auth"
	"github.com/mernacademy/student-auth/internal/config"
	"github.com/mernacademy/student-auth/internal/events"
	"github.com/mernacademy/student-auth/internal/notify"
	"github.com/mernacademy/student-auth/internal/observability"
	"github.com/mernacademy/student-auth/internal/persistence"
	"github.com/mernacademy/student-auth/internal/ratelimit"
	"github.com/mernacademy/student-auth/internal/service"
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

	store, err := persistence.OpenStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open credential store", zap.String("driver", cfg.Store.Driver), zap.Error(err))
	}
	defer store.Close(context.Background())

	tokens, err := auth.NewTokenCodec(cfg.Auth.JWTSecret, auth.WithLeeway(cfg.Auth.ClockSkew()))
	if err != nil {
		logger.Fatal("failed to init token codec", zap.Error(err))
	}

	notifier, err := notify.New(cfg.Notification, logger)
	if err != nil {
		logger.Fatal("failed to init notifier", zap.Error(err))
	}

	dispatcher := events.NewInMemoryDispatcher()
	service.NewNotificationService(dispatcher, notifier, logger).RegisterHandlers()

	authService, err := service.NewAuthService(*cfg, service.AuthDependencies{
		Accounts:   store.Accounts,
		Hasher:     auth.NewBcryptHasher(cfg.Auth.BcryptCost),
		Tokens:     tokens,
		Notifier:   notifier,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	if err != nil {
		logger.Fatal("failed to init auth service", zap.Error(err))
	}

	deps := []handlers.Dependency{{Name: "store:" + store.Driver, Pinger: store}}
	var rateLimit, loginThrottle fiber.Handler
	if cfg.RateLimit.Enabled {
		redis := persistence.NewRedis(ctx, cfg.Redis, logger)
		defer redis.Close() //nolint:errcheck
		deps = append(deps, handlers.Dependency{Name: "redis", Pinger: redis})
		limiter := ratelimit.New(redis.Client, cfg.RateLimit.MaxRequests, cfg.RateLimit.Window())
		rateLimit = httptransport.RateLimitMiddleware(limiter, logger)
		lockout := ratelimit.New(redis.Client, cfg.RateLimit.LoginMaxFailures, cfg.RateLimit.LoginLockout())
		loginThrottle = httptransport.LoginThrottleMiddleware(lockout, logger)
	}

	metrics := observability.NewMetrics()
	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ErrorHandler: httptransport.ErrorHandler(logger),
	})
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.App.ClientURL,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
	}))
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, metrics, deps...),
		Auth:           handlers.NewAuthHandler(authService),
		Admin:          handlers.NewAdminHandler(authService),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
		RateLimit:      rateLimit,
		LoginThrottle:  loginThrottle,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
