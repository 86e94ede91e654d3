// Command seed-admin creates the initial administrator account. Admins cannot
// self-register, so this is the bootstrap path.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/mernacademy/student-auth/internal/auth"
	"github.com/mernacademy/student-auth/internal/config"
	"github.com/mernacademy/student-auth/internal/notify"
	"github.com/mernacademy/student-auth/internal/observability"
	"github.com/mernacademy/student-auth/internal/persistence"
	"github.com/mernacademy/student-auth/internal/service"
)

func main() {
	name := flag.String("name", envOr("ADMIN_NAME", "Administrator"), "admin display name")
	email := flag.String("email", os.Getenv("ADMIN_EMAIL"), "admin email")
	password := flag.String("password", os.Getenv("ADMIN_PASSWORD"), "admin password")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.Store.Driver == config.StoreDriverMemory {
		log.Fatal("seeding the in-memory store has no lasting effect; set STORE_DRIVER")
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := persistence.OpenStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open credential store", zap.Error(err))
	}
	defer store.Close(context.Background())

	tokens, err := auth.NewTokenCodec(cfg.Auth.JWTSecret)
	if err != nil {
		logger.Fatal("failed to init token codec", zap.Error(err))
	}

	svc, err := service.NewAuthService(*cfg, service.AuthDependencies{
		Accounts: store.Accounts,
		Hasher:   auth.NewBcryptHasher(cfg.Auth.BcryptCost),
		Tokens:   tokens,
		Notifier: notify.NewLogNotifier(logger),
		Logger:   logger,
	})
	if err != nil {
		logger.Fatal("failed to init auth service", zap.Error(err))
	}

	profile, created, err := svc.SeedAdmin(ctx, service.SeedAdminInput{Name: *name, Email: *email, Password: *password})
	if err != nil {
		logger.Fatal("seed admin failed", zap.Error(err))
	}
	if created {
		logger.Info("admin created", zap.String("id", profile.ID), zap.String("email", profile.Email))
		return
	}
	logger.Info("admin already exists", zap.String("id", profile.ID), zap.String("email", profile.Email))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
