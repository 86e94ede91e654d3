package persistence

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mernacademy/student-auth/internal/config"
	"github.com/mernacademy/student-auth/internal/repository"
)

// Store is the credential store selected by STORE_DRIVER together with the
// connection backing it.
type Store struct {
	Driver   string
	Accounts repository.AccountRepository
	postgres *Postgres
	mongo    *Mongo
}

// OpenStore connects the configured backend and prepares its schema.
func OpenStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Store, error) {
	store := &Store{Driver: cfg.Store.Driver}

	switch cfg.Store.Driver {
	case config.StoreDriverPostgres:
		pg, err := NewPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if cfg.Postgres.RunMigrations {
			if err := RunMigrations(ctx, pg.DB(), logger); err != nil {
				pg.Close()
				return nil, err
			}
		}
		store.postgres = pg
		store.Accounts = repository.NewPostgresAccountRepository(pg.DB())

	case config.StoreDriverMongo:
		mg, err := NewMongo(ctx, cfg.Mongo, logger)
		if err != nil {
			return nil, err
		}
		if err := repository.EnsureAccountIndexes(ctx, mg.Accounts); err != nil {
			mg.Close(context.Background())
			return nil, err
		}
		store.mongo = mg
		store.Accounts = repository.NewMongoAccountRepository(mg.Accounts)

	case config.StoreDriverMemory:
		logger.Warn("using in-memory credential store; accounts are lost on restart")
		store.Accounts = repository.NewMemoryAccountRepository()

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}

	return store, nil
}

// Ping verifies the backing connection. The memory store is always ready.
func (s *Store) Ping(ctx context.Context) error {
	switch {
	case s.postgres != nil:
		return s.postgres.Ping(ctx)
	case s.mongo != nil:
		return s.mongo.Ping(ctx)
	}
	return nil
}

// Close releases the backing connection.
func (s *Store) Close(ctx context.Context) {
	if s == nil {
		return
	}
	s.postgres.Close()
	s.mongo.Close(ctx)
}
