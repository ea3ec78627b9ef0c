package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/config"
	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/engagement"
	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/notification"
	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/infrastructure/memory"
	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/infrastructure/postgres"
	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/infrastructure/sqlite"
)

type store struct {
	engagements engagement.Repository
	journal     notification.Repository
	close       func()
}

// openStore connects the configured backend. migrate applies the schema
// first; SQLite always migrates on open.
func openStore(ctx context.Context, cfg *config.Config, migrate bool, logger zerolog.Logger) (*store, error) {
	switch cfg.Store {
	case config.StorePostgres:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, postgres.PoolOptions{MaxConns: cfg.DBMaxConns})
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if migrate {
			if err := postgres.RunMigrations(ctx, pool, ""); err != nil {
				pool.Close()
				return nil, fmt.Errorf("migrate postgres: %w", err)
			}
		}
		logger.Info().Str("store", cfg.Store).Msg("store opened")
		return &store{
			engagements: postgres.NewEngagementRepository(pool),
			journal:     postgres.NewNotificationRepository(pool),
			close:       pool.Close,
		}, nil

	case config.StoreSQLite:
		db, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", cfg.SQLitePath, err)
		}
		logger.Info().Str("store", cfg.Store).Str("path", cfg.SQLitePath).Msg("store opened")
		return &store{
			engagements: sqlite.NewEngagementRepository(db),
			journal:     sqlite.NewNotificationRepository(db),
			close:       func() { _ = db.Close() },
		}, nil

	default:
		logger.Warn().Msg("using the in-memory store; engagements are lost on exit")
		return &store{
			engagements: memory.NewEngagementRepository(),
			journal:     memory.NewNotificationRepository(),
			close:       func() {},
		}, nil
	}
}
