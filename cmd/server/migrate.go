package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/config"
	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/infrastructure/postgres"
)

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().String("dir", "", "Directory of .sql migrations (default: the ones built into the binary)")
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema",
	RunE:  runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	dir, _ := cmd.Flags().GetString("dir")
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()

	if cfg.Store != config.StorePostgres || dir == "" {
		st, err := openStore(ctx, cfg, true, logger)
		if err != nil {
			return err
		}
		st.close()
		logger.Info().Str("store", cfg.Store).Msg("schema is up to date")
		return nil
	}

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, postgres.PoolOptions{MaxConns: 1})
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()
	if err := postgres.RunMigrations(ctx, pool, dir); err != nil {
		return err
	}
	logger.Info().Str("dir", dir).Msg("schema is up to date")
	return nil
}
