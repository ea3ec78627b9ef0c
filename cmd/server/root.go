package main

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "engagements",
	Short: "Engagement lifecycle service",
	Long: `Tracks buyer/supplier engagements from deal ping to active lease.
Configuration comes from the environment and an optional .env file; the
lifecycle policy (holds, agreement expiry, reschedule limit, extra guards)
may be overridden with a TOML file named by LIFECYCLE_POLICY_FILE.`,
	SilenceUsage: true,
}

// loadConfig reads the configuration and builds the process logger.
func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, newLogger(cfg), nil
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	if cfg.LogFormat == "console" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
			Level(level).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
}
