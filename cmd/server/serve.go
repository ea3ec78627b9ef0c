package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	httpapi "github.com/dinesh-wex/wex-platform-2026-sub001/internal/api/http"
	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/application/auth"
	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/application/expiration"
	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/application/lifecycle"
	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/application/timeline"
	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/config"
	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/notification"
	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/infrastructure/metrics"
	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/infrastructure/notify"
	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/infrastructure/sse"
	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/infrastructure/terms"
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().Bool("no-sweep", false, "Do not run the hold expiration sweep in this process")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the hold expiration sweep",
	RunE:  runServe,
}

// newLifecycle wires the lifecycle service with its collaborators.
func newLifecycle(cfg *config.Config, st *store, hub notification.SSEHub, recorder lifecycle.Recorder, logger zerolog.Logger) (*lifecycle.Service, error) {
	policy, err := config.LoadPolicy(cfg.PolicyFile)
	if err != nil {
		return nil, err
	}
	renderer, err := terms.FromFile(cfg.TermsTemplate)
	if err != nil {
		return nil, fmt.Errorf("load terms template: %w", err)
	}
	var dispatcher notification.Dispatcher = notify.NewLogDispatcher(logger)
	if cfg.WebhookURL != "" {
		dispatcher = notify.NewWebhookDispatcher(notify.WebhookConfig{
			DefaultURL: cfg.WebhookURL,
			Timeout:    cfg.WebhookTimeout,
		}, logger)
	}
	return lifecycle.NewService(st.engagements, lifecycle.Options{
		Policy:         policy,
		Renderer:       renderer,
		Dispatcher:     dispatcher,
		SSEHub:         hub,
		Journal:        st.journal,
		Recorder:       recorder,
		NotifyAttempts: cfg.NotifyAttempts,
		NotifyBackoff:  cfg.NotifyBackoff,
		NotifyTimeout:  cfg.WebhookTimeout,
	}, logger)
}

func runServe(cmd *cobra.Command, args []string) error {
	noSweep, _ := cmd.Flags().GetBool("no-sweep")
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.TokenSecret == "" {
		return errors.New("AUTH_TOKEN_SECRET must be set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg, cfg.AutoMigrate, logger)
	if err != nil {
		return err
	}
	defer st.close()

	recorder := metrics.New(prometheus.DefaultRegisterer)
	hub := sse.NewHub(cfg.SSEHeartbeat, logger)
	lifecycleSvc, err := newLifecycle(cfg, st, hub, recorder, logger)
	if err != nil {
		return err
	}
	timelineSvc := timeline.NewService(st.engagements, lifecycleSvc.Graph(), logger)
	authSvc := auth.NewService(cfg.TokenSecret, cfg.TokenTTL, logger)

	apiServer := httpapi.NewServer(lifecycleSvc, timelineSvc, authSvc, hub, httpapi.Options{
		RateLimit:       cfg.RateLimit,
		RateLimitPeriod: cfg.RateLimitPeriod,
	}, logger)
	httpServer := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           apiServer.Router(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	hub.Start(ctx)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", cfg.ServerAddr).Str("store", cfg.Store).Msg("http server started")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		// Streams only end once the hub closes their channels.
		hub.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	if !noSweep {
		sweeper := expiration.NewSweeper(st.engagements, lifecycleSvc, recorder, nil, logger)
		g.Go(func() error {
			return sweeper.Run(gctx, cfg.SweepInterval, cfg.SweepBatch)
		})
	}

	err = g.Wait()
	lifecycleSvc.WaitForEffects()
	logger.Info().Msg("shutdown complete")
	return err
}
