package main

import (
	"context"
	"encoding/json"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/application/expiration"
	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/infrastructure/metrics"
)

func init() {
	rootCmd.AddCommand(sweepCmd)
	sweepCmd.Flags().Int("limit", 0, "Maximum engagements to expire (default SWEEP_BATCH)")
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Expire lapsed holds once and exit",
	Long: `Runs a single expiration pass, for use from cron when the API runs with
--no-sweep. Prints the pass statistics as JSON.`,
	RunE: runSweep,
}

func runSweep(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if limit <= 0 {
		limit = cfg.SweepBatch
	}
	ctx := context.Background()
	st, err := openStore(ctx, cfg, false, logger)
	if err != nil {
		return err
	}
	defer st.close()

	recorder := metrics.New(prometheus.NewRegistry())
	lifecycleSvc, err := newLifecycle(cfg, st, nil, recorder, logger)
	if err != nil {
		return err
	}
	stats, err := expiration.NewSweeper(st.engagements, lifecycleSvc, recorder, nil, logger).ProcessExpiredHolds(ctx, limit)
	lifecycleSvc.WaitForEffects()
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(stats)
}
