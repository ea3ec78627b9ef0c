package expiration

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/application/lifecycle"
	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/engagement"
	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/pkg/clock"
)

// Expirer fires the system expire transition. *lifecycle.Service implements it.
type Expirer interface {
	Expire(ctx context.Context, id uuid.UUID, expected int64, wait bool) (*lifecycle.Result, error)
}

// Observer receives one outcome label per engagement the sweep touched.
type Observer interface {
	ObserveSweep(outcome string)
}

type nopObserver struct{}

func (nopObserver) ObserveSweep(string) {}

// SweepStats summarizes one pass.
type SweepStats struct {
	Scanned  int `json:"scanned"`
	Expired  int `json:"expired"`
	Resolved int `json:"resolved"`
	Busy     int `json:"busy"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

// Sweeper eagerly expires holds whose deadline has passed. Reads already treat
// such holds as expired; the sweep makes the status catch up.
type Sweeper struct {
	repo     engagement.Repository
	expirer  Expirer
	observer Observer
	clock    clock.Clock
	logger   zerolog.Logger
}

// NewSweeper creates a sweeper. A nil observer or clock falls back to a no-op
// observer and the wall clock.
func NewSweeper(repo engagement.Repository, expirer Expirer, observer Observer, clk clock.Clock, logger zerolog.Logger) *Sweeper {
	if observer == nil {
		observer = nopObserver{}
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Sweeper{
		repo:     repo,
		expirer:  expirer,
		observer: observer,
		clock:    clk,
		logger:   logger.With().Str("service", "expiration").Logger(),
	}
}

// ProcessExpiredHolds expires up to limit engagements. Engagements held by a
// concurrent transition are skipped and picked up by the next pass.
func (s *Sweeper) ProcessExpiredHolds(ctx context.Context, limit int) (SweepStats, error) {
	var stats SweepStats
	if limit <= 0 {
		limit = 100
	}
	due, err := s.repo.ListExpiredHolds(ctx, s.clock.Now(), limit)
	if err != nil {
		return stats, err
	}
	for _, e := range due {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Scanned++
		outcome := s.expireOne(ctx, e)
		s.observer.ObserveSweep(outcome)
		switch outcome {
		case "expired":
			stats.Expired++
		case "resolved":
			stats.Resolved++
		case "busy":
			stats.Busy++
		case "skipped":
			stats.Skipped++
		default:
			stats.Failed++
		}
	}
	if stats.Scanned > 0 {
		s.logger.Info().
			Int("scanned", stats.Scanned).
			Int("expired", stats.Expired).
			Int("resolved", stats.Resolved).
			Int("busy", stats.Busy).
			Int("failed", stats.Failed).
			Msg("hold sweep finished")
	}
	return stats, nil
}

func (s *Sweeper) expireOne(ctx context.Context, e *engagement.Engagement) string {
	_, err := s.expirer.Expire(ctx, e.EngagementID, e.Version, false)
	switch {
	case err == nil:
		return "expired"
	case errors.Is(err, lifecycle.ErrBusy):
		return "busy"
	}
	switch engagement.KindOf(err) {
	case engagement.KindStaleState:
		// Someone else moved the engagement first; nothing left to do.
		return "resolved"
	case engagement.KindGuardNotMet, engagement.KindInvalidTransition, engagement.KindNotFound:
		return "skipped"
	}
	s.logger.Warn().Err(err).Str("engagement_id", e.EngagementID.String()).Msg("failed to expire hold")
	return "failed"
}

// Run sweeps every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration, limit int) error {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.ProcessExpiredHolds(ctx, limit); err != nil && ctx.Err() == nil {
				s.logger.Error().Err(err).Msg("hold sweep failed")
			}
		}
	}
}
