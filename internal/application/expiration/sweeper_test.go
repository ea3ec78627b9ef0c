package expiration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/application/lifecycle"
	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/engagement"
	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/engagement/mocks"
	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/hold"
	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/pricing"
	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/infrastructure/memory"
	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/pkg/clock"
)

var t0 = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

type mockExpirer struct {
	mock.Mock
}

func (m *mockExpirer) Expire(ctx context.Context, id uuid.UUID, expected int64, wait bool) (*lifecycle.Result, error) {
	args := m.Called(ctx, id, expected, wait)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*lifecycle.Result), args.Error(1)
}

type outcomes []string

func (o *outcomes) ObserveSweep(outcome string) { *o = append(*o, outcome) }

func due(version int64) *engagement.Engagement {
	return &engagement.Engagement{EngagementID: uuid.New(), Status: engagement.StatusTourConfirmed, Version: version}
}

func TestProcessExpiredHolds_ClassifiesOutcomes(t *testing.T) {
	repo := new(mocks.MockRepository)
	expirer := new(mockExpirer)
	fake := clock.NewFake(t0)
	var seen outcomes

	expired, stale, busy, moved, broken := due(4), due(7), due(2), due(3), due(9)
	repo.On("ListExpiredHolds", mock.Anything, t0, 25).
		Return([]*engagement.Engagement{expired, stale, busy, moved, broken}, nil)

	expirer.On("Expire", mock.Anything, expired.EngagementID, int64(4), false).Return(&lifecycle.Result{}, nil)
	expirer.On("Expire", mock.Anything, stale.EngagementID, int64(7), false).
		Return(nil, engagement.NewError(engagement.KindStaleState, engagement.TransitionExpire, "", "moved"))
	expirer.On("Expire", mock.Anything, busy.EngagementID, int64(2), false).Return(nil, lifecycle.ErrBusy)
	expirer.On("Expire", mock.Anything, moved.EngagementID, int64(3), false).
		Return(nil, engagement.NewError(engagement.KindInvalidTransition, engagement.TransitionExpire, engagement.StatusCancelled, "terminal"))
	expirer.On("Expire", mock.Anything, broken.EngagementID, int64(9), false).Return(nil, errors.New("connection reset"))

	s := NewSweeper(repo, expirer, &seen, fake, zerolog.Nop())
	stats, err := s.ProcessExpiredHolds(context.Background(), 25)
	require.NoError(t, err)

	assert.Equal(t, SweepStats{Scanned: 5, Expired: 1, Resolved: 1, Busy: 1, Skipped: 1, Failed: 1}, stats)
	assert.Equal(t, outcomes{"expired", "resolved", "busy", "skipped", "failed"}, seen)
	repo.AssertExpectations(t)
	expirer.AssertExpectations(t)
}

func TestProcessExpiredHolds_ListError(t *testing.T) {
	repo := new(mocks.MockRepository)
	repo.On("ListExpiredHolds", mock.Anything, t0, 100).Return(nil, errors.New("db down"))

	s := NewSweeper(repo, new(mockExpirer), nil, clock.NewFake(t0), zerolog.Nop())
	_, err := s.ProcessExpiredHolds(context.Background(), 0)
	assert.EqualError(t, err, "db down")
}

func TestProcessExpiredHolds_EndToEnd(t *testing.T) {
	fake := clock.NewFake(t0)
	repo := memory.NewEngagementRepository()
	svc, err := lifecycle.NewService(repo, lifecycle.Options{Policy: lifecycle.DefaultPolicy(), Clock: fake}, zerolog.Nop())
	require.NoError(t, err)

	ctx := context.Background()
	in := engagement.MatchInput{
		ListingID:   "listing-1",
		BuyerNeedID: "need-1",
		SupplierID:  "supplier-1",
		Path:        engagement.PathTour,
		Pricing:     pricing.Snapshot{MonthlyBuyerTotal: 1200, MonthlySupplierPayout: 900},
	}
	stale, err := svc.CreateEngagement(ctx, in, engagement.System())
	require.NoError(t, err)
	fresh, err := svc.CreateEngagement(ctx, in, engagement.System())
	require.NoError(t, err)
	_, err = svc.AcceptDealPing(ctx, fresh.EngagementID, engagement.Actor{Role: engagement.RoleBuyer, ID: "buyer-1"}, 0)
	require.NoError(t, err)

	fake.Advance(hold.DefaultOfferWindow)
	s := NewSweeper(repo, svc, nil, fake, zerolog.Nop())

	stats, err := s.ProcessExpiredHolds(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Expired)

	e, err := repo.GetByID(ctx, stale.EngagementID)
	require.NoError(t, err)
	assert.Equal(t, engagement.StatusDealPingExpired, e.Status)
	assert.Nil(t, e.HoldExpiresAt)

	e, err = repo.GetByID(ctx, fresh.EngagementID)
	require.NoError(t, err)
	assert.Equal(t, engagement.StatusDealPingAccepted, e.Status)

	stats, err = s.ProcessExpiredHolds(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, stats.Scanned, "expiry fires once per engagement")

	fake.Advance(hold.DefaultAcceptanceHold)
	stats, err = s.ProcessExpiredHolds(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Expired)
	e, err = repo.GetByID(ctx, fresh.EngagementID)
	require.NoError(t, err)
	assert.Equal(t, engagement.StatusExpired, e.Status)

	events, err := repo.ListEvents(ctx, fresh.EngagementID, 0, 0)
	require.NoError(t, err)
	require.NoError(t, svc.Graph().ValidateWalk(events))
}

func TestRun_StopsOnCancel(t *testing.T) {
	repo := new(mocks.MockRepository)
	repo.On("ListExpiredHolds", mock.Anything, mock.Anything, 10).Return([]*engagement.Engagement{}, nil).Maybe()
	s := NewSweeper(repo, new(mockExpirer), nil, nil, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, 5*time.Millisecond, 10) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
