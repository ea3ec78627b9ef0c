package lifecycle

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/agreement"
	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/engagement"
	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/pricing"
	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/infrastructure/memory"
	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/pkg/clock"
)

var (
	t0       = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	buyer    = engagement.Actor{Role: engagement.RoleBuyer, ID: "buyer-1"}
	supplier = engagement.Actor{Role: engagement.RoleSupplier, ID: "supplier-1"}
	admin    = engagement.Actor{Role: engagement.RoleAdmin, ID: "ops-1"}
	system   = engagement.System()
)

type rendererFunc func(ctx context.Context, in agreement.RenderInput) (string, error)

func (f rendererFunc) Render(ctx context.Context, in agreement.RenderInput) (string, error) {
	return f(ctx, in)
}

func plainRenderer() agreement.Renderer {
	return rendererFunc(func(_ context.Context, in agreement.RenderInput) (string, error) {
		return fmt.Sprintf("Lease v%d for %s at %.2f/month", in.Version, in.ListingID, in.Pricing.MonthlyBuyerTotal), nil
	})
}

type fixture struct {
	svc   *Service
	repo  *memory.EngagementRepository
	clock *clock.Fake
}

func newFixture(t *testing.T, configure ...func(*Options)) *fixture {
	t.Helper()
	fake := clock.NewFake(t0)
	repo := memory.NewEngagementRepository()
	opts := Options{
		Policy:        DefaultPolicy(),
		Renderer:      plainRenderer(),
		Clock:         fake,
		NotifyBackoff: time.Millisecond,
	}
	for _, c := range configure {
		c(&opts)
	}
	svc, err := NewService(repo, opts, zerolog.Nop())
	require.NoError(t, err)
	return &fixture{svc: svc, repo: repo, clock: fake}
}

func matchInput(path engagement.Path) engagement.MatchInput {
	return engagement.MatchInput{
		ListingID:   "listing-42",
		BuyerNeedID: "need-7",
		SupplierID:  supplier.ID,
		Tier:        "standard",
		Path:        path,
		MatchScore:  0.87,
		MatchRank:   2,
		Pricing: pricing.Snapshot{
			SupplierRate:          0.75,
			BuyerRate:             1.05,
			MonthlySupplierPayout: 3750,
			MonthlyBuyerTotal:     5250,
			AllocatedSquareFeet:   5000,
			TermMonths:            12,
		},
	}
}

func (f *fixture) create(t *testing.T, path engagement.Path) *engagement.Engagement {
	t.Helper()
	e, err := f.svc.CreateEngagement(context.Background(), matchInput(path), system)
	require.NoError(t, err)
	return e
}

// must wraps a command call: must(t)(f.svc.Cancel(...)).
func must(t *testing.T) func(*Result, error) *engagement.Engagement {
	return func(res *Result, err error) *engagement.Engagement {
		t.Helper()
		require.NoError(t, err)
		require.NotNil(t, res)
		return res.Engagement
	}
}

func (f *fixture) get(t *testing.T, id uuid.UUID) *engagement.Engagement {
	t.Helper()
	e, err := f.repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, e)
	return e
}

func (f *fixture) toAddressRevealed(t *testing.T, path engagement.Path) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	id := f.create(t, path).EngagementID
	must(t)(f.svc.AcceptDealPing(ctx, id, buyer, 0))
	must(t)(f.svc.MarkMatched(ctx, id, system, 0))
	must(t)(f.svc.PresentOffer(ctx, id, system, 0))
	must(t)(f.svc.AcceptOffer(ctx, id, buyer, 0))
	must(t)(f.svc.CreateAccount(ctx, id, buyer, "", 0))
	must(t)(f.svc.SignGuarantee(ctx, id, buyer, 0))
	must(t)(f.svc.RevealAddress(ctx, id, system, 0))
	return id
}

func (f *fixture) toTourConfirmed(t *testing.T) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	id := f.toAddressRevealed(t, engagement.PathTour)
	must(t)(f.svc.RequestTour(ctx, id, buyer, f.clock.Now().Add(48*time.Hour), 0))
	must(t)(f.svc.ConfirmTour(ctx, id, supplier, true, nil, "", 0))
	return id
}

func (f *fixture) toBuyerConfirmed(t *testing.T) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	id := f.toAddressRevealed(t, engagement.PathInstantBook)
	must(t)(f.svc.RequestInstantBook(ctx, id, buyer, 0))
	must(t)(f.svc.ConfirmInstantBook(ctx, id, supplier, 0))
	return id
}

func (f *fixture) toAgreementSent(t *testing.T) uuid.UUID {
	t.Helper()
	id := f.toBuyerConfirmed(t)
	must(t)(f.svc.SendAgreement(context.Background(), id, system))
	return id
}

func (f *fixture) toOnboarding(t *testing.T) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	id := f.toAgreementSent(t)
	must(t)(f.svc.SignAgreement(ctx, id, buyer, agreement.RoleBuyer, 0))
	must(t)(f.svc.SignAgreement(ctx, id, supplier, agreement.RoleSupplier, 0))
	must(t)(f.svc.StartOnboarding(ctx, id, system, 0))
	return id
}

func (f *fixture) timeline(t *testing.T, id uuid.UUID) []*engagement.Event {
	t.Helper()
	events, err := f.repo.ListEvents(context.Background(), id, 0, 0)
	require.NoError(t, err)
	return events
}

func requireKind(t *testing.T, err error, kind engagement.ErrorKind) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, engagement.KindOf(err), "unexpected error: %v", err)
}
