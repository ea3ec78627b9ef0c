// Package repotest holds the behavioural checks every engagement.Repository
// implementation must pass.
package repotest

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/agreement"
	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/engagement"
	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/hold"
	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/pricing"
)

// Factory returns an empty repository. It is called once per subtest.
type Factory func(t *testing.T) engagement.Repository

// base is truncated to microseconds so every backend stores it exactly.
var base = time.Date(2026, 4, 6, 8, 30, 0, 0, time.UTC)

var (
	buyer    = engagement.Actor{Role: engagement.RoleBuyer, ID: "buyer-9"}
	supplier = engagement.Actor{Role: engagement.RoleSupplier, ID: "supplier-9"}
)

// Run executes the suite against the repositories produced by newRepo.
func Run(t *testing.T, newRepo Factory) {
	t.Run("create and get", func(t *testing.T) { testCreateAndGet(t, newRepo(t)) })
	t.Run("commit compare and swap", func(t *testing.T) { testCommitCAS(t, newRepo(t)) })
	t.Run("agreements", func(t *testing.T) { testAgreements(t, newRepo(t)) })
	t.Run("events", func(t *testing.T) { testEvents(t, newRepo(t)) })
	t.Run("expired holds", func(t *testing.T) { testExpiredHolds(t, newRepo(t)) })
	t.Run("list filters", func(t *testing.T) { testList(t, newRepo(t)) })
	t.Run("admin overlay", func(t *testing.T) { testAdminOverlay(t, newRepo(t)) })
	t.Run("commit keeps admin overlay", func(t *testing.T) { testCommitKeepsAdminOverlay(t, newRepo(t)) })
}

func newEngagement(supplierID string, at time.Time) *engagement.Engagement {
	return engagement.New(engagement.MatchInput{
		ListingID:   "listing-" + supplierID,
		BuyerNeedID: "need-3",
		SupplierID:  supplierID,
		Tier:        "premium",
		Path:        engagement.PathTour,
		MatchScore:  0.93,
		MatchRank:   1,
		Pricing: pricing.Snapshot{
			SupplierRate:          0.8,
			BuyerRate:             1.1,
			MonthlySupplierPayout: 2400,
			MonthlyBuyerTotal:     3300,
			AllocatedSquareFeet:   3000,
			TermMonths:            6,
		},
	}, hold.DefaultPolicy(), at)
}

func create(t *testing.T, repo engagement.Repository, e *engagement.Engagement) {
	t.Helper()
	ev := engagement.NewEvent(e, engagement.TransitionCreate, engagement.System(), "", nil, e.CreatedAt)
	require.NoError(t, repo.Create(context.Background(), e, ev))
}

// advance applies a transition in memory and returns the commit for it.
func advance(e *engagement.Engagement, t engagement.Transition, to engagement.Status, actor engagement.Actor, at time.Time) *engagement.Commit {
	next := e.Clone()
	from := next.Status
	next.Status = to
	next.Phases.Mark(to, at)
	next.HoldExpiresAt = hold.DefaultPolicy().Next(from.HoldPhase(), to.HoldPhase(), e.HoldExpiresAt, at)
	next.Version++
	next.UpdatedAt = at
	if to == engagement.StatusDealPingAccepted {
		buyerID := buyer.ID
		next.BuyerID = &buyerID
	}
	payload, _ := json.Marshal(map[string]string{"note": string(t)})
	return &engagement.Commit{
		Engagement:      next,
		ExpectedVersion: e.Version,
		Event:           engagement.NewEvent(next, t, actor, from, payload, at),
	}
}

func assertSameEngagement(t *testing.T, want, got *engagement.Engagement) {
	t.Helper()
	require.NotNil(t, got)
	w, err := json.Marshal(want)
	require.NoError(t, err)
	g, err := json.Marshal(got)
	require.NoError(t, err)
	assert.JSONEq(t, string(w), string(g))
}

func testCreateAndGet(t *testing.T, repo engagement.Repository) {
	ctx := context.Background()
	e := newEngagement(supplier.ID, base)
	create(t, repo, e)

	got, err := repo.GetByID(ctx, e.EngagementID)
	require.NoError(t, err)
	assertSameEngagement(t, e, got)
	require.NotNil(t, got.HoldExpiresAt)
	assert.True(t, got.HoldExpiresAt.Equal(*e.HoldExpiresAt))

	missing, err := repo.GetByID(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)

	events, err := repo.ListEvents(ctx, e.EngagementID, 0, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, engagement.TransitionCreate, events[0].Transition)
	assert.Equal(t, int64(1), events[0].Sequence)
}

func testCommitCAS(t *testing.T, repo engagement.Repository) {
	ctx := context.Background()
	e := newEngagement(supplier.ID, base)
	create(t, repo, e)

	at := base.Add(2 * time.Hour)
	c := advance(e, engagement.TransitionAcceptDealPing, engagement.StatusDealPingAccepted, supplier, at)
	require.NoError(t, repo.Commit(ctx, c))

	got, err := repo.GetByID(ctx, e.EngagementID)
	require.NoError(t, err)
	assertSameEngagement(t, c.Engagement, got)
	assert.Equal(t, int64(2), got.Version)

	// A writer still holding version 1 loses and leaves no trace.
	stale := advance(e, engagement.TransitionDecline, engagement.StatusDealPingDeclined, supplier, at)
	err = repo.Commit(ctx, stale)
	require.Error(t, err)
	assert.True(t, errors.Is(err, engagement.ErrStaleState))

	got, err = repo.GetByID(ctx, e.EngagementID)
	require.NoError(t, err)
	assert.Equal(t, engagement.StatusDealPingAccepted, got.Status)

	events, err := repo.ListEvents(ctx, e.EngagementID, 0, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, engagement.TransitionAcceptDealPing, events[1].Transition)
	assert.Equal(t, supplier, events[1].Actor)
	assert.Equal(t, engagement.StatusDealPingSent, events[1].FromStatus)
	assert.JSONEq(t, `{"note":"accept_deal_ping"}`, string(events[1].Payload))
	assert.True(t, events[1].CreatedAt.Equal(at))
}

func testAgreements(t *testing.T, repo engagement.Repository) {
	ctx := context.Background()
	e := newEngagement(supplier.ID, base)
	create(t, repo, e)

	at := base.Add(time.Hour)
	v1 := agreement.New(e.EngagementID, 1, "terms v1", e.Pricing, at, 0)
	c := advance(e, engagement.TransitionAcceptDealPing, engagement.StatusDealPingAccepted, supplier, at)
	c.Engagement.AgreementVersion = 1
	c.Agreements = []*agreement.Agreement{v1}
	require.NoError(t, repo.Commit(ctx, c))

	got, err := repo.GetAgreement(ctx, e.EngagementID, 1)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, v1.AgreementID, got.AgreementID)
	assert.Equal(t, agreement.StatusPending, got.Status)
	assert.Equal(t, agreement.Digest("terms v1"), got.TermsDigest)
	assert.Equal(t, e.Pricing, got.Pricing)
	assert.True(t, got.ExpiresAt.Equal(at.Add(agreement.DefaultTTL)))
	assert.Nil(t, got.BuyerSignedAt)

	// Sign v1 and add v2 in one commit; v1 is updated in place.
	later := at.Add(time.Hour)
	signed := v1.Clone()
	_, err = signed.Sign(agreement.RoleBuyer, later)
	require.NoError(t, err)
	v2 := agreement.New(e.EngagementID, 2, "terms v2", e.Pricing, later, 0)
	c2 := advance(c.Engagement, engagement.TransitionCancel, engagement.StatusCancelled, buyer, later)
	c2.Agreements = []*agreement.Agreement{signed, v2}
	require.NoError(t, repo.Commit(ctx, c2))

	all, err := repo.ListAgreements(ctx, e.EngagementID)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, 1, all[0].Version)
	assert.Equal(t, agreement.StatusBuyerSigned, all[0].Status)
	require.NotNil(t, all[0].BuyerSignedAt)
	assert.True(t, all[0].BuyerSignedAt.Equal(later))
	assert.Equal(t, 2, all[1].Version)

	none, err := repo.GetAgreement(ctx, e.EngagementID, 7)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func testEvents(t *testing.T, repo engagement.Repository) {
	ctx := context.Background()
	e := newEngagement(supplier.ID, base)
	create(t, repo, e)

	current := e
	steps := []struct {
		transition engagement.Transition
		to         engagement.Status
		actor      engagement.Actor
	}{
		{engagement.TransitionAcceptDealPing, engagement.StatusDealPingAccepted, supplier},
		{engagement.TransitionMatch, engagement.StatusMatched, engagement.System()},
		{engagement.TransitionPresentOffer, engagement.StatusBuyerReviewing, engagement.System()},
	}
	for i, s := range steps {
		c := advance(current, s.transition, s.to, s.actor, base.Add(time.Duration(i+1)*time.Minute))
		require.NoError(t, repo.Commit(ctx, c))
		current = c.Engagement
	}

	page, err := repo.ListEvents(ctx, e.EngagementID, 1, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, int64(2), page[0].Sequence)
	assert.Equal(t, int64(3), page[1].Sequence)

	rest, err := repo.ListEvents(ctx, e.EngagementID, 3, 0)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, engagement.StatusBuyerReviewing, rest[0].ToStatus)

	none, err := repo.ListEvents(ctx, uuid.New(), 0, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testExpiredHolds(t *testing.T, repo engagement.Repository) {
	ctx := context.Background()
	early := newEngagement("supplier-a", base)
	late := newEngagement("supplier-b", base.Add(time.Hour))
	fresh := newEngagement("supplier-c", base.Add(48*time.Hour))
	for _, e := range []*engagement.Engagement{late, fresh, early} {
		create(t, repo, e)
	}

	now := late.HoldExpiresAt.Add(time.Minute)
	due, err := repo.ListExpiredHolds(ctx, now, 0)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, early.EngagementID, due[0].EngagementID)
	assert.Equal(t, late.EngagementID, due[1].EngagementID)

	capped, err := repo.ListExpiredHolds(ctx, now, 1)
	require.NoError(t, err)
	require.Len(t, capped, 1)
	assert.Equal(t, early.EngagementID, capped[0].EngagementID)

	// The deadline itself counts as expired.
	exact, err := repo.ListExpiredHolds(ctx, *early.HoldExpiresAt, 0)
	require.NoError(t, err)
	require.Len(t, exact, 1)
}

func testList(t *testing.T, repo engagement.Repository) {
	ctx := context.Background()
	var created []*engagement.Engagement
	for i, sup := range []string{"supplier-a", "supplier-b", "supplier-a"} {
		e := newEngagement(sup, base.Add(time.Duration(i)*time.Minute))
		create(t, repo, e)
		created = append(created, e)
	}
	c := advance(created[0], engagement.TransitionAcceptDealPing, engagement.StatusDealPingAccepted, supplier, base.Add(time.Hour))
	require.NoError(t, repo.Commit(ctx, c))
	require.NoError(t, repo.UpdateAdminOverlay(ctx, created[1].EngagementID,
		engagement.AdminOverlay{Flagged: true, FlagReason: "duplicate listing"}, base.Add(time.Hour)))

	all, err := repo.List(ctx, engagement.Filter{}, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, created[2].EngagementID, all[0].EngagementID)
	assert.Equal(t, created[0].EngagementID, all[2].EngagementID)

	supplierA := "supplier-a"
	bySupplier, err := repo.List(ctx, engagement.Filter{SupplierID: &supplierA}, 0, 0)
	require.NoError(t, err)
	assert.Len(t, bySupplier, 2)

	status := engagement.StatusDealPingAccepted
	byStatus, err := repo.List(ctx, engagement.Filter{Status: &status}, 0, 0)
	require.NoError(t, err)
	require.Len(t, byStatus, 1)
	assert.Equal(t, created[0].EngagementID, byStatus[0].EngagementID)

	buyerID := buyer.ID
	byBuyer, err := repo.List(ctx, engagement.Filter{BuyerID: &buyerID}, 0, 0)
	require.NoError(t, err)
	assert.Len(t, byBuyer, 1)

	flagged := true
	byFlag, err := repo.List(ctx, engagement.Filter{Flagged: &flagged}, 0, 0)
	require.NoError(t, err)
	require.Len(t, byFlag, 1)
	assert.Equal(t, "duplicate listing", byFlag[0].Admin.FlagReason)

	page, err := repo.List(ctx, engagement.Filter{}, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, created[1].EngagementID, page[0].EngagementID)
}

func testAdminOverlay(t *testing.T, repo engagement.Repository) {
	ctx := context.Background()
	e := newEngagement(supplier.ID, base)
	create(t, repo, e)

	at := base.Add(3 * time.Hour)
	overlay := engagement.AdminOverlay{Notes: "called supplier", Flagged: true, FlagReason: "pricing check"}
	require.NoError(t, repo.UpdateAdminOverlay(ctx, e.EngagementID, overlay, at))

	got, err := repo.GetByID(ctx, e.EngagementID)
	require.NoError(t, err)
	assert.Equal(t, overlay, got.Admin)
	assert.Equal(t, e.Version, got.Version)
	assert.True(t, got.UpdatedAt.Equal(at))

	events, err := repo.ListEvents(ctx, e.EngagementID, 0, 0)
	require.NoError(t, err)
	assert.Len(t, events, 1)

	err = repo.UpdateAdminOverlay(ctx, uuid.New(), overlay, at)
	assert.True(t, errors.Is(err, engagement.ErrNotFound))
}

func testCommitKeepsAdminOverlay(t *testing.T, repo engagement.Repository) {
	ctx := context.Background()
	e := newEngagement(supplier.ID, base)
	create(t, repo, e)

	// The transition below was built from a copy read before the overlay edit.
	loaded, err := repo.GetByID(ctx, e.EngagementID)
	require.NoError(t, err)
	overlay := engagement.AdminOverlay{Notes: "vip", Flagged: true, FlagReason: "priority account"}
	require.NoError(t, repo.UpdateAdminOverlay(ctx, e.EngagementID, overlay, base.Add(time.Minute)))

	c := advance(loaded, engagement.TransitionAcceptDealPing, engagement.StatusDealPingAccepted, buyer, base.Add(time.Hour))
	require.NoError(t, repo.Commit(ctx, c))
	got, err := repo.GetByID(ctx, e.EngagementID)
	require.NoError(t, err)
	assert.Equal(t, engagement.StatusDealPingAccepted, got.Status)
	assert.Equal(t, overlay, got.Admin)

	// A transition that raises the flag replaces only the reason.
	flag := "tour adjustment needed"
	c = advance(c.Engagement, engagement.TransitionMatch, engagement.StatusMatched, engagement.System(), base.Add(2*time.Hour))
	c.Flag = &flag
	require.NoError(t, repo.Commit(ctx, c))
	got, err = repo.GetByID(ctx, e.EngagementID)
	require.NoError(t, err)
	assert.Equal(t, engagement.AdminOverlay{Notes: "vip", Flagged: true, FlagReason: flag}, got.Admin)

	other := newEngagement("supplier-3", base)
	create(t, repo, other)
	c = advance(other, engagement.TransitionAcceptDealPing, engagement.StatusDealPingAccepted, buyer, base.Add(time.Hour))
	c.Flag = &flag
	require.NoError(t, repo.Commit(ctx, c))
	got, err = repo.GetByID(ctx, other.EngagementID)
	require.NoError(t, err)
	assert.Equal(t, engagement.AdminOverlay{Flagged: true, FlagReason: flag}, got.Admin)
}
