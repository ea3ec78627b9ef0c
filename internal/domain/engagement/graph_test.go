package engagement

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGraph_TerminalStatusesHaveNoEdges(t *testing.T) {
	g := DefaultGraph()
	for _, s := range AllStatuses() {
		if s.IsTerminal() {
			assert.Empty(t, g.Transitions(s), "terminal status %s has outgoing edges", s)
		}
	}
}

func TestGraph_EveryLiveStatusCanBeLeftByDeclineOrCancel(t *testing.T) {
	g := DefaultGraph()
	for _, s := range AllStatuses() {
		if !s.BeforeActive() {
			continue
		}
		assert.NotEmpty(t, g.Outgoing(s, TransitionDecline), "no decline from %s", s)
		assert.NotEmpty(t, g.Outgoing(s, TransitionCancel), "no cancel from %s", s)
	}
	assert.Empty(t, g.Outgoing(StatusActive, TransitionCancel))
	assert.Equal(t, []Transition{TransitionComplete}, g.Transitions(StatusActive))
}

func TestGraph_HoldStatusesExpireAndGuardUserEdges(t *testing.T) {
	g := DefaultGraph()
	for _, s := range HoldStatuses() {
		expire := g.Outgoing(s, TransitionExpire)
		require.Len(t, expire, 1, s)
		assert.Equal(t, []ActorRole{RoleSystem}, expire[0].Actors)
		if s == StatusDealPingSent {
			assert.Equal(t, StatusDealPingExpired, expire[0].To)
		} else {
			assert.Equal(t, StatusExpired, expire[0].To)
		}

		for _, tr := range g.Transitions(s) {
			if exits[tr] {
				continue
			}
			for _, e := range g.Outgoing(s, tr) {
				assert.Contains(t, e.Guard, "!"+FactHoldExpired, "%s %s", s, tr)
			}
		}
	}
	assert.Empty(t, g.Outgoing(StatusMatched, TransitionExpire))
}

func TestGraph_ForkOnPath(t *testing.T) {
	g := DefaultGraph()
	tourEdge := g.Outgoing(StatusAddressRevealed, TransitionRequestTour)
	require.Len(t, tourEdge, 1)
	assert.Contains(t, tourEdge[0].Guard, "path == 'tour'")

	ib := g.Outgoing(StatusAddressRevealed, TransitionRequestInstantBook)
	require.Len(t, ib, 1)
	assert.Contains(t, ib[0].Guard, "path == 'instant_book'")
}

func TestGraph_RescheduleEdgesAreMarked(t *testing.T) {
	g := DefaultGraph()
	var marked []Transition
	for _, e := range g.Edges() {
		if e.Reschedule {
			marked = append(marked, e.Transition)
		}
	}
	assert.ElementsMatch(t, []Transition{TransitionProposeTourTime, TransitionRescheduleTour, TransitionRescheduleTour}, marked)
}

func TestGraph_ExtraGuards(t *testing.T) {
	g := NewGraph(map[Transition]string{TransitionActivate: "tier != 'blocked'"})
	edges := g.Outgoing(StatusOnboarding, TransitionActivate)
	require.Len(t, edges, 1)
	assert.True(t, strings.HasSuffix(edges[0].Guard, "(tier != 'blocked')"), edges[0].Guard)
	assert.Contains(t, edges[0].Guard, FactOnboardingComplete)
}

func TestGraph_ValidateWalk(t *testing.T) {
	g := DefaultGraph()
	id := uuid.New()
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ev := func(seq int64, tr Transition, from, to Status) *Event {
		return &Event{EngagementID: id, Sequence: seq, Transition: tr, FromStatus: from, ToStatus: to, CreatedAt: at.Add(time.Duration(seq) * time.Minute)}
	}

	valid := []*Event{
		ev(1, TransitionCreate, "", StatusDealPingSent),
		ev(2, TransitionAcceptDealPing, StatusDealPingSent, StatusDealPingAccepted),
		ev(3, TransitionMatch, StatusDealPingAccepted, StatusMatched),
		ev(4, TransitionCancel, StatusMatched, StatusCancelled),
	}
	require.NoError(t, g.ValidateWalk(valid))

	gap := []*Event{valid[0], ev(3, TransitionAcceptDealPing, StatusDealPingSent, StatusDealPingAccepted)}
	assert.ErrorContains(t, g.ValidateWalk(gap), "sequence gap")

	illegal := []*Event{valid[0], ev(2, TransitionMatch, StatusDealPingSent, StatusMatched)}
	assert.ErrorContains(t, g.ValidateWalk(illegal), "not a declared edge")

	broken := []*Event{valid[0], valid[1], ev(3, TransitionPresentOffer, StatusMatched, StatusBuyerReviewing)}
	assert.ErrorContains(t, g.ValidateWalk(broken), "previous ended")

	afterTerminal := append(append([]*Event{}, valid...), ev(5, TransitionCancel, StatusCancelled, StatusCancelled))
	assert.Error(t, g.ValidateWalk(afterTerminal))
}
