package tour

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 4, 10, 9, 0, 0, 0, time.UTC)

func at(d time.Duration) *time.Time {
	t := now.Add(d)
	return &t
}

func TestSchedule_RequestAndConfirm(t *testing.T) {
	var s Schedule
	assert.ErrorIs(t, s.Request(nil, now), ErrMissingTime)
	assert.ErrorIs(t, s.Request(at(-time.Hour), now), ErrTimeInPast)
	assert.ErrorIs(t, s.Confirm(), ErrNotRequested)

	require.NoError(t, s.Request(at(48*time.Hour), now))
	require.NoError(t, s.Confirm())
	assert.Equal(t, *at(48 * time.Hour), *s.ScheduledAt)
}

func TestSchedule_ProposeRespectsLimit(t *testing.T) {
	s := Schedule{}
	require.NoError(t, s.Request(at(24*time.Hour), now))
	require.NoError(t, s.Confirm())

	for i := 0; i < 2; i++ {
		require.NoError(t, s.Propose(PartySupplier, at(time.Duration(30+i)*time.Hour), "conflict", 2, now))
	}
	assert.Equal(t, 2, s.RescheduleCount)
	assert.False(t, s.CanReschedule(2))
	assert.ErrorIs(t, s.Propose(PartyBuyer, at(50*time.Hour), "", 2, now), ErrLimitReached)
	assert.Equal(t, 2, s.RescheduleCount)
}

func TestSchedule_AcceptProposal(t *testing.T) {
	s := Schedule{}
	assert.ErrorIs(t, s.AcceptProposal(PartyBuyer), ErrNoPendingTime)

	require.NoError(t, s.Propose(PartySupplier, at(30*time.Hour), "busy", 3, now))
	assert.ErrorIs(t, s.AcceptProposal(PartySupplier), ErrOwnProposal)

	require.NoError(t, s.AcceptProposal(PartyBuyer))
	assert.Equal(t, *at(30 * time.Hour), *s.ScheduledAt)
	assert.Nil(t, s.ProposedAt)
	assert.Empty(t, s.ProposedBy)
}

func TestSchedule_RecordOutcome(t *testing.T) {
	s := Schedule{}
	assert.ErrorIs(t, s.RecordOutcome(OutcomeConfirmed, "", now), ErrNotCompleted)

	require.NoError(t, s.Request(at(time.Hour), now))
	require.NoError(t, s.Confirm())
	require.NoError(t, s.Complete(now.Add(2*time.Hour)))

	assert.ErrorIs(t, s.RecordOutcome("maybe", "", now), ErrInvalidOutcome)
	require.NoError(t, s.RecordOutcome(OutcomeAdjustmentNeeded, "needs racking", now))
	require.NoError(t, s.RecordOutcome(OutcomeConfirmed, "", now))
	assert.ErrorIs(t, s.RecordOutcome(OutcomePassed, "", now), ErrOutcomeRecorded)
}

func TestParseOutcome(t *testing.T) {
	o, err := ParseOutcome("passed")
	require.NoError(t, err)
	assert.Equal(t, OutcomePassed, o)

	_, err = ParseOutcome("")
	assert.ErrorIs(t, err, ErrInvalidOutcome)
}
