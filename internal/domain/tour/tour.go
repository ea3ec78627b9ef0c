package tour

import (
	"errors"
	"fmt"
	"time"
)

// Party identifies which side of the engagement acted on the tour.
type Party string

const (
	PartyBuyer    Party = "buyer"
	PartySupplier Party = "supplier"
)

// Outcome is the buyer's verdict after a completed tour.
type Outcome string

const (
	OutcomeConfirmed        Outcome = "confirmed"
	OutcomePassed           Outcome = "passed"
	OutcomeAdjustmentNeeded Outcome = "adjustment_needed"
)

// DefaultMaxReschedules bounds how many times a tour may be moved.
const DefaultMaxReschedules = 3

var (
	ErrMissingTime     = errors.New("tour time is required")
	ErrTimeInPast      = errors.New("tour time must be in the future")
	ErrLimitReached    = errors.New("tour reschedule limit reached")
	ErrNoPendingTime   = errors.New("no proposed tour time to accept")
	ErrOwnProposal     = errors.New("proposing party cannot accept its own tour time")
	ErrNotRequested    = errors.New("tour was not requested")
	ErrInvalidOutcome  = errors.New("invalid tour outcome")
	ErrOutcomeRecorded = errors.New("tour outcome already recorded")
	ErrNotCompleted    = errors.New("tour has not been completed")
	ErrInvalidParty    = errors.New("invalid tour party")
)

// ParseOutcome validates a raw outcome value.
func ParseOutcome(raw string) (Outcome, error) {
	switch o := Outcome(raw); o {
	case OutcomeConfirmed, OutcomePassed, OutcomeAdjustmentNeeded:
		return o, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidOutcome, raw)
	}
}

// Schedule is the tour sub-state carried by an engagement.
type Schedule struct {
	PreferredAt       *time.Time `json:"preferredAt,omitempty"`
	ScheduledAt       *time.Time `json:"scheduledAt,omitempty"`
	ProposedAt        *time.Time `json:"proposedAt,omitempty"`
	ProposedBy        Party      `json:"proposedBy,omitempty"`
	RescheduleCount   int        `json:"rescheduleCount"`
	RescheduleReason  string     `json:"rescheduleReason,omitempty"`
	LastRescheduledAt *time.Time `json:"lastRescheduledAt,omitempty"`
	CompletedAt       *time.Time `json:"completedAt,omitempty"`
	Outcome           Outcome    `json:"outcome,omitempty"`
	OutcomeReason     string     `json:"outcomeReason,omitempty"`
	OutcomeAt         *time.Time `json:"outcomeAt,omitempty"`
}

// CanReschedule reports whether another reschedule fits under max.
func (s *Schedule) CanReschedule(max int) bool {
	return s.RescheduleCount < max
}

// Request records the buyer's preferred tour time.
func (s *Schedule) Request(preferred *time.Time, now time.Time) error {
	if preferred == nil || preferred.IsZero() {
		return ErrMissingTime
	}
	if !preferred.After(now) {
		return ErrTimeInPast
	}
	at := preferred.UTC()
	s.PreferredAt = &at
	return nil
}

// Confirm accepts the requested time as the scheduled one.
func (s *Schedule) Confirm() error {
	if s.PreferredAt == nil {
		return ErrNotRequested
	}
	at := *s.PreferredAt
	s.ScheduledAt = &at
	return nil
}

// Propose puts forward an alternate time and consumes one reschedule.
func (s *Schedule) Propose(by Party, at *time.Time, reason string, max int, now time.Time) error {
	if by != PartyBuyer && by != PartySupplier {
		return ErrInvalidParty
	}
	if at == nil || at.IsZero() {
		return ErrMissingTime
	}
	if !at.After(now) {
		return ErrTimeInPast
	}
	if !s.CanReschedule(max) {
		return ErrLimitReached
	}
	proposed := at.UTC()
	s.ProposedAt = &proposed
	s.ProposedBy = by
	s.RescheduleReason = reason
	s.RescheduleCount++
	stamp := now
	s.LastRescheduledAt = &stamp
	return nil
}

// AcceptProposal makes the pending proposal the scheduled time. Only the
// party that did not propose may accept.
func (s *Schedule) AcceptProposal(by Party) error {
	if s.ProposedAt == nil {
		return ErrNoPendingTime
	}
	if by == s.ProposedBy {
		return ErrOwnProposal
	}
	at := *s.ProposedAt
	s.ScheduledAt = &at
	s.ProposedAt = nil
	s.ProposedBy = ""
	return nil
}

// Complete marks the tour as having taken place.
func (s *Schedule) Complete(now time.Time) error {
	if s.ScheduledAt == nil {
		return ErrNotRequested
	}
	stamp := now
	s.CompletedAt = &stamp
	return nil
}

// RecordOutcome stores the buyer's verdict. Adjustment requests may be
// followed by a final verdict; confirmed and passed are final.
func (s *Schedule) RecordOutcome(outcome Outcome, reason string, now time.Time) error {
	if s.CompletedAt == nil {
		return ErrNotCompleted
	}
	if _, err := ParseOutcome(string(outcome)); err != nil {
		return err
	}
	if s.Outcome == OutcomeConfirmed || s.Outcome == OutcomePassed {
		return ErrOutcomeRecorded
	}
	s.Outcome = outcome
	s.OutcomeReason = reason
	stamp := now
	s.OutcomeAt = &stamp
	return nil
}
