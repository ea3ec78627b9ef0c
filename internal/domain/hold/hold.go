package hold

import "time"

// Phase groups hold-bearing statuses that share one deadline. Moving between
// statuses of the same phase keeps the deadline; entering a new phase arms a
// fresh one.
type Phase string

const (
	PhaseNone        Phase = ""
	PhaseOffer       Phase = "OFFER"
	PhaseAcceptance  Phase = "ACCEPTANCE"
	PhaseReservation Phase = "RESERVATION"
)

const (
	DefaultOfferWindow     = 24 * time.Hour
	DefaultAcceptanceHold  = 72 * time.Hour
	DefaultReservationHold = 72 * time.Hour
)

// Policy holds the configured duration of every hold phase.
type Policy struct {
	OfferWindow     time.Duration
	AcceptanceHold  time.Duration
	ReservationHold time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		OfferWindow:     DefaultOfferWindow,
		AcceptanceHold:  DefaultAcceptanceHold,
		ReservationHold: DefaultReservationHold,
	}
}

// Duration returns the hold length for a phase, or zero when the phase has no hold.
func (p Policy) Duration(phase Phase) time.Duration {
	switch phase {
	case PhaseOffer:
		return p.OfferWindow
	case PhaseAcceptance:
		return p.AcceptanceHold
	case PhaseReservation:
		return p.ReservationHold
	default:
		return 0
	}
}

// Next computes the hold deadline after moving from one phase to another.
// A nil result means the engagement carries no hold.
func (p Policy) Next(from, to Phase, current *time.Time, now time.Time) *time.Time {
	if to == PhaseNone {
		return nil
	}
	if from == to && current != nil {
		deadline := *current
		return &deadline
	}
	deadline := now.Add(p.Duration(to)).UTC()
	return &deadline
}

// Expired reports whether the deadline has passed. Deadlines are exclusive:
// a hold expiring at T is already expired at T.
func Expired(deadline *time.Time, now time.Time) bool {
	return deadline != nil && !now.Before(*deadline)
}

// Remaining returns the time left on the hold and whether a hold is armed at all.
// Expired holds report zero.
func Remaining(deadline *time.Time, now time.Time) (time.Duration, bool) {
	if deadline == nil {
		return 0, false
	}
	left := deadline.Sub(now)
	if left < 0 {
		left = 0
	}
	return left, true
}
