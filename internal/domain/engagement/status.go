package engagement

import (
	"fmt"

	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/hold"
)

// Status is the closed set of lifecycle states.
type Status string

const (
	StatusDealPingSent         Status = "deal_ping_sent"
	StatusDealPingAccepted     Status = "deal_ping_accepted"
	StatusDealPingExpired      Status = "deal_ping_expired"
	StatusDealPingDeclined     Status = "deal_ping_declined"
	StatusMatched              Status = "matched"
	StatusBuyerReviewing       Status = "buyer_reviewing"
	StatusBuyerAccepted        Status = "buyer_accepted"
	StatusAccountCreated       Status = "account_created"
	StatusGuaranteeSigned      Status = "guarantee_signed"
	StatusAddressRevealed      Status = "address_revealed"
	StatusTourRequested        Status = "tour_requested"
	StatusTourConfirmed        Status = "tour_confirmed"
	StatusTourRescheduled      Status = "tour_rescheduled"
	StatusTourCompleted        Status = "tour_completed"
	StatusInstantBookRequested Status = "instant_book_requested"
	StatusBuyerConfirmed       Status = "buyer_confirmed"
	StatusAgreementSent        Status = "agreement_sent"
	StatusAgreementSigned      Status = "agreement_signed"
	StatusOnboarding           Status = "onboarding"
	StatusActive               Status = "active"
	StatusCompleted            Status = "completed"
	StatusDeclinedByBuyer      Status = "declined_by_buyer"
	StatusDeclinedBySupplier   Status = "declined_by_supplier"
	StatusCancelled            Status = "cancelled"
	StatusExpired              Status = "expired"
)

var allStatuses = []Status{
	StatusDealPingSent,
	StatusDealPingAccepted,
	StatusDealPingExpired,
	StatusDealPingDeclined,
	StatusMatched,
	StatusBuyerReviewing,
	StatusBuyerAccepted,
	StatusAccountCreated,
	StatusGuaranteeSigned,
	StatusAddressRevealed,
	StatusTourRequested,
	StatusTourConfirmed,
	StatusTourRescheduled,
	StatusTourCompleted,
	StatusInstantBookRequested,
	StatusBuyerConfirmed,
	StatusAgreementSent,
	StatusAgreementSigned,
	StatusOnboarding,
	StatusActive,
	StatusCompleted,
	StatusDeclinedByBuyer,
	StatusDeclinedBySupplier,
	StatusCancelled,
	StatusExpired,
}

var terminalStatuses = map[Status]bool{
	StatusDealPingExpired:    true,
	StatusDealPingDeclined:   true,
	StatusCompleted:          true,
	StatusDeclinedByBuyer:    true,
	StatusDeclinedBySupplier: true,
	StatusCancelled:          true,
	StatusExpired:            true,
}

var holdPhases = map[Status]hold.Phase{
	StatusDealPingSent:     hold.PhaseOffer,
	StatusDealPingAccepted: hold.PhaseAcceptance,
	StatusBuyerAccepted:    hold.PhaseReservation,
	StatusAccountCreated:   hold.PhaseReservation,
	StatusGuaranteeSigned:  hold.PhaseReservation,
	StatusAddressRevealed:  hold.PhaseReservation,
	StatusTourRequested:    hold.PhaseReservation,
	StatusTourConfirmed:    hold.PhaseReservation,
	StatusTourRescheduled:  hold.PhaseReservation,
	StatusTourCompleted:    hold.PhaseReservation,
}

// AllStatuses returns every status in lifecycle order.
func AllStatuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.IsValid() {
		return "", fmt.Errorf("unknown status %q", raw)
	}
	return s, nil
}

func (s Status) IsValid() bool {
	for _, known := range allStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition may leave s.
func (s Status) IsTerminal() bool {
	return terminalStatuses[s]
}

// HoldPhase returns the hold phase of s, or hold.PhaseNone outside the hold set.
func (s Status) HoldPhase() hold.Phase {
	return holdPhases[s]
}

// HasHold reports whether s carries a hold deadline.
func (s Status) HasHold() bool {
	return s.HoldPhase() != hold.PhaseNone
}

// HoldStatuses lists the statuses that carry a hold, for the expiry sweep.
func HoldStatuses() []Status {
	var out []Status
	for _, s := range allStatuses {
		if s.HasHold() {
			out = append(out, s)
		}
	}
	return out
}

// IsTermination reports terminal states reached by leaving the happy path.
func (s Status) IsTermination() bool {
	return s.IsTerminal() && s != StatusCompleted
}

// BeforeActive is true for the live states from which decline and cancel are allowed.
func (s Status) BeforeActive() bool {
	return !s.IsTerminal() && s != StatusActive
}
