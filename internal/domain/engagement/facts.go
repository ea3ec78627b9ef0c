package engagement

import (
	"time"

	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/agreement"
)

// Names available to guard expressions.
const (
	FactHoldExpired          = "hold_expired"
	FactOnboardingComplete   = "onboarding_complete"
	FactAgreementFullySigned = "agreement_fully_signed"
	FactAgreementExpired     = "agreement_expired"
	FactPath                 = "path"
	FactTier                 = "tier"
	FactRescheduleCount      = "reschedule_count"
	FactRescheduleMax        = "reschedule_max"
	FactTourOutcome          = "tour_outcome"
	FactActorRole            = "actor_role"
	FactMatchScore           = "match_score"
	FactMonthlyBuyerTotal    = "monthly_buyer_total"
)

// FactInput gathers what a guard may look at besides the engagement itself.
type FactInput struct {
	Now           time.Time
	HoldDeadline  *time.Time
	Agreement     *agreement.Agreement
	RescheduleMax int
	Actor         Actor
}

// Facts flattens the engagement into guard parameters. The hold is judged by
// the deadline in force before the transition, which callers pass explicitly.
func (e *Engagement) Facts(in FactInput) map[string]interface{} {
	holdExpired := in.HoldDeadline != nil && !in.Now.Before(*in.HoldDeadline)

	fullySigned, agreementExpired := false, false
	if in.Agreement != nil {
		fullySigned = in.Agreement.FullySigned()
		agreementExpired = in.Agreement.IsExpired(in.Now)
	}

	return map[string]interface{}{
		FactHoldExpired:          holdExpired,
		FactOnboardingComplete:   e.Onboarding.Complete(),
		FactAgreementFullySigned: fullySigned,
		FactAgreementExpired:     agreementExpired,
		FactPath:                 string(e.Path),
		FactTier:                 string(e.Tier),
		FactRescheduleCount:      float64(e.Tour.RescheduleCount),
		FactRescheduleMax:        float64(in.RescheduleMax),
		FactTourOutcome:          string(e.Tour.Outcome),
		FactActorRole:            string(in.Actor.Role),
		FactMatchScore:           e.MatchScore,
		FactMonthlyBuyerTotal:    e.Pricing.MonthlyBuyerTotal,
	}
}
