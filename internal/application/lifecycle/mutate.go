package lifecycle

import (
	"errors"
	"strings"
	"time"

	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/agreement"
	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/engagement"
	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/onboarding"
	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/tour"
)

// mutate applies the sub-machine part of a transition to next. Status, hold
// and version are settled afterwards by finalize once an edge is chosen.
func (s *Service) mutate(current, next *engagement.Engagement, agr *agreement.Agreement, cmd Command, now time.Time) (mutation, error) {
	m := mutation{agreement: agr, details: map[string]interface{}{}}
	reject := func(kind engagement.ErrorKind, cause error) (mutation, error) {
		return mutation{}, engagement.Wrap(kind, cmd.Transition, current.Status, cause)
	}

	switch cmd.Transition {
	case engagement.TransitionCreateAccount:
		buyerID := strings.TrimSpace(cmd.BuyerID)
		if buyerID == "" {
			buyerID = cmd.Actor.ID
		}
		if buyerID == "" {
			return reject(engagement.KindValidation, errors.New("buyer id is required"))
		}
		if cmd.Actor.Role == engagement.RoleBuyer && buyerID != cmd.Actor.ID {
			return mutation{}, engagement.NewError(engagement.KindUnauthorized, cmd.Transition, current.Status,
				"%s cannot create an account for %s", cmd.Actor, buyerID)
		}
		next.BuyerID = &buyerID
		m.details["buyerId"] = buyerID

	case engagement.TransitionRequestTour:
		if err := next.Tour.Request(cmd.TourTime, now); err != nil {
			return reject(engagement.KindValidation, err)
		}
		m.details["preferredAt"] = next.Tour.PreferredAt

	case engagement.TransitionConfirmTour:
		if err := next.Tour.Confirm(); err != nil {
			return reject(engagement.KindGuardNotMet, err)
		}
		m.details["scheduledAt"] = next.Tour.ScheduledAt

	case engagement.TransitionProposeTourTime, engagement.TransitionRescheduleTour:
		party, _ := cmd.Actor.TourParty()
		if err := next.Tour.Propose(party, cmd.TourTime, cmd.Reason, s.policy.RescheduleMax, now); err != nil {
			if errors.Is(err, tour.ErrLimitReached) {
				return reject(engagement.KindRescheduleLimitExceeded, err)
			}
			return reject(engagement.KindValidation, err)
		}
		m.details["proposedAt"] = next.Tour.ProposedAt
		m.details["rescheduleCount"] = next.Tour.RescheduleCount

	case engagement.TransitionAcceptTourTime:
		party, _ := cmd.Actor.TourParty()
		if err := next.Tour.AcceptProposal(party); err != nil {
			if errors.Is(err, tour.ErrOwnProposal) {
				return mutation{}, engagement.NewError(engagement.KindUnauthorized, cmd.Transition, current.Status, "not your turn to act: %v", err)
			}
			return reject(engagement.KindGuardNotMet, err)
		}
		m.details["scheduledAt"] = next.Tour.ScheduledAt

	case engagement.TransitionCompleteTour:
		if err := next.Tour.Complete(now); err != nil {
			return reject(engagement.KindGuardNotMet, err)
		}

	case engagement.TransitionRecordTourOutcome:
		if err := next.Tour.RecordOutcome(cmd.Outcome, cmd.Reason, now); err != nil {
			if errors.Is(err, tour.ErrInvalidOutcome) {
				return reject(engagement.KindValidation, err)
			}
			return reject(engagement.KindGuardNotMet, err)
		}
		if cmd.Outcome == tour.OutcomeAdjustmentNeeded {
			next.Admin.Flagged = true
			next.Admin.FlagReason = "tour adjustment needed"
			if cmd.Reason != "" {
				next.Admin.FlagReason += ": " + cmd.Reason
			}
		}
		m.details["outcome"] = cmd.Outcome

	case engagement.TransitionSendAgreement:
		if strings.TrimSpace(cmd.Terms) == "" {
			return reject(engagement.KindValidation, errors.New("agreement terms are required"))
		}
		issued := agreement.New(next.EngagementID, current.AgreementVersion+1, cmd.Terms, next.Pricing, now, s.policy.AgreementTTL)
		next.AgreementVersion = issued.Version
		m.agreements = append(m.agreements, issued)
		m.agreement = issued
		m.details["agreementVersion"] = issued.Version
		m.details["agreementExpiresAt"] = issued.ExpiresAt

	case engagement.TransitionSignAgreement:
		if agr == nil {
			return reject(engagement.KindGuardNotMet, errors.New("no agreement has been sent"))
		}
		role, _ := cmd.Actor.SigningRole()
		if cmd.Role != "" && cmd.Role != role {
			return mutation{}, engagement.NewError(engagement.KindUnauthorized, cmd.Transition, current.Status, "%s cannot sign as %s", cmd.Actor.Role, cmd.Role)
		}
		signed := agr.Clone()
		changed, err := signed.Sign(role, now)
		if err != nil {
			return reject(engagement.KindGuardNotMet, err)
		}
		m.agreement = signed
		if !changed {
			m.noop = true
			return m, nil
		}
		m.agreements = append(m.agreements, signed)
		m.details["agreementVersion"] = signed.Version
		m.details["role"] = role
		m.details["agreementStatus"] = signed.Status

	case engagement.TransitionReissueAgreement:
		if agr == nil {
			return reject(engagement.KindGuardNotMet, errors.New("no agreement to reissue"))
		}
		if agr.FullySigned() {
			return reject(engagement.KindGuardNotMet, errors.New("agreement is already fully signed"))
		}
		if strings.TrimSpace(cmd.Terms) == "" {
			return reject(engagement.KindValidation, errors.New("agreement terms are required"))
		}
		if cmd.Pricing != nil {
			if err := cmd.Pricing.Validate(); err != nil {
				return reject(engagement.KindValidation, err)
			}
			next.Pricing = *cmd.Pricing
			m.details["pricingOverride"] = true
		}
		previous := agr.Clone()
		previous.Supersede(now)
		m.agreements = append(m.agreements, previous)
		issued := agreement.New(next.EngagementID, current.AgreementVersion+1, cmd.Terms, next.Pricing, now, s.policy.AgreementTTL)
		next.AgreementVersion = issued.Version
		m.agreements = append(m.agreements, issued)
		m.agreement = issued
		m.details["agreementVersion"] = issued.Version
		m.details["supersededVersion"] = previous.Version
		m.details["supersededStatus"] = previous.Status

	case engagement.TransitionSubmitOnboardingItem:
		changed, err := next.Onboarding.Submit(cmd.Item, now)
		if err != nil {
			return reject(engagement.KindValidation, err)
		}
		if !changed {
			m.noop = true
			return m, nil
		}
		m.details["item"] = cmd.Item
		m.details["remaining"] = itemNames(next.Onboarding.Remaining())

	case engagement.TransitionDecline, engagement.TransitionCancel, engagement.TransitionExpire:
		if agr != nil {
			withdrawn := agr.Clone()
			if withdrawn.Supersede(now) {
				m.agreements = append(m.agreements, withdrawn)
				m.agreement = withdrawn
			}
		}
	}

	if len(m.details) == 0 {
		m.details = nil
	}
	return m, nil
}

func itemNames(items []onboarding.Item) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, string(item))
	}
	return out
}
