package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/agreement"
	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/engagement"
	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/onboarding"
	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/pricing"
	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/tour"
)

func (s *Service) simple(ctx context.Context, id uuid.UUID, t engagement.Transition, actor engagement.Actor, expected int64) (*Result, error) {
	return s.Apply(ctx, Command{EngagementID: id, Transition: t, Actor: actor, ExpectedVersion: expected})
}

func (s *Service) AcceptDealPing(ctx context.Context, id uuid.UUID, actor engagement.Actor, expected int64) (*Result, error) {
	return s.simple(ctx, id, engagement.TransitionAcceptDealPing, actor, expected)
}

// Decline ends the engagement on behalf of the buyer or supplier. From
// deal_ping_sent it is the deal ping decline.
func (s *Service) Decline(ctx context.Context, id uuid.UUID, actor engagement.Actor, reason string, expected int64) (*Result, error) {
	return s.Apply(ctx, Command{EngagementID: id, Transition: engagement.TransitionDecline, Actor: actor, Reason: reason, ExpectedVersion: expected})
}

func (s *Service) MarkMatched(ctx context.Context, id uuid.UUID, actor engagement.Actor, expected int64) (*Result, error) {
	return s.simple(ctx, id, engagement.TransitionMatch, actor, expected)
}

func (s *Service) PresentOffer(ctx context.Context, id uuid.UUID, actor engagement.Actor, expected int64) (*Result, error) {
	return s.simple(ctx, id, engagement.TransitionPresentOffer, actor, expected)
}

func (s *Service) AcceptOffer(ctx context.Context, id uuid.UUID, actor engagement.Actor, expected int64) (*Result, error) {
	return s.simple(ctx, id, engagement.TransitionAcceptOffer, actor, expected)
}

// CreateAccount attaches the buyer account. buyerID defaults to the actor id;
// a buyer actor may only bind itself.
func (s *Service) CreateAccount(ctx context.Context, id uuid.UUID, actor engagement.Actor, buyerID string, expected int64) (*Result, error) {
	return s.Apply(ctx, Command{EngagementID: id, Transition: engagement.TransitionCreateAccount, Actor: actor, BuyerID: buyerID, ExpectedVersion: expected})
}

func (s *Service) SignGuarantee(ctx context.Context, id uuid.UUID, actor engagement.Actor, expected int64) (*Result, error) {
	return s.simple(ctx, id, engagement.TransitionSignGuarantee, actor, expected)
}

func (s *Service) RevealAddress(ctx context.Context, id uuid.UUID, actor engagement.Actor, expected int64) (*Result, error) {
	return s.simple(ctx, id, engagement.TransitionRevealAddress, actor, expected)
}

func (s *Service) RequestTour(ctx context.Context, id uuid.UUID, actor engagement.Actor, preferred time.Time, expected int64) (*Result, error) {
	return s.Apply(ctx, Command{EngagementID: id, Transition: engagement.TransitionRequestTour, Actor: actor, TourTime: &preferred, ExpectedVersion: expected})
}

// ConfirmTour either accepts the requested time or, when confirmed is false,
// proposes the alternate time in proposed.
func (s *Service) ConfirmTour(ctx context.Context, id uuid.UUID, actor engagement.Actor, confirmed bool, proposed *time.Time, reason string, expected int64) (*Result, error) {
	if confirmed {
		return s.simple(ctx, id, engagement.TransitionConfirmTour, actor, expected)
	}
	return s.Apply(ctx, Command{EngagementID: id, Transition: engagement.TransitionProposeTourTime, Actor: actor, TourTime: proposed, Reason: reason, ExpectedVersion: expected})
}

// RescheduleTour proposes a new time for a confirmed tour, or counter-proposes
// while a proposal is pending.
func (s *Service) RescheduleTour(ctx context.Context, id uuid.UUID, actor engagement.Actor, newTime time.Time, reason string, expected int64) (*Result, error) {
	return s.Apply(ctx, Command{EngagementID: id, Transition: engagement.TransitionRescheduleTour, Actor: actor, TourTime: &newTime, Reason: reason, ExpectedVersion: expected})
}

func (s *Service) AcceptTourTime(ctx context.Context, id uuid.UUID, actor engagement.Actor, expected int64) (*Result, error) {
	return s.simple(ctx, id, engagement.TransitionAcceptTourTime, actor, expected)
}

func (s *Service) CompleteTour(ctx context.Context, id uuid.UUID, actor engagement.Actor, expected int64) (*Result, error) {
	return s.simple(ctx, id, engagement.TransitionCompleteTour, actor, expected)
}

func (s *Service) RecordTourOutcome(ctx context.Context, id uuid.UUID, actor engagement.Actor, outcome tour.Outcome, reason string, expected int64) (*Result, error) {
	return s.Apply(ctx, Command{EngagementID: id, Transition: engagement.TransitionRecordTourOutcome, Actor: actor, Outcome: outcome, Reason: reason, ExpectedVersion: expected})
}

func (s *Service) RequestInstantBook(ctx context.Context, id uuid.UUID, actor engagement.Actor, expected int64) (*Result, error) {
	return s.simple(ctx, id, engagement.TransitionRequestInstantBook, actor, expected)
}

func (s *Service) ConfirmInstantBook(ctx context.Context, id uuid.UUID, actor engagement.Actor, expected int64) (*Result, error) {
	return s.simple(ctx, id, engagement.TransitionConfirmInstantBook, actor, expected)
}

// SendAgreement renders the terms outside the engagement lock, then commits
// against the version the rendering was based on.
func (s *Service) SendAgreement(ctx context.Context, id uuid.UUID, actor engagement.Actor) (*Result, error) {
	return s.issueAgreement(ctx, id, actor, engagement.TransitionSendAgreement, engagement.StatusBuyerConfirmed, nil)
}

// ReissueAgreement supersedes the current agreement with version N+1,
// optionally under new pricing.
func (s *Service) ReissueAgreement(ctx context.Context, id uuid.UUID, actor engagement.Actor, override *pricing.Snapshot) (*Result, error) {
	return s.issueAgreement(ctx, id, actor, engagement.TransitionReissueAgreement, engagement.StatusAgreementSent, override)
}

func (s *Service) issueAgreement(ctx context.Context, id uuid.UUID, actor engagement.Actor, t engagement.Transition, from engagement.Status, override *pricing.Snapshot) (*Result, error) {
	snapshot, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load engagement: %w", err)
	}
	if snapshot == nil {
		return nil, engagement.NewError(engagement.KindNotFound, t, "", "engagement %s not found", id)
	}
	cmd := Command{EngagementID: id, Transition: t, Actor: actor, ExpectedVersion: snapshot.Version, Pricing: override}
	if snapshot.Status != from {
		// Let Apply report the precise rejection without rendering anything.
		return s.Apply(ctx, cmd)
	}

	terms, err := s.render(ctx, snapshot, override)
	if err != nil {
		return nil, err
	}
	cmd.Terms = terms
	return s.Apply(ctx, cmd)
}

func (s *Service) render(ctx context.Context, e *engagement.Engagement, override *pricing.Snapshot) (string, error) {
	if s.renderer == nil {
		return "", fmt.Errorf("no agreement renderer configured")
	}
	in := agreement.RenderInput{
		EngagementID: e.EngagementID,
		Version:      e.AgreementVersion + 1,
		ListingID:    e.ListingID,
		SupplierID:   e.SupplierID,
		Pricing:      e.Pricing,
		SentAt:       s.clock.Now(),
	}
	if override != nil {
		in.Pricing = *override
	}
	if e.BuyerID != nil {
		in.BuyerID = *e.BuyerID
	}
	in.ExpiresAt = in.SentAt.Add(s.policy.AgreementTTL)
	terms, err := s.renderer.Render(ctx, in)
	if err != nil {
		return "", fmt.Errorf("render agreement: %w", err)
	}
	return terms, nil
}

// SignAgreement signs the current agreement for the actor's side. role must
// match the actor when given. Repeat signatures succeed without a new event.
func (s *Service) SignAgreement(ctx context.Context, id uuid.UUID, actor engagement.Actor, role agreement.Role, expected int64) (*Result, error) {
	return s.Apply(ctx, Command{EngagementID: id, Transition: engagement.TransitionSignAgreement, Actor: actor, Role: role, ExpectedVersion: expected})
}

func (s *Service) StartOnboarding(ctx context.Context, id uuid.UUID, actor engagement.Actor, expected int64) (*Result, error) {
	return s.simple(ctx, id, engagement.TransitionStartOnboarding, actor, expected)
}

func (s *Service) SubmitOnboardingItem(ctx context.Context, id uuid.UUID, actor engagement.Actor, item onboarding.Item, expected int64) (*Result, error) {
	return s.Apply(ctx, Command{EngagementID: id, Transition: engagement.TransitionSubmitOnboardingItem, Actor: actor, Item: item, ExpectedVersion: expected})
}

func (s *Service) Activate(ctx context.Context, id uuid.UUID, actor engagement.Actor, expected int64) (*Result, error) {
	return s.simple(ctx, id, engagement.TransitionActivate, actor, expected)
}

func (s *Service) CompleteEngagement(ctx context.Context, id uuid.UUID, actor engagement.Actor, expected int64) (*Result, error) {
	return s.simple(ctx, id, engagement.TransitionComplete, actor, expected)
}

func (s *Service) Cancel(ctx context.Context, id uuid.UUID, actor engagement.Actor, reason string, expected int64) (*Result, error) {
	return s.Apply(ctx, Command{EngagementID: id, Transition: engagement.TransitionCancel, Actor: actor, Reason: reason, ExpectedVersion: expected})
}

// Expire fires the system expiry. With wait=false a busy engagement yields
// ErrBusy immediately so sweeps never queue behind user traffic.
func (s *Service) Expire(ctx context.Context, id uuid.UUID, expected int64, wait bool) (*Result, error) {
	return s.Apply(ctx, Command{
		EngagementID:    id,
		Transition:      engagement.TransitionExpire,
		Actor:           engagement.System(),
		ExpectedVersion: expected,
		NoWait:          !wait,
	})
}
