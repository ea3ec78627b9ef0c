package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/agreement"
	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/engagement"
	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/notification"
)

// View is the read model returned to callers: the stored record plus values
// derived at read time.
type View struct {
	*engagement.Engagement
	HoldRemainingSeconds *float64                `json:"holdRemainingSeconds,omitempty"`
	HoldExpired          bool                    `json:"holdExpired"`
	Agreement            *agreement.Agreement    `json:"currentAgreement,omitempty"`
	AvailableTransitions []engagement.Transition `json:"availableTransitions"`
}

// payloadDecided transitions pick their edge from command arguments, so the
// stored facts alone cannot rule them out.
var payloadDecided = map[engagement.Transition]bool{
	engagement.TransitionRecordTourOutcome: true,
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (*engagement.Engagement, error) {
	e, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load engagement: %w", err)
	}
	if e == nil {
		return nil, engagement.NewError(engagement.KindNotFound, "", "", "engagement %s not found", id)
	}
	return e, nil
}

// GetEngagement returns the engagement as seen by actor.
func (s *Service) GetEngagement(ctx context.Context, id uuid.UUID, actor engagement.Actor) (*View, error) {
	e, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !e.CanView(actor) {
		return nil, engagement.NewError(engagement.KindUnauthorized, "", e.Status, "%s is not a party to this engagement", actor)
	}
	now := s.clock.Now()
	agr, err := s.currentAgreement(ctx, e, now)
	if err != nil {
		return nil, err
	}
	v := &View{Engagement: e, Agreement: agr, HoldExpired: e.HoldExpired(now)}
	if left, armed := e.RemainingHold(now); armed {
		secs := left.Seconds()
		v.HoldRemainingSeconds = &secs
	}
	v.AvailableTransitions = s.availableTransitions(e, agr, actor, now)
	return v, nil
}

// GetRemainingHold returns max(0, deadline-now), or nil when no hold is armed.
func (s *Service) GetRemainingHold(ctx context.Context, id uuid.UUID) (*time.Duration, error) {
	e, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	left, armed := e.RemainingHold(s.clock.Now())
	if !armed {
		return nil, nil
	}
	return &left, nil
}

// GetAgreement returns a version of the engagement's agreement with its
// status recomputed at read time. version 0 means the current one.
func (s *Service) GetAgreement(ctx context.Context, id uuid.UUID, version int) (*agreement.Agreement, error) {
	e, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if version == 0 {
		version = e.AgreementVersion
	}
	if version == 0 {
		return nil, engagement.NewError(engagement.KindNotFound, "", e.Status, "no agreement has been sent")
	}
	agr, err := s.repo.GetAgreement(ctx, id, version)
	if err != nil {
		return nil, fmt.Errorf("load agreement: %w", err)
	}
	if agr == nil {
		return nil, engagement.NewError(engagement.KindNotFound, "", e.Status, "agreement version %d not found", version)
	}
	agr.Recompute(s.clock.Now())
	return agr, nil
}

// ListAgreements returns every version, oldest first.
func (s *Service) ListAgreements(ctx context.Context, id uuid.UUID) ([]*agreement.Agreement, error) {
	if _, err := s.load(ctx, id); err != nil {
		return nil, err
	}
	list, err := s.repo.ListAgreements(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	for _, a := range list {
		a.Recompute(now)
	}
	return list, nil
}

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// ListEngagements lists engagements for operators. limit defaults to 50 and
// is capped at 200.
func (s *Service) ListEngagements(ctx context.Context, filter engagement.Filter, limit, offset int) ([]*engagement.Engagement, error) {
	switch {
	case limit <= 0:
		limit = defaultListLimit
	case limit > maxListLimit:
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.List(ctx, filter, limit, offset)
}

// UpdateAdminOverlay edits operator metadata without touching the lifecycle.
func (s *Service) UpdateAdminOverlay(ctx context.Context, id uuid.UUID, actor engagement.Actor, overlay engagement.AdminOverlay) (*engagement.Engagement, error) {
	if actor.Role != engagement.RoleAdmin {
		return nil, engagement.NewError(engagement.KindUnauthorized, "", "", "only admins may edit the overlay")
	}
	if !overlay.Flagged {
		overlay.FlagReason = ""
	}
	release, err := s.locks.acquire(ctx, id, true)
	if err != nil {
		return nil, err
	}
	defer release()

	e, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.now(e)
	if err := s.repo.UpdateAdminOverlay(ctx, id, overlay, now); err != nil {
		return nil, fmt.Errorf("update admin overlay: %w", err)
	}
	e.Admin = overlay
	e.UpdatedAt = now
	s.logger.Info().Str("engagement_id", id.String()).Str("actor", actor.String()).Bool("flagged", overlay.Flagged).Msg("admin overlay updated")
	return e, nil
}

// ListNotifications returns the recorded delivery outcomes for an engagement.
func (s *Service) ListNotifications(ctx context.Context, id uuid.UUID, actor engagement.Actor) ([]*notification.Notification, error) {
	if actor.Role != engagement.RoleAdmin {
		return nil, engagement.NewError(engagement.KindUnauthorized, "", "", "only admins may read delivery records")
	}
	if _, err := s.load(ctx, id); err != nil {
		return nil, err
	}
	if s.effects.journal == nil {
		return []*notification.Notification{}, nil
	}
	return s.effects.journal.ListByEngagement(ctx, id)
}

func (s *Service) currentAgreement(ctx context.Context, e *engagement.Engagement, now time.Time) (*agreement.Agreement, error) {
	if e.AgreementVersion == 0 {
		return nil, nil
	}
	agr, err := s.repo.GetAgreement(ctx, e.EngagementID, e.AgreementVersion)
	if err != nil {
		return nil, fmt.Errorf("load agreement: %w", err)
	}
	if agr != nil {
		agr.Recompute(now)
	}
	return agr, nil
}

// availableTransitions lists what actor could request right now. It is a
// hint for presentation; Apply remains the authority.
func (s *Service) availableTransitions(e *engagement.Engagement, agr *agreement.Agreement, actor engagement.Actor, now time.Time) []engagement.Transition {
	out := []engagement.Transition{}
	if e.Status.IsTerminal() || !e.IsParty(actor) {
		return out
	}
	var holdDeadline *time.Time
	if e.Status.HasHold() {
		holdDeadline = e.HoldExpiresAt
	}
	facts := e.Facts(engagement.FactInput{Now: now, HoldDeadline: holdDeadline, Agreement: agr, RescheduleMax: s.policy.RescheduleMax, Actor: actor})

	for _, t := range s.graph.Transitions(e.Status) {
		edges := authorized(s.withinRescheduleLimit(e, s.graph.Outgoing(e.Status, t)), actor.Role)
		for _, edge := range edges {
			ok, err := s.guards.evaluate(edge.Guard, facts)
			if err == nil && (ok || (payloadDecided[t] && facts[engagement.FactHoldExpired] != true)) {
				out = append(out, t)
				break
			}
		}
	}
	return out
}
