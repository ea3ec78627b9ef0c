package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/agreement"
	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/engagement"
	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/hold"
	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/notification"
	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/onboarding"
	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/pricing"
	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/tour"
	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/pkg/clock"
)

// Policy carries the tunable lifecycle rules.
type Policy struct {
	Hold          hold.Policy
	AgreementTTL  time.Duration
	RescheduleMax int
	ExtraGuards   map[engagement.Transition]string
}

func DefaultPolicy() Policy {
	return Policy{
		Hold:          hold.DefaultPolicy(),
		AgreementTTL:  agreement.DefaultTTL,
		RescheduleMax: tour.DefaultMaxReschedules,
	}
}

// Options wires the collaborators of the lifecycle service. Nil
// collaborators are skipped.
type Options struct {
	Policy         Policy
	Renderer       agreement.Renderer
	Dispatcher     notification.Dispatcher
	SSEHub         notification.SSEHub
	Journal        notification.Repository
	Recorder       Recorder
	Clock          clock.Clock
	NotifyAttempts int
	NotifyBackoff  time.Duration
	NotifyTimeout  time.Duration
}

// Service is the state transition engine. Every mutation of an engagement
// goes through Apply.
type Service struct {
	repo     engagement.Repository
	graph    *engagement.Graph
	guards   *guardEvaluator
	locks    *keyedLocker
	policy   Policy
	renderer agreement.Renderer
	effects  *effects
	recorder Recorder
	clock    clock.Clock
	logger   zerolog.Logger
}

// NewService creates the lifecycle service.
func NewService(repo engagement.Repository, opts Options, logger zerolog.Logger) (*Service, error) {
	if opts.Policy.RescheduleMax <= 0 {
		opts.Policy.RescheduleMax = tour.DefaultMaxReschedules
	}
	if opts.Policy.AgreementTTL <= 0 {
		opts.Policy.AgreementTTL = agreement.DefaultTTL
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	if opts.NotifyAttempts <= 0 {
		opts.NotifyAttempts = 3
	}
	if opts.NotifyBackoff <= 0 {
		opts.NotifyBackoff = 500 * time.Millisecond
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = 10 * time.Second
	}

	graph := engagement.NewGraph(opts.Policy.ExtraGuards)
	guards, err := newGuardEvaluator(graph.Guards())
	if err != nil {
		return nil, err
	}

	logger = logger.With().Str("service", "lifecycle").Logger()
	return &Service{
		repo:     repo,
		graph:    graph,
		guards:   guards,
		locks:    newKeyedLocker(),
		policy:   opts.Policy,
		renderer: opts.Renderer,
		effects: &effects{
			dispatcher:  opts.Dispatcher,
			hub:         opts.SSEHub,
			journal:     opts.Journal,
			recorder:    opts.Recorder,
			logger:      logger,
			maxAttempts: opts.NotifyAttempts,
			backoff:     opts.NotifyBackoff,
			timeout:     opts.NotifyTimeout,
		},
		recorder: opts.Recorder,
		clock:    opts.Clock,
		logger:   logger,
	}, nil
}

// Graph exposes the transition table the service enforces.
func (s *Service) Graph() *engagement.Graph {
	return s.graph
}

// Policy returns the effective policy.
func (s *Service) Policy() Policy {
	return s.policy
}

// WaitForEffects blocks until queued notifications have been attempted.
func (s *Service) WaitForEffects() {
	s.effects.wait()
}

// Command is one requested transition. Fields beyond the first four are
// arguments for specific transitions.
type Command struct {
	EngagementID    uuid.UUID
	Transition      engagement.Transition
	Actor           engagement.Actor
	// ExpectedVersion is the version the caller acted on. Zero means the
	// version read before queueing for the engagement lock.
	ExpectedVersion int64

	Reason   string
	TourTime *time.Time
	Outcome  tour.Outcome
	Role     agreement.Role
	Item     onboarding.Item
	BuyerID  string
	Pricing  *pricing.Snapshot
	Terms    string
	Payload  json.RawMessage

	// NoWait fails with ErrBusy instead of queueing behind another transition.
	NoWait bool
}

// Result is the committed outcome of a command. Event is nil when the
// command was an idempotent repeat that changed nothing.
type Result struct {
	Engagement *engagement.Engagement
	Event      *engagement.Event
	Agreement  *agreement.Agreement
}

// Changed reports whether the command produced a new version.
func (r *Result) Changed() bool {
	return r.Event != nil
}

// CreateEngagement opens an engagement on behalf of the match producer.
func (s *Service) CreateEngagement(ctx context.Context, in engagement.MatchInput, actor engagement.Actor) (*engagement.Engagement, error) {
	start := time.Now()
	if actor.Role != engagement.RoleSystem && actor.Role != engagement.RoleAdmin {
		return nil, engagement.NewError(engagement.KindUnauthorized, engagement.TransitionCreate, "", "%s may not create engagements", actor.Role)
	}
	if err := in.Validate(); err != nil {
		return nil, engagement.Wrap(engagement.KindValidation, engagement.TransitionCreate, "", err)
	}

	now := s.clock.Now()
	e := engagement.New(in, s.policy.Hold, now)
	payload, err := json.Marshal(map[string]interface{}{
		"listingId":     e.ListingID,
		"buyerNeedId":   e.BuyerNeedID,
		"path":          e.Path,
		"tier":          e.Tier,
		"holdExpiresAt": e.HoldExpiresAt,
	})
	if err != nil {
		return nil, err
	}
	event := engagement.NewEvent(e, engagement.TransitionCreate, actor, "", payload, now)
	if err := s.repo.Create(ctx, e, event); err != nil {
		s.recorder.ObserveTransition(string(engagement.TransitionCreate), "error", time.Since(start))
		return nil, fmt.Errorf("create engagement: %w", err)
	}
	s.recorder.ObserveTransition(string(engagement.TransitionCreate), "ok", time.Since(start))

	s.logger.Info().
		Str("engagement_id", e.EngagementID.String()).
		Str("supplier_id", e.SupplierID).
		Str("path", string(e.Path)).
		Msg("engagement created")
	s.effects.publish(e, event)
	return e, nil
}

// Apply runs one transition: checks preconditions in order, mutates a copy,
// and commits engagement, event and agreement writes as one unit.
func (s *Service) Apply(ctx context.Context, cmd Command) (*Result, error) {
	start := time.Now()
	res, err := s.apply(ctx, cmd)
	s.recorder.ObserveTransition(string(cmd.Transition), resultLabel(err), time.Since(start))
	if err != nil {
		evt := s.logger.Debug()
		if engagement.KindOf(err) == "" && !errors.Is(err, ErrBusy) {
			evt = s.logger.Error()
		}
		evt.Err(err).
			Str("engagement_id", cmd.EngagementID.String()).
			Str("transition", string(cmd.Transition)).
			Str("actor", cmd.Actor.String()).
			Msg("transition rejected")
		return nil, err
	}
	if res.Event != nil {
		s.logger.Info().
			Str("engagement_id", cmd.EngagementID.String()).
			Str("transition", string(cmd.Transition)).
			Str("from", string(res.Event.FromStatus)).
			Str("to", string(res.Event.ToStatus)).
			Int64("version", res.Engagement.Version).
			Str("actor", cmd.Actor.String()).
			Msg("engagement transitioned")
		s.effects.publish(res.Engagement, res.Event)
	}
	return res, nil
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if kind := engagement.KindOf(err); kind != "" {
		return strings.ToLower(string(kind))
	}
	if errors.Is(err, ErrBusy) {
		return "busy"
	}
	return "error"
}

type mutation struct {
	agreements []*agreement.Agreement
	agreement  *agreement.Agreement
	details    map[string]interface{}
	noop       bool
}

func (s *Service) apply(ctx context.Context, cmd Command) (*Result, error) {
	if cmd.EngagementID == uuid.Nil {
		return nil, engagement.NewError(engagement.KindValidation, cmd.Transition, "", "engagement id is required")
	}
	if len(cmd.Payload) > 0 && !json.Valid(cmd.Payload) {
		return nil, engagement.NewError(engagement.KindValidation, cmd.Transition, "", "payload must be valid JSON")
	}

	if cmd.ExpectedVersion == 0 {
		observed, err := s.repo.GetByID(ctx, cmd.EngagementID)
		if err != nil {
			return nil, fmt.Errorf("load engagement: %w", err)
		}
		if observed == nil {
			return nil, engagement.NewError(engagement.KindNotFound, cmd.Transition, "", "engagement %s not found", cmd.EngagementID)
		}
		cmd.ExpectedVersion = observed.Version
	}

	release, err := s.locks.acquire(ctx, cmd.EngagementID, !cmd.NoWait)
	if err != nil {
		return nil, err
	}
	defer release()

	current, err := s.repo.GetByID(ctx, cmd.EngagementID)
	if err != nil {
		return nil, fmt.Errorf("load engagement: %w", err)
	}
	if current == nil {
		return nil, engagement.NewError(engagement.KindNotFound, cmd.Transition, "", "engagement %s not found", cmd.EngagementID)
	}
	if cmd.ExpectedVersion != current.Version {
		return nil, engagement.NewError(engagement.KindStaleState, cmd.Transition, current.Status, "expected version %d, found %d", cmd.ExpectedVersion, current.Version)
	}
	if current.Status.IsTerminal() {
		return nil, engagement.NewError(engagement.KindInvalidTransition, cmd.Transition, current.Status, "engagement is already %s", current.Status)
	}

	edges := s.graph.Outgoing(current.Status, cmd.Transition)
	if len(edges) == 0 {
		return nil, engagement.NewError(engagement.KindInvalidTransition, cmd.Transition, current.Status, "no such transition from %s", current.Status)
	}
	edges = s.withinRescheduleLimit(current, edges)
	if len(edges) == 0 {
		return nil, engagement.NewError(engagement.KindRescheduleLimitExceeded, cmd.Transition, current.Status,
			"tour already rescheduled %d of %d times", current.Tour.RescheduleCount, s.policy.RescheduleMax)
	}
	edges = authorized(edges, cmd.Actor.Role)
	if len(edges) == 0 {
		return nil, engagement.NewError(engagement.KindUnauthorized, cmd.Transition, current.Status, "%s may not %s", cmd.Actor.Role, cmd.Transition)
	}
	if !current.IsParty(cmd.Actor) {
		return nil, engagement.NewError(engagement.KindUnauthorized, cmd.Transition, current.Status, "%s is not a party to this engagement", cmd.Actor)
	}

	now := s.now(current)
	var agr *agreement.Agreement
	if current.AgreementVersion > 0 {
		agr, err = s.repo.GetAgreement(ctx, current.EngagementID, current.AgreementVersion)
		if err != nil {
			return nil, fmt.Errorf("load agreement: %w", err)
		}
		if agr != nil {
			agr.Recompute(now)
		}
	}

	next := current.Clone()
	m, err := s.mutate(current, next, agr, cmd, now)
	if err != nil {
		return nil, err
	}
	if m.noop {
		return &Result{Engagement: current, Agreement: m.agreement}, nil
	}

	var holdDeadline *time.Time
	if current.Status.HasHold() {
		holdDeadline = current.HoldExpiresAt
	}
	facts := next.Facts(engagement.FactInput{
		Now:           now,
		HoldDeadline:  holdDeadline,
		Agreement:     m.agreement,
		RescheduleMax: s.policy.RescheduleMax,
		Actor:         cmd.Actor,
	})
	edge, err := s.choose(edges, facts, current, next, cmd)
	if err != nil {
		return nil, err
	}

	s.finalize(current, next, edge, cmd, now)
	payload, err := eventPayload(cmd, next, m)
	if err != nil {
		return nil, err
	}
	event := engagement.NewEvent(next, cmd.Transition, cmd.Actor, current.Status, payload, now)

	commit := &engagement.Commit{
		Engagement:      next,
		ExpectedVersion: current.Version,
		Event:           event,
		Agreements:      m.agreements,
	}
	if next.Admin != current.Admin {
		reason := next.Admin.FlagReason
		commit.Flag = &reason
	}
	if err := s.repo.Commit(ctx, commit); err != nil {
		if errors.Is(err, engagement.ErrStaleState) {
			return nil, engagement.Wrap(engagement.KindStaleState, cmd.Transition, current.Status, err)
		}
		return nil, fmt.Errorf("commit %s: %w", cmd.Transition, err)
	}
	return &Result{Engagement: next, Event: event, Agreement: m.agreement}, nil
}

// now never runs behind the last committed change so timelines stay ordered.
func (s *Service) now(current *engagement.Engagement) time.Time {
	now := s.clock.Now()
	if now.Before(current.UpdatedAt) {
		return current.UpdatedAt
	}
	return now
}

func (s *Service) withinRescheduleLimit(e *engagement.Engagement, edges []engagement.Edge) []engagement.Edge {
	out := edges[:0:0]
	for _, edge := range edges {
		if edge.Reschedule && !e.Tour.CanReschedule(s.policy.RescheduleMax) {
			continue
		}
		out = append(out, edge)
	}
	return out
}

func authorized(edges []engagement.Edge, role engagement.ActorRole) []engagement.Edge {
	out := edges[:0:0]
	for _, edge := range edges {
		if edge.Allows(role) {
			out = append(out, edge)
		}
	}
	return out
}

func (s *Service) choose(edges []engagement.Edge, facts map[string]interface{}, current, next *engagement.Engagement, cmd Command) (engagement.Edge, error) {
	for _, edge := range edges {
		ok, err := s.guards.evaluate(edge.Guard, facts)
		if err != nil {
			return engagement.Edge{}, fmt.Errorf("evaluate guard %q: %w", edge.Guard, err)
		}
		if ok {
			return edge, nil
		}
	}
	return engagement.Edge{}, engagement.NewError(engagement.KindGuardNotMet, cmd.Transition, current.Status, "%s", guardReason(facts, next))
}

// guardReason names the most specific precondition that failed.
func guardReason(facts map[string]interface{}, next *engagement.Engagement) string {
	switch {
	case facts[engagement.FactHoldExpired] == true:
		return "hold expired"
	case facts[engagement.FactAgreementExpired] == true:
		return "agreement expired; a new version must be issued"
	case !next.Onboarding.Complete() && next.Status == engagement.StatusOnboarding:
		remaining := make([]string, 0, 3)
		for _, item := range next.Onboarding.Remaining() {
			remaining = append(remaining, string(item))
		}
		return "onboarding incomplete: " + strings.Join(remaining, ", ")
	case next.Status == engagement.StatusOnboarding && facts[engagement.FactAgreementFullySigned] != true:
		return "agreement not fully signed"
	case next.Status == engagement.StatusAddressRevealed:
		return "engagement path is " + string(next.Path)
	default:
		return "precondition not met"
	}
}

func (s *Service) finalize(current, next *engagement.Engagement, edge engagement.Edge, cmd Command, now time.Time) {
	next.Status = edge.To
	if edge.To != current.Status {
		next.Phases.Mark(edge.To, now)
	}
	if cmd.Transition == engagement.TransitionConfirmInstantBook {
		next.Phases.MarkInstantBookConfirmed(now)
	}
	next.HoldExpiresAt = s.policy.Hold.Next(current.Status.HoldPhase(), edge.To.HoldPhase(), current.HoldExpiresAt, now)
	if edge.To.IsTermination() {
		reason := cmd.Reason
		if reason == "" && cmd.Transition == engagement.TransitionExpire {
			reason = "hold expired"
		}
		if reason == "" && cmd.Transition == engagement.TransitionRecordTourOutcome {
			reason = next.Tour.OutcomeReason
		}
		next.Terminate(cmd.Actor, reason, now)
	}
	next.Version = current.Version + 1
	next.UpdatedAt = now
}

func eventPayload(cmd Command, next *engagement.Engagement, m mutation) (json.RawMessage, error) {
	details := make(map[string]interface{}, len(m.details)+3)
	for k, v := range m.details {
		details[k] = v
	}
	if cmd.Reason != "" {
		details["reason"] = cmd.Reason
	}
	if next.HoldExpiresAt != nil {
		details["holdExpiresAt"] = next.HoldExpiresAt
	}
	if len(cmd.Payload) > 0 {
		details["client"] = cmd.Payload
	}
	if len(details) == 0 {
		return nil, nil
	}
	return json.Marshal(details)
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
