package timeline

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/engagement"
)

const (
	defaultLimit = 50
	maxLimit     = 200
)

// Service reads the append-only engagement timeline. Writes only ever happen
// inside the lifecycle commit.
type Service struct {
	repo   engagement.Repository
	graph  *engagement.Graph
	logger zerolog.Logger
}

// NewService creates a timeline service validating walks against graph.
func NewService(repo engagement.Repository, graph *engagement.Graph, logger zerolog.Logger) *Service {
	if graph == nil {
		graph = engagement.DefaultGraph()
	}
	return &Service{
		repo:   repo,
		graph:  graph,
		logger: logger.With().Str("service", "timeline").Logger(),
	}
}

// Cursor marks the last sequence a page returned.
type Cursor struct {
	Sequence int64 `json:"seq"`
}

// ListParams holds timeline query parameters
type ListParams struct {
	Cursor *string
	Limit  int
}

// Page is one slice of the timeline, ascending by sequence.
type Page struct {
	Events     []*engagement.Event `json:"events"`
	Pagination Pagination          `json:"pagination"`
}

// Pagination holds pagination information
type Pagination struct {
	Cursor  *string `json:"cursor,omitempty"`
	HasMore bool    `json:"hasMore"`
	Count   int     `json:"count"`
}

// List returns the timeline of an engagement the actor may see.
func (s *Service) List(ctx context.Context, engagementID uuid.UUID, actor engagement.Actor, params ListParams) (*Page, error) {
	if params.Limit <= 0 {
		params.Limit = defaultLimit
	}
	if params.Limit > maxLimit {
		params.Limit = maxLimit
	}

	var after int64
	if params.Cursor != nil && *params.Cursor != "" {
		c, err := decodeCursor(*params.Cursor)
		if err != nil {
			return nil, engagement.NewError(engagement.KindValidation, "", "", "invalid cursor: %v", err)
		}
		after = c.Sequence
	}

	if err := s.authorize(ctx, engagementID, actor); err != nil {
		return nil, err
	}

	events, err := s.repo.ListEvents(ctx, engagementID, after, params.Limit+1)
	if err != nil {
		s.logger.Error().Err(err).Str("engagement_id", engagementID.String()).Msg("failed to list timeline")
		return nil, fmt.Errorf("failed to list timeline: %w", err)
	}

	page := &Page{Events: events}
	if len(events) > params.Limit {
		page.Events = events[:params.Limit]
		page.Pagination.HasMore = true
		last := page.Events[len(page.Events)-1]
		encoded, err := encodeCursor(&Cursor{Sequence: last.Sequence})
		if err != nil {
			s.logger.Warn().Err(err).Msg("failed to encode cursor")
		} else {
			page.Pagination.Cursor = &encoded
		}
	}
	if page.Events == nil {
		page.Events = []*engagement.Event{}
	}
	page.Pagination.Count = len(page.Events)
	return page, nil
}

// All returns the complete timeline, oldest first.
func (s *Service) All(ctx context.Context, engagementID uuid.UUID, actor engagement.Actor) ([]*engagement.Event, error) {
	if err := s.authorize(ctx, engagementID, actor); err != nil {
		return nil, err
	}
	events, err := s.repo.ListEvents(ctx, engagementID, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list timeline: %w", err)
	}
	return events, nil
}

// VerifyResult reports whether a stored timeline is a valid walk of the graph.
type VerifyResult struct {
	EngagementID uuid.UUID `json:"engagementId"`
	Events       int       `json:"events"`
	Verified     bool      `json:"verified"`
	Message      string    `json:"message"`
}

// Verify replays the timeline against the transition graph and checks that it
// ends at the stored status and version.
func (s *Service) Verify(ctx context.Context, engagementID uuid.UUID) (*VerifyResult, error) {
	e, err := s.repo.GetByID(ctx, engagementID)
	if err != nil {
		return nil, fmt.Errorf("failed to load engagement: %w", err)
	}
	if e == nil {
		return nil, engagement.NewError(engagement.KindNotFound, "", "", "engagement %s not found", engagementID)
	}
	events, err := s.repo.ListEvents(ctx, engagementID, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list timeline: %w", err)
	}

	result := &VerifyResult{EngagementID: engagementID, Events: len(events)}
	if len(events) == 0 {
		result.Message = "timeline is empty"
	} else if err := s.graph.ValidateWalk(events); err != nil {
		result.Message = err.Error()
	} else if last := events[len(events)-1]; last.ToStatus != e.Status || last.Sequence != e.Version {
		result.Message = fmt.Sprintf("timeline ends at %s v%d but engagement is %s v%d", last.ToStatus, last.Sequence, e.Status, e.Version)
	} else {
		result.Verified = true
		result.Message = "timeline is a valid walk of the lifecycle graph"
	}
	if !result.Verified {
		s.logger.Warn().Str("engagement_id", engagementID.String()).Str("reason", result.Message).Msg("timeline verification failed")
	}
	return result, nil
}

func (s *Service) authorize(ctx context.Context, engagementID uuid.UUID, actor engagement.Actor) error {
	e, err := s.repo.GetByID(ctx, engagementID)
	if err != nil {
		return fmt.Errorf("failed to load engagement: %w", err)
	}
	if e == nil {
		return engagement.NewError(engagement.KindNotFound, "", "", "engagement %s not found", engagementID)
	}
	if !e.CanView(actor) {
		return engagement.NewError(engagement.KindUnauthorized, "", e.Status, "%s may not read this timeline", actor)
	}
	return nil
}

func encodeCursor(c *Cursor) (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(data), nil
}

func decodeCursor(s string) (*Cursor, error) {
	data, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	var c Cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	if c.Sequence < 0 {
		return nil, fmt.Errorf("negative sequence")
	}
	return &c, nil
}
