package engagement

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event is one append-only timeline entry. Sequence equals the engagement
// version produced by the commit that wrote it, so sequences are contiguous
// from 1.
type Event struct {
	EventID      uuid.UUID       `json:"eventId"`
	EngagementID uuid.UUID       `json:"engagementId"`
	Sequence     int64           `json:"sequence"`
	Transition   Transition      `json:"transition"`
	Actor        Actor           `json:"actor"`
	FromStatus   Status          `json:"fromStatus,omitempty"`
	ToStatus     Status          `json:"toStatus"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// NewEvent builds the timeline entry for a committed transition.
func NewEvent(e *Engagement, transition Transition, actor Actor, from Status, payload json.RawMessage, at time.Time) *Event {
	return &Event{
		EventID:      uuid.New(),
		EngagementID: e.EngagementID,
		Sequence:     e.Version,
		Transition:   transition,
		Actor:        actor,
		FromStatus:   from,
		ToStatus:     e.Status,
		Payload:      payload,
		CreatedAt:    at,
	}
}
