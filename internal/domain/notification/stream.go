package notification

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// clientBuffer is how many messages a slow stream client may fall behind
// before the hub starts dropping for it.
const clientBuffer = 100

// SSEClient is one open event stream.
type SSEClient struct {
	ClientID    string
	UserID      *string
	Groups      []string
	ConnectedAt time.Time
	MessageChan chan *SSEMessage
}

func NewSSEClient(clientID string, userID *string, groups []string) *SSEClient {
	return &SSEClient{
		ClientID:    clientID,
		UserID:      userID,
		Groups:      groups,
		ConnectedAt: time.Now().UTC(),
		MessageChan: make(chan *SSEMessage, clientBuffer),
	}
}

// Follows reports whether the client subscribed to group.
func (c *SSEClient) Follows(group string) bool {
	for _, g := range c.Groups {
		if g == group {
			return true
		}
	}
	return false
}

func (c *SSEClient) Close() {
	close(c.MessageChan)
}

// SSEMessage is one server-sent event. Timeline events use
// "<engagementId>:<sequence>" as ID so a reconnecting client can resume from
// Last-Event-ID.
type SSEMessage struct {
	ID    string          `json:"id"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// NewSSEMessage creates a message; an empty id gets a random one.
func NewSSEMessage(id, event string, data json.RawMessage) *SSEMessage {
	if id == "" {
		id = uuid.NewString()
	}
	return &SSEMessage{ID: id, Event: event, Data: data}
}

// EngagementGroup is the SSE group that follows one engagement's timeline.
func EngagementGroup(engagementID uuid.UUID) string {
	return "engagement:" + engagementID.String()
}
