package notification

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_dispatcher.go -package=mocks . Dispatcher,SSEHub

import (
	"context"

	"github.com/google/uuid"
)

// Dispatcher delivers a notification to an external channel. Implementations
// must be safe for concurrent use; callers retry on error.
type Dispatcher interface {
	Dispatch(ctx context.Context, n *Notification) error
}

// SSEHub defines the interface for managing SSE connections
type SSEHub interface {
	// Client management
	Register(client *SSEClient)
	Unregister(clientID string)
	GetClientCount() int

	// Broadcasting
	BroadcastToAll(message *SSEMessage)
	BroadcastToUser(userID string, message *SSEMessage)
	BroadcastToGroup(group string, message *SSEMessage)

	// Lifecycle
	Start(ctx context.Context)
	Stop()
}

// Repository keeps the final delivery outcome of each notification so
// operators can see what a party was told.
type Repository interface {
	Save(ctx context.Context, n *Notification) error
	ListByEngagement(ctx context.Context, engagementID uuid.UUID) ([]*Notification, error)
}
