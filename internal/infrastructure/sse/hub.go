package sse

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/notification"
)

// Hub fans engagement events out to connected SSE clients. Slow clients lose
// messages rather than stalling the publisher.
type Hub struct {
	mu        sync.RWMutex
	clients   map[string]*notification.SSEClient
	heartbeat time.Duration
	dropped   atomic.Int64
	logger    zerolog.Logger
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewHub(heartbeat time.Duration, logger zerolog.Logger) *Hub {
	return &Hub{
		clients:   make(map[string]*notification.SSEClient),
		heartbeat: heartbeat,
		logger:    logger.With().Str("component", "sse_hub").Logger(),
	}
}

func (h *Hub) Register(client *notification.SSEClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ClientID] = client
}

func (h *Hub) Unregister(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[clientID]; ok {
		c.Close()
		delete(h.clients, clientID)
	}
}

func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many messages were discarded for full client buffers.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

func (h *Hub) BroadcastToAll(message *notification.SSEMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		h.send(c, message)
	}
}

func (h *Hub) BroadcastToUser(userID string, message *notification.SSEMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if c.UserID != nil && *c.UserID == userID {
			h.send(c, message)
		}
	}
}

func (h *Hub) BroadcastToGroup(group string, message *notification.SSEMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if c.Follows(group) {
			h.send(c, message)
		}
	}
}

// Start emits heartbeat events until ctx is done or Stop is called.
func (h *Hub) Start(ctx context.Context) {
	if h.heartbeat <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	h.mu.Lock()
	h.cancel = cancel
	h.done = make(chan struct{})
	done := h.done
	h.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(h.heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case t := <-ticker.C:
				data, _ := json.Marshal(map[string]any{"at": t.UTC()})
				h.BroadcastToAll(notification.NewSSEMessage("", "heartbeat", data))
			}
		}
	}()
}

func (h *Hub) Stop() {
	h.mu.Lock()
	cancel, done := h.cancel, h.done
	h.cancel, h.done = nil, nil
	for id, c := range h.clients {
		c.Close()
		delete(h.clients, id)
	}
	h.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (h *Hub) send(c *notification.SSEClient, msg *notification.SSEMessage) {
	select {
	case c.MessageChan <- msg:
	default:
		h.dropped.Add(1)
		h.logger.Warn().Str("client_id", c.ClientID).Str("event", msg.Event).Msg("SSE client buffer full, dropping message")
	}
}
