package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/notification"
)

// NotificationRepository implements notification.Repository in memory.
type NotificationRepository struct {
	mu    sync.RWMutex
	byID  map[uuid.UUID]*notification.Notification
	order []uuid.UUID
}

func NewNotificationRepository() *NotificationRepository {
	return &NotificationRepository{byID: make(map[uuid.UUID]*notification.Notification)}
}

func (r *NotificationRepository) Save(ctx context.Context, n *notification.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[n.NotificationID]; !ok {
		r.order = append(r.order, n.NotificationID)
	}
	cp := *n
	r.byID[n.NotificationID] = &cp
	return nil
}

func (r *NotificationRepository) ListByEngagement(ctx context.Context, engagementID uuid.UUID) ([]*notification.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []*notification.Notification{}
	for _, id := range r.order {
		n := r.byID[id]
		if n.EngagementID == engagementID {
			cp := *n
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Sequence != out[j].Sequence {
			return out[i].Sequence < out[j].Sequence
		}
		return out[i].Recipient < out[j].Recipient
	})
	return out, nil
}
