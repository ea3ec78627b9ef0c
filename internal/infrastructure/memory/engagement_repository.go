// Package memory is an in-process engagement store for tests and demo mode.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/agreement"
	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/engagement"
)

type agreementKey struct {
	engagementID uuid.UUID
	version      int
}

// EngagementRepository keeps everything in maps guarded by one mutex, which
// makes every Commit trivially atomic.
type EngagementRepository struct {
	mu          sync.RWMutex
	engagements map[uuid.UUID]*engagement.Engagement
	order       []uuid.UUID
	events      map[uuid.UUID][]*engagement.Event
	agreements  map[agreementKey]*agreement.Agreement
}

func NewEngagementRepository() *EngagementRepository {
	return &EngagementRepository{
		engagements: make(map[uuid.UUID]*engagement.Engagement),
		events:      make(map[uuid.UUID][]*engagement.Event),
		agreements:  make(map[agreementKey]*agreement.Agreement),
	}
}

func (r *EngagementRepository) Create(ctx context.Context, e *engagement.Engagement, created *engagement.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.engagements[e.EngagementID]; exists {
		return fmt.Errorf("engagement %s already exists", e.EngagementID)
	}
	r.engagements[e.EngagementID] = e.Clone()
	r.order = append(r.order, e.EngagementID)
	if created != nil {
		ev := *created
		r.events[e.EngagementID] = append(r.events[e.EngagementID], &ev)
	}
	return nil
}

func (r *EngagementRepository) GetByID(ctx context.Context, engagementID uuid.UUID) (*engagement.Engagement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.engagements[engagementID]
	if !ok {
		return nil, nil
	}
	return e.Clone(), nil
}

func (r *EngagementRepository) List(ctx context.Context, filter engagement.Filter, limit, offset int) ([]*engagement.Engagement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*engagement.Engagement
	for i := len(r.order) - 1; i >= 0; i-- {
		e := r.engagements[r.order[i]]
		if filter.Status != nil && e.Status != *filter.Status {
			continue
		}
		if filter.SupplierID != nil && e.SupplierID != *filter.SupplierID {
			continue
		}
		if filter.BuyerID != nil && (e.BuyerID == nil || *e.BuyerID != *filter.BuyerID) {
			continue
		}
		if filter.Flagged != nil && e.Admin.Flagged != *filter.Flagged {
			continue
		}
		matched = append(matched, e.Clone())
	}
	if offset >= len(matched) {
		return []*engagement.Engagement{}, nil
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

func (r *EngagementRepository) Commit(ctx context.Context, c *engagement.Commit) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.engagements[c.Engagement.EngagementID]
	if !ok || stored.Version != c.ExpectedVersion {
		return engagement.ErrStaleState
	}
	updated := c.Engagement.Clone()
	updated.Admin = stored.Admin
	if c.Flag != nil {
		updated.Admin.Flagged = true
		updated.Admin.FlagReason = *c.Flag
	}
	r.engagements[c.Engagement.EngagementID] = updated
	if c.Event != nil {
		ev := *c.Event
		r.events[ev.EngagementID] = append(r.events[ev.EngagementID], &ev)
	}
	for _, a := range c.Agreements {
		r.agreements[agreementKey{a.EngagementID, a.Version}] = a.Clone()
	}
	return nil
}

func (r *EngagementRepository) ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]*engagement.Engagement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*engagement.Engagement
	for _, e := range r.engagements {
		if e.HoldExpired(now) {
			out = append(out, e.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].HoldExpiresAt.Before(*out[j].HoldExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *EngagementRepository) ListEvents(ctx context.Context, engagementID uuid.UUID, afterSequence int64, limit int) ([]*engagement.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*engagement.Event
	for _, ev := range r.events[engagementID] {
		if ev.Sequence <= afterSequence {
			continue
		}
		cp := *ev
		out = append(out, &cp)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *EngagementRepository) UpdateAdminOverlay(ctx context.Context, engagementID uuid.UUID, overlay engagement.AdminOverlay, updatedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.engagements[engagementID]
	if !ok {
		return fmt.Errorf("%w: %s", engagement.ErrNotFound, engagementID)
	}
	updated := e.Clone()
	updated.Admin = overlay
	updated.UpdatedAt = updatedAt
	r.engagements[engagementID] = updated
	return nil
}

func (r *EngagementRepository) GetAgreement(ctx context.Context, engagementID uuid.UUID, version int) (*agreement.Agreement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agreements[agreementKey{engagementID, version}]
	if !ok {
		return nil, nil
	}
	return a.Clone(), nil
}

func (r *EngagementRepository) ListAgreements(ctx context.Context, engagementID uuid.UUID) ([]*agreement.Agreement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*agreement.Agreement
	for key, a := range r.agreements {
		if key.engagementID == engagementID {
			out = append(out, a.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}
