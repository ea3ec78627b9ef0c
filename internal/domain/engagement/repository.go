package engagement

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/agreement"
)

// Filter narrows engagement listings.
type Filter struct {
	Status     *Status
	SupplierID *string
	BuyerID    *string
	Flagged    *bool
}

// Commit is the single atomic write produced by a transition. Operator
// metadata is not part of it: Engagement.Admin is ignored and the stored
// overlay is kept, except that a non-nil Flag raises the follow-up flag with
// that reason.
type Commit struct {
	Engagement      *Engagement
	ExpectedVersion int64
	Event           *Event
	Agreements      []*agreement.Agreement
	Flag            *string
}

// Repository defines the interface for engagement persistence. Reads return
// (nil, nil) when nothing matches.
type Repository interface {
	Create(ctx context.Context, e *Engagement, created *Event) error
	GetByID(ctx context.Context, engagementID uuid.UUID) (*Engagement, error)
	List(ctx context.Context, filter Filter, limit, offset int) ([]*Engagement, error)

	// Commit writes the engagement, its event and any agreement versions only
	// if the stored version still equals ExpectedVersion; otherwise it returns
	// ErrStaleState and writes nothing. The admin overlay survives the write.
	Commit(ctx context.Context, c *Commit) error

	ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]*Engagement, error)
	ListEvents(ctx context.Context, engagementID uuid.UUID, afterSequence int64, limit int) ([]*Event, error)

	// UpdateAdminOverlay touches only operator metadata and leaves the version alone.
	UpdateAdminOverlay(ctx context.Context, engagementID uuid.UUID, overlay AdminOverlay, updatedAt time.Time) error

	GetAgreement(ctx context.Context, engagementID uuid.UUID, version int) (*agreement.Agreement, error)
	ListAgreements(ctx context.Context, engagementID uuid.UUID) ([]*agreement.Agreement, error)
}
