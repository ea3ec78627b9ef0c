package agreement

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_renderer.go -package=mocks . Renderer

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/pricing"
)

// RenderInput carries the facts substituted into agreement terms.
type RenderInput struct {
	EngagementID uuid.UUID
	Version      int
	ListingID    string
	SupplierID   string
	BuyerID      string
	Pricing      pricing.Snapshot
	SentAt       time.Time
	ExpiresAt    time.Time
}

// Renderer produces the agreement text. It may be slow and is never called
// while an engagement is locked.
type Renderer interface {
	Render(ctx context.Context, in RenderInput) (string, error)
}
