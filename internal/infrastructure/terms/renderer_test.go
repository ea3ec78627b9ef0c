package terms

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/agreement"
	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/pricing"
)

func input() agreement.RenderInput {
	sent := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	return agreement.RenderInput{
		EngagementID: uuid.MustParse("6f1c2a7e-3d4b-4c55-9a10-0b8e2f6d1c33"),
		Version:      2,
		ListingID:    "listing-42",
		SupplierID:   "supplier-1",
		Pricing: pricing.Snapshot{
			SupplierRate:          0.75,
			BuyerRate:             1.05,
			MonthlySupplierPayout: 3750,
			MonthlyBuyerTotal:     5250,
			AllocatedSquareFeet:   5000,
			TermMonths:            12,
		},
		SentAt:    sent,
		ExpiresAt: sent.Add(72 * time.Hour),
	}
}

func TestRenderer_Default(t *testing.T) {
	r, err := FromFile("")
	require.NoError(t, err)

	out, err := r.Render(context.Background(), input())
	require.NoError(t, err)
	assert.Contains(t, out, "version 2")
	assert.Contains(t, out, "5000 sq ft")
	assert.Contains(t, out, "Monthly total:     5250.00")
	assert.Contains(t, out, "(pending account)")
	assert.Contains(t, out, "2026-05-04T12:00:00Z")

	withBuyer := input()
	withBuyer.BuyerID = "buyer-1"
	out, err = r.Render(context.Background(), withBuyer)
	require.NoError(t, err)
	assert.Contains(t, out, "Buyer:      buyer-1")
}

func TestRenderer_Deterministic(t *testing.T) {
	r, err := New(DefaultTemplate)
	require.NoError(t, err)
	a, err := r.Render(context.Background(), input())
	require.NoError(t, err)
	b, err := r.Render(context.Background(), input())
	require.NoError(t, err)
	assert.Equal(t, agreement.Digest(a), agreement.Digest(b))
}

func TestRenderer_Errors(t *testing.T) {
	_, err := New("{{.Version")
	assert.Error(t, err)

	r, err := New("{{.NoSuchField}}")
	require.NoError(t, err)
	_, err = r.Render(context.Background(), input())
	assert.Error(t, err)

	blank, err := New("   ")
	require.NoError(t, err)
	_, err = blank.Render(context.Background(), input())
	assert.ErrorContains(t, err, "no text")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = blank.Render(ctx, input())
	assert.ErrorIs(t, err, context.Canceled)

	_, err = FromFile(filepath.Join(t.TempDir(), "missing.tmpl"))
	assert.Error(t, err)
}

func TestFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lease.tmpl")
	require.NoError(t, os.WriteFile(path, []byte("Lease {{.ListingID}} at {{.Pricing.MonthlyBuyerTotal | money}}"), 0o600))

	r, err := FromFile(path)
	require.NoError(t, err)
	out, err := r.Render(context.Background(), input())
	require.NoError(t, err)
	assert.Equal(t, "Lease listing-42 at 5250.00", out)
}
