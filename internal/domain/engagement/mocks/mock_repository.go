package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/agreement"
	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/engagement"
)

// MockRepository is a mock implementation of engagement.Repository
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Create(ctx context.Context, e *engagement.Engagement, created *engagement.Event) error {
	args := m.Called(ctx, e, created)
	return args.Error(0)
}

func (m *MockRepository) GetByID(ctx context.Context, engagementID uuid.UUID) (*engagement.Engagement, error) {
	args := m.Called(ctx, engagementID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*engagement.Engagement), args.Error(1)
}

func (m *MockRepository) List(ctx context.Context, filter engagement.Filter, limit, offset int) ([]*engagement.Engagement, error) {
	args := m.Called(ctx, filter, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*engagement.Engagement), args.Error(1)
}

func (m *MockRepository) Commit(ctx context.Context, c *engagement.Commit) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

func (m *MockRepository) ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]*engagement.Engagement, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*engagement.Engagement), args.Error(1)
}

func (m *MockRepository) ListEvents(ctx context.Context, engagementID uuid.UUID, afterSequence int64, limit int) ([]*engagement.Event, error) {
	args := m.Called(ctx, engagementID, afterSequence, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*engagement.Event), args.Error(1)
}

func (m *MockRepository) UpdateAdminOverlay(ctx context.Context, engagementID uuid.UUID, overlay engagement.AdminOverlay, updatedAt time.Time) error {
	args := m.Called(ctx, engagementID, overlay, updatedAt)
	return args.Error(0)
}

func (m *MockRepository) GetAgreement(ctx context.Context, engagementID uuid.UUID, version int) (*agreement.Agreement, error) {
	args := m.Called(ctx, engagementID, version)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*agreement.Agreement), args.Error(1)
}

func (m *MockRepository) ListAgreements(ctx context.Context, engagementID uuid.UUID) ([]*agreement.Agreement, error) {
	args := m.Called(ctx, engagementID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*agreement.Agreement), args.Error(1)
}
