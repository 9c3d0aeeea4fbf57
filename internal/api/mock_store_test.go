package api

import (
	"context"

	"github.com/google/uuid"

	"github.com/autonoc/autonoc/internal/store"
)

// MockQuerier is a mock implementation of store.Querier
type MockQuerier struct {
	// Add hooks for methods we need to test
	InsertRunFunc     func(ctx context.Context, rec *store.RunRecord) error
	GetRunFunc        func(ctx context.Context, id uuid.UUID) (*store.RunRecord, error)
	ListRunsFunc      func(ctx context.Context, limit int) ([]*store.RunRecord, error)
	CreateProfileFunc func(ctx context.Context, p *store.Profile) error
	GetProfileFunc    func(ctx context.Context, id uuid.UUID) (*store.Profile, error)
	ListProfilesFunc  func(ctx context.Context) ([]*store.Profile, error)
	DeleteProfileFunc func(ctx context.Context, id uuid.UUID) error
}

func (m *MockQuerier) InsertRun(ctx context.Context, rec *store.RunRecord) error {
	if m.InsertRunFunc != nil {
		return m.InsertRunFunc(ctx, rec)
	}
	return nil
}

func (m *MockQuerier) GetRun(ctx context.Context, id uuid.UUID) (*store.RunRecord, error) {
	if m.GetRunFunc != nil {
		return m.GetRunFunc(ctx, id)
	}
	return nil, store.ErrNotFound
}

func (m *MockQuerier) ListRuns(ctx context.Context, limit int) ([]*store.RunRecord, error) {
	if m.ListRunsFunc != nil {
		return m.ListRunsFunc(ctx, limit)
	}
	return nil, nil
}

func (m *MockQuerier) CreateProfile(ctx context.Context, p *store.Profile) error {
	if m.CreateProfileFunc != nil {
		return m.CreateProfileFunc(ctx, p)
	}
	return nil
}

func (m *MockQuerier) GetProfile(ctx context.Context, id uuid.UUID) (*store.Profile, error) {
	if m.GetProfileFunc != nil {
		return m.GetProfileFunc(ctx, id)
	}
	return nil, store.ErrNotFound
}

func (m *MockQuerier) ListProfiles(ctx context.Context) ([]*store.Profile, error) {
	if m.ListProfilesFunc != nil {
		return m.ListProfilesFunc(ctx)
	}
	return nil, nil
}

func (m *MockQuerier) DeleteProfile(ctx context.Context, id uuid.UUID) error {
	if m.DeleteProfileFunc != nil {
		return m.DeleteProfileFunc(ctx, id)
	}
	return nil
}

// Verify MockQuerier satisfies the interface
var _ store.Querier = (*MockQuerier)(nil)
