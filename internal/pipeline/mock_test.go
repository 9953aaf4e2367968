package pipeline

import (
	"context"

	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/sells-group/outlet-cli/internal/model"
	"github.com/sells-group/outlet-cli/internal/scrape"
	"github.com/sells-group/outlet-cli/pkg/geocode"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

// --- Fetcher Mock ---

type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) Fetch(ctx context.Context, url string) (*scrape.Page, error) {
	args := m.Called(ctx, url)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*scrape.Page), args.Error(1)
}

// --- Geocoder Mock ---

type mockGeocoder struct {
	mock.Mock
}

func (m *mockGeocoder) Geocode(ctx context.Context, address string) ([]geocode.Candidate, error) {
	args := m.Called(ctx, address)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]geocode.Candidate), args.Error(1)
}

// --- Store Mock ---

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockStore) CheckSchema(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockStore) UpsertOutlets(ctx context.Context, outlets []model.Outlet) (int64, error) {
	args := m.Called(ctx, outlets)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockStore) ListOutlets(ctx context.Context) ([]model.StoredOutlet, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.StoredOutlet), args.Error(1)
}

// --- Publisher Mock ---

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, runID string, outlets []model.Outlet) error {
	return m.Called(ctx, runID, outlets).Error(0)
}
