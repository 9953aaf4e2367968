package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outlet-cli/internal/model"
	"github.com/sells-group/outlet-cli/internal/scrape"
	"github.com/sells-group/outlet-cli/pkg/geocode"
)

const locateURL = "https://www.mcdonalds.com.my/locate-us"

const klMarkup = `<html><body>
<script type="application/ld+json">[
	{"name": "McDonald's Imbi", "address": "123 Jalan Imbi, Kuala Lumpur", "telephone": "03-2141 1234"},
	{"name": "McDonald's Georgetown", "address": "Lebuh Chulia, Penang"}
]</script>
</body></html>`

func newTestConfig() Config {
	return Config{URL: locateURL, Locality: "Kuala Lumpur", Concurrency: 1}
}

func fetcherReturning(html string) *mockFetcher {
	f := &mockFetcher{}
	f.On("Fetch", mock.Anything, locateURL).Return(&scrape.Page{URL: locateURL, HTML: html, Source: "firecrawl"}, nil)
	return f
}

func imbiGeocoder() *mockGeocoder {
	gc := &mockGeocoder{}
	gc.On("Geocode", mock.Anything, "123 Jalan Imbi, Kuala Lumpur").
		Return([]geocode.Candidate{{Latitude: 3.1466, Longitude: 101.7101}}, nil)
	return gc
}

func TestRunQuery_KualaLumpurScenario(t *testing.T) {
	p := New(newTestConfig(), fetcherReturning(klMarkup), imbiGeocoder(), nil)

	res, err := p.RunQuery(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, "firecrawl", res.Source)
	assert.Equal(t, 2, res.Extracted)
	assert.Equal(t, 1, res.Matched)
	require.Len(t, res.Outlets, 1)
	o := res.Outlets[0]
	assert.Equal(t, "McDonald's Imbi", o.Name)
	assert.Equal(t, "03-2141 1234", o.Phone)
	require.NotNil(t, o.Coordinates)
	assert.InDelta(t, 3.1466, o.Coordinates.Latitude, 1e-9)
	assert.Equal(t, EnrichReport{Attempted: 1, Resolved: 1}, res.Enrich)
	assert.Zero(t, res.Persisted)
}

func TestRunQuery_FetchErrorIsFatal(t *testing.T) {
	f := &mockFetcher{}
	f.On("Fetch", mock.Anything, locateURL).Return(nil, scrape.ErrAllFailed)
	gc := &mockGeocoder{}

	res, err := New(newTestConfig(), f, gc, nil).RunQuery(context.Background())
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, scrape.ErrAllFailed)
	gc.AssertNotCalled(t, "Geocode", mock.Anything, mock.Anything)
}

func TestRunQuery_ZeroBlocks(t *testing.T) {
	p := New(newTestConfig(), fetcherReturning("<html><body>no data</body></html>"), &mockGeocoder{}, nil)

	res, err := p.RunQuery(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, res.Outlets)
	assert.Empty(t, res.Outlets)
	assert.Zero(t, res.Extracted)
}

func TestRunPersisted_Success(t *testing.T) {
	st := &mockStore{}
	st.On("Ping", mock.Anything).Return(nil)
	st.On("CheckSchema", mock.Anything).Return(nil)
	st.On("UpsertOutlets", mock.Anything, mock.MatchedBy(func(o []model.Outlet) bool {
		return len(o) == 1 && o[0].Name == "McDonald's Imbi" && o[0].Coordinates != nil
	})).Return(int64(1), nil)

	pub := &mockPublisher{}
	pub.On("Publish", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(nil)

	var hookRuns []string
	hook := func(_ context.Context, res *Result) error {
		hookRuns = append(hookRuns, res.RunID)
		return nil
	}
	failing := func(context.Context, *Result) error { return errors.New("disk full") }

	p := New(newTestConfig(), fetcherReturning(klMarkup), imbiGeocoder(), st,
		WithPublisher(pub), WithHook(failing), WithHook(hook))

	res, err := p.RunPersisted(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Persisted)
	assert.NoError(t, res.PersistErr)
	assert.Equal(t, []string{res.RunID}, hookRuns)
	st.AssertExpectations(t)
	pub.AssertCalled(t, "Publish", mock.Anything, res.RunID, res.Outlets)
}

func TestRunPersisted_UpsertFailureKeepsOutlets(t *testing.T) {
	upsertErr := errors.New("deadlock detected")
	st := &mockStore{}
	st.On("Ping", mock.Anything).Return(nil)
	st.On("CheckSchema", mock.Anything).Return(nil)
	st.On("UpsertOutlets", mock.Anything, mock.Anything).Return(int64(0), upsertErr)

	pub := &mockPublisher{}
	hookCalled := false
	p := New(newTestConfig(), fetcherReturning(klMarkup), imbiGeocoder(), st,
		WithPublisher(pub),
		WithHook(func(context.Context, *Result) error { hookCalled = true; return nil }))

	res, err := p.RunPersisted(context.Background())
	require.Error(t, err)
	require.NotNil(t, res)
	assert.ErrorIs(t, err, upsertErr)
	assert.ErrorIs(t, res.PersistErr, upsertErr)
	require.Len(t, res.Outlets, 1)
	assert.NotNil(t, res.Outlets[0].Coordinates)
	assert.False(t, hookCalled)
	pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestRunPersisted_StoreUnavailable(t *testing.T) {
	st := &mockStore{}
	st.On("Ping", mock.Anything).Return(errors.New("connection refused"))

	res, err := New(newTestConfig(), fetcherReturning(klMarkup), imbiGeocoder(), st).RunPersisted(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	require.Len(t, res.Outlets, 1)
	st.AssertNotCalled(t, "UpsertOutlets", mock.Anything, mock.Anything)
}

func TestRunPersisted_SchemaMissing(t *testing.T) {
	schemaErr := errors.New("store: outlets table missing")
	st := &mockStore{}
	st.On("Ping", mock.Anything).Return(nil)
	st.On("CheckSchema", mock.Anything).Return(schemaErr)

	res, err := New(newTestConfig(), fetcherReturning(klMarkup), imbiGeocoder(), st).RunPersisted(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, schemaErr)
	assert.Len(t, res.Outlets, 1)
	st.AssertNotCalled(t, "UpsertOutlets", mock.Anything, mock.Anything)
}

func TestRunPersisted_NoStore(t *testing.T) {
	res, err := New(newTestConfig(), fetcherReturning(klMarkup), imbiGeocoder(), nil).RunPersisted(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoStore)
	assert.ErrorIs(t, res.PersistErr, ErrNoStore)
	assert.Len(t, res.Outlets, 1)
}

func TestRunPersisted_ReusesStoredCoordinates(t *testing.T) {
	addr := "123 Jalan Imbi, Kuala Lumpur"
	lat, lng := 3.0, 101.0
	st := &mockStore{}
	st.On("ListOutlets", mock.Anything).Return([]model.StoredOutlet{
		{Name: "McDonald's Imbi", Address: &addr, Latitude: &lat, Longitude: &lng},
	}, nil)
	st.On("Ping", mock.Anything).Return(nil)
	st.On("CheckSchema", mock.Anything).Return(nil)
	st.On("UpsertOutlets", mock.Anything, mock.Anything).Return(int64(1), nil)

	gc := &mockGeocoder{}
	cfg := newTestConfig()
	cfg.ReuseStored = true

	res, err := New(cfg, fetcherReturning(klMarkup), gc, st).RunPersisted(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Enrich.Reused)
	assert.Equal(t, 1, res.Enrich.Skipped)
	assert.InDelta(t, 3.0, res.Outlets[0].Coordinates.Latitude, 1e-9)
	gc.AssertNotCalled(t, "Geocode", mock.Anything, mock.Anything)
}

func TestRunQuery_ServiceSelectorsAttach(t *testing.T) {
	markup := `<html><body>
<script type="application/ld+json">[{"name": "A", "address": "Kuala Lumpur"}, {"name": "B", "address": "Kuala Lumpur"}]</script>
<div class="store"><span class="svc">Drive-Thru</span></div>
<div class="store"><span class="svc">McCafe</span><span class="svc">24 Hours</span></div>
</body></html>`
	cfg := newTestConfig()
	cfg.Services.Container = ".store"
	cfg.Services.Item = ".svc"
	gc := &mockGeocoder{}
	gc.On("Geocode", mock.Anything, "Kuala Lumpur").Return([]geocode.Candidate{}, nil)

	res, err := New(cfg, fetcherReturning(markup), gc, nil).RunQuery(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Outlets, 2)
	assert.Equal(t, []string{"Drive-Thru"}, res.Outlets[0].Services)
	assert.Equal(t, []string{"McCafe", "24 Hours"}, res.Outlets[1].Services)
	assert.Nil(t, res.Outlets[0].Coordinates)
}
