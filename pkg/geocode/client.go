// Package geocode resolves free-text addresses to coordinates via the Google
// Geocoding API, with an optional Postgres-backed result cache.
package geocode

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/sells-group/outlet-cli/internal/db"
)

// Client geocodes addresses.
type Client interface {
	// Geocode returns the provider's candidates for address in rank order.
	// An address the provider cannot place yields an empty list, not an error.
	Geocode(ctx context.Context, address string) ([]Candidate, error)
}

// Candidate is one coordinate pair proposed for an address.
type Candidate struct {
	Latitude         float64
	Longitude        float64
	FormattedAddress string
	Quality          string // "rooftop", "range", "centroid", "approximate"
}

// Option configures the geocoder.
type Option func(*geocoder)

// WithAPIKey sets the Google Geocoding API key.
func WithAPIKey(key string) Option {
	return func(g *geocoder) {
		g.apiKey = key
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(g *geocoder) {
		g.httpClient = hc
	}
}

// WithRateLimit sets the requests-per-second limit for provider calls.
func WithRateLimit(rps float64) Option {
	return func(g *geocoder) {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithBaseURL overrides the geocoding endpoint.
func WithBaseURL(u string) Option {
	return func(g *geocoder) {
		g.baseURL = u
	}
}

// WithRegion biases results toward a ccTLD region code (e.g. "my").
func WithRegion(region string) Option {
	return func(g *geocoder) {
		g.region = region
	}
}

// WithCache enables the geocode_cache table. Only positive results are
// cached; ttlDays <= 0 means entries never expire.
func WithCache(pool db.Pool, ttlDays int) Option {
	return func(g *geocoder) {
		g.pool = pool
		g.cacheTTLDays = ttlDays
	}
}

type geocoder struct {
	httpClient   *http.Client
	apiKey       string
	baseURL      string
	region       string
	limiter      *rate.Limiter
	pool         db.Pool
	cacheTTLDays int
}

// NewClient creates a new geocoding Client with the given options.
func NewClient(opts ...Option) Client {
	g := &geocoder{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    googleGeocodeURL,
		limiter:    rate.NewLimiter(10, 10),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Geocode checks the cache when configured, then asks Google.
func (g *geocoder) Geocode(ctx context.Context, address string) ([]Candidate, error) {
	var key string
	if g.pool != nil {
		key = cacheKey(address)
		if c, err := g.checkCache(ctx, key); err == nil {
			return []Candidate{*c}, nil
		}
	}

	candidates, err := g.geocodeGoogle(ctx, address)
	if err != nil {
		return nil, err
	}

	if g.pool != nil && len(candidates) > 0 {
		_ = g.storeCache(ctx, key, candidates[0]) // logged in storeCache
	}
	return candidates, nil
}
