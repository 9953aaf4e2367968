// Package pipeline runs the outlet scrape: fetch, extract, filter, enrich
// and persist.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outlet-cli/internal/extract"
	"github.com/sells-group/outlet-cli/internal/model"
	"github.com/sells-group/outlet-cli/internal/scrape"
)

// ErrNoStore is the persist error when the pipeline was built without a store.
var ErrNoStore = errors.New("pipeline: store not configured")

// Fetcher returns the rendered markup of a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*scrape.Page, error)
}

// Store is the persistence the pipeline writes through.
type Store interface {
	Ping(ctx context.Context) error
	CheckSchema(ctx context.Context) error
	UpsertOutlets(ctx context.Context, outlets []model.Outlet) (int64, error)
	ListOutlets(ctx context.Context) ([]model.StoredOutlet, error)
}

// Publisher announces outlets written by a run.
type Publisher interface {
	Publish(ctx context.Context, runID string, outlets []model.Outlet) error
}

// Hook runs after a successful commit, e.g. the spreadsheet export.
type Hook func(ctx context.Context, res *Result) error

// Config holds the per-run settings.
type Config struct {
	URL         string
	Locality    string
	Concurrency int
	ReuseStored bool
	Services    extract.ServiceSelectors
}

// Result is the outcome of a run. Outlets holds the filtered, enriched
// records even when persistence failed.
type Result struct {
	RunID      string         `json:"run_id"`
	URL        string         `json:"url"`
	Source     string         `json:"source"`
	Extracted  int            `json:"extracted"`
	Matched    int            `json:"matched"`
	Outlets    []model.Outlet `json:"outlets"`
	Enrich     EnrichReport   `json:"enrich"`
	Persisted  int64          `json:"persisted"`
	PersistErr error          `json:"-"`
	StartedAt  time.Time      `json:"started_at"`
	Duration   time.Duration  `json:"duration"`
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithPublisher publishes committed outlets.
func WithPublisher(p Publisher) Option {
	return func(pl *Pipeline) {
		pl.publisher = p
	}
}

// WithHook adds a post-commit hook. Hooks run in the order added.
func WithHook(h Hook) Option {
	return func(pl *Pipeline) {
		pl.hooks = append(pl.hooks, h)
	}
}

// Pipeline wires the collaborators of a run.
type Pipeline struct {
	cfg       Config
	fetcher   Fetcher
	extractor *extract.Extractor
	enricher  *Enricher
	store     Store
	publisher Publisher
	hooks     []Hook
}

// New creates a Pipeline. store may be nil for query-only use.
func New(cfg Config, fetcher Fetcher, geocoder Geocoder, store Store, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:       cfg,
		fetcher:   fetcher,
		extractor: extract.New(extract.WithServiceSelectors(cfg.Services)),
		enricher:  NewEnricher(geocoder, cfg.Concurrency),
		store:     store,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RunQuery fetches, extracts, filters and enriches without persisting. A
// fetch failure fails the run.
func (p *Pipeline) RunQuery(ctx context.Context) (*Result, error) {
	res := &Result{
		RunID:     uuid.NewString(),
		URL:       p.cfg.URL,
		StartedAt: time.Now(),
	}
	log := zap.L().With(zap.String("run_id", res.RunID), zap.String("url", p.cfg.URL))

	if err := p.query(ctx, res, log); err != nil {
		return nil, err
	}
	res.Duration = time.Since(res.StartedAt)
	return res, nil
}

// RunPersisted runs RunQuery and upserts the outlets. When persistence
// fails the returned result still carries the enriched outlets and
// PersistErr, and the error wraps the same failure.
func (p *Pipeline) RunPersisted(ctx context.Context) (*Result, error) {
	res := &Result{
		RunID:     uuid.NewString(),
		URL:       p.cfg.URL,
		StartedAt: time.Now(),
	}
	log := zap.L().With(zap.String("run_id", res.RunID), zap.String("url", p.cfg.URL))

	if err := p.query(ctx, res, log); err != nil {
		return nil, err
	}

	n, err := p.persist(ctx, res.Outlets)
	res.Persisted = n
	res.Duration = time.Since(res.StartedAt)
	if err != nil {
		res.PersistErr = err
		log.Error("pipeline: persist failed",
			zap.Int("outlets", len(res.Outlets)),
			zap.Error(err),
		)
		return res, eris.Wrap(err, "pipeline: persist")
	}
	log.Info("pipeline: persisted", zap.Int64("rows", n))

	p.afterCommit(ctx, res, log)
	return res, nil
}

func (p *Pipeline) query(ctx context.Context, res *Result, log *zap.Logger) error {
	log.Info("pipeline: fetching")
	page, err := p.fetcher.Fetch(ctx, p.cfg.URL)
	if err != nil {
		return eris.Wrap(err, "pipeline: fetch")
	}
	res.Source = page.Source

	outlets := p.extractor.Extract(page.HTML)
	res.Extracted = len(outlets)

	outlets = FilterLocality(outlets, p.cfg.Locality)
	res.Matched = len(outlets)
	log.Info("pipeline: extracted",
		zap.String("source", page.Source),
		zap.Int("extracted", res.Extracted),
		zap.Int("matched", res.Matched),
		zap.String("locality", p.cfg.Locality),
	)

	reused := p.reuseStored(ctx, outlets, log)
	res.Enrich = p.enricher.Enrich(ctx, outlets)
	res.Enrich.Reused = reused
	res.Outlets = outlets

	if err := ctx.Err(); err != nil {
		return eris.Wrap(err, "pipeline: cancelled")
	}
	return nil
}

func (p *Pipeline) reuseStored(ctx context.Context, outlets []model.Outlet, log *zap.Logger) int {
	if !p.cfg.ReuseStored || p.store == nil || len(outlets) == 0 {
		return 0
	}
	stored, err := p.store.ListOutlets(ctx)
	if err != nil {
		log.Warn("pipeline: could not load stored coordinates", zap.Error(err))
		return 0
	}
	n := ReuseStored(outlets, stored)
	log.Debug("pipeline: reused stored coordinates", zap.Int("outlets", n))
	return n
}

func (p *Pipeline) persist(ctx context.Context, outlets []model.Outlet) (int64, error) {
	if p.store == nil {
		return 0, ErrNoStore
	}
	if err := p.store.Ping(ctx); err != nil {
		return 0, eris.Wrap(err, "store unavailable")
	}
	if err := p.store.CheckSchema(ctx); err != nil {
		return 0, err
	}
	return p.store.UpsertOutlets(ctx, outlets)
}

func (p *Pipeline) afterCommit(ctx context.Context, res *Result, log *zap.Logger) {
	if p.publisher != nil {
		if err := p.publisher.Publish(ctx, res.RunID, res.Outlets); err != nil {
			log.Warn("pipeline: publish failed", zap.Error(err))
		}
	}
	for _, h := range p.hooks {
		if err := h(ctx, res); err != nil {
			log.Warn("pipeline: post-commit hook failed", zap.Error(err))
		}
	}
}
