package pipeline

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/outlet-cli/internal/model"
	"github.com/sells-group/outlet-cli/pkg/geocode"
)

// Geocoder resolves a free-text address to ranked candidates. An address
// the provider cannot place yields an empty list.
type Geocoder interface {
	Geocode(ctx context.Context, address string) ([]geocode.Candidate, error)
}

// EnrichReport counts per-outlet enrichment outcomes. Attempted is the
// number of outlets looked up; Resolved plus Failed equals Attempted. Skipped
// outlets already had coordinates or had no address to look up; Reused
// outlets took coordinates from a stored row before geocoding.
type EnrichReport struct {
	Attempted int `json:"attempted"`
	Resolved  int `json:"resolved"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	Reused    int `json:"reused"`
}

// Enricher fills missing coordinates through a Geocoder. Each outlet is
// looked up once; a failed lookup leaves it unresolved for the next run.
type Enricher struct {
	geocoder    Geocoder
	concurrency int
}

// NewEnricher creates an Enricher. concurrency <= 1 geocodes sequentially.
func NewEnricher(g Geocoder, concurrency int) *Enricher {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Enricher{geocoder: g, concurrency: concurrency}
}

// Enrich sets coordinates in place on outlets that lack them, from the
// first candidate returned for their address. Lookup failures and empty
// results leave the outlet unresolved; one outlet's outcome never affects
// another's. Outlets that already have coordinates are not looked up.
func (e *Enricher) Enrich(ctx context.Context, outlets []model.Outlet) EnrichReport {
	var (
		mu     sync.Mutex
		report EnrichReport
	)
	count := func(f func(r *EnrichReport)) {
		mu.Lock()
		f(&report)
		mu.Unlock()
	}

	log := zap.L().With(zap.String("component", "enrich"))
	if e.geocoder == nil {
		log.Warn("enrich: no geocoder configured, leaving coordinates unset")
	}

	var g errgroup.Group
	g.SetLimit(e.concurrency)

	for i := range outlets {
		o := &outlets[i]
		if o.Coordinates != nil || strings.TrimSpace(o.Address) == "" || e.geocoder == nil {
			report.Skipped++
			continue
		}

		g.Go(func() error {
			count(func(r *EnrichReport) { r.Attempted++ })

			candidates, err := e.geocoder.Geocode(ctx, o.Address)
			if err != nil {
				log.Warn("enrich: geocode failed",
					zap.String("outlet", o.Name),
					zap.String("address", o.Address),
					zap.Error(err),
				)
				count(func(r *EnrichReport) { r.Failed++ })
				return nil
			}

			var coords *model.Coordinates
			if len(candidates) > 0 {
				coords = model.NewCoordinates(candidates[0].Latitude, candidates[0].Longitude)
			}
			if coords == nil {
				log.Warn("enrich: no usable geocode result",
					zap.String("outlet", o.Name),
					zap.String("address", o.Address),
					zap.Int("candidates", len(candidates)),
				)
				count(func(r *EnrichReport) { r.Failed++ })
				return nil
			}

			o.Coordinates = coords
			count(func(r *EnrichReport) { r.Resolved++ })
			return nil
		})
	}
	_ = g.Wait()

	log.Info("enrich: complete",
		zap.Int("attempted", report.Attempted),
		zap.Int("resolved", report.Resolved),
		zap.Int("failed", report.Failed),
		zap.Int("skipped", report.Skipped),
	)
	return report
}

// ReuseStored copies coordinates from stored rows onto unresolved outlets
// whose name and address both match, so unchanged outlets are not
// re-geocoded on every run. It returns the number of outlets seeded.
func ReuseStored(outlets []model.Outlet, stored []model.StoredOutlet) int {
	byName := make(map[string]model.StoredOutlet, len(stored))
	for _, s := range stored {
		byName[s.Name] = s
	}

	seeded := 0
	for i := range outlets {
		o := &outlets[i]
		if o.Coordinates != nil {
			continue
		}
		s, ok := byName[o.Name]
		if !ok || s.Address == nil || *s.Address != o.Address {
			continue
		}
		if s.Latitude == nil || s.Longitude == nil {
			continue
		}
		if c := model.NewCoordinates(*s.Latitude, *s.Longitude); c != nil {
			o.Coordinates = c
			seeded++
		}
	}
	return seeded
}
