package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outlet-cli/internal/config"
	"github.com/sells-group/outlet-cli/internal/events"
	"github.com/sells-group/outlet-cli/internal/export"
	"github.com/sells-group/outlet-cli/internal/extract"
	"github.com/sells-group/outlet-cli/internal/pipeline"
	"github.com/sells-group/outlet-cli/internal/scrape"
	"github.com/sells-group/outlet-cli/internal/store"
	"github.com/sells-group/outlet-cli/pkg/firecrawl"
	"github.com/sells-group/outlet-cli/pkg/geocode"
	"github.com/sells-group/outlet-cli/pkg/jina"
)

// pipelineEnv holds the collaborators built for the run/query/serve/export
// commands.
type pipelineEnv struct {
	Store     store.OutletStore // nil when unavailable
	Pipeline  *pipeline.Pipeline
	Publisher *events.Publisher // may be nil
	Exporter  *export.Exporter  // may be nil
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Publisher != nil {
		if err := pe.Publisher.Close(); err != nil {
			zap.L().Warn("close kafka publisher", zap.Error(err))
		}
	}
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initStore opens the configured backend. A Postgres store is pinged on open.
func initStore(ctx context.Context, c *config.Config) (store.OutletStore, error) {
	switch c.Store.Driver {
	case "postgres":
		st, err := store.NewPostgres(ctx, c.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: c.Store.MaxConns,
			MinConns: c.Store.MinConns,
		})
		if err != nil {
			return nil, err
		}
		return st, nil
	case "sqlite":
		st, err := store.NewSQLite(c.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, eris.Errorf("unsupported store driver: %s", c.Store.Driver)
	}
}

// initFetcher builds the scrape chain in preference order: Firecrawl, Jina,
// then plain HTTP.
func initFetcher(c *config.Config) *scrape.Chain {
	var scrapers []scrape.Scraper
	settle := c.Fetch.Settle()
	if c.Firecrawl.Key != "" {
		fc := firecrawl.NewClient(c.Firecrawl.Key, firecrawl.WithBaseURL(c.Firecrawl.BaseURL))
		scrapers = append(scrapers, scrape.NewFirecrawlAdapter(fc, settle))
	}
	if c.Jina.Key != "" {
		jc := jina.NewClient(c.Jina.Key, jina.WithBaseURL(c.Jina.BaseURL))
		scrapers = append(scrapers, scrape.NewJinaAdapter(jc, settle))
	}
	if c.Fetch.Local {
		scrapers = append(scrapers, scrape.NewLocalScraper(c.Fetch.UserAgent))
	}
	return scrape.NewChain(scrapers...)
}

// initGeocoder returns nil when no key is configured, which leaves every
// outlet without coordinates unresolved. The cache needs a Postgres store.
func initGeocoder(c *config.Config, st store.OutletStore) pipeline.Geocoder {
	if c.Geocode.Key == "" {
		zap.L().Warn("geocode.key not set, coordinates will not be enriched")
		return nil
	}
	opts := []geocode.Option{
		geocode.WithAPIKey(c.Geocode.Key),
		geocode.WithRateLimit(c.Geocode.RateLimit),
		geocode.WithRegion(c.Geocode.Region),
	}
	if c.Geocode.BaseURL != "" {
		opts = append(opts, geocode.WithBaseURL(c.Geocode.BaseURL))
	}
	if pg, ok := st.(*store.PostgresStore); ok && c.Geocode.CacheEnabled {
		opts = append(opts, geocode.WithCache(pg.Pool(), c.Geocode.CacheTTLDays))
	}
	return geocode.NewClient(opts...)
}

// initExporter returns nil when export is disabled for runs and the caller
// did not force it.
func initExporter(ctx context.Context, c *config.Config, force bool) (*export.Exporter, error) {
	if !c.Export.OnRun && !force {
		return nil, nil
	}
	exp := &export.Exporter{Path: c.Export.Path, Prefix: c.Export.S3Prefix}
	if c.Export.S3Enabled {
		up, err := export.NewS3Uploader(export.S3Config{
			Endpoint:  c.S3.Endpoint,
			AccessKey: c.S3.AccessKey,
			SecretKey: c.S3.SecretKey,
			Bucket:    c.S3.Bucket,
			Region:    c.S3.Region,
			UseSSL:    c.S3.UseSSL,
		})
		if err != nil {
			return nil, err
		}
		if err := up.EnsureBucket(ctx); err != nil {
			zap.L().Warn("s3 bucket check failed, uploads may fail", zap.Error(err))
		}
		exp.Uploader = up
	}
	return exp, nil
}

// initPublisher returns nil when no brokers are configured.
func initPublisher(c *config.Config) (*events.Publisher, error) {
	if len(c.Kafka.Brokers) == 0 {
		return nil, nil
	}
	return events.NewKafkaPublisher(events.Config{
		Brokers: c.Kafka.Brokers,
		Topic:   c.Kafka.Topic,
	})
}

// exportHook writes the run's outlets after a successful commit.
func exportHook(exp *export.Exporter) pipeline.Hook {
	return func(ctx context.Context, res *pipeline.Result) error {
		out, err := exp.Export(ctx, res.Outlets)
		if err != nil {
			return err
		}
		zap.L().Info("exported outlets",
			zap.String("path", out.Path),
			zap.String("location", out.Location),
			zap.Int("rows", out.Rows),
		)
		return nil
	}
}

// initPipeline validates config for mode and builds the Pipeline. query mode
// never opens a store. For the other modes an unreachable store is logged
// and the run proceeds: RunPersisted then reports the persist failure with
// the enriched outlets attached. Callers should defer env.Close().
func initPipeline(ctx context.Context, c *config.Config, mode string) (*pipelineEnv, error) {
	if err := c.Validate(mode); err != nil {
		return nil, err
	}

	env := &pipelineEnv{}
	if mode != config.ModeQuery {
		st, err := initStore(ctx, c)
		if err != nil {
			zap.L().Error("store unavailable", zap.String("driver", c.Store.Driver), zap.Error(err))
		} else {
			env.Store = st
		}
	}

	var opts []pipeline.Option
	if mode != config.ModeQuery {
		pub, err := initPublisher(c)
		if err != nil {
			env.Close()
			return nil, err
		}
		if pub != nil {
			env.Publisher = pub
			opts = append(opts, pipeline.WithPublisher(pub))
		}

		exp, err := initExporter(ctx, c, false)
		if err != nil {
			env.Close()
			return nil, err
		}
		if exp != nil {
			env.Exporter = exp
			opts = append(opts, pipeline.WithHook(exportHook(exp)))
		}
	}

	var ps pipeline.Store
	if env.Store != nil {
		ps = env.Store
	}

	env.Pipeline = pipeline.New(pipeline.Config{
		URL:         c.Fetch.URL,
		Locality:    c.Fetch.Locality,
		Concurrency: c.Enrich.Concurrency,
		ReuseStored: c.Enrich.ReuseStored,
		Services: extract.ServiceSelectors{
			Container: c.Extract.ServiceContainer,
			Item:      c.Extract.ServiceItem,
		},
	}, initFetcher(c), initGeocoder(c, env.Store), ps, opts...)

	return env, nil
}
