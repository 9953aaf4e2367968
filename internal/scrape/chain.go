package scrape

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Chain tries scrapers in priority order, returning the first success.
type Chain struct {
	scrapers []Scraper
}

// NewChain creates a Chain. Scrapers are tried in order; the first
// successful result is returned.
func NewChain(scrapers ...Scraper) *Chain {
	return &Chain{scrapers: scrapers}
}

// Names lists the configured scrapers in priority order.
func (c *Chain) Names() []string {
	names := make([]string, 0, len(c.scrapers))
	for _, s := range c.scrapers {
		names = append(names, s.Name())
	}
	return names
}

// Fetch tries each scraper in order for a single URL. When all fail the
// error wraps ErrAllFailed and carries the last scraper error in its
// message.
func (c *Chain) Fetch(ctx context.Context, targetURL string) (*Page, error) {
	var lastErr error
	for _, s := range c.scrapers {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "scrape: fetch cancelled")
		}
		if !s.Supports(targetURL) {
			continue
		}
		page, err := s.Scrape(ctx, targetURL)
		if err == nil && page != nil {
			zap.L().Debug("scrape: page fetched",
				zap.String("scraper", s.Name()),
				zap.String("url", targetURL),
				zap.Int("bytes", len(page.HTML)),
			)
			return page, nil
		}
		if err != nil {
			zap.L().Warn("scrape: scraper failed, trying next",
				zap.String("scraper", s.Name()),
				zap.String("url", targetURL),
				zap.Error(err),
			)
			lastErr = err
		}
	}
	if lastErr != nil {
		return nil, eris.Wrapf(ErrAllFailed, "%s: last error: %v", targetURL, lastErr)
	}
	return nil, eris.Wrapf(ErrAllFailed, "no suitable scraper for url: %s", targetURL)
}
