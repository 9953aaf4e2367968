// Package scrape fetches rendered page markup through a chain of renderers.
package scrape

import (
	"context"
	"errors"
)

// ErrAllFailed is returned by Chain when no scraper produced a page.
var ErrAllFailed = errors.New("scrape: all scrapers failed")

// Page is the rendered markup of a fetched URL.
type Page struct {
	URL        string
	Title      string
	HTML       string
	StatusCode int
	Source     string // e.g. "firecrawl", "jina", "local_http"
}

// Scraper fetches a single URL and returns its markup.
type Scraper interface {
	Scrape(ctx context.Context, url string) (*Page, error)
	Name() string
	Supports(url string) bool
}
