package scrape

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/outlet-cli/pkg/firecrawl"
)

// FirecrawlAdapter renders a page through Firecrawl and returns its raw
// HTML after the settle delay.
type FirecrawlAdapter struct {
	client firecrawl.Client
	settle time.Duration
}

// NewFirecrawlAdapter creates a FirecrawlAdapter from a Firecrawl client.
func NewFirecrawlAdapter(client firecrawl.Client, settle time.Duration) *FirecrawlAdapter {
	return &FirecrawlAdapter{client: client, settle: settle}
}

// Name implements Scraper.
func (f *FirecrawlAdapter) Name() string { return "firecrawl" }

// Supports returns true; Firecrawl can attempt any URL.
func (f *FirecrawlAdapter) Supports(_ string) bool { return true }

// Scrape fetches a single URL via Firecrawl's scrape API.
func (f *FirecrawlAdapter) Scrape(ctx context.Context, targetURL string) (*Page, error) {
	resp, err := f.client.Scrape(ctx, firecrawl.ScrapeRequest{
		URL:     targetURL,
		Formats: []string{firecrawl.FormatRawHTML},
		WaitFor: int(f.settle / time.Millisecond),
	})
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		if resp.Error != "" {
			return nil, eris.Errorf("firecrawl: scrape not successful: %s", resp.Error)
		}
		return nil, eris.New("firecrawl: scrape not successful")
	}

	html := resp.Data.RawHTML
	if html == "" {
		html = resp.Data.HTML
	}
	if strings.TrimSpace(html) == "" {
		return nil, eris.New("firecrawl: empty html")
	}

	pageURL := resp.Data.Metadata.SourceURL
	if pageURL == "" {
		pageURL = targetURL
	}
	return &Page{
		URL:        pageURL,
		Title:      resp.Data.Metadata.Title,
		HTML:       html,
		StatusCode: resp.Data.Metadata.StatusCode,
		Source:     "firecrawl",
	}, nil
}
