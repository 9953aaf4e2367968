package scrape

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outlet-cli/pkg/jina"
)

const (
	// jinaStrikeLimit failed fetches in a row bench Jina for jinaBench.
	jinaStrikeLimit = 2
	jinaBench       = 10 * time.Minute

	// minDocumentBytes is the smallest body that can hold an outlet listing.
	minDocumentBytes = 100
)

// bench keeps a failing upstream out of the scrape chain for a while. The
// locator is fetched once per run, so consecutive failures count across
// runs rather than within a time window.
type bench struct {
	mu      sync.Mutex
	strikes int
	until   time.Time
	limit   int
	pause   time.Duration
	now     func() time.Time
}

func newBench(limit int, pause time.Duration) *bench {
	return &bench{limit: limit, pause: pause, now: time.Now}
}

func (b *bench) benched() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.now().Before(b.until)
}

func (b *bench) strike(reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.strikes++
	if b.strikes < b.limit {
		return
	}
	b.until = b.now().Add(b.pause)
	b.strikes = 0
	zap.L().Warn("scrape: jina benched",
		zap.String("last_reason", reason),
		zap.Time("until", b.until),
	)
}

func (b *bench) clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.strikes = 0
}

// JinaAdapter renders the locator page through Jina Reader. Repeated
// failures bench it so the chain goes straight to the next scraper.
type JinaAdapter struct {
	client jina.Client
	settle time.Duration
	bench  *bench
}

// NewJinaAdapter creates a JinaAdapter from a Jina client. Jina is asked
// for HTML and given the settle delay plus headroom as its load timeout.
func NewJinaAdapter(client jina.Client, settle time.Duration) *JinaAdapter {
	return &JinaAdapter{
		client: client,
		settle: settle,
		bench:  newBench(jinaStrikeLimit, jinaBench),
	}
}

func (j *JinaAdapter) Name() string { return "jina" }

// Supports returns false while Jina is benched.
func (j *JinaAdapter) Supports(_ string) bool {
	return !j.bench.benched()
}

// Scrape fetches a URL via Jina Reader and accepts the result only when it
// carries outlet data.
func (j *JinaAdapter) Scrape(ctx context.Context, targetURL string) (*Page, error) {
	if j.bench.benched() {
		return nil, eris.New("jina: benched after repeated failures")
	}

	opts := []jina.ReadOption{jina.WithReturnFormat(jina.FormatHTML)}
	if j.settle > 0 {
		opts = append(opts, jina.WithTimeout(j.settle+10*time.Second))
	}
	resp, err := j.client.Read(ctx, targetURL, opts...)
	if err != nil {
		if ctx.Err() == nil {
			j.bench.strike(err.Error())
		}
		return nil, err
	}

	if reason := rejectReason(resp); reason != "" {
		j.bench.strike(reason)
		return nil, eris.Errorf("jina: unusable page (%s)", reason)
	}

	j.bench.clear()
	pageURL := resp.Data.URL
	if pageURL == "" {
		pageURL = targetURL
	}
	return &Page{
		URL:        pageURL,
		Title:      resp.Data.Title,
		HTML:       resp.Data.Body(),
		StatusCode: resp.Code,
		Source:     "jina",
	}, nil
}

// rejectReason names why a Jina response cannot feed the extractor, or
// returns "" when it can. Outlet records live in JSON-LD blocks, so a
// document without one is useless even if it rendered.
func rejectReason(resp *jina.ReadResponse) string {
	if resp == nil {
		return "no response"
	}
	if resp.Code != 0 && resp.Code != 200 {
		return "upstream status"
	}

	content := strings.TrimSpace(resp.Data.Body())
	if len(content) < minDocumentBytes {
		return "empty document"
	}

	lower := strings.ToLower(content)
	hasRecords := strings.Contains(lower, "application/ld+json")
	if !hasRecords {
		for _, sig := range challengeSignatures {
			if strings.Contains(lower, sig) {
				return "challenge page"
			}
		}
		return "no outlet records"
	}
	return ""
}
