package scrape

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/sells-group/outlet-cli/internal/resilience"
)

// maxBodyBytes caps how much of a page the local scraper reads.
const maxBodyBytes = 8 << 20

// LocalScraper fetches HTML via net/http without executing scripts. It is
// the last resort: pages that render outlets client side come back without
// their data, and blocked responses fall through as errors.
type LocalScraper struct {
	client    *http.Client
	userAgent string
	retry     resilience.Policy
}

// StatusError is a non-2xx reply. 429 and 5xx are temporary.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("local_http: status %d", e.Code)
}

// Temporary reports whether the server may answer on a later attempt.
func (e *StatusError) Temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= http.StatusInternalServerError
}

// NewLocalScraper creates a LocalScraper with sensible defaults.
func NewLocalScraper(userAgent string) *LocalScraper {
	if userAgent == "" {
		userAgent = "Mozilla/5.0 (compatible; OutletBot/1.0)"
	}
	retry := resilience.DefaultPolicy()
	retry.OnRetry = resilience.LogRetry("local_http")
	return &LocalScraper{
		userAgent: userAgent,
		retry:     retry,
		client: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
	}
}

func (l *LocalScraper) Name() string           { return "local_http" }
func (l *LocalScraper) Supports(_ string) bool { return true }

// Scrape fetches a URL, detects blocks and decodes the body to UTF-8.
// Transport failures, 429 and 5xx replies are retried; blocks are not.
func (l *LocalScraper) Scrape(ctx context.Context, targetURL string) (*Page, error) {
	return resilience.Retry(ctx, l.retry, func(ctx context.Context) (*Page, error) {
		return l.fetch(ctx, targetURL)
	})
}

func (l *LocalScraper) fetch(ctx context.Context, targetURL string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "local_http: create request")
	}
	req.Header.Set("User-Agent", l.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "local_http: fetch")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, eris.Wrap(err, "local_http: read body")
	}

	if blocked, blockType := DetectBlock(resp, body); blocked {
		return nil, eris.Errorf("local_http: blocked (%s)", blockType)
	}

	if resp.StatusCode >= 400 {
		return nil, &StatusError{Code: resp.StatusCode}
	}

	if len(bytes.TrimSpace(body)) < 100 {
		return nil, eris.New("local_http: empty page")
	}

	html, err := decodeCharset(resp.Header.Get("Content-Type"), body)
	if err != nil {
		zap.L().Debug("local_http: charset decode failed, using raw bytes", zap.Error(err))
		html = string(body)
	}

	return &Page{
		URL:        targetURL,
		Title:      extractTitle(html),
		HTML:       html,
		StatusCode: resp.StatusCode,
		Source:     "local_http",
	}, nil
}

var (
	titleRe  = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	metaCSRe = regexp.MustCompile(`(?i)<meta[^>]+charset=["']?([\w-]+)`)
)

// decodeCharset converts body to UTF-8 using the Content-Type charset, then
// a <meta charset> declaration. Unlabelled bodies are returned as is.
func decodeCharset(contentType string, body []byte) (string, error) {
	label := ""
	if _, params, err := mime.ParseMediaType(contentType); err == nil {
		label = params["charset"]
	}
	if label == "" {
		head := body
		if len(head) > 4096 {
			head = head[:4096]
		}
		if m := metaCSRe.FindSubmatch(head); len(m) > 1 {
			label = string(m[1])
		}
	}
	if label == "" || strings.EqualFold(label, "utf-8") || strings.EqualFold(label, "utf8") {
		return string(body), nil
	}

	enc, err := htmlindex.Get(label)
	if err != nil {
		return "", eris.Wrapf(err, "local_http: unsupported charset %q", label)
	}
	out, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return "", eris.Wrap(err, "local_http: decode body")
	}
	return string(out), nil
}

// extractTitle pulls the <title> from HTML.
func extractTitle(html string) string {
	m := titleRe.FindStringSubmatch(html)
	if len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return ""
}
