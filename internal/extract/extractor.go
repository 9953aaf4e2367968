package extract

import (
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/sells-group/outlet-cli/internal/model"
)

// Extractor parses rendered markup into outlets with services attached.
type Extractor struct {
	services ServiceSelectors
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithServiceSelectors enables the service-tag scan.
func WithServiceSelectors(sel ServiceSelectors) Option {
	return func(e *Extractor) {
		e.services = sel
	}
}

// New creates an Extractor.
func New(opts ...Option) *Extractor {
	e := &Extractor{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract returns the outlets in markup. It never fails: unparseable
// markup or blocks yield fewer (possibly zero) outlets.
func (e *Extractor) Extract(markup string) []model.Outlet {
	return e.ExtractReader(strings.NewReader(markup))
}

// ExtractReader is Extract over a stream.
func (e *Extractor) ExtractReader(r io.Reader) []model.Outlet {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		zap.L().Warn("extract: parse markup", zap.Error(err))
		return []model.Outlet{}
	}

	outlets := Records(doc)
	if e.services.Enabled() {
		outlets = AttachServices(outlets, ServiceGroups(doc, e.services))
	}
	return outlets
}
