package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/sells-group/outlet-cli/internal/model"
)

// ServiceSelectors locates service-tag groups in the rendered page. Each
// match of Container is one group; Item matches the tags inside it.
type ServiceSelectors struct {
	Container string
	Item      string
}

// Enabled reports whether a service scan is configured.
func (s ServiceSelectors) Enabled() bool {
	return strings.TrimSpace(s.Container) != ""
}

// ServiceGroups collects one tag group per container element, in document
// order. A tag's text is its trimmed content, falling back to the title and
// then alt attribute for icon-only tags. Empty tags are skipped; repeated
// tags are kept.
func ServiceGroups(doc *goquery.Document, sel ServiceSelectors) [][]string {
	if !sel.Enabled() {
		return nil
	}
	item := sel.Item
	if strings.TrimSpace(item) == "" {
		item = "li"
	}

	groups := [][]string{}
	doc.Find(sel.Container).Each(func(_ int, c *goquery.Selection) {
		tags := []string{}
		c.Find(item).Each(func(_ int, t *goquery.Selection) {
			if tag := tagText(t); tag != "" {
				tags = append(tags, tag)
			}
		})
		groups = append(groups, tags)
	})
	return groups
}

// tagText reads a tag's text, falling back to the title or alt of the tag
// itself and then of the first labelled descendant (an icon inside the item).
func tagText(t *goquery.Selection) string {
	if text := clean(t.Text()); text != "" {
		return text
	}
	text := attrText(t)
	if text != "" {
		return text
	}
	t.Find("[title],[alt]").EachWithBreak(func(_ int, d *goquery.Selection) bool {
		text = attrText(d)
		return text == ""
	})
	return text
}

func attrText(s *goquery.Selection) string {
	for _, attr := range []string{"title", "alt"} {
		if v, ok := s.Attr(attr); ok {
			if text := clean(v); text != "" {
				return text
			}
		}
	}
	return ""
}

// AttachServices joins the i-th group onto the i-th outlet. The join is
// positional and best effort: when the counts differ, outlets past the
// last group keep an empty list and extra groups are discarded. A mismatch
// is logged because it can also mean tags landed on the wrong outlet.
func AttachServices(outlets []model.Outlet, groups [][]string) []model.Outlet {
	if groups != nil && len(groups) != len(outlets) {
		zap.L().Warn("extract: service group count does not match outlet count",
			zap.Int("outlets", len(outlets)),
			zap.Int("service_groups", len(groups)),
		)
	}
	for i := range outlets {
		if i < len(groups) {
			outlets[i].Services = append([]string{}, groups[i]...)
			continue
		}
		if outlets[i].Services == nil {
			outlets[i].Services = []string{}
		}
	}
	return outlets
}
