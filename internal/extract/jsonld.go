// Package extract turns rendered directory markup into outlet records.
//
// Outlets come from schema.org JSON-LD blocks. Service tags come from a
// separate structural scan and are joined onto outlets by position.
package extract

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/outlet-cli/internal/model"
)

// LDJSONSelector matches embedded linked-data blocks.
const LDJSONSelector = `script[type="application/ld+json"]`

// ldOutlet mirrors the JSON-LD keys the extractor understands.
type ldOutlet struct {
	Name      ldText            `json:"name"`
	Address   json.RawMessage   `json:"address"`
	Telephone ldText            `json:"telephone"`
	URL       ldText            `json:"url"`
	Geo       *ldGeo            `json:"geo"`
	Graph     []json.RawMessage `json:"@graph"`
}

type ldGeo struct {
	Latitude  ldNumber `json:"latitude"`
	Longitude ldNumber `json:"longitude"`
}

type ldPostalAddress struct {
	StreetAddress   ldText `json:"streetAddress"`
	AddressLocality ldText `json:"addressLocality"`
	AddressRegion   ldText `json:"addressRegion"`
	PostalCode      ldText `json:"postalCode"`
	AddressCountry  ldText `json:"addressCountry"`
}

// ldText accepts a JSON string or number. Anything else decodes as empty.
type ldText string

func (t *ldText) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] == 'n' {
		*t = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = ldText(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*t = ldText(n.String())
		return nil
	}
	*t = ""
	return nil
}

// ldNumber accepts a JSON number or a numeric string.
type ldNumber struct {
	Value float64
	Valid bool
}

func (n *ldNumber) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] == 'n' {
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil
		}
		n.Value, n.Valid = f, true
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return nil
	}
	n.Value, n.Valid = f, true
	return nil
}

// Records returns every outlet found in the document's JSON-LD blocks,
// flattened in document order. Blocks that are not valid JSON are skipped.
func Records(doc *goquery.Document) []model.Outlet {
	outlets := []model.Outlet{}
	doc.Find(LDJSONSelector).Each(func(i int, s *goquery.Selection) {
		raw := strings.TrimSpace(s.Text())
		objs, err := decodeBlock([]byte(raw))
		if err != nil {
			zap.L().Debug("extract: skipping malformed json-ld block",
				zap.Int("block", i),
				zap.Error(err),
			)
			return
		}
		for _, obj := range objs {
			if o, ok := toOutlet(obj); ok {
				outlets = append(outlets, o)
			}
		}
	})
	return outlets
}

// decodeBlock decodes one block as an object or an array of objects.
func decodeBlock(raw []byte) ([]ldOutlet, error) {
	var msgs []json.RawMessage
	if len(raw) > 0 && raw[0] == '[' {
		if err := json.Unmarshal(raw, &msgs); err != nil {
			return nil, err
		}
	} else {
		var one json.RawMessage
		if err := json.Unmarshal(raw, &one); err != nil {
			return nil, err
		}
		msgs = []json.RawMessage{one}
	}
	return decodeObjects(msgs), nil
}

// decodeObjects decodes each message as an outlet object. Members that are
// not objects, or do not decode, are dropped. @graph containers are
// flattened in place.
func decodeObjects(msgs []json.RawMessage) []ldOutlet {
	var out []ldOutlet
	for _, m := range msgs {
		m = bytes.TrimSpace(m)
		if len(m) == 0 || m[0] != '{' {
			continue
		}
		var obj ldOutlet
		if err := json.Unmarshal(m, &obj); err != nil {
			zap.L().Debug("extract: skipping malformed json-ld object", zap.Error(err))
			continue
		}
		if len(obj.Graph) > 0 {
			out = append(out, decodeObjects(obj.Graph)...)
			if obj.Name == "" {
				continue
			}
		}
		out = append(out, obj)
	}
	return out
}

func toOutlet(obj ldOutlet) (model.Outlet, bool) {
	name := clean(string(obj.Name))
	if name == "" {
		return model.Outlet{}, false
	}

	o := model.Outlet{
		Name:          name,
		Phone:         clean(string(obj.Telephone)),
		ReferenceLink: strings.TrimSpace(string(obj.URL)),
		Services:      []string{},
	}
	o.Address, o.HasAddress = decodeAddress(obj.Address)

	if obj.Geo != nil && obj.Geo.Latitude.Valid && obj.Geo.Longitude.Valid {
		o.Coordinates = model.NewCoordinates(obj.Geo.Latitude.Value, obj.Geo.Longitude.Value)
	}
	return o, true
}

// decodeAddress accepts either a plain string or a schema.org PostalAddress.
// The bool reports whether the key was present and non-null.
func decodeAddress(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", false
	}
	if raw[0] == '{' {
		var pa ldPostalAddress
		if err := json.Unmarshal(raw, &pa); err != nil {
			return "", false
		}
		var parts []string
		for _, p := range []ldText{pa.StreetAddress, pa.AddressLocality, pa.PostalCode, pa.AddressRegion, pa.AddressCountry} {
			if c := clean(string(p)); c != "" {
				parts = append(parts, c)
			}
		}
		return strings.Join(parts, ", "), true
	}
	var t ldText
	if err := json.Unmarshal(raw, &t); err != nil {
		return "", false
	}
	return clean(string(t)), true
}

// clean NFC-normalizes s and collapses runs of whitespace.
func clean(s string) string {
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}
