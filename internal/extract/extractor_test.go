package extract

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func ldBlock(body string) string {
	return `<script type="application/ld+json">` + body + `</script>`
}

func page(parts ...string) string {
	return "<html><head></head><body>" + strings.Join(parts, "\n") + "</body></html>"
}

func mustDoc(t *testing.T, markup string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	require.NoError(t, err)
	return doc
}

func TestExtract_NoBlocks(t *testing.T) {
	inputs := []string{
		"",
		"<html><body><p>nothing</p></body></html>",
		page(`<script type="text/javascript">var x = {"name": "A"};</script>`),
		"<<<not html at all",
	}
	for _, in := range inputs {
		got := New().Extract(in)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	}
}

func TestExtract_ListAndSingleFlattenInOrder(t *testing.T) {
	markup := page(
		ldBlock(`[
			{"name": "McDonald's Imbi", "address": "123 Jalan Imbi, Kuala Lumpur"},
			{"name": "McDonald's Ampang", "address": "Jalan Ampang, Kuala Lumpur"},
			{"name": "McDonald's Bangsar", "address": "Bangsar, Kuala Lumpur"}
		]`),
		ldBlock(`{"name": "McDonald's Penang", "address": "Penang"}`),
	)

	got := New().Extract(markup)
	require.Len(t, got, 4)
	assert.Equal(t, "McDonald's Imbi", got[0].Name)
	assert.Equal(t, "McDonald's Ampang", got[1].Name)
	assert.Equal(t, "McDonald's Bangsar", got[2].Name)
	assert.Equal(t, "McDonald's Penang", got[3].Name)
}

func TestExtract_MalformedBlockSkipped(t *testing.T) {
	markup := page(
		ldBlock(`{"name": "A", "address": "KL"`),
		ldBlock(`{"name": "B", "address": "Kuala Lumpur"}`),
		ldBlock(``),
		ldBlock(`"just a string"`),
		ldBlock(`[1, 2, {"name": "C"}]`),
	)

	got := New().Extract(markup)
	require.Len(t, got, 2)
	assert.Equal(t, "B", got[0].Name)
	assert.Equal(t, "C", got[1].Name)
}

func TestExtract_RecognizedKeys(t *testing.T) {
	markup := page(ldBlock(`{
		"@type": "Restaurant",
		"name": "  McDonald's   Imbi ",
		"address": "123 Jalan Imbi, Kuala Lumpur",
		"telephone": "03-2141 1234",
		"url": "https://waze.com/ul?ll=3.14,101.71",
		"geo": {"latitude": 3.1425, "longitude": "101.7123"}
	}`))

	got := New().Extract(markup)
	require.Len(t, got, 1)
	o := got[0]
	assert.Equal(t, "McDonald's Imbi", o.Name)
	assert.Equal(t, "123 Jalan Imbi, Kuala Lumpur", o.Address)
	assert.True(t, o.HasAddress)
	assert.Equal(t, "03-2141 1234", o.Phone)
	assert.Equal(t, "https://waze.com/ul?ll=3.14,101.71", o.ReferenceLink)
	require.NotNil(t, o.Coordinates)
	assert.InDelta(t, 3.1425, o.Coordinates.Latitude, 1e-9)
	assert.InDelta(t, 101.7123, o.Coordinates.Longitude, 1e-9)
	assert.Equal(t, []string{}, o.Services)
}

func TestExtract_MissingOptionalFields(t *testing.T) {
	markup := page(ldBlock(`{"name": "No Address", "geo": {"latitude": "n/a", "longitude": 101.7}}`))

	got := New().Extract(markup)
	require.Len(t, got, 1)
	assert.False(t, got[0].HasAddress)
	assert.Empty(t, got[0].Address)
	assert.Empty(t, got[0].Phone)
	assert.Nil(t, got[0].Coordinates)
}

func TestExtract_NamelessObjectsDropped(t *testing.T) {
	markup := page(ldBlock(`[{"address": "Kuala Lumpur"}, {"name": ""}, {"name": "Kept"}]`))

	got := New().Extract(markup)
	require.Len(t, got, 1)
	assert.Equal(t, "Kept", got[0].Name)
}

func TestExtract_PostalAddressObject(t *testing.T) {
	markup := page(ldBlock(`{
		"name": "A",
		"address": {
			"@type": "PostalAddress",
			"streetAddress": "Lot 1, Jalan Sultan Ismail",
			"addressLocality": "Kuala Lumpur",
			"postalCode": "50250",
			"addressCountry": "MY"
		}
	}`))

	got := New().Extract(markup)
	require.Len(t, got, 1)
	assert.Equal(t, "Lot 1, Jalan Sultan Ismail, Kuala Lumpur, 50250, MY", got[0].Address)
	assert.True(t, got[0].HasAddress)
}

func TestExtract_GraphFlattened(t *testing.T) {
	markup := page(ldBlock(`{"@context": "https://schema.org", "@graph": [{"name": "G1"}, {"name": "G2"}]}`))

	got := New().Extract(markup)
	require.Len(t, got, 2)
	assert.Equal(t, "G1", got[0].Name)
	assert.Equal(t, "G2", got[1].Name)
}

func TestExtract_NFCNormalizesNames(t *testing.T) {
	// JSON escape for "e" followed by a combining acute accent.
	markup := page(ldBlock(`{"name": "Cafe\u0301 KL"}`))

	got := New().Extract(markup)
	require.Len(t, got, 1)
	assert.Equal(t, "Caf\u00e9 KL", got[0].Name)
}

func TestExtract_ServicesAttachedByPosition(t *testing.T) {
	markup := page(
		ldBlock(`[{"name": "A"}, {"name": "B"}]`),
		`<div class="services"><li>Drive-Thru</li><li>24 Hours</li></div>`,
		`<div class="services"><li><img title="McCafe" /></li><li><img alt="WiFi" /></li><li> </li></div>`,
	)

	e := New(WithServiceSelectors(ServiceSelectors{Container: ".services", Item: "li"}))
	got := e.Extract(markup)
	require.Len(t, got, 2)
	assert.Equal(t, []string{"Drive-Thru", "24 Hours"}, got[0].Services)
	assert.Equal(t, []string{"McCafe", "WiFi"}, got[1].Services)
}

func TestServiceGroups_IconLabelFallback(t *testing.T) {
	doc := mustDoc(t, page(
		`<ul class="services">`+
			`<li><span><img title="Breakfast" /></span></li>`+
			`<li title="Delivery"><img alt="ignored" /></li>`+
			`<li><img alt="" /><i title="Parking"></i></li>`+
			`<li><img /></li>`+
			`</ul>`,
	))

	got := ServiceGroups(doc, ServiceSelectors{Container: ".services", Item: "li"})
	require.Len(t, got, 1)
	assert.Equal(t, []string{"Breakfast", "Delivery", "Parking"}, got[0])
}

func TestExtract_ServiceCountMismatchPadsEmpty(t *testing.T) {
	markup := page(
		ldBlock(`[{"name": "A"}, {"name": "B"}, {"name": "C"}]`),
		`<ul class="services"><li>Drive-Thru</li></ul>`,
	)

	e := New(WithServiceSelectors(ServiceSelectors{Container: ".services"}))
	got := e.Extract(markup)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"Drive-Thru"}, got[0].Services)
	assert.Equal(t, []string{}, got[1].Services)
	assert.Equal(t, []string{}, got[2].Services)
}

func TestServiceGroups_Disabled(t *testing.T) {
	doc := mustDoc(t, page(`<ul class="services"><li>x</li></ul>`))
	assert.Nil(t, ServiceGroups(doc, ServiceSelectors{}))
}

func TestServiceGroups_KeepsDuplicatesInOrder(t *testing.T) {
	doc := mustDoc(t, page(`<ul class="services"><li>B</li><li>A</li><li>B</li></ul>`))
	groups := ServiceGroups(doc, ServiceSelectors{Container: ".services"})
	require.Len(t, groups, 1)
	assert.Equal(t, []string{"B", "A", "B"}, groups[0])
}

func TestAttachServices_MoreGroupsThanOutlets(t *testing.T) {
	outlets := New().Extract(page(ldBlock(`{"name": "A"}`)))
	got := AttachServices(outlets, [][]string{{"x"}, {"y"}})
	require.Len(t, got, 1)
	assert.Equal(t, []string{"x"}, got[0].Services)
}
