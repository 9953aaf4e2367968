package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outlet-cli/internal/model"
	"github.com/sells-group/outlet-cli/internal/pipeline"
)

func sampleResult() *pipeline.Result {
	return &pipeline.Result{
		RunID:     "run-42",
		Source:    "local_http",
		Extracted: 4,
		Matched:   2,
		Persisted: 2,
		Enrich:    pipeline.EnrichReport{Attempted: 1, Resolved: 1, Skipped: 1},
		Outlets: []model.Outlet{
			{
				Name:          "McDonald's Jalan Ipoh",
				Address:       "Jalan Ipoh, Kuala Lumpur",
				HasAddress:    true,
				Phone:         "03-4041 1234",
				ReferenceLink: "https://waze.com/ul?ll=3.17,101.69",
				Coordinates:   model.NewCoordinates(3.17, 101.69),
				Services:      []string{"24 Hours", "Drive-Thru"},
			},
			{Name: "McDonald's Pudu", Services: []string{}},
		},
	}
}

func TestPrintOutlets_AbsentValuesShowNA(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printOutlets(&buf, sampleResult().Outlets))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "NAME"))
	assert.Contains(t, lines[1], "3.170000")
	assert.Contains(t, lines[1], "24 Hours, Drive-Thru")
	assert.Equal(t, 6, strings.Count(lines[2], model.Absent))
}

func TestPrintRunResult_Table(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printRunResult(&buf, sampleResult(), false))

	out := buf.String()
	assert.Contains(t, out, "McDonald's Jalan Ipoh")
	assert.Contains(t, out, "run run-42: extracted=4 matched=2 geocoded=1/1 skipped=1 reused=0 persisted=2 source=local_http")
}

func TestPrintRunResult_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printRunResult(&buf, sampleResult(), true))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "run-42", got["run_id"])
	outlets := got["outlets"].([]any)
	require.Len(t, outlets, 2)
	pudu := outlets[1].(map[string]any)
	assert.Nil(t, pudu["address"])
	assert.Nil(t, pudu["geo"])
	assert.NotContains(t, buf.String(), model.Absent)
}
