package export

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/outlet-cli/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func sampleOutlets() []model.Outlet {
	return []model.Outlet{
		{
			Name:          "McDonald's Bukit Bintang",
			Address:       "Jalan Bukit Bintang, 55100 Kuala Lumpur",
			HasAddress:    true,
			Phone:         "03-2141 3939",
			ReferenceLink: "https://waze.com/ul?ll=3.1466,101.7108",
			Coordinates:   &model.Coordinates{Latitude: 3.1466, Longitude: 101.7108},
			Services:      []string{"24 Hours", "McDelivery"},
		},
		{
			Name:       "McDonald's Pudu",
			Address:    "Jalan Pudu, Kuala Lumpur",
			HasAddress: true,
			Services:   []string{},
		},
	}
}

func TestWriteXLSX_Layout(t *testing.T) {
	data, err := EncodeXLSX(sampleOutlets())
	require.NoError(t, err)

	f, err := xlsx.OpenBinary(data)
	require.NoError(t, err)
	sheet, ok := f.Sheet[SheetName]
	require.True(t, ok)
	require.Len(t, sheet.Rows, 3)

	assert.Equal(t, Columns, rowToStrings(sheet.Rows[0]))
	first := rowToStrings(sheet.Rows[1])
	assert.Equal(t, "McDonald's Bukit Bintang", first[0])
	assert.Equal(t, "3.1466", first[4])
	assert.Equal(t, "101.7108", first[5])
	assert.Equal(t, "24 Hours, McDelivery", first[6])

	second := rowToStrings(sheet.Rows[2])
	assert.Equal(t, "", second[2], "absent phone is an empty cell")
	assert.Equal(t, "", second[4], "unresolved latitude is an empty cell")
	assert.Equal(t, "", second[5])
}

func TestXLSX_RoundTrip(t *testing.T) {
	data, err := EncodeXLSX(sampleOutlets())
	require.NoError(t, err)

	got, err := DecodeXLSX(data)
	require.NoError(t, err)
	assert.Equal(t, sampleOutlets(), got)
}

func TestWriteXLSX_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, nil))

	got, err := DecodeXLSX(buf.Bytes())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestReadXLSX_ReorderedColumns(t *testing.T) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Sheet1")
	require.NoError(t, err)
	for _, r := range [][]string{
		{"Latitude", "Name", "Longitude", "Notes"},
		{"3.15", "Outlet A", "101.7", "x"},
		{"", "", "", "blank name skipped"},
		{"not a number", "Outlet B", "101.7", ""},
	} {
		row := sheet.AddRow()
		for _, c := range r {
			row.AddCell().SetString(c)
		}
	}
	path := filepath.Join(t.TempDir(), "outlets.xlsx")
	require.NoError(t, f.Save(path))

	got, err := ReadXLSX(path)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Outlet A", got[0].Name)
	require.NotNil(t, got[0].Coordinates)
	assert.InDelta(t, 3.15, got[0].Coordinates.Latitude, 1e-9)
	assert.False(t, got[0].HasAddress)
	assert.Nil(t, got[1].Coordinates)
}

func TestReadXLSX_Errors(t *testing.T) {
	_, err := ReadXLSX(filepath.Join(t.TempDir(), "missing.xlsx"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "export: open")

	f := xlsx.NewFile()
	sheet, err := f.AddSheet(SheetName)
	require.NoError(t, err)
	sheet.AddRow().AddCell().SetString("Title")
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	_, err = DecodeXLSX(buf.Bytes())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no Name column")
}
