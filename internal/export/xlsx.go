// Package export writes outlet snapshots to spreadsheets and object storage.
package export

import (
	"bytes"
	"io"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/outlet-cli/internal/model"
)

// SheetName is the worksheet outlets are written to.
const SheetName = "Outlets"

// Columns is the header row of every snapshot.
var Columns = []string{"Name", "Address", "Phone", "Waze Link", "Latitude", "Longitude", "Services"}

// serviceCellSeparator joins services inside one cell.
const serviceCellSeparator = ", "

// WriteXLSX renders outlets as a workbook. Absent values are empty cells.
func WriteXLSX(w io.Writer, outlets []model.Outlet) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(SheetName)
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	header := sheet.AddRow()
	for _, c := range Columns {
		header.AddCell().SetString(c)
	}

	for _, o := range outlets {
		row := sheet.AddRow()
		row.AddCell().SetString(o.Name)
		row.AddCell().SetString(o.Address)
		row.AddCell().SetString(o.Phone)
		row.AddCell().SetString(o.ReferenceLink)
		if o.Coordinates != nil {
			row.AddCell().SetFloat(o.Coordinates.Latitude)
			row.AddCell().SetFloat(o.Coordinates.Longitude)
		} else {
			row.AddCell()
			row.AddCell()
		}
		row.AddCell().SetString(strings.Join(o.Services, serviceCellSeparator))
	}

	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "export: write workbook")
	}
	return nil
}

// EncodeXLSX returns the workbook bytes for outlets.
func EncodeXLSX(outlets []model.Outlet) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteXLSX(&buf, outlets); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ReadXLSX loads a snapshot written by WriteXLSX. Columns are located by
// header name so reordered sheets still parse.
func ReadXLSX(path string) ([]model.Outlet, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "export: open %s", path)
	}
	return readWorkbook(f)
}

// DecodeXLSX parses snapshot bytes.
func DecodeXLSX(data []byte) ([]model.Outlet, error) {
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, eris.Wrap(err, "export: open workbook")
	}
	return readWorkbook(f)
}

func readWorkbook(f *xlsx.File) ([]model.Outlet, error) {
	sheet, ok := f.Sheet[SheetName]
	if !ok {
		if len(f.Sheets) == 0 {
			return nil, eris.New("export: workbook has no sheets")
		}
		sheet = f.Sheets[0]
	}
	if len(sheet.Rows) == 0 {
		return nil, eris.New("export: sheet has no header row")
	}

	index := make(map[string]int, len(Columns))
	for i, name := range rowToStrings(sheet.Rows[0]) {
		index[strings.TrimSpace(name)] = i
	}
	if _, ok := index["Name"]; !ok {
		return nil, eris.New("export: sheet has no Name column")
	}

	outlets := make([]model.Outlet, 0, len(sheet.Rows)-1)
	for _, row := range sheet.Rows[1:] {
		cells := rowToStrings(row)
		get := func(col string) string {
			i, ok := index[col]
			if !ok || i >= len(cells) {
				return ""
			}
			return strings.TrimSpace(cells[i])
		}

		name := get("Name")
		if name == "" {
			continue
		}
		o := model.Outlet{
			Name:          name,
			Address:       get("Address"),
			Phone:         get("Phone"),
			ReferenceLink: get("Waze Link"),
			Services:      splitServiceCell(get("Services")),
		}
		o.HasAddress = o.Address != ""
		lat, latErr := strconv.ParseFloat(get("Latitude"), 64)
		lng, lngErr := strconv.ParseFloat(get("Longitude"), 64)
		if latErr == nil && lngErr == nil {
			o.Coordinates = model.NewCoordinates(lat, lng)
		}
		outlets = append(outlets, o)
	}
	return outlets, nil
}

func splitServiceCell(s string) []string {
	if s == "" {
		return []string{}
	}
	parts := strings.Split(s, serviceCellSeparator)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}
