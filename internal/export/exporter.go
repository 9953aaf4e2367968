package export

import (
	"context"
	"os"
	"path"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outlet-cli/internal/model"
)

// Exporter writes a local snapshot and optionally mirrors it to a bucket.
type Exporter struct {
	Path     string
	Uploader Uploader // nil disables upload
	Prefix   string   // object key prefix, e.g. "exports"
}

// Result describes where a snapshot was written.
type Result struct {
	Path     string `json:"path"`
	Location string `json:"location,omitempty"`
	Rows     int    `json:"rows"`
}

// Export writes outlets to e.Path and uploads the same bytes.
func (e *Exporter) Export(ctx context.Context, outlets []model.Outlet) (*Result, error) {
	if e.Path == "" {
		return nil, eris.New("export: path is required")
	}
	data, err := EncodeXLSX(outlets)
	if err != nil {
		return nil, err
	}

	if dir := filepath.Dir(e.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, eris.Wrapf(err, "export: create %s", dir)
		}
	}
	if err := os.WriteFile(e.Path, data, 0o644); err != nil { //nolint:gosec
		return nil, eris.Wrapf(err, "export: write %s", e.Path)
	}
	res := &Result{Path: e.Path, Rows: len(outlets)}
	zap.L().Info("export: wrote snapshot", zap.String("path", e.Path), zap.Int("rows", len(outlets)))

	if e.Uploader != nil {
		key := path.Join(e.Prefix, filepath.Base(e.Path))
		loc, err := e.Uploader.Upload(ctx, key, data, XLSXContentType)
		if err != nil {
			return res, err
		}
		res.Location = loc
	}
	return res, nil
}
