// Package store persists outlets keyed on name in Postgres or SQLite.
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/outlet-cli/internal/model"
)

// Sentinel errors. Compare with errors.Is.
var (
	ErrSchemaMissing = errors.New("store: outlets table does not exist; run `outlet-cli migrate`")
	ErrNotFound      = errors.New("store: outlet not found")
	ErrEmptyName     = errors.New("store: outlet name is required")
)

// OutletStore is the persistence interface for outlets. Upserts are keyed
// on name and applied in a single transaction per batch. Rows are never
// deleted.
type OutletStore interface {
	UpsertOutlets(ctx context.Context, outlets []model.Outlet) (int64, error)
	ListOutlets(ctx context.Context) ([]model.StoredOutlet, error)
	GetOutlet(ctx context.Context, name string) (*model.StoredOutlet, error)
	Ping(ctx context.Context) error
	CheckSchema(ctx context.Context) error
	Close() error
}

// outletColumns is the write order used by both backends.
var outletColumns = []string{
	"name", "address", "phone", "waze_link", "latitude", "longitude", "services", "updated_at",
}

const selectOutlets = `SELECT id, name, address, phone, waze_link, latitude, longitude, services, created_at, updated_at FROM outlets`

// prepareBatch validates names and collapses duplicates so one statement
// never touches the same row twice.
func prepareBatch(outlets []model.Outlet) ([]model.Outlet, error) {
	for i, o := range outlets {
		if strings.TrimSpace(o.Name) == "" {
			return nil, eris.Wrapf(ErrEmptyName, "batch index %d", i)
		}
	}
	return model.Dedupe(outlets), nil
}

// outletRow returns the column values for o in outletColumns order. Absent
// optional values become NULL.
func outletRow(o model.Outlet, now time.Time) []any {
	var lat, lng *float64
	if o.Coordinates != nil {
		lat = &o.Coordinates.Latitude
		lng = &o.Coordinates.Longitude
	}
	var address *string
	if o.HasAddress {
		address = nullString(o.Address)
	}
	return []any{
		o.Name,
		address,
		nullString(o.Phone),
		nullString(o.ReferenceLink),
		lat,
		lng,
		model.JoinServices(o.Services),
		now,
	}
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// rowScanner is satisfied by pgx.Row, pgx.Rows, *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanOutlet(row rowScanner) (*model.StoredOutlet, error) {
	var (
		s        model.StoredOutlet
		services *string
	)
	if err := row.Scan(&s.ID, &s.Name, &s.Address, &s.Phone, &s.WazeLink,
		&s.Latitude, &s.Longitude, &services, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.Services = model.SplitServices(services)
	return &s, nil
}
