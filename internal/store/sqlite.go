package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/outlet-cli/internal/model"
)

// SQLiteStore implements OutletStore using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS outlets (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL UNIQUE,
	address    TEXT,
	phone      TEXT,
	waze_link  TEXT,
	latitude   REAL,
	longitude  REAL,
	services   TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);
`

const sqliteUpsert = `
INSERT INTO outlets (name, address, phone, waze_link, latitude, longitude, services, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(name) DO UPDATE SET
	address    = excluded.address,
	phone      = excluded.phone,
	waze_link  = excluded.waze_link,
	latitude   = CASE WHEN excluded.latitude IS NULL AND outlets.address IS excluded.address THEN outlets.latitude ELSE excluded.latitude END,
	longitude  = CASE WHEN excluded.latitude IS NULL AND outlets.address IS excluded.address THEN outlets.longitude ELSE excluded.longitude END,
	services   = excluded.services,
	updated_at = excluded.updated_at`

// Migrate creates the outlets table. The pipeline never calls it.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteSchema)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks the database file is usable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

// CheckSchema verifies the outlets table exists. It never creates it.
func (s *SQLiteStore) CheckSchema(ctx context.Context) error {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = 'outlets'`,
	).Scan(&n)
	if err != nil {
		return eris.Wrap(err, "sqlite: check schema")
	}
	if n == 0 {
		return eris.Wrap(ErrSchemaMissing, "sqlite: check schema")
	}
	return nil
}

// UpsertOutlets writes the batch in one transaction with a prepared
// INSERT ... ON CONFLICT(name) DO UPDATE. Any failure rolls back the batch.
func (s *SQLiteStore) UpsertOutlets(ctx context.Context, outlets []model.Outlet) (int64, error) {
	batch, err := prepareBatch(outlets)
	if err != nil {
		return 0, err
	}
	if len(batch) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, sqliteUpsert)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare upsert")
	}
	defer stmt.Close() //nolint:errcheck

	now := time.Now().UTC()
	var total int64
	for _, o := range batch {
		res, err := stmt.ExecContext(ctx, outletRow(o, now)...)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert outlet %q", o.Name)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: rows affected")
		}
		total += n
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit tx")
	}
	return total, nil
}

// ListOutlets returns every stored outlet ordered by id.
func (s *SQLiteStore) ListOutlets(ctx context.Context) ([]model.StoredOutlet, error) {
	rows, err := s.db.QueryContext(ctx, selectOutlets+` ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list outlets")
	}
	defer rows.Close() //nolint:errcheck

	out := []model.StoredOutlet{}
	for rows.Next() {
		o, err := scanOutlet(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan outlet")
		}
		out = append(out, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate outlets")
	}
	return out, nil
}

// GetOutlet returns the outlet named name or ErrNotFound.
func (s *SQLiteStore) GetOutlet(ctx context.Context, name string) (*model.StoredOutlet, error) {
	o, err := scanOutlet(s.db.QueryRowContext(ctx, selectOutlets+` WHERE name = ?`, name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "sqlite: get outlet %q", name)
		}
		return nil, eris.Wrapf(err, "sqlite: get outlet %q", name)
	}
	return o, nil
}
