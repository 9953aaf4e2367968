package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/outlet-cli/internal/db"
	"github.com/sells-group/outlet-cli/internal/model"
)

// PostgresStore implements OutletStore using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `mapstructure:"max_conns"`
	MinConns int32 `mapstructure:"min_conns"`
}

// Coordinates are kept when a run could not resolve them and the address
// has not changed. A new address always takes the incoming value, NULL
// included, so stale coordinates never outlive a move.
const (
	keepLatitude  = `CASE WHEN EXCLUDED.latitude IS NULL AND outlets.address IS NOT DISTINCT FROM EXCLUDED.address THEN outlets.latitude ELSE EXCLUDED.latitude END`
	keepLongitude = `CASE WHEN EXCLUDED.latitude IS NULL AND outlets.address IS NOT DISTINCT FROM EXCLUDED.address THEN outlets.longitude ELSE EXCLUDED.longitude END`
)

var outletUpsert = db.UpsertConfig{
	Table:        "outlets",
	Columns:      outletColumns,
	ConflictKeys: []string{"name"},
	UpdateExprs: map[string]string{
		"latitude":  keepLatitude,
		"longitude": keepLongitude,
	},
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool. Close does not close it.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool returns the underlying database pool for migrations and the
// geocode cache.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

// UpsertOutlets writes the batch in one transaction through a COPY-staged
// INSERT ... ON CONFLICT (name) DO UPDATE. Returns rows inserted or updated.
func (s *PostgresStore) UpsertOutlets(ctx context.Context, outlets []model.Outlet) (int64, error) {
	batch, err := prepareBatch(outlets)
	if err != nil {
		return 0, err
	}
	if len(batch) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	rows := make([][]any, len(batch))
	for i, o := range batch {
		rows[i] = outletRow(o, now)
	}

	n, err := db.BulkUpsert(ctx, s.pool, outletUpsert, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: upsert outlets")
	}
	return n, nil
}

// ListOutlets returns every stored outlet ordered by id.
func (s *PostgresStore) ListOutlets(ctx context.Context) ([]model.StoredOutlet, error) {
	rows, err := s.pool.Query(ctx, selectOutlets+` ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list outlets")
	}
	defer rows.Close()

	out := []model.StoredOutlet{}
	for rows.Next() {
		o, err := scanOutlet(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan outlet")
		}
		out = append(out, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate outlets")
	}
	return out, nil
}

// GetOutlet returns the outlet named name or ErrNotFound.
func (s *PostgresStore) GetOutlet(ctx context.Context, name string) (*model.StoredOutlet, error) {
	o, err := scanOutlet(s.pool.QueryRow(ctx, selectOutlets+` WHERE name = $1`, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "postgres: get outlet %q", name)
		}
		return nil, eris.Wrapf(err, "postgres: get outlet %q", name)
	}
	return o, nil
}

// Ping checks connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return eris.Wrap(err, "postgres: ping")
	}
	return nil
}

// CheckSchema verifies the outlets table exists. It never creates it.
func (s *PostgresStore) CheckSchema(ctx context.Context) error {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT to_regclass('outlets') IS NOT NULL`).Scan(&exists); err != nil {
		return eris.Wrap(err, "postgres: check schema")
	}
	if !exists {
		return eris.Wrap(ErrSchemaMissing, "postgres: check schema")
	}
	return nil
}

// Close releases the pool when the store owns it.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}
