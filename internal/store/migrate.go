package store

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outlet-cli/internal/db"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// migrationLockKey is the pg_advisory_lock key held while migrating.
const migrationLockKey = 4242001

const ensureLedgerSQL = `CREATE TABLE IF NOT EXISTS schema_migrations (
	id         SERIAL PRIMARY KEY,
	filename   TEXT NOT NULL UNIQUE,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`

// Migration is one embedded schema file.
type Migration struct {
	Name string
	SQL  string
}

// Migrations returns the embedded migrations in lexicographic order.
func Migrations() ([]Migration, error) {
	entries, err := fs.ReadDir(migrationFS, "migrations")
	if err != nil {
		return nil, eris.Wrap(err, "store: read migration dir")
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	out := make([]Migration, 0, len(entries))
	for _, e := range entries {
		data, err := migrationFS.ReadFile("migrations/" + e.Name())
		if err != nil {
			return nil, eris.Wrapf(err, "store: read migration %s", e.Name())
		}
		out = append(out, Migration{Name: e.Name(), SQL: string(data)})
	}
	return out, nil
}

// Migrate applies pending migrations under an advisory lock and records
// each in schema_migrations. Every file is idempotent, so a ledger lost
// after a partial run is safe to replay.
func Migrate(ctx context.Context, pool db.Pool) error {
	log := zap.L().With(zap.String("component", "store.migrate"))

	if _, err := pool.Exec(ctx, fmt.Sprintf("SELECT pg_advisory_lock(%d)", migrationLockKey)); err != nil {
		return eris.Wrap(err, "store: acquire migration advisory lock")
	}
	defer func() {
		if _, err := pool.Exec(ctx, fmt.Sprintf("SELECT pg_advisory_unlock(%d)", migrationLockKey)); err != nil {
			log.Warn("store: failed to release migration advisory lock", zap.Error(err))
		}
	}()

	if _, err := pool.Exec(ctx, ensureLedgerSQL); err != nil {
		return eris.Wrap(err, "store: ensure migration table")
	}

	migrations, err := Migrations()
	if err != nil {
		return err
	}

	applied, err := appliedMigrations(ctx, pool)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if applied[m.Name] {
			continue
		}

		log.Info("applying migration", zap.String("file", m.Name))
		if _, err := pool.Exec(ctx, m.SQL); err != nil {
			return eris.Wrapf(err, "store: apply migration %s", m.Name)
		}
		if _, err := pool.Exec(ctx,
			"INSERT INTO schema_migrations (filename, applied_at) VALUES ($1, now())",
			m.Name,
		); err != nil {
			return eris.Wrapf(err, "store: record migration %s", m.Name)
		}
		log.Info("migration applied", zap.String("file", m.Name))
	}
	return nil
}

// appliedMigrations returns the set of already-applied migration filenames.
func appliedMigrations(ctx context.Context, pool db.Pool) (map[string]bool, error) {
	rows, err := pool.Query(ctx, "SELECT filename FROM schema_migrations")
	if err != nil {
		return nil, eris.Wrap(err, "store: query applied migrations")
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "store: scan migration row")
		}
		applied[name] = true
	}
	return applied, rows.Err()
}

// MigrationScript renders every migration as one psql script for hosts
// reachable only through a shell. It runs in a single transaction and
// records each file in the ledger.
func MigrationScript() (string, error) {
	migrations, err := Migrations()
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("BEGIN;\n")
	fmt.Fprintf(&b, "SELECT pg_advisory_xact_lock(%d);\n", migrationLockKey)
	b.WriteString(ensureLedgerSQL + "\n")
	for _, m := range migrations {
		fmt.Fprintf(&b, "-- %s\n", m.Name)
		b.WriteString(strings.TrimSpace(m.SQL) + "\n")
		fmt.Fprintf(&b,
			"INSERT INTO schema_migrations (filename, applied_at) VALUES ('%s', now()) ON CONFLICT (filename) DO NOTHING;\n",
			strings.ReplaceAll(m.Name, "'", "''"),
		)
	}
	b.WriteString("COMMIT;\n")
	return b.String(), nil
}
