package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outlet-cli/internal/db"
	"github.com/sells-group/outlet-cli/internal/model"
)

func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresFromPool(mock), mock
}

var outletSelectColumns = []string{
	"id", "name", "address", "phone", "waze_link", "latitude", "longitude", "services", "created_at", "updated_at",
}

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }

func TestPostgres_UpsertOutlets(t *testing.T) {
	st, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{db.TempTableName("outlets")}, outletColumns).WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "outlets" .* ON CONFLICT \("name"\) DO UPDATE SET .*IS NOT DISTINCT FROM`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := st.UpsertOutlets(context.Background(), []model.Outlet{
		{Name: "A", Address: "Jalan A", HasAddress: true},
		{Name: "B", Address: "Jalan B", HasAddress: true},
		{Name: "A", Address: "Jalan A2", HasAddress: true},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpsertOutlets_EmptyNameTouchesNothing(t *testing.T) {
	st, mock := newMockPostgresStore(t)

	_, err := st.UpsertOutlets(context.Background(), []model.Outlet{{Name: "A"}, {Name: ""}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpsertOutlets_Empty(t *testing.T) {
	st, mock := newMockPostgresStore(t)

	n, err := st.UpsertOutlets(context.Background(), []model.Outlet{})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpsertOutlets_CopyErrorRollsBack(t *testing.T) {
	st, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{db.TempTableName("outlets")}, outletColumns).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err := st.UpsertOutlets(context.Background(), []model.Outlet{{Name: "A"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: upsert outlets")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ListOutlets(t *testing.T) {
	st, mock := newMockPostgresStore(t)
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT id, name, .* FROM outlets ORDER BY id`).
		WillReturnRows(pgxmock.NewRows(outletSelectColumns).
			AddRow(int64(1), "A", strPtr("Jalan A"), strPtr("03-1"), strPtr("https://waze.com/a"),
				floatPtr(3.1), floatPtr(101.6), strPtr("Drive-Thru|McCafe"), now, now).
			AddRow(int64(2), "B", strPtr("Jalan B"), strPtr("03-2"), strPtr("https://waze.com/b"),
				floatPtr(3.2), floatPtr(101.7), strPtr(""), now, now))

	rows, err := st.ListOutlets(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "A", rows[0].Name)
	assert.Equal(t, []string{"Drive-Thru", "McCafe"}, rows[0].Services)
	assert.Equal(t, []string{}, rows[1].Services)
	assert.InDelta(t, 101.7, *rows[1].Longitude, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ListOutlets_QueryError(t *testing.T) {
	st, mock := newMockPostgresStore(t)
	mock.ExpectQuery(`FROM outlets`).WillReturnError(errors.New("relation does not exist"))

	_, err := st.ListOutlets(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: list outlets")
}

func TestPostgres_GetOutlet(t *testing.T) {
	st, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`FROM outlets WHERE name = \$1`).
		WithArgs("McDonald's Imbi").
		WillReturnRows(pgxmock.NewRows(outletSelectColumns).
			AddRow(int64(7), "McDonald's Imbi", strPtr("Jalan Imbi"), strPtr("03-1"), strPtr("https://waze.com/x"),
				floatPtr(3.14), floatPtr(101.71), strPtr("24 Hours"), now, now))

	o, err := st.GetOutlet(context.Background(), "McDonald's Imbi")
	require.NoError(t, err)
	assert.Equal(t, int64(7), o.ID)
	assert.Equal(t, []string{"24 Hours"}, o.Services)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetOutlet_NotFound(t *testing.T) {
	st, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM outlets WHERE name = \$1`).
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows(outletSelectColumns))

	_, err := st.GetOutlet(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgres_CheckSchema(t *testing.T) {
	tests := []struct {
		name    string
		exists  bool
		wantErr error
	}{
		{name: "present", exists: true},
		{name: "missing", exists: false, wantErr: ErrSchemaMissing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, mock := newMockPostgresStore(t)
			mock.ExpectQuery(`SELECT to_regclass\('outlets'\) IS NOT NULL`).
				WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(tt.exists))

			err := st.CheckSchema(context.Background())
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgres_Ping(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	st := NewPostgresFromPool(mock)
	mock.ExpectPing().WillReturnError(errors.New("dial tcp: refused"))

	err = st.Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: ping")
}

func TestPostgres_NewPostgresBadDSN(t *testing.T) {
	_, err := NewPostgres(context.Background(), "postgres://%zz", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: parse config")
}
