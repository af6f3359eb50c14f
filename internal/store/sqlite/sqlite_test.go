package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maloquacious/stockroom/internal/logger"
	"github.com/maloquacious/stockroom/internal/store"
)

// seed runs stmts against a fresh connection to path and closes it.
func seed(t *testing.T, path string, stmts ...string) {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()
	for _, stmt := range stmts {
		_, err := db.Exec(stmt)
		require.NoError(t, err, stmt)
	}
}

func initStore(t *testing.T, path string) (*SQLiteStore, store.Report) {
	t.Helper()
	s, report, err := Init(context.Background(), path, logger.Discard)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, report
}

func TestInit_FreshStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), store.DefaultDBFile)

	s, report := initStore(t, path)
	assert.True(t, report.CostAdded)

	cols, err := s.Columns(ctx)
	require.NoError(t, err)
	require.Equal(t, store.ItemColumns, store.ColumnNames(cols))

	types := map[string]string{}
	for _, c := range cols {
		types[c.Name] = c.Type
	}
	assert.Equal(t, map[string]string{"id": "INTEGER", "name": "TEXT", "quantity": "INTEGER", "cost": "REAL"}, types)
	assert.Equal(t, 1, cols[0].PK)
	require.True(t, cols[3].Default.Valid)
	assert.Equal(t, "0", cols[3].Default.String)

	state, err := s.CheckState(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.StateReady, state)

	_, err = s.DB().ExecContext(ctx, `INSERT INTO items (name, quantity) VALUES ('hex bolt', 40)`)
	require.NoError(t, err)
	var item store.Item
	err = s.DB().QueryRowContext(ctx, `SELECT id, name, quantity, cost FROM items`).
		Scan(&item.ID, &item.Name, &item.Quantity, &item.Cost)
	require.NoError(t, err)
	assert.Equal(t, int64(1), item.ID)
	assert.Equal(t, "hex bolt", item.Name.String)
	assert.Equal(t, int64(40), item.Quantity.Int64)
	assert.Equal(t, 0.0, item.Cost)
}

func TestInit_Idempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), store.DefaultDBFile)

	first, report := initStore(t, path)
	require.True(t, report.CostAdded)
	before, err := first.Columns(ctx)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, report := initStore(t, path)
	assert.False(t, report.CostAdded)
	after, err := second.Columns(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	// a second pass over the same open handle is also a no-op
	report, err = second.Initialize(ctx)
	require.NoError(t, err)
	assert.False(t, report.CostAdded)
}

func TestInit_ExistingTableWithoutCost(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), store.DefaultDBFile)
	seed(t, path,
		createItemsTable,
		`INSERT INTO items (name, quantity) VALUES ('washer', 500)`,
		`INSERT INTO items (name, quantity) VALUES ('nut', NULL)`,
		`INSERT INTO items (name, quantity) VALUES (NULL, 7)`,
	)

	s, report := initStore(t, path)
	assert.True(t, report.CostAdded)

	rows, err := s.DB().QueryContext(ctx, `SELECT id, name, quantity, cost FROM items ORDER BY id`)
	require.NoError(t, err)
	defer rows.Close()

	var got []store.Item
	for rows.Next() {
		var item store.Item
		require.NoError(t, rows.Scan(&item.ID, &item.Name, &item.Quantity, &item.Cost))
		got = append(got, item)
	}
	require.NoError(t, rows.Err())

	want := []store.Item{
		{ID: 1, Name: sql.NullString{String: "washer", Valid: true}, Quantity: sql.NullInt64{Int64: 500, Valid: true}},
		{ID: 2, Name: sql.NullString{String: "nut", Valid: true}},
		{ID: 3, Quantity: sql.NullInt64{Int64: 7, Valid: true}},
	}
	assert.Equal(t, want, got)
}

func TestInit_ExistingTableWithCost(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), store.DefaultDBFile)
	seed(t, path,
		`CREATE TABLE items (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT, quantity INTEGER, cost REAL DEFAULT 5)`,
		`INSERT INTO items (name, quantity, cost) VALUES ('gasket', 12, 2.75)`,
		`INSERT INTO items (name, quantity) VALUES ('o-ring', 90)`,
	)

	s, report := initStore(t, path)
	assert.False(t, report.CostAdded)

	cols, err := s.Columns(ctx)
	require.NoError(t, err)
	require.Len(t, cols, 4)
	assert.Equal(t, "5", cols[3].Default.String)

	var costs []float64
	rows, err := s.DB().QueryContext(ctx, `SELECT cost FROM items ORDER BY id`)
	require.NoError(t, err)
	defer rows.Close()
	for rows.Next() {
		var c float64
		require.NoError(t, rows.Scan(&c))
		costs = append(costs, c)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []float64{2.75, 5}, costs)
}

func TestInit_UnwritablePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "no", "such", "dir", store.DefaultDBFile)

	s, _, err := Init(context.Background(), path, logger.Discard)
	require.Error(t, err)
	assert.Nil(t, s)

	var openErr *store.StorageOpenError
	require.True(t, errors.As(err, &openErr), "got %T: %v", err, err)
	assert.Equal(t, path, openErr.Path)
	assert.Equal(t, store.KindStorageOpen, store.KindOf(err))

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestInitialize_AlterFailureIsSchemaError(t *testing.T) {
	path := filepath.Join(t.TempDir(), store.DefaultDBFile)
	// A view named items satisfies CREATE TABLE IF NOT EXISTS but cannot be altered.
	seed(t, path, `CREATE VIEW items AS SELECT 1 AS id, 'a' AS name, 2 AS quantity`)

	s, _, err := Init(context.Background(), path, logger.Discard)
	require.Error(t, err)
	assert.Nil(t, s)

	var schemaErr *store.SchemaError
	require.True(t, errors.As(err, &schemaErr), "got %T: %v", err, err)
	assert.Equal(t, addCostColumn, schemaErr.Stmt)
	assert.Equal(t, store.KindSchema, store.KindOf(err))
}

func TestInitialize_IntrospectionFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), store.DefaultDBFile)
	// items survives CREATE TABLE IF NOT EXISTS, but its columns cannot be
	// read once the table behind it is gone.
	seed(t, path,
		`CREATE TABLE t (x)`,
		`CREATE VIEW items AS SELECT x AS id FROM t`,
		`DROP TABLE t`,
	)

	s, report, err := Init(context.Background(), path, logger.Discard)
	require.Error(t, err)
	assert.Nil(t, s)
	assert.False(t, report.CostAdded)

	var introErr *store.IntrospectionError
	require.True(t, errors.As(err, &introErr), "got %T: %v", err, err)
	assert.Equal(t, "items", introErr.Table)
	assert.Equal(t, store.KindIntrospection, store.KindOf(err))

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()
	var ddl string
	require.NoError(t, db.QueryRow(`SELECT sql FROM sqlite_master WHERE name = 'items'`).Scan(&ddl))
	assert.NotContains(t, ddl, "cost")
}

func TestInitialize_CanceledContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), store.DefaultDBFile)
	s := New(path, logger.Discard)
	require.NoError(t, s.Open(context.Background()))
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Initialize(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, store.Kind(0), store.KindOf(err))
}

func TestInitialize_NotOpen(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), store.DefaultDBFile), logger.Discard)

	_, err := s.Initialize(context.Background())
	assert.ErrorIs(t, err, store.ErrNotOpen)

	_, err = s.Columns(context.Background())
	assert.ErrorIs(t, err, store.ErrNotOpen)

	state, err := s.CheckState(context.Background())
	assert.ErrorIs(t, err, store.ErrNotOpen)
	assert.Equal(t, store.StateMissing, state)

	assert.Nil(t, s.DB())
	assert.NoError(t, s.Close())
}

func TestInitAsync(t *testing.T) {
	path := filepath.Join(t.TempDir(), store.DefaultDBFile)

	ch := InitAsync(context.Background(), path, logger.Discard)
	res := <-ch
	require.NoError(t, res.Err)
	require.NotNil(t, res.Store)
	t.Cleanup(func() { res.Store.Close() })
	assert.True(t, res.Report.CostAdded)
	assert.Equal(t, path, res.Store.Path())

	_, open := <-ch
	assert.False(t, open, "channel should be closed after the result")
}

func TestInitAsync_Failure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", store.DefaultDBFile)

	res := <-InitAsync(context.Background(), path, logger.Discard)
	assert.Nil(t, res.Store)
	assert.Equal(t, store.KindStorageOpen, store.KindOf(res.Err))
}

func TestCheckState(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		stmts []string
		want  store.StoreState
	}{
		{"empty file", nil, store.StateUninitialized},
		{"base table", []string{createItemsTable}, store.StateNeedsMigration},
		{"full table", []string{createItemsTable, addCostColumn}, store.StateReady},
		{"foreign table", []string{`CREATE TABLE items (sku TEXT)`}, store.StateSchemaMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), store.DefaultDBFile)
			require.NoError(t, os.WriteFile(path, nil, 0o644))
			seed(t, path, tt.stmts...)

			s := NewReadOnly(path, logger.Discard)
			require.NoError(t, s.Open(ctx))
			defer s.Close()

			state, err := s.CheckState(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, state)
		})
	}
}

func TestReadOnlyOpen_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), store.DefaultDBFile)

	s := NewReadOnly(path, logger.Discard)
	err := s.Open(context.Background())
	require.Error(t, err)
	assert.Equal(t, store.KindStorageOpen, store.KindOf(err))
	assert.Nil(t, s.DB())

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "read-only open created %s", path)
}

func TestReadOnlyDSN(t *testing.T) {
	dsn := readOnlyDSN("/var/lib/stock room/inventory.db")
	assert.Equal(t, "file:/var/lib/stock%20room/inventory.db?_pragma=busy_timeout%285000%29&_pragma=query_only%281%29&mode=ro", dsn)
}

func TestReadOnlyRejectsWrites(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), store.DefaultDBFile)
	first, _ := initStore(t, path)
	require.NoError(t, first.Close())

	s := NewReadOnly(path, logger.Discard)
	require.NoError(t, s.Open(ctx))
	defer s.Close()

	_, err := s.DB().ExecContext(ctx, `INSERT INTO items (name) VALUES ('rivet')`)
	assert.Error(t, err)
}
