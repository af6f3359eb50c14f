package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"path/filepath"

	"github.com/maloquacious/stockroom/internal/logger"
	"github.com/maloquacious/stockroom/internal/store"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using modernc.org/sqlite.
type SQLiteStore struct {
	dbPath   string
	db       *sql.DB
	log      logger.Logger
	readOnly bool
}

var _ store.Store = (*SQLiteStore)(nil)

// New creates a new SQLiteStore for the database file at dbPath.
func New(dbPath string, log logger.Logger) *SQLiteStore {
	if log == nil {
		log = logger.Default
	}
	return &SQLiteStore{
		dbPath: dbPath,
		log:    log,
	}
}

// NewReadOnly creates a SQLiteStore for inspection. Open fails if the file
// does not exist, and every write is rejected, Initialize included.
func NewReadOnly(dbPath string, log logger.Logger) *SQLiteStore {
	s := New(dbPath, log)
	s.readOnly = true
	return s
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.dbPath
}

// Open opens the SQLite database with safe defaults, creating the file if
// needed unless the store is read-only. Every failure is a
// *store.StorageOpenError.
func (s *SQLiteStore) Open(ctx context.Context) error {
	dsn := s.dbPath
	if s.readOnly {
		dsn = readOnlyDSN(s.dbPath)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return &store.StorageOpenError{Path: s.dbPath, Err: err}
	}

	// One connection for the life of the process.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return &store.StorageOpenError{Path: s.dbPath, Err: err}
	}

	// Apply safe defaults
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	if s.readOnly {
		// set per connection by readOnlyDSN
		pragmas = nil
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return &store.StorageOpenError{Path: s.dbPath, Err: fmt.Errorf("failed to set pragma %q: %w", pragma, err)}
		}
	}

	s.db = db
	s.log.Debug("opened %s", s.dbPath)
	return nil
}

// readOnlyDSN opens path without create or write access. The _pragma
// parameters are applied by the driver to every new connection.
func readOnlyDSN(path string) string {
	u := url.URL{Scheme: "file", Opaque: (&url.URL{Path: filepath.ToSlash(path)}).EscapedPath()}
	q := url.Values{}
	q.Set("mode", "ro")
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "query_only(1)")
	u.RawQuery = q.Encode()
	return u.String()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}

// DB returns the open handle, or nil before Open.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Initialize brings the items table up to date. The create, introspect and
// alter statements run in order on a single connection, and the first
// failure is returned as is.
func (s *SQLiteStore) Initialize(ctx context.Context) (store.Report, error) {
	if s.db == nil {
		return store.Report{}, store.ErrNotOpen
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return store.Report{}, ctxErr
		}
		return store.Report{}, &store.StorageOpenError{Path: s.dbPath, Err: err}
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, createItemsTable); err != nil {
		return store.Report{}, &store.SchemaError{Stmt: createItemsTable, Err: err}
	}

	cols, err := tableInfo(ctx, conn)
	if err != nil {
		return store.Report{}, &store.IntrospectionError{Table: itemsTable, Err: err}
	}

	if store.HasColumn(cols, "cost") {
		s.log.Debug("%s: cost column present, nothing to migrate", s.dbPath)
		return store.Report{}, nil
	}

	if _, err := conn.ExecContext(ctx, addCostColumn); err != nil {
		return store.Report{}, &store.SchemaError{Stmt: addCostColumn, Err: err}
	}
	s.log.Info("%s: added cost column to items", s.dbPath)

	return store.Report{CostAdded: true}, nil
}

// Columns returns the column metadata of the items table. It is empty if the
// table does not exist.
func (s *SQLiteStore) Columns(ctx context.Context) ([]store.Column, error) {
	if s.db == nil {
		return nil, store.ErrNotOpen
	}
	cols, err := tableInfo(ctx, s.db)
	if err != nil {
		return nil, &store.IntrospectionError{Table: itemsTable, Err: err}
	}
	return cols, nil
}

// CheckState returns the current state of the datastore.
func (s *SQLiteStore) CheckState(ctx context.Context) (store.StoreState, error) {
	if s.db == nil {
		return store.StateMissing, store.ErrNotOpen
	}

	cols, err := s.Columns(ctx)
	if err != nil {
		return store.StateUninitialized, err
	}

	return store.StateOf(cols), nil
}

// queryer is satisfied by both *sql.DB and *sql.Conn.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func tableInfo(ctx context.Context, q queryer) ([]store.Column, error) {
	rows, err := q.QueryContext(ctx, tableInfoItems)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []store.Column
	for rows.Next() {
		var (
			c       store.Column
			notNull int
		)
		if err := rows.Scan(&c.CID, &c.Name, &c.Type, &notNull, &c.Default, &c.PK); err != nil {
			return nil, err
		}
		c.NotNull = notNull != 0
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return cols, nil
}
