package sqlite

import (
	"context"

	"github.com/maloquacious/stockroom/internal/logger"
	"github.com/maloquacious/stockroom/internal/store"
)

// Init opens the database at dbPath and initializes its schema. On failure
// the store is closed and the first error is returned.
func Init(ctx context.Context, dbPath string, log logger.Logger) (*SQLiteStore, store.Report, error) {
	s := New(dbPath, log)
	if err := s.Open(ctx); err != nil {
		return nil, store.Report{}, err
	}

	report, err := s.Initialize(ctx)
	if err != nil {
		s.Close()
		return nil, store.Report{}, err
	}

	return s, report, nil
}

// InitResult is the outcome of an asynchronous Init. Store is nil when Err
// is set.
type InitResult struct {
	Store  *SQLiteStore
	Report store.Report
	Err    error
}

// InitAsync runs Init on its own goroutine. The returned channel receives
// exactly one result and is then closed.
func InitAsync(ctx context.Context, dbPath string, log logger.Logger) <-chan InitResult {
	ch := make(chan InitResult, 1)
	go func() {
		defer close(ch)
		s, report, err := Init(ctx, dbPath, log)
		ch <- InitResult{Store: s, Report: report, Err: err}
	}()
	return ch
}
