package store

import (
	"errors"
	"fmt"
)

// ErrNotOpen is returned by store operations called before Open.
var ErrNotOpen = errors.New("database not opened")

// Kind classifies an initialization failure.
type Kind int

const (
	KindStorageOpen Kind = iota + 1
	KindSchema
	KindIntrospection
)

func (k Kind) String() string {
	switch k {
	case KindStorageOpen:
		return "storage open"
	case KindSchema:
		return "schema"
	case KindIntrospection:
		return "introspection"
	}
	return "unknown"
}

// StorageOpenError means the backing file could not be opened or created.
type StorageOpenError struct {
	Path string
	Err  error
}

func (e *StorageOpenError) Error() string {
	return fmt.Sprintf("open %s: %v", e.Path, e.Err)
}

func (e *StorageOpenError) Unwrap() error { return e.Err }
func (e *StorageOpenError) Kind() Kind    { return KindStorageOpen }

// SchemaError means a DDL statement failed.
type SchemaError struct {
	Stmt string
	Err  error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema statement %q: %v", e.Stmt, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }
func (e *SchemaError) Kind() Kind    { return KindSchema }

// IntrospectionError means the column metadata query failed. A missing
// column is not an error.
type IntrospectionError struct {
	Table string
	Err   error
}

func (e *IntrospectionError) Error() string {
	return fmt.Sprintf("inspect columns of %s: %v", e.Table, e.Err)
}

func (e *IntrospectionError) Unwrap() error { return e.Err }
func (e *IntrospectionError) Kind() Kind    { return KindIntrospection }

// KindOf reports the Kind of the first typed initialization error in err's
// chain, or 0 if there is none.
func KindOf(err error) Kind {
	var k interface{ Kind() Kind }
	if errors.As(err, &k) {
		return k.Kind()
	}
	return 0
}
