package store

import "database/sql"

// Item is a row of the items table.
type Item struct {
	ID       int64
	Name     sql.NullString
	Quantity sql.NullInt64
	Cost     float64
}

// Column is one row of PRAGMA table_info.
type Column struct {
	CID     int            `json:"cid"`
	Name    string         `json:"name"`
	Type    string         `json:"type"`
	NotNull bool           `json:"notNull"`
	Default sql.NullString `json:"-"`
	PK      int            `json:"pk"`
}

// ItemColumns lists the columns of a fully initialized items table, in order.
var ItemColumns = []string{"id", "name", "quantity", "cost"}

// HasColumn reports whether cols contains a column with the given name.
func HasColumn(cols []Column, name string) bool {
	for _, c := range cols {
		if c.Name == name {
			return true
		}
	}
	return false
}

// ColumnNames returns the names of cols in table order.
func ColumnNames(cols []Column) []string {
	names := make([]string, 0, len(cols))
	for _, c := range cols {
		names = append(names, c.Name)
	}
	return names
}

// StateOf derives the store state from the items table's columns. An empty
// slice means the table does not exist.
func StateOf(cols []Column) StoreState {
	if len(cols) == 0 {
		return StateUninitialized
	}
	for _, name := range ItemColumns[:3] {
		if !HasColumn(cols, name) {
			return StateSchemaMismatch
		}
	}
	if !HasColumn(cols, "cost") {
		if len(cols) != 3 {
			return StateSchemaMismatch
		}
		return StateNeedsMigration
	}
	if len(cols) != len(ItemColumns) {
		return StateSchemaMismatch
	}
	return StateReady
}
