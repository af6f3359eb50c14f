package sqlite

const itemsTable = "items"

// createItemsTable creates the base items table. It is a no-op once the
// table exists, whatever columns it has gained since.
const createItemsTable = `CREATE TABLE IF NOT EXISTS items (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT,
    quantity INTEGER
)`

// tableInfoItems lists the columns of items. It returns no rows when the
// table does not exist.
const tableInfoItems = `PRAGMA table_info(items)`

// addCostColumn is applied only when items has no cost column.
const addCostColumn = `ALTER TABLE items ADD COLUMN cost REAL DEFAULT 0`
