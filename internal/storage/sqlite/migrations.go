package sqlite

import "database/sql"

// schema contains the SQL statements to set up the database schema.
// These run on startup to ensure tables exist.
//
// Event amounts are stored as TEXT because a split total may use the full
// uint64 range; balances are capped at MaxInt64 and fit INTEGER.
const schema = `
CREATE TABLE IF NOT EXISTS split_records (
    address BLOB PRIMARY KEY,
    data BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS balances (
    identity BLOB PRIMARY KEY,
    amount INTEGER NOT NULL CHECK (amount >= 0)
);

CREATE TABLE IF NOT EXISTS events (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    kind TEXT NOT NULL,
    address BLOB NOT NULL,
    actor BLOB NOT NULL,
    amount TEXT NOT NULL,
    participant_index INTEGER NOT NULL,
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_address ON events(address);
`

// runMigrations executes the schema setup.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
