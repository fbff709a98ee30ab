package sqlite

import "database/sql"

// migrations contains the SQL statements to set up the snapshot schema.
// These run on startup to ensure tables exist. Dates are stored as Unix
// seconds for obligations and Unix nanoseconds for payments, since payment
// ordering within a day matters.
const schema = `
CREATE TABLE IF NOT EXISTS obligations (
    id TEXT PRIMARY KEY,
    type TEXT NOT NULL,
    branch TEXT NOT NULL DEFAULT '',
    date INTEGER NOT NULL,
    customer_name TEXT NOT NULL,
    customer_phone TEXT NOT NULL DEFAULT '',
    customer_email TEXT NOT NULL DEFAULT '',
    amount INTEGER NOT NULL,
    reference TEXT NOT NULL DEFAULT '',
    shift TEXT NOT NULL DEFAULT '',
    handled_by TEXT NOT NULL DEFAULT '',
    note TEXT NOT NULL DEFAULT '',
    event_date INTEGER
);

CREATE TABLE IF NOT EXISTS payments (
    id TEXT PRIMARY KEY,
    obligation_id TEXT NOT NULL,
    amount INTEGER NOT NULL,
    date INTEGER NOT NULL,
    note TEXT NOT NULL DEFAULT '',
    recorded_by TEXT NOT NULL DEFAULT '',
    FOREIGN KEY (obligation_id) REFERENCES obligations(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_obligations_type ON obligations(type);
CREATE INDEX IF NOT EXISTS idx_payments_obligation_id ON payments(obligation_id);
`

// runMigrations executes the schema setup.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
