package postgres

import "database/sql"

// schema sets up the ledger tables and the notification triggers backing
// Subscribe. Statements are idempotent so they can run on every startup.
// Payments cascade with their obligation; the cache relies on the same
// rule on its side.
const schema = `
CREATE TABLE IF NOT EXISTS obligations (
    id TEXT PRIMARY KEY,
    type TEXT NOT NULL,
    branch TEXT NOT NULL DEFAULT '',
    date TIMESTAMPTZ NOT NULL,
    customer_name TEXT NOT NULL,
    customer_phone TEXT,
    customer_email TEXT,
    amount BIGINT NOT NULL CHECK (amount >= 0),
    reference TEXT,
    shift TEXT,
    handled_by TEXT NOT NULL DEFAULT '',
    note TEXT,
    event_date TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS payments (
    id TEXT PRIMARY KEY,
    obligation_id TEXT NOT NULL REFERENCES obligations(id) ON DELETE CASCADE,
    amount BIGINT NOT NULL CHECK (amount > 0),
    date TIMESTAMPTZ NOT NULL,
    note TEXT,
    recorded_by TEXT
);

CREATE INDEX IF NOT EXISTS idx_obligations_type_date ON obligations(type, date);
CREATE INDEX IF NOT EXISTS idx_obligations_branch ON obligations(branch);
CREATE INDEX IF NOT EXISTS idx_payments_obligation_id ON payments(obligation_id);

CREATE OR REPLACE FUNCTION notify_obligations_changed() RETURNS trigger AS $$
BEGIN
    PERFORM pg_notify('obligations_changed', '');
    RETURN NULL;
END;
$$ LANGUAGE plpgsql;

CREATE OR REPLACE FUNCTION notify_payments_changed() RETURNS trigger AS $$
BEGIN
    PERFORM pg_notify('payments_changed', '');
    RETURN NULL;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS obligations_changed ON obligations;
CREATE TRIGGER obligations_changed
    AFTER INSERT OR UPDATE OR DELETE ON obligations
    FOR EACH STATEMENT EXECUTE FUNCTION notify_obligations_changed();

DROP TRIGGER IF EXISTS payments_changed ON payments;
CREATE TRIGGER payments_changed
    AFTER INSERT OR UPDATE OR DELETE ON payments
    FOR EACH STATEMENT EXECUTE FUNCTION notify_payments_changed();
`

// Migrate executes the schema setup.
func Migrate(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}

// MigrateSelf runs the schema against this store's own pool.
func (s *Store) MigrateSelf() error {
	return Migrate(s.db)
}
