// Package sqlite persists the last successfully fetched ledger window to a
// local SQLite file. When the remote store is unreachable at startup, the
// snapshot is served instead of hard-failing; callers mark the result
// stale. The snapshot is never authoritative.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/tallyhouse/tally/internal/models"
)

// Fallback is the local snapshot store.
type Fallback struct {
	db *sql.DB
}

// Open creates a Fallback at the given path, creating parent directories
// and running migrations.
func Open(dbPath string) (*Fallback, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot database: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run snapshot migrations: %w", err)
	}
	return &Fallback{db: db}, nil
}

// Close closes the database file.
func (f *Fallback) Close() error { return f.db.Close() }

// Save replaces the stored snapshot for one kind with the given rows.
func (f *Fallback) Save(ctx context.Context, kind models.Kind, obligations []models.Obligation, payments []models.Payment) error {
	tx, err := f.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin snapshot transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM obligations WHERE type = ?", string(kind)); err != nil {
		return fmt.Errorf("failed to clear snapshot: %w", err)
	}

	for _, o := range obligations {
		var eventDate any
		if o.EventDate != nil {
			eventDate = o.EventDate.Unix()
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO obligations
			(id, type, branch, date, customer_name, customer_phone, customer_email,
			 amount, reference, shift, handled_by, note, event_date)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			o.ID, string(o.Kind), o.Branch, o.Date.Unix(),
			o.CustomerName, o.CustomerPhone, o.CustomerEmail,
			o.FaceAmount, o.Reference, o.Shift, o.HandledBy, o.Note, eventDate,
		)
		if err != nil {
			return fmt.Errorf("failed to insert snapshot obligation: %w", err)
		}
	}
	for _, p := range payments {
		_, err := tx.ExecContext(ctx, `INSERT INTO payments
			(id, obligation_id, amount, date, note, recorded_by)
			VALUES (?, ?, ?, ?, ?, ?)`,
			p.ID, p.ObligationID, p.Amount, p.Date.UnixNano(), p.Note, p.RecordedBy,
		)
		if err != nil {
			return fmt.Errorf("failed to insert snapshot payment: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return nil
}

// Load returns the stored snapshot for one kind. An empty snapshot returns
// empty slices, not an error.
func (f *Fallback) Load(ctx context.Context, kind models.Kind) ([]models.Obligation, []models.Payment, error) {
	rows, err := f.db.QueryContext(ctx, `SELECT
			id, type, branch, date, customer_name, customer_phone, customer_email,
			amount, reference, shift, handled_by, note, event_date
		FROM obligations WHERE type = ? ORDER BY date, id`, string(kind))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load snapshot obligations: %w", err)
	}
	defer rows.Close()

	var obligations []models.Obligation
	var ids []any
	for rows.Next() {
		var o models.Obligation
		var kindStr string
		var date int64
		var eventDate sql.NullInt64
		err := rows.Scan(&o.ID, &kindStr, &o.Branch, &date,
			&o.CustomerName, &o.CustomerPhone, &o.CustomerEmail,
			&o.FaceAmount, &o.Reference, &o.Shift, &o.HandledBy, &o.Note, &eventDate)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to scan snapshot obligation: %w", err)
		}
		o.Kind = models.Kind(kindStr)
		o.Date = time.Unix(date, 0)
		if eventDate.Valid {
			t := time.Unix(eventDate.Int64, 0)
			o.EventDate = &t
		}
		obligations = append(obligations, o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to iterate snapshot obligations: %w", err)
	}

	if len(ids) == 0 {
		return obligations, nil, nil
	}

	placeholders := "?"
	for i := 1; i < len(ids); i++ {
		placeholders += ",?"
	}
	payRows, err := f.db.QueryContext(ctx,
		"SELECT id, obligation_id, amount, date, note, recorded_by FROM payments WHERE obligation_id IN ("+placeholders+") ORDER BY date, id",
		ids...,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load snapshot payments: %w", err)
	}
	defer payRows.Close()

	var payments []models.Payment
	for payRows.Next() {
		var p models.Payment
		var date int64
		if err := payRows.Scan(&p.ID, &p.ObligationID, &p.Amount, &date, &p.Note, &p.RecordedBy); err != nil {
			return nil, nil, fmt.Errorf("failed to scan snapshot payment: %w", err)
		}
		p.Date = time.Unix(0, date)
		payments = append(payments, p)
	}
	if err := payRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to iterate snapshot payments: %w", err)
	}
	return obligations, payments, nil
}
