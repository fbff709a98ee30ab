// Package postgres implements storage.LedgerStore against the remote
// Postgres instance that owns all durable ledger state. Upserts are keyed
// on the primary key, so retried writes are idempotent.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/tallyhouse/tally/internal/models"
	"github.com/tallyhouse/tally/internal/storage"
)

// Store is the Postgres-backed ledger store.
type Store struct {
	db       *sql.DB
	dsn      string
	identity storage.Identity
}

// New opens a connection pool against dsn. The identity is who this
// session writes as; the store reports it from CurrentIdentity.
func New(dsn string, identity storage.Identity) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, storage.NewStoreError("open", "", "", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, storage.NewStoreError("open", "", "", fmt.Errorf("%w: %w", storage.ErrUnavailable, err))
	}
	return &Store{db: db, dsn: dsn, identity: identity}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

// CurrentIdentity returns the identity the store was opened with.
func (s *Store) CurrentIdentity(ctx context.Context) (storage.Identity, error) {
	return s.identity, nil
}

const obligationColumns = `id, type, branch, date, customer_name, customer_phone, customer_email,
	amount, reference, shift, handled_by, note, event_date`

// listObligationsQuery builds the windowed SELECT. A zero From or To
// bound is unbounded, matching the in-memory store.
func listObligationsQuery(f storage.ListFilter) (string, []any) {
	query := `SELECT ` + obligationColumns + `
		FROM obligations
		WHERE type = $1`
	args := []any{string(f.Kind)}
	if !f.From.IsZero() {
		args = append(args, f.From)
		query += fmt.Sprintf(" AND date >= $%d", len(args))
	}
	if !f.To.IsZero() {
		args = append(args, f.To)
		query += fmt.Sprintf(" AND date <= $%d", len(args))
	}
	if f.Branch != "" {
		args = append(args, f.Branch)
		query += fmt.Sprintf(" AND branch = $%d", len(args))
	}
	query += " ORDER BY date, id"
	return query, args
}

// ListObligations returns obligations of one kind inside the date window,
// optionally scoped to a branch.
func (s *Store) ListObligations(ctx context.Context, f storage.ListFilter) ([]models.Obligation, error) {
	query, args := listObligationsQuery(f)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storage.NewStoreError("list", storage.TableObligations, "", err)
	}
	defer rows.Close()

	var out []models.Obligation
	for rows.Next() {
		o, err := scanObligation(rows)
		if err != nil {
			return nil, storage.NewStoreError("list", storage.TableObligations, "", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.NewStoreError("list", storage.TableObligations, "", err)
	}
	return out, nil
}

// ListPayments returns the payments owned by any of the given obligations,
// batched in one query.
func (s *Store) ListPayments(ctx context.Context, obligationIDs []string) ([]models.Payment, error) {
	if len(obligationIDs) == 0 {
		return nil, nil
	}
	const query = `SELECT id, obligation_id, amount, date, note, recorded_by
		FROM payments
		WHERE obligation_id = ANY($1)
		ORDER BY date, id`

	rows, err := s.db.QueryContext(ctx, query, pq.Array(obligationIDs))
	if err != nil {
		return nil, storage.NewStoreError("list", storage.TablePayments, "", err)
	}
	defer rows.Close()

	var out []models.Payment
	for rows.Next() {
		var p models.Payment
		var note, recordedBy sql.NullString
		if err := rows.Scan(&p.ID, &p.ObligationID, &p.Amount, &p.Date, &note, &recordedBy); err != nil {
			return nil, storage.NewStoreError("list", storage.TablePayments, "", err)
		}
		p.Note = note.String
		p.RecordedBy = recordedBy.String
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.NewStoreError("list", storage.TablePayments, "", err)
	}
	return out, nil
}

// UpsertObligation inserts or updates by primary key.
func (s *Store) UpsertObligation(ctx context.Context, o models.Obligation) (models.Obligation, error) {
	const query = `INSERT INTO obligations (` + obligationColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (id) DO UPDATE SET
			type = EXCLUDED.type,
			branch = EXCLUDED.branch,
			date = EXCLUDED.date,
			customer_name = EXCLUDED.customer_name,
			customer_phone = EXCLUDED.customer_phone,
			customer_email = EXCLUDED.customer_email,
			amount = EXCLUDED.amount,
			reference = EXCLUDED.reference,
			shift = EXCLUDED.shift,
			handled_by = EXCLUDED.handled_by,
			note = EXCLUDED.note,
			event_date = EXCLUDED.event_date
		RETURNING ` + obligationColumns

	row := s.db.QueryRowContext(ctx, query,
		o.ID, string(o.Kind), o.Branch, o.Date,
		o.CustomerName, nullable(o.CustomerPhone), nullable(o.CustomerEmail),
		o.FaceAmount, nullable(o.Reference), nullable(o.Shift),
		o.HandledBy, nullable(o.Note), nullTime(o.EventDate),
	)
	saved, err := scanObligation(row)
	if err != nil {
		return models.Obligation{}, storage.NewStoreError("upsert", storage.TableObligations, o.ID, err)
	}
	return saved, nil
}

// DeleteObligations removes the given rows; payments go with them via the
// schema's ON DELETE CASCADE.
func (s *Store) DeleteObligations(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	const query = `DELETE FROM obligations WHERE id = ANY($1)`
	if _, err := s.db.ExecContext(ctx, query, pq.Array(ids)); err != nil {
		return storage.NewStoreError("delete", storage.TableObligations, "", err)
	}
	return nil
}

// InsertPayment records a new payment row.
func (s *Store) InsertPayment(ctx context.Context, p models.Payment) (models.Payment, error) {
	const query = `INSERT INTO payments (id, obligation_id, amount, date, note, recorded_by)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id, obligation_id, amount, date, note, recorded_by`

	var saved models.Payment
	var note, recordedBy sql.NullString
	err := s.db.QueryRowContext(ctx, query,
		p.ID, p.ObligationID, p.Amount, p.Date, nullable(p.Note), nullable(p.RecordedBy),
	).Scan(&saved.ID, &saved.ObligationID, &saved.Amount, &saved.Date, &note, &recordedBy)
	if err != nil {
		return models.Payment{}, storage.NewStoreError("insert", storage.TablePayments, p.ID, err)
	}
	saved.Note = note.String
	saved.RecordedBy = recordedBy.String
	return saved, nil
}

// UpdatePayment applies the patch to one payment row.
func (s *Store) UpdatePayment(ctx context.Context, id string, patch models.PaymentPatch) (models.Payment, error) {
	const query = `UPDATE payments SET
			amount = COALESCE($2, amount),
			date = COALESCE($3, date),
			note = COALESCE($4, note)
		WHERE id = $1
		RETURNING id, obligation_id, amount, date, note, recorded_by`

	var saved models.Payment
	var note, recordedBy sql.NullString
	err := s.db.QueryRowContext(ctx, query,
		id, nullInt(patch.Amount), nullTime(patch.Date), nullablePtr(patch.Note),
	).Scan(&saved.ID, &saved.ObligationID, &saved.Amount, &saved.Date, &note, &recordedBy)
	if err == sql.ErrNoRows {
		return models.Payment{}, storage.NewStoreError("update", storage.TablePayments, id, storage.ErrNotFound)
	}
	if err != nil {
		return models.Payment{}, storage.NewStoreError("update", storage.TablePayments, id, err)
	}
	saved.Note = note.String
	saved.RecordedBy = recordedBy.String
	return saved, nil
}

// DeletePayment removes one payment row.
func (s *Store) DeletePayment(ctx context.Context, id string) (bool, error) {
	const query = `DELETE FROM payments WHERE id = $1`
	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, storage.NewStoreError("delete", storage.TablePayments, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storage.NewStoreError("delete", storage.TablePayments, id, err)
	}
	return n > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanObligation(r rowScanner) (models.Obligation, error) {
	var o models.Obligation
	var kind string
	var phone, email, reference, shift, note sql.NullString
	var eventDate sql.NullTime
	err := r.Scan(
		&o.ID, &kind, &o.Branch, &o.Date,
		&o.CustomerName, &phone, &email,
		&o.FaceAmount, &reference, &shift,
		&o.HandledBy, &note, &eventDate,
	)
	if err != nil {
		return models.Obligation{}, err
	}
	o.Kind = models.Kind(kind)
	o.CustomerPhone = phone.String
	o.CustomerEmail = email.String
	o.Reference = reference.String
	o.Shift = shift.String
	o.Note = note.String
	if eventDate.Valid {
		t := eventDate.Time
		o.EventDate = &t
	}
	return o, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullablePtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullInt(n *int64) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *n, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// Compile-time check: Store implements the ledger contract.
var _ storage.LedgerStore = (*Store)(nil)
