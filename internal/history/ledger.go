package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Print log statuses
const (
	StatusPrinted = "printed"
	StatusFailed  = "failed"
)

// DefaultListLimit caps List when no limit is given
const DefaultListLimit = 50

// Entry is one print attempt
type Entry struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	OrderNumber int64     `json:"order_number"`
	Count       int       `json:"count"`
	Status      string    `json:"status"`
	ErrorKind   string    `json:"error_kind,omitempty"`
	Message     string    `json:"message,omitempty"`
	PrintedAt   time.Time `json:"printed_at"`
}

// Ledger stores the last issued order number and the print log
type Ledger struct {
	db *sql.DB
}

// NewLedger wraps an open database
func NewLedger(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

const (
	sequenceRowID = 1

	selectLastOrderSQL = `SELECT last_order_number FROM order_sequence WHERE id = ?`

	upsertLastOrderSQL = `
		INSERT INTO order_sequence (id, last_order_number, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			last_order_number = excluded.last_order_number,
			updated_at = excluded.updated_at
	`

	insertEntrySQL = `
		INSERT INTO print_log (id, kind, order_number, count, status, error_kind, message, printed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	selectEntriesSQL = `
		SELECT id, kind, order_number, count, status, error_kind, message, printed_at
		FROM print_log ORDER BY printed_at DESC, rowid DESC LIMIT ?
	`
)

// LastOrderNumber returns the last successfully printed order number, 0 if
// none was ever issued or the sequence was cleared
func (l *Ledger) LastOrderNumber(ctx context.Context) (int64, error) {
	var last int64
	err := l.db.QueryRowContext(ctx, selectLastOrderSQL, sequenceRowID).Scan(&last)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read last order number: %w", err)
	}
	return last, nil
}

// Record appends e to the print log. A successful count receipt also advances
// the order sequence, in the same transaction.
func (l *Ledger) Record(ctx context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.PrintedAt.IsZero() {
		e.PrintedAt = time.Now()
	}
	at := e.PrintedAt.UTC().UnixMilli()

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin record transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, insertEntrySQL,
		e.ID,
		e.Kind,
		e.OrderNumber,
		e.Count,
		e.Status,
		nullString(e.ErrorKind),
		nullString(e.Message),
		at,
	); err != nil {
		return fmt.Errorf("insert print log entry: %w", err)
	}

	if e.Status == StatusPrinted && e.OrderNumber > 0 {
		if _, err := tx.ExecContext(ctx, upsertLastOrderSQL, sequenceRowID, e.OrderNumber, at); err != nil {
			return fmt.Errorf("advance order sequence: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit record transaction: %w", err)
	}
	return nil
}

// ResetOrderNumber clears the order sequence so the next receipt is #1
func (l *Ledger) ResetOrderNumber(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, upsertLastOrderSQL, sequenceRowID, 0, time.Now().UTC().UnixMilli()); err != nil {
		return fmt.Errorf("reset order sequence: %w", err)
	}
	return nil
}

// List returns up to limit entries, newest first
func (l *Ledger) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := l.db.QueryContext(ctx, selectEntriesSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("query print log: %w", err)
	}
	defer rows.Close()

	out := make([]Entry, 0, limit)
	for rows.Next() {
		var (
			e         Entry
			errorKind sql.NullString
			message   sql.NullString
			at        int64
		)
		if err := rows.Scan(&e.ID, &e.Kind, &e.OrderNumber, &e.Count, &e.Status, &errorKind, &message, &at); err != nil {
			return nil, fmt.Errorf("scan print log entry: %w", err)
		}
		e.ErrorKind = errorKind.String
		e.Message = message.String
		e.PrintedAt = time.UnixMilli(at).UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
