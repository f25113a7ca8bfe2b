package store

import (
	"context"
	"database/sql"
	"time"

	"tradeterm/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ Journal = (*SQLiteJournal)(nil)

const journalSchema = `
CREATE TABLE IF NOT EXISTS order_journal (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	ticket      INTEGER NOT NULL,
	symbol      TEXT    NOT NULL,
	side        TEXT    NOT NULL,
	order_type  TEXT    NOT NULL,
	action      TEXT    NOT NULL,
	volume      REAL    NOT NULL,
	price       REAL    NOT NULL,
	stop_loss   REAL    NOT NULL,
	take_profit REAL    NOT NULL,
	retcode     INTEGER NOT NULL,
	comment     TEXT    NOT NULL DEFAULT '',
	recorded_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_order_journal_symbol
	ON order_journal (symbol, recorded_at);
`

// SQLiteJournal implements Journal backed by a SQLite database.
type SQLiteJournal struct {
	db *sql.DB
}

// NewSQLiteJournal opens (or creates) a SQLite database at dbPath and
// ensures the journal schema exists.
func NewSQLiteJournal(dbPath string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(journalSchema); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteJournal{db: db}, nil
}

// Close closes the underlying database connection.
func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}

// Record appends one order action to the journal.
func (j *SQLiteJournal) Record(ctx context.Context, e OrderEntry) error {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO order_journal
			(ticket, symbol, side, order_type, action, volume, price,
			 stop_loss, take_profit, retcode, comment, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Ticket, e.Symbol, string(e.Side), string(e.Type), e.Action,
		e.Volume, e.Price, e.StopLoss, e.TakeProfit, e.Retcode, e.Comment,
		e.Time.UnixMilli())
	return err
}

// Entries returns the most recent journal entries, newest first.
func (j *SQLiteJournal) Entries(ctx context.Context, symbol string, limit int) ([]OrderEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT ticket, symbol, side, order_type, action, volume, price,
		       stop_loss, take_profit, retcode, comment, recorded_at
		FROM order_journal`
	args := []any{}
	if symbol != "" {
		query += ` WHERE symbol = ?`
		args = append(args, symbol)
	}
	query += ` ORDER BY recorded_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []OrderEntry
	for rows.Next() {
		var e OrderEntry
		var side, orderType string
		var recordedAt int64
		if err := rows.Scan(&e.Ticket, &e.Symbol, &side, &orderType, &e.Action,
			&e.Volume, &e.Price, &e.StopLoss, &e.TakeProfit, &e.Retcode,
			&e.Comment, &recordedAt); err != nil {
			return nil, err
		}
		e.Side = domain.Side(side)
		e.Type = domain.OrderType(orderType)
		e.Time = time.UnixMilli(recordedAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
