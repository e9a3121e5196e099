// Package sqlite is an embedded Entity Store on modernc.org/sqlite. Dates are
// stored as YYYY-MM-DD text, timestamps as RFC 3339 text and money as
// decimal text, so values round-trip exactly.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/medstock/medstock/internal/domain/medication"
	"github.com/medstock/medstock/internal/domain/order"
	"github.com/medstock/medstock/internal/domain/stock"
	"github.com/medstock/medstock/internal/platform/clock"
)

const schema = `
CREATE TABLE IF NOT EXISTS medication (
    id                      TEXT PRIMARY KEY,
    name                    TEXT NOT NULL COLLATE NOCASE UNIQUE,
    brand                   TEXT,
    units_per_box           INTEGER NOT NULL CHECK (units_per_box > 0),
    reference_price_per_box TEXT,
    active                  INTEGER NOT NULL DEFAULT 1,
    prescription_expires_on TEXT,
    daily_consumption       REAL,
    created_at              TEXT NOT NULL,
    updated_at              TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS stock_lot (
    id                     TEXT PRIMARY KEY,
    medication_id          TEXT NOT NULL REFERENCES medication (id) ON DELETE CASCADE,
    boxes                  INTEGER NOT NULL CHECK (boxes > 0),
    units_per_box          INTEGER NOT NULL CHECK (units_per_box > 0),
    purchased_on           TEXT NOT NULL,
    expires_on             TEXT NOT NULL,
    purchase_price_per_box TEXT,
    created_at             TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_stock_lot_medication_expiry ON stock_lot (medication_id, expires_on);

CREATE TABLE IF NOT EXISTS purchase_order (
    id         TEXT PRIMARY KEY,
    order_date TEXT NOT NULL,
    supplier   TEXT,
    status     TEXT NOT NULL DEFAULT 'Pending' CHECK (status IN ('Pending', 'Received', 'Cancelled')),
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_purchase_order_date ON purchase_order (order_date);

CREATE TABLE IF NOT EXISTS order_line_item (
    id            TEXT PRIMARY KEY,
    order_id      TEXT NOT NULL REFERENCES purchase_order (id) ON DELETE CASCADE,
    medication_id TEXT NOT NULL REFERENCES medication (id) ON DELETE RESTRICT,
    boxes         INTEGER NOT NULL CHECK (boxes > 0),
    price_per_box TEXT,
    created_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_order_line_item_order ON order_line_item (order_id);
CREATE INDEX IF NOT EXISTS idx_order_line_item_medication ON order_line_item (medication_id);
`

const timestampLayout = time.RFC3339Nano

// DB is an open SQLite database holding every collection.
type DB struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates the file and its parent directories if needed and applies the schema.
func Open(ctx context.Context, path string) (*DB, error) {
	if path == "" {
		path = "medstock.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer; also keeps the foreign_keys pragma on every statement's connection.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &DB{db: db, now: time.Now}, nil
}

func (d *DB) Medications() medication.Repository { return &medRepo{d} }

func (d *DB) Lots() stock.Repository { return &lotRepo{d} }

func (d *DB) Orders() order.Repository { return &orderRepo{d} }

func (d *DB) Ping(ctx context.Context) error { return d.db.PingContext(ctx) }

func (d *DB) Close() error { return d.db.Close() }

func (d *DB) timestamp() (time.Time, string) {
	t := d.now().UTC()
	return t, t.Format(timestampLayout)
}

func errCode(err error) int {
	var se *msqlite.Error
	if errors.As(err, &se) {
		return se.Code()
	}
	return 0
}

func isUnique(err error) bool {
	switch errCode(err) {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	case sqlite3.SQLITE_CONSTRAINT:
		return strings.Contains(err.Error(), "UNIQUE")
	}
	return false
}

// isForeignKey reports a foreign key failure. A RESTRICT action fires as
// SQLITE_CONSTRAINT_TRIGGER, so any constraint code is checked by message.
func isForeignKey(err error) bool {
	code := errCode(err)
	if code == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY {
		return true
	}
	return code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(err.Error(), "FOREIGN KEY")
}

func formatDate(t time.Time) string {
	return t.Format(clock.DateLayout)
}

func formatDatePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatDate(*t)
	return &s
}

func parseDate(s string) (time.Time, error) {
	return clock.ParseDate(s)
}

func parseDatePtr(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseDate(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func parseTimestamp(s string) (time.Time, error) {
	return time.Parse(timestampLayout, s)
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}
