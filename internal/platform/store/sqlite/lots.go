package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/medstock/medstock/internal/domain/stock"
	"github.com/medstock/medstock/internal/platform/apperror"
)

type lotRepo struct{ d *DB }

const lotCols = `id, medication_id, boxes, units_per_box, purchased_on, expires_on,
	purchase_price_per_box, created_at`

func scanLot(row scanner) (*stock.Lot, error) {
	var (
		l                           stock.Lot
		purchased, expires, created string
	)
	err := row.Scan(&l.ID, &l.MedicationID, &l.Boxes, &l.UnitsPerBox, &purchased, &expires,
		&l.PurchasePricePerBox, &created)
	if err != nil {
		return nil, err
	}
	if l.PurchasedOn, err = parseDate(purchased); err != nil {
		return nil, err
	}
	if l.ExpiresOn, err = parseDate(expires); err != nil {
		return nil, err
	}
	if l.CreatedAt, err = parseTimestamp(created); err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *lotRepo) Create(ctx context.Context, l *stock.Lot) error {
	id := uuid.New()
	now, ts := r.d.timestamp()
	_, err := r.d.db.ExecContext(ctx, `
		INSERT INTO stock_lot (id, medication_id, boxes, units_per_box, purchased_on, expires_on,
			purchase_price_per_box, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, l.MedicationID, l.Boxes, l.UnitsPerBox, formatDate(l.PurchasedOn), formatDate(l.ExpiresOn),
		l.PurchasePricePerBox, ts)
	if isForeignKey(err) {
		return apperror.NotFound("medication", l.MedicationID)
	}
	if err != nil {
		return fmt.Errorf("insert lot: %w", err)
	}
	l.ID, l.CreatedAt = id, now
	return nil
}

func (r *lotRepo) GetByID(ctx context.Context, id uuid.UUID) (*stock.Lot, error) {
	l, err := scanLot(r.d.db.QueryRowContext(ctx, `SELECT `+lotCols+` FROM stock_lot WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("lot", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get lot: %w", err)
	}
	return l, nil
}

func (r *lotRepo) List(ctx context.Context, f stock.LotFilter) ([]*stock.Lot, error) {
	var where []string
	var args []any
	if f.MedicationID != nil {
		where = append(where, "medication_id = ?")
		args = append(args, *f.MedicationID)
	}
	if f.ExpiresFrom != nil {
		where = append(where, "expires_on >= ?")
		args = append(args, formatDate(*f.ExpiresFrom))
	}
	if f.ExpiresTo != nil {
		where = append(where, "expires_on <= ?")
		args = append(args, formatDate(*f.ExpiresTo))
	}
	query := `SELECT ` + lotCols + ` FROM stock_lot`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY expires_on, created_at, rowid`

	rows, err := r.d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list lots: %w", err)
	}
	defer rows.Close()
	var lots []*stock.Lot
	for rows.Next() {
		l, err := scanLot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lot: %w", err)
		}
		lots = append(lots, l)
	}
	return lots, rows.Err()
}

func (r *lotRepo) Update(ctx context.Context, l *stock.Lot) error {
	res, err := r.d.db.ExecContext(ctx, `
		UPDATE stock_lot SET boxes = ?, units_per_box = ?, purchased_on = ?, expires_on = ?,
			purchase_price_per_box = ?
		WHERE id = ?`,
		l.Boxes, l.UnitsPerBox, formatDate(l.PurchasedOn), formatDate(l.ExpiresOn), l.PurchasePricePerBox, l.ID)
	if err != nil {
		return fmt.Errorf("update lot: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("lot", l.ID)
	}
	return nil
}

func (r *lotRepo) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := r.d.db.ExecContext(ctx, `DELETE FROM stock_lot WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete lot: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}
