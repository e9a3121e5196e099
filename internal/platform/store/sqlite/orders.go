package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/medstock/medstock/internal/domain/order"
	"github.com/medstock/medstock/internal/platform/apperror"
)

type orderRepo struct{ d *DB }

const orderCols = `id, order_date, supplier, status, created_at, updated_at`

const itemCols = `id, order_id, medication_id, boxes, price_per_box, created_at`

func scanOrder(row scanner) (*order.Order, error) {
	var (
		o                      order.Order
		date, created, updated string
	)
	if err := row.Scan(&o.ID, &date, &o.Supplier, &o.Status, &created, &updated); err != nil {
		return nil, err
	}
	var err error
	if o.OrderDate, err = parseDate(date); err != nil {
		return nil, err
	}
	if o.CreatedAt, err = parseTimestamp(created); err != nil {
		return nil, err
	}
	if o.UpdatedAt, err = parseTimestamp(updated); err != nil {
		return nil, err
	}
	return &o, nil
}

func scanItem(row scanner) (*order.LineItem, error) {
	var (
		li      order.LineItem
		created string
	)
	if err := row.Scan(&li.ID, &li.OrderID, &li.MedicationID, &li.Boxes, &li.PricePerBox, &created); err != nil {
		return nil, err
	}
	var err error
	if li.CreatedAt, err = parseTimestamp(created); err != nil {
		return nil, err
	}
	return &li, nil
}

func (r *orderRepo) Create(ctx context.Context, o *order.Order) error {
	id := uuid.New()
	now, ts := r.d.timestamp()
	_, err := r.d.db.ExecContext(ctx, `
		INSERT INTO purchase_order (id, order_date, supplier, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id, formatDate(o.OrderDate), o.Supplier, string(o.Status), ts, ts)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	o.ID, o.CreatedAt, o.UpdatedAt = id, now, now
	return nil
}

func (r *orderRepo) GetByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	o, err := scanOrder(r.d.db.QueryRowContext(ctx, `SELECT `+orderCols+` FROM purchase_order WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("order", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

func (r *orderRepo) List(ctx context.Context, f order.Filter, limit, offset int) ([]*order.Order, int, error) {
	where := ` WHERE 1=1`
	var args []any
	if f.Status != nil {
		where += ` AND status = ?`
		args = append(args, string(*f.Status))
	}
	if from, to := f.Bounds(); from != nil {
		where += ` AND order_date >= ? AND order_date < ?`
		args = append(args, formatDate(*from), formatDate(*to))
	}

	var total int
	if err := r.d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM purchase_order`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}
	if limit <= 0 {
		limit = -1
	}
	args = append(args, limit, offset)
	rows, err := r.d.db.QueryContext(ctx,
		`SELECT `+orderCols+` FROM purchase_order`+where+
			` ORDER BY order_date DESC, created_at DESC, rowid DESC LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()
	var orders []*order.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, total, rows.Err()
}

func (r *orderRepo) Update(ctx context.Context, o *order.Order) error {
	now, ts := r.d.timestamp()
	res, err := r.d.db.ExecContext(ctx, `
		UPDATE purchase_order SET order_date = ?, supplier = ?, status = ?, updated_at = ? WHERE id = ?`,
		formatDate(o.OrderDate), o.Supplier, string(o.Status), ts, o.ID)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("order", o.ID)
	}
	o.UpdatedAt = now
	return nil
}

func (r *orderRepo) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := r.d.db.ExecContext(ctx, `DELETE FROM purchase_order WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete order: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *orderRepo) CreateLineItem(ctx context.Context, li *order.LineItem) error {
	tx, err := r.d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin line item insert: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	id := uuid.New()
	now, ts := r.d.timestamp()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO order_line_item (id, order_id, medication_id, boxes, price_per_box, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id, li.OrderID, li.MedicationID, li.Boxes, li.PricePerBox, ts)
	if isForeignKey(err) {
		return missingParent(ctx, tx, li)
	}
	if err != nil {
		return fmt.Errorf("insert line item: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit line item: %w", err)
	}
	li.ID, li.CreatedAt = id, now
	return nil
}

// missingParent names the row a failed line item insert pointed at. SQLite
// does not report which foreign key failed.
func missingParent(ctx context.Context, tx *sql.Tx, li *order.LineItem) error {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM purchase_order WHERE id = ?`, li.OrderID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return apperror.NotFound("order", li.OrderID)
	}
	if err != nil {
		return fmt.Errorf("check order: %w", err)
	}
	return apperror.NotFound("medication", li.MedicationID)
}

func (r *orderRepo) GetLineItem(ctx context.Context, id uuid.UUID) (*order.LineItem, error) {
	li, err := scanItem(r.d.db.QueryRowContext(ctx, `SELECT `+itemCols+` FROM order_line_item WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("line item", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get line item: %w", err)
	}
	return li, nil
}

func (r *orderRepo) ListLineItems(ctx context.Context, f order.LineItemFilter) ([]*order.LineItem, error) {
	query := `SELECT ` + itemCols + ` FROM order_line_item WHERE 1=1`
	var args []any
	if len(f.OrderIDs) > 0 {
		query += ` AND order_id IN (?` + strings.Repeat(", ?", len(f.OrderIDs)-1) + `)`
		for _, id := range f.OrderIDs {
			args = append(args, id)
		}
	}
	if f.MedicationID != nil {
		query += ` AND medication_id = ?`
		args = append(args, *f.MedicationID)
	}
	query += ` ORDER BY created_at, rowid`

	rows, err := r.d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list line items: %w", err)
	}
	defer rows.Close()
	var items []*order.LineItem
	for rows.Next() {
		li, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan line item: %w", err)
		}
		items = append(items, li)
	}
	return items, rows.Err()
}

func (r *orderRepo) UpdateLineItem(ctx context.Context, li *order.LineItem) error {
	res, err := r.d.db.ExecContext(ctx,
		`UPDATE order_line_item SET boxes = ?, price_per_box = ? WHERE id = ?`,
		li.Boxes, li.PricePerBox, li.ID)
	if err != nil {
		return fmt.Errorf("update line item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("line item", li.ID)
	}
	return nil
}

func (r *orderRepo) DeleteLineItem(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := r.d.db.ExecContext(ctx, `DELETE FROM order_line_item WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete line item: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *orderRepo) CountLineItemsByMedication(ctx context.Context, medicationID uuid.UUID) (int, error) {
	var n int
	err := r.d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM order_line_item WHERE medication_id = ?`, medicationID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count line items: %w", err)
	}
	return n, nil
}
