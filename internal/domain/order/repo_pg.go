package order

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medstock/medstock/internal/platform/apperror"
	"github.com/medstock/medstock/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const orderCols = `id, order_date, supplier, status, created_at, updated_at`

const itemCols = `id, order_id, medication_id, boxes, price_per_box, created_at`

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.OrderDate, &o.Supplier, &o.Status, &o.CreatedAt, &o.UpdatedAt)
	return &o, err
}

func scanItem(row pgx.Row) (*LineItem, error) {
	var li LineItem
	err := row.Scan(&li.ID, &li.OrderID, &li.MedicationID, &li.Boxes, &li.PricePerBox, &li.CreatedAt)
	return &li, err
}

func (r *repoPG) Create(ctx context.Context, o *Order) error {
	o.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO purchase_order (id, order_date, supplier, status)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`,
		o.ID, o.OrderDate, o.Supplier, o.Status,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	o, err := scanOrder(r.conn(ctx).QueryRow(ctx, `SELECT `+orderCols+` FROM purchase_order WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, apperror.NotFound("order", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

func (r *repoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Order, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1
	if f.Status != nil {
		where += fmt.Sprintf(` AND status = $%d`, idx)
		args = append(args, *f.Status)
		idx++
	}
	if from, to := f.Bounds(); from != nil {
		where += fmt.Sprintf(` AND order_date >= $%d AND order_date < $%d`, idx, idx+1)
		args = append(args, *from, *to)
		idx += 2
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM purchase_order`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	query := `SELECT ` + orderCols + ` FROM purchase_order` + where + ` ORDER BY order_date DESC, created_at DESC, id`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, idx, idx+1)
		args = append(args, limit, offset)
	}
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()
	var orders []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, total, rows.Err()
}

func (r *repoPG) Update(ctx context.Context, o *Order) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE purchase_order SET order_date = $2, supplier = $3, status = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		o.ID, o.OrderDate, o.Supplier, o.Status,
	).Scan(&o.UpdatedAt)
	if db.IsNoRows(err) {
		return apperror.NotFound("order", o.ID)
	}
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	return nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM purchase_order WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete order: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *repoPG) CreateLineItem(ctx context.Context, li *LineItem) error {
	li.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO order_line_item (id, order_id, medication_id, boxes, price_per_box)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		li.ID, li.OrderID, li.MedicationID, li.Boxes, li.PricePerBox,
	).Scan(&li.CreatedAt)
	if db.IsForeignKeyViolation(err) {
		if strings.Contains(db.ConstraintName(err), "medication") {
			return apperror.NotFound("medication", li.MedicationID)
		}
		return apperror.NotFound("order", li.OrderID)
	}
	if err != nil {
		return fmt.Errorf("insert line item: %w", err)
	}
	return nil
}

func (r *repoPG) GetLineItem(ctx context.Context, id uuid.UUID) (*LineItem, error) {
	li, err := scanItem(r.conn(ctx).QueryRow(ctx, `SELECT `+itemCols+` FROM order_line_item WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, apperror.NotFound("line item", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get line item: %w", err)
	}
	return li, nil
}

func (r *repoPG) ListLineItems(ctx context.Context, f LineItemFilter) ([]*LineItem, error) {
	query := `SELECT ` + itemCols + ` FROM order_line_item WHERE 1=1`
	var args []interface{}
	if len(f.OrderIDs) > 0 {
		args = append(args, f.OrderIDs)
		query += fmt.Sprintf(` AND order_id = ANY($%d)`, len(args))
	}
	if f.MedicationID != nil {
		args = append(args, *f.MedicationID)
		query += fmt.Sprintf(` AND medication_id = $%d`, len(args))
	}
	query += ` ORDER BY created_at, id`

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list line items: %w", err)
	}
	defer rows.Close()
	var items []*LineItem
	for rows.Next() {
		li, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan line item: %w", err)
		}
		items = append(items, li)
	}
	return items, rows.Err()
}

func (r *repoPG) UpdateLineItem(ctx context.Context, li *LineItem) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE order_line_item SET boxes = $2, price_per_box = $3 WHERE id = $1`,
		li.ID, li.Boxes, li.PricePerBox)
	if err != nil {
		return fmt.Errorf("update line item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("line item", li.ID)
	}
	return nil
}

func (r *repoPG) DeleteLineItem(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM order_line_item WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete line item: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *repoPG) CountLineItemsByMedication(ctx context.Context, medicationID uuid.UUID) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM order_line_item WHERE medication_id = $1`, medicationID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count line items: %w", err)
	}
	return n, nil
}
