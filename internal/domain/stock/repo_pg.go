package stock

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

const lotCols = `id, medication_id, boxes, units_per_box, purchased_on, expires_on,
	purchase_price_per_box, created_at`

func scanLot(row pgx.Row) (*Lot, error) {
	var l Lot
	err := row.Scan(&l.ID, &l.MedicationID, &l.Boxes, &l.UnitsPerBox, &l.PurchasedOn, &l.ExpiresOn,
		&l.PurchasePricePerBox, &l.CreatedAt)
	return &l, err
}

func (r *repoPG) Create(ctx context.Context, l *Lot) error {
	l.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO stock_lot (id, medication_id, boxes, units_per_box, purchased_on, expires_on,
			purchase_price_per_box)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`,
		l.ID, l.MedicationID, l.Boxes, l.UnitsPerBox, l.PurchasedOn, l.ExpiresOn, l.PurchasePricePerBox,
	).Scan(&l.CreatedAt)
	if db.IsForeignKeyViolation(err) {
		return apperror.NotFound("medication", l.MedicationID)
	}
	if err != nil {
		return fmt.Errorf("insert lot: %w", err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Lot, error) {
	l, err := scanLot(r.conn(ctx).QueryRow(ctx, `SELECT `+lotCols+` FROM stock_lot WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, apperror.NotFound("lot", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get lot: %w", err)
	}
	return l, nil
}

func (r *repoPG) List(ctx context.Context, f LotFilter) ([]*Lot, error) {
	var where []string
	var args []interface{}
	add := func(cond string, v interface{}) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.MedicationID != nil {
		add("medication_id = $%d", *f.MedicationID)
	}
	if f.ExpiresFrom != nil {
		add("expires_on >= $%d", *f.ExpiresFrom)
	}
	if f.ExpiresTo != nil {
		add("expires_on <= $%d", *f.ExpiresTo)
	}

	query := `SELECT ` + lotCols + ` FROM stock_lot`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY expires_on, created_at, id`

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list lots: %w", err)
	}
	defer rows.Close()

	var lots []*Lot
	for rows.Next() {
		l, err := scanLot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lot: %w", err)
		}
		lots = append(lots, l)
	}
	return lots, rows.Err()
}

func (r *repoPG) Update(ctx context.Context, l *Lot) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE stock_lot SET boxes = $2, units_per_box = $3, purchased_on = $4, expires_on = $5,
			purchase_price_per_box = $6
		WHERE id = $1`,
		l.ID, l.Boxes, l.UnitsPerBox, l.PurchasedOn, l.ExpiresOn, l.PurchasePricePerBox)
	if err != nil {
		return fmt.Errorf("update lot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("lot", l.ID)
	}
	return nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM stock_lot WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete lot: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
