package medication

import (
	"context"
	"fmt"

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

const medCols = `id, name, brand, units_per_box, reference_price_per_box, active,
	prescription_expires_on, daily_consumption, created_at, updated_at`

func scanMed(row pgx.Row) (*Medication, error) {
	var m Medication
	err := row.Scan(&m.ID, &m.Name, &m.Brand, &m.UnitsPerBox, &m.ReferencePricePerBox, &m.Active,
		&m.PrescriptionExpiresOn, &m.DailyConsumption, &m.CreatedAt, &m.UpdatedAt)
	return &m, err
}

func writeErr(op string, m *Medication, err error) error {
	if db.IsUniqueViolation(err) {
		return apperror.Conflict("medication %q already exists", m.Name)
	}
	return fmt.Errorf("%s medication: %w", op, err)
}

func (r *repoPG) Create(ctx context.Context, m *Medication) error {
	m.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO medication (id, name, brand, units_per_box, reference_price_per_box, active,
			prescription_expires_on, daily_consumption)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		m.ID, m.Name, m.Brand, m.UnitsPerBox, m.ReferencePricePerBox, m.Active,
		m.PrescriptionExpiresOn, m.DailyConsumption,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return writeErr("insert", m, err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Medication, error) {
	m, err := scanMed(r.conn(ctx).QueryRow(ctx, `SELECT `+medCols+` FROM medication WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, apperror.NotFound("medication", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get medication: %w", err)
	}
	return m, nil
}

func (r *repoPG) GetByName(ctx context.Context, name string) (*Medication, error) {
	m, err := scanMed(r.conn(ctx).QueryRow(ctx,
		`SELECT `+medCols+` FROM medication WHERE lower(name) = lower($1)`, name))
	if db.IsNoRows(err) {
		return nil, apperror.NotFound("medication", name)
	}
	if err != nil {
		return nil, fmt.Errorf("get medication by name: %w", err)
	}
	return m, nil
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Medication, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM medication`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count medications: %w", err)
	}

	query := `SELECT ` + medCols + ` FROM medication ORDER BY lower(name), id`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT $1 OFFSET $2`
		args = append(args, limit, offset)
	}
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list medications: %w", err)
	}
	defer rows.Close()

	var items []*Medication
	for rows.Next() {
		m, err := scanMed(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan medication: %w", err)
		}
		items = append(items, m)
	}
	return items, total, rows.Err()
}

func (r *repoPG) Update(ctx context.Context, m *Medication) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE medication SET name = $2, brand = $3, units_per_box = $4, reference_price_per_box = $5,
			active = $6, prescription_expires_on = $7, daily_consumption = $8, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		m.ID, m.Name, m.Brand, m.UnitsPerBox, m.ReferencePricePerBox,
		m.Active, m.PrescriptionExpiresOn, m.DailyConsumption,
	).Scan(&m.UpdatedAt)
	if db.IsNoRows(err) {
		return apperror.NotFound("medication", m.ID)
	}
	if err != nil {
		return writeErr("update", m, err)
	}
	return nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM medication WHERE id = $1`, id)
	if db.IsForeignKeyViolation(err) {
		return false, apperror.InvalidState("medication %s is referenced by order line items", id)
	}
	if err != nil {
		return false, fmt.Errorf("delete medication: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
