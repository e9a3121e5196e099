package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/medstock/medstock/internal/domain/medication"
	"github.com/medstock/medstock/internal/platform/apperror"
)

type medRepo struct{ d *DB }

const medCols = `id, name, brand, units_per_box, reference_price_per_box, active,
	prescription_expires_on, daily_consumption, created_at, updated_at`

func scanMed(row scanner) (*medication.Medication, error) {
	var (
		m                medication.Medication
		rx               sql.NullString
		created, updated string
	)
	err := row.Scan(&m.ID, &m.Name, &m.Brand, &m.UnitsPerBox, &m.ReferencePricePerBox, &m.Active,
		&rx, &m.DailyConsumption, &created, &updated)
	if err != nil {
		return nil, err
	}
	if m.PrescriptionExpiresOn, err = parseDatePtr(rx); err != nil {
		return nil, err
	}
	if m.CreatedAt, err = parseTimestamp(created); err != nil {
		return nil, err
	}
	if m.UpdatedAt, err = parseTimestamp(updated); err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *medRepo) Create(ctx context.Context, m *medication.Medication) error {
	id := uuid.New()
	now, ts := r.d.timestamp()
	_, err := r.d.db.ExecContext(ctx, `
		INSERT INTO medication (id, name, brand, units_per_box, reference_price_per_box, active,
			prescription_expires_on, daily_consumption, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, m.Name, m.Brand, m.UnitsPerBox, m.ReferencePricePerBox, m.Active,
		formatDatePtr(m.PrescriptionExpiresOn), m.DailyConsumption, ts, ts)
	if isUnique(err) {
		return apperror.Conflict("medication %q already exists", m.Name)
	}
	if err != nil {
		return fmt.Errorf("insert medication: %w", err)
	}
	m.ID, m.CreatedAt, m.UpdatedAt = id, now, now
	return nil
}

func (r *medRepo) get(ctx context.Context, where string, arg any, key any) (*medication.Medication, error) {
	m, err := scanMed(r.d.db.QueryRowContext(ctx, `SELECT `+medCols+` FROM medication WHERE `+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("medication", key)
	}
	if err != nil {
		return nil, fmt.Errorf("get medication: %w", err)
	}
	return m, nil
}

func (r *medRepo) GetByID(ctx context.Context, id uuid.UUID) (*medication.Medication, error) {
	return r.get(ctx, `id = ?`, id, id)
}

func (r *medRepo) GetByName(ctx context.Context, name string) (*medication.Medication, error) {
	return r.get(ctx, `name = ? COLLATE NOCASE`, name, name)
}

func (r *medRepo) List(ctx context.Context, limit, offset int) ([]*medication.Medication, int, error) {
	var total int
	if err := r.d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM medication`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count medications: %w", err)
	}
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.d.db.QueryContext(ctx,
		`SELECT `+medCols+` FROM medication ORDER BY name COLLATE NOCASE, created_at, rowid LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list medications: %w", err)
	}
	defer rows.Close()
	var meds []*medication.Medication
	for rows.Next() {
		m, err := scanMed(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan medication: %w", err)
		}
		meds = append(meds, m)
	}
	return meds, total, rows.Err()
}

func (r *medRepo) Update(ctx context.Context, m *medication.Medication) error {
	now, ts := r.d.timestamp()
	res, err := r.d.db.ExecContext(ctx, `
		UPDATE medication SET name = ?, brand = ?, units_per_box = ?, reference_price_per_box = ?,
			active = ?, prescription_expires_on = ?, daily_consumption = ?, updated_at = ?
		WHERE id = ?`,
		m.Name, m.Brand, m.UnitsPerBox, m.ReferencePricePerBox, m.Active,
		formatDatePtr(m.PrescriptionExpiresOn), m.DailyConsumption, ts, m.ID)
	if isUnique(err) {
		return apperror.Conflict("medication %q already exists", m.Name)
	}
	if err != nil {
		return fmt.Errorf("update medication: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("medication", m.ID)
	}
	m.UpdatedAt = now
	return nil
}

func (r *medRepo) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := r.d.db.ExecContext(ctx, `DELETE FROM medication WHERE id = ?`, id)
	if isForeignKey(err) {
		return false, apperror.InvalidState("medication %s is referenced by order line items", id)
	}
	if err != nil {
		return false, fmt.Errorf("delete medication: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}
