package medication

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists medications. Missing rows are reported as
// apperror.NotFound; a duplicate name (case-insensitive) as apperror.Conflict.
type Repository interface {
	Create(ctx context.Context, m *Medication) error
	GetByID(ctx context.Context, id uuid.UUID) (*Medication, error)
	GetByName(ctx context.Context, name string) (*Medication, error)
	// List orders by name. limit <= 0 returns every row.
	List(ctx context.Context, limit, offset int) ([]*Medication, int, error)
	Update(ctx context.Context, m *Medication) error
	// Delete removes the medication and its stock lots.
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
}

// LineItemCounter reports how many order line items reference a medication.
type LineItemCounter interface {
	CountLineItemsByMedication(ctx context.Context, medicationID uuid.UUID) (int, error)
}
