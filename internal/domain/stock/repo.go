package stock

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists stock lots. List orders by expiration ascending, then
// by creation. Creating a lot for an unknown medication is apperror.NotFound.
type Repository interface {
	Create(ctx context.Context, l *Lot) error
	GetByID(ctx context.Context, id uuid.UUID) (*Lot, error)
	List(ctx context.Context, f LotFilter) ([]*Lot, error)
	Update(ctx context.Context, l *Lot) error
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
}
