package order

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists orders and their line items. Orders list by order date
// descending, then creation; line items by creation. Deleting an order
// cascades its line items.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	// List returns matching orders and the unpaged total. limit <= 0 returns every row.
	List(ctx context.Context, f Filter, limit, offset int) ([]*Order, int, error)
	Update(ctx context.Context, o *Order) error
	Delete(ctx context.Context, id uuid.UUID) (bool, error)

	CreateLineItem(ctx context.Context, li *LineItem) error
	GetLineItem(ctx context.Context, id uuid.UUID) (*LineItem, error)
	ListLineItems(ctx context.Context, f LineItemFilter) ([]*LineItem, error)
	UpdateLineItem(ctx context.Context, li *LineItem) error
	DeleteLineItem(ctx context.Context, id uuid.UUID) (bool, error)
	CountLineItemsByMedication(ctx context.Context, medicationID uuid.UUID) (int, error)
}
