package memory

import (
	"context"

	"github.com/google/uuid"

	"github.com/medstock/medstock/internal/domain/order"
	"github.com/medstock/medstock/internal/platform/apperror"
)

type orderRepo struct{ d *DB }

func cloneOrder(o *order.Order) *order.Order {
	c := *o
	if o.Supplier != nil {
		s := *o.Supplier
		c.Supplier = &s
	}
	return &c
}

func cloneItem(li *order.LineItem) *order.LineItem {
	c := *li
	return &c
}

func (r *orderRepo) Create(_ context.Context, o *order.Order) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	id, now := r.d.register()
	o.ID, o.CreatedAt, o.UpdatedAt = id, now, now
	r.d.orders[id] = cloneOrder(o)
	return nil
}

func (r *orderRepo) GetByID(_ context.Context, id uuid.UUID) (*order.Order, error) {
	r.d.mu.RLock()
	defer r.d.mu.RUnlock()
	o, ok := r.d.orders[id]
	if !ok {
		return nil, apperror.NotFound("order", id)
	}
	return cloneOrder(o), nil
}

func (r *orderRepo) List(_ context.Context, f order.Filter, limit, offset int) ([]*order.Order, int, error) {
	r.d.mu.RLock()
	defer r.d.mu.RUnlock()
	var all []*order.Order
	for _, o := range r.d.orders {
		if f.Match(o) {
			all = append(all, cloneOrder(o))
		}
	}
	sortBy(all, func(a, b *order.Order) bool {
		if !a.OrderDate.Equal(b.OrderDate) {
			return a.OrderDate.After(b.OrderDate)
		}
		return r.d.before(b.ID, a.ID)
	})
	return window(all, limit, offset), len(all), nil
}

func (r *orderRepo) Update(_ context.Context, o *order.Order) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	if _, ok := r.d.orders[o.ID]; !ok {
		return apperror.NotFound("order", o.ID)
	}
	o.UpdatedAt = r.d.now().UTC()
	r.d.orders[o.ID] = cloneOrder(o)
	return nil
}

func (r *orderRepo) Delete(_ context.Context, id uuid.UUID) (bool, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	if _, ok := r.d.orders[id]; !ok {
		return false, nil
	}
	for itemID, li := range r.d.items {
		if li.OrderID == id {
			delete(r.d.items, itemID)
		}
	}
	delete(r.d.orders, id)
	return true, nil
}

func (r *orderRepo) CreateLineItem(_ context.Context, li *order.LineItem) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	if _, ok := r.d.orders[li.OrderID]; !ok {
		return apperror.NotFound("order", li.OrderID)
	}
	if _, ok := r.d.meds[li.MedicationID]; !ok {
		return apperror.NotFound("medication", li.MedicationID)
	}
	id, now := r.d.register()
	li.ID, li.CreatedAt = id, now
	r.d.items[id] = cloneItem(li)
	return nil
}

func (r *orderRepo) GetLineItem(_ context.Context, id uuid.UUID) (*order.LineItem, error) {
	r.d.mu.RLock()
	defer r.d.mu.RUnlock()
	li, ok := r.d.items[id]
	if !ok {
		return nil, apperror.NotFound("line item", id)
	}
	return cloneItem(li), nil
}

func (r *orderRepo) ListLineItems(_ context.Context, f order.LineItemFilter) ([]*order.LineItem, error) {
	r.d.mu.RLock()
	defer r.d.mu.RUnlock()
	var out []*order.LineItem
	for _, li := range r.d.items {
		if f.Match(li) {
			out = append(out, cloneItem(li))
		}
	}
	sortBy(out, func(a, b *order.LineItem) bool { return r.d.before(a.ID, b.ID) })
	return out, nil
}

func (r *orderRepo) UpdateLineItem(_ context.Context, li *order.LineItem) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	if _, ok := r.d.items[li.ID]; !ok {
		return apperror.NotFound("line item", li.ID)
	}
	r.d.items[li.ID] = cloneItem(li)
	return nil
}

func (r *orderRepo) DeleteLineItem(_ context.Context, id uuid.UUID) (bool, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	if _, ok := r.d.items[id]; !ok {
		return false, nil
	}
	delete(r.d.items, id)
	return true, nil
}

func (r *orderRepo) CountLineItemsByMedication(_ context.Context, medicationID uuid.UUID) (int, error) {
	r.d.mu.RLock()
	defer r.d.mu.RUnlock()
	n := 0
	for _, li := range r.d.items {
		if li.MedicationID == medicationID {
			n++
		}
	}
	return n, nil
}
