package memory

import (
	"context"

	"github.com/google/uuid"

	"github.com/medstock/medstock/internal/domain/stock"
	"github.com/medstock/medstock/internal/platform/apperror"
)

type lotRepo struct{ d *DB }

func cloneLot(l *stock.Lot) *stock.Lot {
	c := *l
	return &c
}

func (r *lotRepo) Create(_ context.Context, l *stock.Lot) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	if _, ok := r.d.meds[l.MedicationID]; !ok {
		return apperror.NotFound("medication", l.MedicationID)
	}
	id, now := r.d.register()
	l.ID, l.CreatedAt = id, now
	r.d.lots[id] = cloneLot(l)
	return nil
}

func (r *lotRepo) GetByID(_ context.Context, id uuid.UUID) (*stock.Lot, error) {
	r.d.mu.RLock()
	defer r.d.mu.RUnlock()
	l, ok := r.d.lots[id]
	if !ok {
		return nil, apperror.NotFound("lot", id)
	}
	return cloneLot(l), nil
}

func (r *lotRepo) List(_ context.Context, f stock.LotFilter) ([]*stock.Lot, error) {
	r.d.mu.RLock()
	defer r.d.mu.RUnlock()
	var out []*stock.Lot
	for _, l := range r.d.lots {
		if f.Match(l) {
			out = append(out, cloneLot(l))
		}
	}
	sortBy(out, func(a, b *stock.Lot) bool {
		if !a.ExpiresOn.Equal(b.ExpiresOn) {
			return a.ExpiresOn.Before(b.ExpiresOn)
		}
		return r.d.before(a.ID, b.ID)
	})
	return out, nil
}

func (r *lotRepo) Update(_ context.Context, l *stock.Lot) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	if _, ok := r.d.lots[l.ID]; !ok {
		return apperror.NotFound("lot", l.ID)
	}
	r.d.lots[l.ID] = cloneLot(l)
	return nil
}

func (r *lotRepo) Delete(_ context.Context, id uuid.UUID) (bool, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	if _, ok := r.d.lots[id]; !ok {
		return false, nil
	}
	delete(r.d.lots, id)
	return true, nil
}
