package memory

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/medstock/medstock/internal/domain/medication"
	"github.com/medstock/medstock/internal/platform/apperror"
)

type medRepo struct{ d *DB }

func cloneMed(m *medication.Medication) *medication.Medication {
	c := *m
	if m.Brand != nil {
		b := *m.Brand
		c.Brand = &b
	}
	if m.PrescriptionExpiresOn != nil {
		t := *m.PrescriptionExpiresOn
		c.PrescriptionExpiresOn = &t
	}
	if m.DailyConsumption != nil {
		v := *m.DailyConsumption
		c.DailyConsumption = &v
	}
	return &c
}

// nameTaken is called with mu held.
func (r *medRepo) nameTaken(name string, self uuid.UUID) bool {
	for id, m := range r.d.meds {
		if id != self && strings.EqualFold(m.Name, name) {
			return true
		}
	}
	return false
}

func (r *medRepo) Create(_ context.Context, m *medication.Medication) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	if r.nameTaken(m.Name, uuid.Nil) {
		return apperror.Conflict("medication %q already exists", m.Name)
	}
	id, now := r.d.register()
	m.ID, m.CreatedAt, m.UpdatedAt = id, now, now
	r.d.meds[id] = cloneMed(m)
	return nil
}

func (r *medRepo) GetByID(_ context.Context, id uuid.UUID) (*medication.Medication, error) {
	r.d.mu.RLock()
	defer r.d.mu.RUnlock()
	m, ok := r.d.meds[id]
	if !ok {
		return nil, apperror.NotFound("medication", id)
	}
	return cloneMed(m), nil
}

func (r *medRepo) GetByName(_ context.Context, name string) (*medication.Medication, error) {
	r.d.mu.RLock()
	defer r.d.mu.RUnlock()
	for _, m := range r.d.meds {
		if strings.EqualFold(m.Name, name) {
			return cloneMed(m), nil
		}
	}
	return nil, apperror.NotFound("medication", name)
}

func (r *medRepo) List(_ context.Context, limit, offset int) ([]*medication.Medication, int, error) {
	r.d.mu.RLock()
	defer r.d.mu.RUnlock()
	all := make([]*medication.Medication, 0, len(r.d.meds))
	for _, m := range r.d.meds {
		all = append(all, cloneMed(m))
	}
	sortBy(all, func(a, b *medication.Medication) bool {
		la, lb := strings.ToLower(a.Name), strings.ToLower(b.Name)
		if la != lb {
			return la < lb
		}
		return r.d.before(a.ID, b.ID)
	})
	return window(all, limit, offset), len(all), nil
}

func (r *medRepo) Update(_ context.Context, m *medication.Medication) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	if _, ok := r.d.meds[m.ID]; !ok {
		return apperror.NotFound("medication", m.ID)
	}
	if r.nameTaken(m.Name, m.ID) {
		return apperror.Conflict("medication %q already exists", m.Name)
	}
	m.UpdatedAt = r.d.now().UTC()
	r.d.meds[m.ID] = cloneMed(m)
	return nil
}

func (r *medRepo) Delete(_ context.Context, id uuid.UUID) (bool, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	if _, ok := r.d.meds[id]; !ok {
		return false, nil
	}
	for _, li := range r.d.items {
		if li.MedicationID == id {
			return false, apperror.InvalidState("medication %s is referenced by order line items", id)
		}
	}
	for lotID, l := range r.d.lots {
		if l.MedicationID == id {
			delete(r.d.lots, lotID)
		}
	}
	delete(r.d.meds, id)
	return true, nil
}
