// Package memory is an in-process Entity Store. It enforces the same
// referential rules as the relational backends: lots cascade with their
// medication, line items cascade with their order, and a medication still
// referenced by a line item cannot be deleted.
package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/medstock/medstock/internal/domain/medication"
	"github.com/medstock/medstock/internal/domain/order"
	"github.com/medstock/medstock/internal/domain/stock"
)

// DB holds every collection behind one lock.
type DB struct {
	mu     sync.RWMutex
	meds   map[uuid.UUID]*medication.Medication
	lots   map[uuid.UUID]*stock.Lot
	orders map[uuid.UUID]*order.Order
	items  map[uuid.UUID]*order.LineItem
	// seq records insertion order so ties on dates sort stably.
	seq  map[uuid.UUID]uint64
	next uint64
	now  func() time.Time
}

func New() *DB {
	return &DB{
		meds:   make(map[uuid.UUID]*medication.Medication),
		lots:   make(map[uuid.UUID]*stock.Lot),
		orders: make(map[uuid.UUID]*order.Order),
		items:  make(map[uuid.UUID]*order.LineItem),
		seq:    make(map[uuid.UUID]uint64),
		now:    time.Now,
	}
}

func (d *DB) Medications() medication.Repository { return &medRepo{d} }

func (d *DB) Lots() stock.Repository { return &lotRepo{d} }

func (d *DB) Orders() order.Repository { return &orderRepo{d} }

// register assigns a fresh id and insertion sequence. Callers hold mu.
func (d *DB) register() (uuid.UUID, time.Time) {
	id := uuid.New()
	d.next++
	d.seq[id] = d.next
	return id, d.now().UTC()
}

func (d *DB) before(a, b uuid.UUID) bool {
	return d.seq[a] < d.seq[b]
}

func window[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func sortBy[T any](items []T, less func(a, b T) bool) {
	sort.SliceStable(items, func(i, j int) bool { return less(items[i], items[j]) })
}
