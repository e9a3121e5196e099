package stock

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Lot is a received batch of one medication with its own packaging and
// expiration date. Dates are calendar days at midnight UTC.
type Lot struct {
	ID                  uuid.UUID           `db:"id" json:"id"`
	MedicationID        uuid.UUID           `db:"medication_id" json:"medication_id"`
	Boxes               int                 `db:"boxes" json:"boxes"`
	UnitsPerBox         int                 `db:"units_per_box" json:"units_per_box"`
	PurchasedOn         time.Time           `db:"purchased_on" json:"purchased_on"`
	ExpiresOn           time.Time           `db:"expires_on" json:"expires_on"`
	PurchasePricePerBox decimal.NullDecimal `db:"purchase_price_per_box" json:"purchase_price_per_box"`
	CreatedAt           time.Time           `db:"created_at" json:"created_at"`
}

// TotalUnits is boxes × units per box.
func (l *Lot) TotalUnits() int {
	return l.Boxes * l.UnitsPerBox
}

// IsActive reports whether the lot expires today or later.
func (l *Lot) IsActive(today time.Time) bool {
	return !l.ExpiresOn.Before(today)
}

// LotPatch is a partial update. Nil fields are left unchanged.
type LotPatch struct {
	Boxes       *int
	UnitsPerBox *int
	PurchasedOn *time.Time
	ExpiresOn   *time.Time
	// Valid=false clears the price.
	PurchasePricePerBox *decimal.NullDecimal
}

func (p LotPatch) Apply(l *Lot) {
	if p.Boxes != nil {
		l.Boxes = *p.Boxes
	}
	if p.UnitsPerBox != nil {
		l.UnitsPerBox = *p.UnitsPerBox
	}
	if p.PurchasedOn != nil {
		l.PurchasedOn = *p.PurchasedOn
	}
	if p.ExpiresOn != nil {
		l.ExpiresOn = *p.ExpiresOn
	}
	if p.PurchasePricePerBox != nil {
		l.PurchasePricePerBox = *p.PurchasePricePerBox
	}
}

// LotFilter selects lots. Expiration bounds are inclusive; nil means unbounded.
type LotFilter struct {
	MedicationID *uuid.UUID
	ExpiresFrom  *time.Time
	ExpiresTo    *time.Time
}

// Match reports whether l satisfies f.
func (f LotFilter) Match(l *Lot) bool {
	if f.MedicationID != nil && l.MedicationID != *f.MedicationID {
		return false
	}
	if f.ExpiresFrom != nil && l.ExpiresOn.Before(*f.ExpiresFrom) {
		return false
	}
	if f.ExpiresTo != nil && l.ExpiresOn.After(*f.ExpiresTo) {
		return false
	}
	return true
}

// Summary is the derived stock position of one medication.
type Summary struct {
	MedicationID      uuid.UUID  `json:"medication_id"`
	ActiveUnits       int        `json:"active_units"`
	ActiveLots        int        `json:"active_lots"`
	ExpiredLots       int        `json:"expired_lots"`
	NearestExpiration *time.Time `json:"nearest_expiration,omitempty"`
	DaysOfSupply      *float64   `json:"days_of_supply,omitempty"`
}
