package medication

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Medication is a catalogued product. Its UnitsPerBox is the default
// packaging for lots that do not override it.
type Medication struct {
	ID                    uuid.UUID           `db:"id" json:"id"`
	Name                  string              `db:"name" json:"name"`
	Brand                 *string             `db:"brand" json:"brand,omitempty"`
	UnitsPerBox           int                 `db:"units_per_box" json:"units_per_box"`
	ReferencePricePerBox  decimal.NullDecimal `db:"reference_price_per_box" json:"reference_price_per_box"`
	Active                bool                `db:"active" json:"active"`
	PrescriptionExpiresOn *time.Time          `db:"prescription_expires_on" json:"prescription_expires_on,omitempty"`
	DailyConsumption      *float64            `db:"daily_consumption" json:"daily_consumption,omitempty"`
	CreatedAt             time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time           `db:"updated_at" json:"updated_at"`
}

// UnitPrice is the reference price of a single unit, if computable.
func (m *Medication) UnitPrice() (decimal.Decimal, bool) {
	if !m.ReferencePricePerBox.Valid || m.UnitsPerBox <= 0 {
		return decimal.Zero, false
	}
	return m.ReferencePricePerBox.Decimal.Div(decimal.NewFromInt(int64(m.UnitsPerBox))), true
}

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	Name        *string
	Brand       *string // "" clears
	UnitsPerBox *int
	// Valid=false clears the reference price.
	ReferencePricePerBox  *decimal.NullDecimal
	Active                *bool
	PrescriptionExpiresOn *time.Time // zero time clears
	DailyConsumption      *float64   // 0 clears
}

// Apply copies the set fields of p onto m.
func (p Patch) Apply(m *Medication) {
	if p.Name != nil {
		m.Name = *p.Name
	}
	if p.Brand != nil {
		m.Brand = nilIfEmpty(*p.Brand)
	}
	if p.UnitsPerBox != nil {
		m.UnitsPerBox = *p.UnitsPerBox
	}
	if p.ReferencePricePerBox != nil {
		m.ReferencePricePerBox = *p.ReferencePricePerBox
	}
	if p.Active != nil {
		m.Active = *p.Active
	}
	if p.PrescriptionExpiresOn != nil {
		if p.PrescriptionExpiresOn.IsZero() {
			m.PrescriptionExpiresOn = nil
		} else {
			d := *p.PrescriptionExpiresOn
			m.PrescriptionExpiresOn = &d
		}
	}
	if p.DailyConsumption != nil {
		if *p.DailyConsumption == 0 {
			m.DailyConsumption = nil
		} else {
			v := *p.DailyConsumption
			m.DailyConsumption = &v
		}
	}
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
