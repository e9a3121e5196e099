package order

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/medstock/medstock/internal/platform/apperror"
	"github.com/medstock/medstock/internal/platform/clock"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending   Status = "Pending"
	StatusReceived  Status = "Received"
	StatusCancelled Status = "Cancelled"
)

// Statuses lists every known status in lifecycle order.
var Statuses = []Status{StatusPending, StatusReceived, StatusCancelled}

// ParseStatus matches s case-insensitively against the status names.
func ParseStatus(s string) (Status, error) {
	s = strings.TrimSpace(s)
	for _, st := range Statuses {
		if strings.EqualFold(s, string(st)) {
			return st, nil
		}
	}
	return "", apperror.InvalidArgument("unknown order status %q", s)
}

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusReceived || s == StatusCancelled
}

// Order is a purchase order. Its cost is always derived from its line items.
type Order struct {
	ID        uuid.UUID `db:"id" json:"id"`
	OrderDate time.Time `db:"order_date" json:"order_date"`
	Supplier  *string   `db:"supplier" json:"supplier,omitempty"`
	Status    Status    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// LineItem is one medication entry within an order.
type LineItem struct {
	ID           uuid.UUID           `db:"id" json:"id"`
	OrderID      uuid.UUID           `db:"order_id" json:"order_id"`
	MedicationID uuid.UUID           `db:"medication_id" json:"medication_id"`
	Boxes        int                 `db:"boxes" json:"boxes"`
	PricePerBox  decimal.NullDecimal `db:"price_per_box" json:"price_per_box"`
	CreatedAt    time.Time           `db:"created_at" json:"created_at"`
}

// Subtotal is boxes × price per box, or zero when no price is recorded.
func (li *LineItem) Subtotal() decimal.Decimal {
	if !li.PricePerBox.Valid {
		return decimal.Zero
	}
	return li.PricePerBox.Decimal.Mul(decimal.NewFromInt(int64(li.Boxes)))
}

// Total sums the subtotals of items.
func Total(items []*LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, li := range items {
		total = total.Add(li.Subtotal())
	}
	return total
}

// Detail is an order with its line items and derived total.
type Detail struct {
	*Order
	Items []*LineItem     `json:"items"`
	Total decimal.Decimal `json:"total"`
}

// Filter selects orders. Month requires Year; zero values mean unfiltered.
type Filter struct {
	Status *Status
	Year   int
	Month  int
}

// Bounds returns the half-open order-date range implied by Year and Month.
func (f Filter) Bounds() (from, to *time.Time) {
	if f.Year == 0 {
		return nil, nil
	}
	var start, end time.Time
	if f.Month == 0 {
		start = time.Date(f.Year, time.January, 1, 0, 0, 0, 0, time.UTC)
		end = start.AddDate(1, 0, 0)
	} else {
		start, end = clock.MonthBounds(f.Year, f.Month)
	}
	return &start, &end
}

func (f Filter) Validate() error {
	if f.Month < 0 || f.Month > 12 {
		return apperror.InvalidArgument("month must be between 1 and 12")
	}
	if f.Month != 0 && f.Year == 0 {
		return apperror.InvalidArgument("month requires year")
	}
	return nil
}

// Match reports whether o satisfies f.
func (f Filter) Match(o *Order) bool {
	if f.Status != nil && o.Status != *f.Status {
		return false
	}
	from, to := f.Bounds()
	if from != nil && (o.OrderDate.Before(*from) || !o.OrderDate.Before(*to)) {
		return false
	}
	return true
}

// Patch is the generic order update. Status is the raw caller-supplied
// value; an unrecognised status is dropped with a FieldWarning while the
// other fields still apply.
type Patch struct {
	OrderDate *time.Time
	Supplier  *string // "" clears
	Status    *string
}

// LineItemPatch is a partial line item update. Nil fields are left unchanged.
type LineItemPatch struct {
	Boxes *int
	// Valid=false clears the price.
	PricePerBox *decimal.NullDecimal
}

func (p LineItemPatch) Apply(li *LineItem) {
	if p.Boxes != nil {
		li.Boxes = *p.Boxes
	}
	if p.PricePerBox != nil {
		li.PricePerBox = *p.PricePerBox
	}
}

// FieldWarning reports a patch field that was not applied.
type FieldWarning struct {
	Field   string `json:"field"`
	Value   string `json:"value"`
	Message string `json:"message"`
}

// LineItemFilter selects line items. Empty OrderIDs means every order.
type LineItemFilter struct {
	OrderIDs     []uuid.UUID
	MedicationID *uuid.UUID
}

func (f LineItemFilter) Match(li *LineItem) bool {
	if f.MedicationID != nil && li.MedicationID != *f.MedicationID {
		return false
	}
	if len(f.OrderIDs) == 0 {
		return true
	}
	for _, id := range f.OrderIDs {
		if li.OrderID == id {
			return true
		}
	}
	return false
}
