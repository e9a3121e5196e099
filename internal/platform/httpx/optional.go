package httpx

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/medstock/medstock/internal/platform/apperror"
	"github.com/medstock/medstock/internal/platform/clock"
)

// Optional distinguishes an absent JSON field from an explicit null in
// PATCH bodies. Set is true whenever the key was present.
type Optional[T any] struct {
	Set   bool
	Value *T
}

func (o *Optional[T]) UnmarshalJSON(b []byte) error {
	o.Set = true
	if string(b) == "null" {
		o.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	o.Value = &v
	return nil
}

// Date parses a required YYYY-MM-DD field.
func Date(field, s string) (time.Time, error) {
	d, err := clock.ParseDate(s)
	if err != nil {
		return time.Time{}, apperror.InvalidArgument("%s: %v", field, err)
	}
	return d, nil
}

// DatePtr parses an optional YYYY-MM-DD field; nil or "" yields nil.
func DatePtr(field string, s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	d, err := Date(field, *s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// DatePatch maps an Optional date onto the patch convention: nil pointer for
// absent, zero time for explicit null.
func DatePatch(field string, o Optional[string]) (*time.Time, error) {
	if !o.Set {
		return nil, nil
	}
	if o.Value == nil || *o.Value == "" {
		zero := time.Time{}
		return &zero, nil
	}
	d, err := Date(field, *o.Value)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// MoneyPatch maps an Optional price: nil for absent, invalid NullDecimal for null.
func MoneyPatch(o Optional[decimal.Decimal]) *decimal.NullDecimal {
	if !o.Set {
		return nil
	}
	if o.Value == nil {
		return &decimal.NullDecimal{}
	}
	return &decimal.NullDecimal{Decimal: *o.Value, Valid: true}
}
