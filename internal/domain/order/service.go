package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/medstock/medstock/internal/domain/medication"
	"github.com/medstock/medstock/internal/platform/apperror"
	"github.com/medstock/medstock/internal/platform/clock"
)

// MedicationLookup resolves the medication a line item references.
type MedicationLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*medication.Medication, error)
}

// Service enforces the order lifecycle: line items may only change while an
// order is Pending, and Pending moves to Received or Cancelled exactly once.
// Receiving an order does not touch stock.
type Service struct {
	orders Repository
	meds   MedicationLookup
	now    clock.Func
	loc    *time.Location
	logger zerolog.Logger
}

func NewService(orders Repository, meds MedicationLookup) *Service {
	return &Service{
		orders: orders,
		meds:   meds,
		now:    time.Now,
		loc:    time.Local,
		logger: zerolog.Nop(),
	}
}

func (s *Service) SetClock(now clock.Func, loc *time.Location) {
	s.now = now
	if loc != nil {
		s.loc = loc
	}
}

func (s *Service) SetLogger(l zerolog.Logger) {
	s.logger = l.With().Str("component", "order").Logger()
}

// CreateInput describes a new order. OrderDate defaults to today and Status to Pending.
type CreateInput struct {
	OrderDate *time.Time
	Supplier  *string
	Status    *Status
}

func (s *Service) CreateOrder(ctx context.Context, in CreateInput) (*Order, error) {
	o := &Order{
		OrderDate: clock.Today(s.now, s.loc),
		Status:    StatusPending,
	}
	if in.OrderDate != nil && !in.OrderDate.IsZero() {
		o.OrderDate = clock.Date(*in.OrderDate, nil)
	}
	if in.Supplier != nil {
		o.Supplier = nilIfEmpty(strings.TrimSpace(*in.Supplier))
	}
	if in.Status != nil {
		st, err := ParseStatus(string(*in.Status))
		if err != nil {
			return nil, err
		}
		o.Status = st
	}
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	s.logger.Info().Str("order_id", o.ID.String()).Str("status", string(o.Status)).Msg("order created")
	return o, nil
}

// GetOrder returns the order with its line items and total.
func (s *Service) GetOrder(ctx context.Context, id uuid.UUID) (*Detail, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	items, err := s.LineItems(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Detail{Order: o, Items: items, Total: Total(items)}, nil
}

// ListOrders pages through matching orders, each with its items and total.
func (s *Service) ListOrders(ctx context.Context, f Filter, limit, offset int) ([]*Detail, int, error) {
	if err := f.Validate(); err != nil {
		return nil, 0, err
	}
	orders, total, err := s.orders.List(ctx, f, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	details, err := s.attachItems(ctx, orders)
	if err != nil {
		return nil, 0, err
	}
	return details, total, nil
}

// Orders returns every order matching f without line items.
func (s *Service) Orders(ctx context.Context, f Filter) ([]*Order, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	orders, _, err := s.orders.List(ctx, f, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// Totals computes the cost total of each order from one line item listing.
func (s *Service) Totals(ctx context.Context, orders []*Order) (map[uuid.UUID]decimal.Decimal, error) {
	out := make(map[uuid.UUID]decimal.Decimal, len(orders))
	if len(orders) == 0 {
		return out, nil
	}
	ids := make([]uuid.UUID, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		out[o.ID] = decimal.Zero
	}
	items, err := s.orders.ListLineItems(ctx, LineItemFilter{OrderIDs: ids})
	if err != nil {
		return nil, fmt.Errorf("list line items: %w", err)
	}
	for _, li := range items {
		out[li.OrderID] = out[li.OrderID].Add(li.Subtotal())
	}
	return out, nil
}

func (s *Service) attachItems(ctx context.Context, orders []*Order) ([]*Detail, error) {
	details := make([]*Detail, len(orders))
	if len(orders) == 0 {
		return details, nil
	}
	ids := make([]uuid.UUID, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}
	items, err := s.orders.ListLineItems(ctx, LineItemFilter{OrderIDs: ids})
	if err != nil {
		return nil, fmt.Errorf("list line items: %w", err)
	}
	byOrder := make(map[uuid.UUID][]*LineItem, len(orders))
	for _, li := range items {
		byOrder[li.OrderID] = append(byOrder[li.OrderID], li)
	}
	for i, o := range orders {
		its := byOrder[o.ID]
		if its == nil {
			its = []*LineItem{}
		}
		details[i] = &Detail{Order: o, Items: its, Total: Total(its)}
	}
	return details, nil
}

// UpdateOrder applies the generic field update. A status that does not parse
// is left unchanged and reported as a warning; the remaining fields apply.
func (s *Service) UpdateOrder(ctx context.Context, id uuid.UUID, p Patch) (*Order, []FieldWarning, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	var warnings []FieldWarning
	if p.OrderDate != nil {
		if p.OrderDate.IsZero() {
			return nil, nil, apperror.InvalidArgument("order_date cannot be cleared")
		}
		o.OrderDate = clock.Date(*p.OrderDate, nil)
	}
	if p.Supplier != nil {
		o.Supplier = nilIfEmpty(strings.TrimSpace(*p.Supplier))
	}
	if p.Status != nil {
		st, err := ParseStatus(*p.Status)
		if err != nil {
			warnings = append(warnings, FieldWarning{Field: "status", Value: *p.Status, Message: err.Error()})
			s.logger.Warn().Str("order_id", id.String()).Str("status", *p.Status).Msg("ignoring unknown order status")
		} else {
			o.Status = st
		}
	}
	if err := s.orders.Update(ctx, o); err != nil {
		return nil, nil, fmt.Errorf("update order: %w", err)
	}
	return o, warnings, nil
}

// Receive moves a Pending order to Received.
func (s *Service) Receive(ctx context.Context, id uuid.UUID) (*Order, error) {
	return s.transition(ctx, id, StatusReceived)
}

// Cancel moves a Pending order to Cancelled.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Order, error) {
	return s.transition(ctx, id, StatusCancelled)
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, to Status) (*Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.Status != StatusPending {
		return nil, apperror.InvalidState("order %s is %s, only Pending orders can become %s", id, o.Status, to)
	}
	o.Status = to
	if err := s.orders.Update(ctx, o); err != nil {
		return nil, fmt.Errorf("update order: %w", err)
	}
	s.logger.Info().Str("order_id", id.String()).Str("status", string(to)).Msg("order status changed")
	return o, nil
}

// DeleteOrder removes the order and its line items.
func (s *Service) DeleteOrder(ctx context.Context, id uuid.UUID) (bool, error) {
	ok, err := s.orders.Delete(ctx, id)
	if err != nil {
		return false, fmt.Errorf("delete order: %w", err)
	}
	if ok {
		s.logger.Info().Str("order_id", id.String()).Msg("order deleted")
	}
	return ok, nil
}

// AddLineItemInput describes a medication added to an order.
type AddLineItemInput struct {
	OrderID      uuid.UUID
	MedicationID uuid.UUID
	Boxes        int
	PricePerBox  decimal.NullDecimal
}

// AddLineItem appends a line item to a Pending order.
func (s *Service) AddLineItem(ctx context.Context, in AddLineItemInput) (*LineItem, error) {
	if _, err := s.pendingOrder(ctx, in.OrderID); err != nil {
		return nil, err
	}
	if _, err := s.meds.GetByID(ctx, in.MedicationID); err != nil {
		return nil, err
	}
	li := &LineItem{
		OrderID:      in.OrderID,
		MedicationID: in.MedicationID,
		Boxes:        in.Boxes,
		PricePerBox:  in.PricePerBox,
	}
	if err := validateLineItem(li); err != nil {
		return nil, err
	}
	if err := s.orders.CreateLineItem(ctx, li); err != nil {
		return nil, fmt.Errorf("create line item: %w", err)
	}
	return li, nil
}

// RemoveLineItem deletes a line item of a Pending order. It returns false
// when the line item does not exist.
func (s *Service) RemoveLineItem(ctx context.Context, id uuid.UUID) (bool, error) {
	li, err := s.orders.GetLineItem(ctx, id)
	if apperror.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if _, err := s.pendingOrder(ctx, li.OrderID); err != nil {
		return false, err
	}
	ok, err := s.orders.DeleteLineItem(ctx, id)
	if err != nil {
		return false, fmt.Errorf("delete line item: %w", err)
	}
	return ok, nil
}

// UpdateLineItem changes quantity or price of a line item of a Pending order.
func (s *Service) UpdateLineItem(ctx context.Context, id uuid.UUID, p LineItemPatch) (*LineItem, error) {
	li, err := s.orders.GetLineItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.pendingOrder(ctx, li.OrderID); err != nil {
		return nil, err
	}
	p.Apply(li)
	if err := validateLineItem(li); err != nil {
		return nil, err
	}
	if err := s.orders.UpdateLineItem(ctx, li); err != nil {
		return nil, fmt.Errorf("update line item: %w", err)
	}
	return li, nil
}

func (s *Service) GetLineItem(ctx context.Context, id uuid.UUID) (*LineItem, error) {
	return s.orders.GetLineItem(ctx, id)
}

// LineItems lists the order's line items by creation. An unknown order has none.
func (s *Service) LineItems(ctx context.Context, orderID uuid.UUID) ([]*LineItem, error) {
	items, err := s.orders.ListLineItems(ctx, LineItemFilter{OrderIDs: []uuid.UUID{orderID}})
	if err != nil {
		return nil, fmt.Errorf("list line items: %w", err)
	}
	if items == nil {
		items = []*LineItem{}
	}
	return items, nil
}

// OrderCostTotal sums the line item subtotals; zero for an unknown or empty order.
func (s *Service) OrderCostTotal(ctx context.Context, orderID uuid.UUID) (decimal.Decimal, error) {
	items, err := s.LineItems(ctx, orderID)
	if err != nil {
		return decimal.Zero, err
	}
	return Total(items), nil
}

func (s *Service) pendingOrder(ctx context.Context, id uuid.UUID) (*Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.Status != StatusPending {
		return nil, apperror.InvalidState("order %s is %s, line items can only change while Pending", id, o.Status)
	}
	return o, nil
}

func validateLineItem(li *LineItem) error {
	if li.Boxes <= 0 {
		return apperror.InvalidArgument("boxes must be a positive integer")
	}
	if li.PricePerBox.Valid {
		price := li.PricePerBox.Decimal
		if price.IsNegative() {
			return apperror.InvalidArgument("price_per_box must not be negative")
		}
		if !price.Equal(price.Round(2)) {
			return apperror.InvalidArgument("price_per_box allows at most 2 decimal places")
		}
	}
	return nil
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
