// Package reporting builds cross-entity summaries on demand from the stock
// and order services. Nothing is cached: every figure is recomputed from the
// current rows, and missing or empty data yields zero rather than an error.
package reporting

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/medstock/medstock/internal/domain/medication"
	"github.com/medstock/medstock/internal/domain/order"
	"github.com/medstock/medstock/internal/domain/stock"
	"github.com/medstock/medstock/internal/platform/apperror"
	"github.com/medstock/medstock/internal/platform/clock"
)

// MedicationSource lists the medication catalogue. limit <= 0 returns every row.
type MedicationSource interface {
	ListMedications(ctx context.Context, limit, offset int) ([]*medication.Medication, int, error)
}

// ReadScope runs fn with every read inside it seeing the same stored state.
type ReadScope func(ctx context.Context, fn func(ctx context.Context) error) error

func directScope(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }

// Aggregator composes stock accounting and order lifecycle outputs. "Today"
// is taken from the stock service so every figure shares one clock.
type Aggregator struct {
	meds   MedicationSource
	stock  *stock.Service
	orders *order.Service
	scope  ReadScope
	logger zerolog.Logger
}

func NewAggregator(meds MedicationSource, st *stock.Service, orders *order.Service) *Aggregator {
	return &Aggregator{meds: meds, stock: st, orders: orders, scope: directScope, logger: zerolog.Nop()}
}

// SetReadScope makes snapshot loads run inside scope. A nil scope reads directly.
func (a *Aggregator) SetReadScope(scope ReadScope) {
	if scope == nil {
		scope = directScope
	}
	a.scope = scope
}

func (a *Aggregator) SetLogger(l zerolog.Logger) {
	a.logger = l.With().Str("component", "reporting").Logger()
}

// Today is the calendar day the aggregations are evaluated against.
func (a *Aggregator) Today() time.Time {
	return a.stock.Today()
}

// snapshot is the catalogue and its lots read inside the aggregator's read scope.
type snapshot struct {
	today time.Time
	meds  []*medication.Medication
	lots  []*stock.Lot
}

func (a *Aggregator) load(ctx context.Context, withLots bool) (*snapshot, error) {
	s := &snapshot{today: a.Today()}
	err := a.scope(ctx, func(ctx context.Context) error {
		meds, _, err := a.meds.ListMedications(ctx, 0, 0)
		if err != nil {
			return fmt.Errorf("list medications: %w", err)
		}
		s.meds = meds
		if withLots {
			if s.lots, err = a.stock.Lots(ctx, stock.LotFilter{}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *snapshot) lotsByMedication() map[uuid.UUID][]*stock.Lot {
	out := make(map[uuid.UUID][]*stock.Lot, len(s.meds))
	for _, l := range s.lots {
		out[l.MedicationID] = append(out[l.MedicationID], l)
	}
	return out
}

func (s *snapshot) summaries() map[uuid.UUID]stock.Summary {
	byMed := s.lotsByMedication()
	out := make(map[uuid.UUID]stock.Summary, len(s.meds))
	for _, m := range s.meds {
		out[m.ID] = stock.Summarize(m.ID, byMed[m.ID], s.today, m.DailyConsumption)
	}
	return out
}

func (s *snapshot) nearExpiry(days int) int {
	limit := clock.AddDays(s.today, days)
	seen := make(map[uuid.UUID]struct{})
	for _, l := range s.lots {
		if !l.ExpiresOn.Before(s.today) && !l.ExpiresOn.After(limit) {
			seen[l.MedicationID] = struct{}{}
		}
	}
	return len(seen)
}

func (s *snapshot) expiredLots() int {
	n := 0
	for _, l := range s.lots {
		if !l.IsActive(s.today) {
			n++
		}
	}
	return n
}

func (s *snapshot) lowStock(threshold int) int {
	n := 0
	for _, sum := range s.summaries() {
		if sum.ActiveUnits <= threshold {
			n++
		}
	}
	return n
}

func (s *snapshot) prescriptionsExpiring(days int) int {
	limit := clock.AddDays(s.today, days)
	n := 0
	for _, m := range s.meds {
		rx := m.PrescriptionExpiresOn
		if m.Active && rx != nil && !rx.Before(s.today) && !rx.After(limit) {
			n++
		}
	}
	return n
}

func (s *snapshot) prescriptionsExpired() int {
	n := 0
	for _, m := range s.meds {
		if m.Active && m.PrescriptionExpiresOn != nil && m.PrescriptionExpiresOn.Before(s.today) {
			n++
		}
	}
	return n
}

func checkDays(days int) error {
	if days < 0 {
		return apperror.InvalidArgument("days must not be negative")
	}
	return nil
}

func (a *Aggregator) TotalMedicationCount(ctx context.Context) (int, error) {
	_, total, err := a.meds.ListMedications(ctx, 1, 0)
	if err != nil {
		return 0, fmt.Errorf("count medications: %w", err)
	}
	return total, nil
}

// MedicationsNearExpiry counts medications with a lot expiring in [today, today+days].
func (a *Aggregator) MedicationsNearExpiry(ctx context.Context, days int) (int, error) {
	if err := checkDays(days); err != nil {
		return 0, err
	}
	s, err := a.load(ctx, true)
	if err != nil {
		return 0, err
	}
	return s.nearExpiry(days), nil
}

// ExpiredLotCount counts every lot that expired before today.
func (a *Aggregator) ExpiredLotCount(ctx context.Context) (int, error) {
	yesterday := clock.AddDays(a.Today(), -1)
	lots, err := a.stock.Lots(ctx, stock.LotFilter{ExpiresTo: &yesterday})
	if err != nil {
		return 0, err
	}
	return len(lots), nil
}

// MedicationsLowStock counts medications whose active units are at most
// threshold. A medication without active lots has zero units.
func (a *Aggregator) MedicationsLowStock(ctx context.Context, threshold int) (int, error) {
	s, err := a.load(ctx, true)
	if err != nil {
		return 0, err
	}
	return s.lowStock(threshold), nil
}

// PrescriptionsExpiring counts active medications whose prescription expires in [today, today+days].
func (a *Aggregator) PrescriptionsExpiring(ctx context.Context, days int) (int, error) {
	if err := checkDays(days); err != nil {
		return 0, err
	}
	s, err := a.load(ctx, false)
	if err != nil {
		return 0, err
	}
	return s.prescriptionsExpiring(days), nil
}

// PrescriptionsExpired counts active medications whose prescription expired before today.
func (a *Aggregator) PrescriptionsExpired(ctx context.Context) (int, error) {
	s, err := a.load(ctx, false)
	if err != nil {
		return 0, err
	}
	return s.prescriptionsExpired(), nil
}

// DashboardOptions carries the configurable windows and thresholds.
type DashboardOptions struct {
	NearExpiryDays          int `json:"near_expiry_days"`
	LowStockThreshold       int `json:"low_stock_threshold"`
	PrescriptionWarningDays int `json:"prescription_warning_days"`
}

// Dashboard is the set of headline counters.
type Dashboard struct {
	Today                 string           `json:"today"`
	TotalMedications      int              `json:"total_medications"`
	NearExpiry            int              `json:"near_expiry"`
	ExpiredLots           int              `json:"expired_lots"`
	LowStock              int              `json:"low_stock"`
	PrescriptionsExpiring int              `json:"prescriptions_expiring"`
	PrescriptionsExpired  int              `json:"prescriptions_expired"`
	Options               DashboardOptions `json:"options"`
}

// Dashboard computes every counter from a single read of medications and lots.
func (a *Aggregator) Dashboard(ctx context.Context, opts DashboardOptions) (*Dashboard, error) {
	if err := checkDays(opts.NearExpiryDays); err != nil {
		return nil, err
	}
	if err := checkDays(opts.PrescriptionWarningDays); err != nil {
		return nil, err
	}
	s, err := a.load(ctx, true)
	if err != nil {
		return nil, err
	}
	return &Dashboard{
		Today:                 s.today.Format(clock.DateLayout),
		TotalMedications:      len(s.meds),
		NearExpiry:            s.nearExpiry(opts.NearExpiryDays),
		ExpiredLots:           s.expiredLots(),
		LowStock:              s.lowStock(opts.LowStockThreshold),
		PrescriptionsExpiring: s.prescriptionsExpiring(opts.PrescriptionWarningDays),
		PrescriptionsExpired:  s.prescriptionsExpired(),
		Options:               opts,
	}, nil
}

// YearMonth is a calendar month.
type YearMonth struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

func (ym YearMonth) String() string {
	return fmt.Sprintf("%04d-%02d", ym.Year, ym.Month)
}

func yearMonthOf(t time.Time) YearMonth {
	return YearMonth{Year: t.Year(), Month: int(t.Month())}
}

func sortDescending(months []YearMonth) {
	sort.Slice(months, func(i, j int) bool {
		if months[i].Year != months[j].Year {
			return months[i].Year > months[j].Year
		}
		return months[i].Month > months[j].Month
	})
}

// CostForMonth sums the cost totals of orders dated in year/month with the
// given status. A nil status matches every order.
func (a *Aggregator) CostForMonth(ctx context.Context, year, month int, status *order.Status) (decimal.Decimal, error) {
	if month < 1 || month > 12 {
		return decimal.Zero, apperror.InvalidArgument("month must be between 1 and 12")
	}
	if year < 1 {
		return decimal.Zero, apperror.InvalidArgument("year must be positive")
	}
	orders, err := a.orders.Orders(ctx, order.Filter{Status: status, Year: year, Month: month})
	if err != nil {
		return decimal.Zero, err
	}
	totals, err := a.orders.Totals(ctx, orders)
	if err != nil {
		return decimal.Zero, err
	}
	sum := decimal.Zero
	for _, t := range totals {
		sum = sum.Add(t)
	}
	return sum, nil
}

// MonthsWithOrders lists the distinct months of matching orders, newest first.
func (a *Aggregator) MonthsWithOrders(ctx context.Context, status *order.Status) ([]YearMonth, error) {
	orders, err := a.orders.Orders(ctx, order.Filter{Status: status})
	if err != nil {
		return nil, err
	}
	seen := make(map[YearMonth]struct{})
	months := []YearMonth{}
	for _, o := range orders {
		ym := yearMonthOf(o.OrderDate)
		if _, ok := seen[ym]; ok {
			continue
		}
		seen[ym] = struct{}{}
		months = append(months, ym)
	}
	sortDescending(months)
	return months, nil
}

// MonthlyCost is the cost of one month's matching orders.
type MonthlyCost struct {
	YearMonth
	Orders int             `json:"orders"`
	Total  decimal.Decimal `json:"total"`
}

// MonthlyCostReport returns every month with matching orders and its cost, newest first.
func (a *Aggregator) MonthlyCostReport(ctx context.Context, status *order.Status) ([]MonthlyCost, error) {
	orders, err := a.orders.Orders(ctx, order.Filter{Status: status})
	if err != nil {
		return nil, err
	}
	totals, err := a.orders.Totals(ctx, orders)
	if err != nil {
		return nil, err
	}
	byMonth := make(map[YearMonth]*MonthlyCost)
	var months []YearMonth
	for _, o := range orders {
		ym := yearMonthOf(o.OrderDate)
		mc, ok := byMonth[ym]
		if !ok {
			mc = &MonthlyCost{YearMonth: ym, Total: decimal.Zero}
			byMonth[ym] = mc
			months = append(months, ym)
		}
		mc.Orders++
		mc.Total = mc.Total.Add(totals[o.ID])
	}
	sortDescending(months)
	out := make([]MonthlyCost, 0, len(months))
	for _, ym := range months {
		out = append(out, *byMonth[ym])
	}
	return out, nil
}

// ValuationLine is the stock value of one medication. UnitPrice and Value
// are nil when no reference price is set.
type ValuationLine struct {
	MedicationID uuid.UUID        `json:"medication_id"`
	Name         string           `json:"name"`
	ActiveUnits  int              `json:"active_units"`
	UnitPrice    *decimal.Decimal `json:"unit_price,omitempty"`
	Value        *decimal.Decimal `json:"value,omitempty"`
}

// Valuation is the value of all active stock at reference prices.
type Valuation struct {
	Lines []ValuationLine `json:"lines"`
	Total decimal.Decimal `json:"total"`
}

// GlobalStockValuation values each medication's active units at its
// reference price per unit, rounded to cents. Medications without a
// computable unit price contribute nothing to the total.
func (a *Aggregator) GlobalStockValuation(ctx context.Context) (*Valuation, error) {
	s, err := a.load(ctx, true)
	if err != nil {
		return nil, err
	}
	sums := s.summaries()
	v := &Valuation{Lines: make([]ValuationLine, 0, len(s.meds)), Total: decimal.Zero}
	for _, m := range s.meds {
		line := ValuationLine{MedicationID: m.ID, Name: m.Name, ActiveUnits: sums[m.ID].ActiveUnits}
		if unit, ok := m.UnitPrice(); ok {
			u := unit.Round(4)
			value := m.ReferencePricePerBox.Decimal.
				Mul(decimal.NewFromInt(int64(line.ActiveUnits))).
				Div(decimal.NewFromInt(int64(m.UnitsPerBox))).
				Round(2)
			line.UnitPrice = &u
			line.Value = &value
			v.Total = v.Total.Add(value)
		}
		v.Lines = append(v.Lines, line)
	}
	return v, nil
}

// LotRow is a lot annotated with its medication name.
type LotRow struct {
	*stock.Lot
	MedicationName string `json:"medication_name"`
	TotalUnits     int    `json:"total_units"`
	Expired        bool   `json:"expired"`
}

// LotsByExpiration lists lots by expiration ascending, optionally only active ones.
func (a *Aggregator) LotsByExpiration(ctx context.Context, onlyActive bool) ([]LotRow, error) {
	s, err := a.load(ctx, false)
	if err != nil {
		return nil, err
	}
	f := stock.LotFilter{}
	if onlyActive {
		f.ExpiresFrom = &s.today
	}
	lots, err := a.stock.Lots(ctx, f)
	if err != nil {
		return nil, err
	}
	names := make(map[uuid.UUID]string, len(s.meds))
	for _, m := range s.meds {
		names[m.ID] = m.Name
	}
	rows := make([]LotRow, 0, len(lots))
	for _, l := range lots {
		rows = append(rows, LotRow{
			Lot:            l,
			MedicationName: names[l.MedicationID],
			TotalUnits:     l.TotalUnits(),
			Expired:        !l.IsActive(s.today),
		})
	}
	return rows, nil
}

// MedicationExpiry is a medication with its stock position.
type MedicationExpiry struct {
	MedicationID      uuid.UUID  `json:"medication_id"`
	Name              string     `json:"name"`
	ActiveUnits       int        `json:"active_units"`
	NearestExpiration *time.Time `json:"nearest_expiration,omitempty"`
}

// MedicationsByExpiration orders medications by nearest active expiration.
// Medications without active lots come last, by name.
func (a *Aggregator) MedicationsByExpiration(ctx context.Context) ([]MedicationExpiry, error) {
	s, err := a.load(ctx, true)
	if err != nil {
		return nil, err
	}
	sums := s.summaries()
	out := make([]MedicationExpiry, 0, len(s.meds))
	for _, m := range s.meds {
		sum := sums[m.ID]
		out = append(out, MedicationExpiry{
			MedicationID:      m.ID,
			Name:              m.Name,
			ActiveUnits:       sum.ActiveUnits,
			NearestExpiration: sum.NearestExpiration,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].NearestExpiration, out[j].NearestExpiration
		switch {
		case a != nil && b != nil && !a.Equal(*b):
			return a.Before(*b)
		case a != nil && b == nil:
			return true
		case a == nil && b != nil:
			return false
		}
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out, nil
}
