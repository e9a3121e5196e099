package stock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/medstock/medstock/internal/domain/medication"
	"github.com/medstock/medstock/internal/platform/apperror"
	"github.com/medstock/medstock/internal/platform/clock"
)

// MedicationLookup resolves the medication a lot belongs to.
type MedicationLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*medication.Medication, error)
}

// Service derives stock figures from lots. Figures are recomputed on every
// call; nothing is cached. Read operations treat an unknown medication id as
// having no lots.
type Service struct {
	lots   Repository
	meds   MedicationLookup
	now    clock.Func
	loc    *time.Location
	logger zerolog.Logger
}

func NewService(lots Repository, meds MedicationLookup) *Service {
	return &Service{
		lots:   lots,
		meds:   meds,
		now:    time.Now,
		loc:    time.Local,
		logger: zerolog.Nop(),
	}
}

// SetClock overrides the source of "today" and the zone it is read in.
func (s *Service) SetClock(now clock.Func, loc *time.Location) {
	s.now = now
	if loc != nil {
		s.loc = loc
	}
}

func (s *Service) SetLogger(l zerolog.Logger) {
	s.logger = l.With().Str("component", "stock").Logger()
}

// Today is the current calendar day.
func (s *Service) Today() time.Time {
	return clock.Today(s.now, s.loc)
}

// ActiveStockUnits sums lot totals over the medication's lots expiring today or later.
func (s *Service) ActiveStockUnits(ctx context.Context, medicationID uuid.UUID) (int, error) {
	lots, err := s.ActiveLots(ctx, medicationID, true)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, l := range lots {
		total += l.TotalUnits()
	}
	return total, nil
}

// NearestExpiration is the earliest expiration among active lots, or nil.
func (s *Service) NearestExpiration(ctx context.Context, medicationID uuid.UUID) (*time.Time, error) {
	lots, err := s.ActiveLots(ctx, medicationID, true)
	if err != nil {
		return nil, err
	}
	if len(lots) == 0 {
		return nil, nil
	}
	d := lots[0].ExpiresOn
	return &d, nil
}

// ActiveLots lists the medication's lots by expiration ascending, optionally
// only those still active.
func (s *Service) ActiveLots(ctx context.Context, medicationID uuid.UUID, onlyActive bool) ([]*Lot, error) {
	f := LotFilter{MedicationID: &medicationID}
	if onlyActive {
		today := s.Today()
		f.ExpiresFrom = &today
	}
	lots, err := s.lots.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list lots: %w", err)
	}
	return lots, nil
}

// Lots lists every lot matching f by expiration ascending.
func (s *Service) Lots(ctx context.Context, f LotFilter) ([]*Lot, error) {
	lots, err := s.lots.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list lots: %w", err)
	}
	return lots, nil
}

// Summary derives the stock position of m from its lots.
func (s *Service) Summary(ctx context.Context, m *medication.Medication) (Summary, error) {
	lots, err := s.ActiveLots(ctx, m.ID, false)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(m.ID, lots, s.Today(), m.DailyConsumption), nil
}

// Summaries derives the stock position of every medication in meds from a
// single lot listing. Medications without lots get a zero Summary.
func (s *Service) Summaries(ctx context.Context, meds []*medication.Medication) (map[uuid.UUID]Summary, error) {
	all, err := s.lots.List(ctx, LotFilter{})
	if err != nil {
		return nil, fmt.Errorf("list lots: %w", err)
	}
	byMed := make(map[uuid.UUID][]*Lot, len(meds))
	for _, l := range all {
		byMed[l.MedicationID] = append(byMed[l.MedicationID], l)
	}
	today := s.Today()
	out := make(map[uuid.UUID]Summary, len(meds))
	for _, m := range meds {
		out[m.ID] = Summarize(m.ID, byMed[m.ID], today, m.DailyConsumption)
	}
	return out, nil
}

// Summarize computes a Summary from lots sorted by expiration ascending.
func Summarize(medicationID uuid.UUID, lots []*Lot, today time.Time, dailyConsumption *float64) Summary {
	sum := Summary{MedicationID: medicationID}
	for _, l := range lots {
		if !l.IsActive(today) {
			sum.ExpiredLots++
			continue
		}
		sum.ActiveLots++
		sum.ActiveUnits += l.TotalUnits()
		if sum.NearestExpiration == nil || l.ExpiresOn.Before(*sum.NearestExpiration) {
			d := l.ExpiresOn
			sum.NearestExpiration = &d
		}
	}
	if dailyConsumption != nil && *dailyConsumption > 0 {
		days := float64(sum.ActiveUnits) / *dailyConsumption
		sum.DaysOfSupply = &days
	}
	return sum
}

// ReceiveInput describes a lot being added to stock.
type ReceiveInput struct {
	MedicationID        uuid.UUID
	Boxes               int
	UnitsPerBox         *int // defaults to the medication's units per box
	PurchasedOn         *time.Time
	ExpiresOn           *time.Time
	PurchasePricePerBox decimal.NullDecimal
}

// ReceiveLot records physically received stock.
func (s *Service) ReceiveLot(ctx context.Context, in ReceiveInput) (*Lot, error) {
	m, err := s.meds.GetByID(ctx, in.MedicationID)
	if err != nil {
		return nil, err
	}
	if in.ExpiresOn == nil || in.ExpiresOn.IsZero() {
		return nil, apperror.InvalidArgument("expires_on is required")
	}

	l := &Lot{
		MedicationID:        m.ID,
		Boxes:               in.Boxes,
		UnitsPerBox:         m.UnitsPerBox,
		PurchasedOn:         s.Today(),
		ExpiresOn:           clock.Date(*in.ExpiresOn, nil),
		PurchasePricePerBox: in.PurchasePricePerBox,
	}
	if in.UnitsPerBox != nil {
		l.UnitsPerBox = *in.UnitsPerBox
	}
	if in.PurchasedOn != nil && !in.PurchasedOn.IsZero() {
		l.PurchasedOn = clock.Date(*in.PurchasedOn, nil)
	}
	if err := validateLot(l); err != nil {
		return nil, err
	}

	if err := s.lots.Create(ctx, l); err != nil {
		return nil, fmt.Errorf("create lot: %w", err)
	}
	s.logger.Info().
		Str("lot_id", l.ID.String()).
		Str("medication_id", l.MedicationID.String()).
		Int("units", l.TotalUnits()).
		Time("expires_on", l.ExpiresOn).
		Msg("lot received")
	return l, nil
}

func (s *Service) GetLot(ctx context.Context, id uuid.UUID) (*Lot, error) {
	return s.lots.GetByID(ctx, id)
}

// UpdateLot applies p with the same validation as ReceiveLot.
func (s *Service) UpdateLot(ctx context.Context, id uuid.UUID, p LotPatch) (*Lot, error) {
	l, err := s.lots.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.ExpiresOn != nil && p.ExpiresOn.IsZero() {
		return nil, apperror.InvalidArgument("expires_on cannot be cleared")
	}
	if p.PurchasedOn != nil && p.PurchasedOn.IsZero() {
		return nil, apperror.InvalidArgument("purchased_on cannot be cleared")
	}
	if p.PurchasedOn != nil {
		d := clock.Date(*p.PurchasedOn, nil)
		p.PurchasedOn = &d
	}
	if p.ExpiresOn != nil {
		d := clock.Date(*p.ExpiresOn, nil)
		p.ExpiresOn = &d
	}
	p.Apply(l)
	if err := validateLot(l); err != nil {
		return nil, err
	}
	if err := s.lots.Update(ctx, l); err != nil {
		return nil, fmt.Errorf("update lot: %w", err)
	}
	return l, nil
}

func (s *Service) DeleteLot(ctx context.Context, id uuid.UUID) (bool, error) {
	ok, err := s.lots.Delete(ctx, id)
	if err != nil {
		return false, fmt.Errorf("delete lot: %w", err)
	}
	if ok {
		s.logger.Info().Str("lot_id", id.String()).Msg("lot deleted")
	}
	return ok, nil
}

func validateLot(l *Lot) error {
	if l.Boxes <= 0 {
		return apperror.InvalidArgument("boxes must be a positive integer")
	}
	if l.UnitsPerBox <= 0 {
		return apperror.InvalidArgument("units_per_box must be a positive integer")
	}
	if l.PurchasePricePerBox.Valid {
		price := l.PurchasePricePerBox.Decimal
		if price.IsNegative() {
			return apperror.InvalidArgument("purchase_price_per_box must not be negative")
		}
		if !price.Equal(price.Round(2)) {
			return apperror.InvalidArgument("purchase_price_per_box allows at most 2 decimal places")
		}
	}
	return nil
}
