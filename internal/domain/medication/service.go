package medication

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/medstock/medstock/internal/platform/apperror"
)

type Service struct {
	medications Repository
	lineItems   LineItemCounter
	logger      zerolog.Logger
}

func NewService(meds Repository, lineItems LineItemCounter) *Service {
	return &Service{
		medications: meds,
		lineItems:   lineItems,
		logger:      zerolog.Nop(),
	}
}

// SetLogger attaches a logger for lifecycle events.
func (s *Service) SetLogger(l zerolog.Logger) {
	s.logger = l.With().Str("component", "medication").Logger()
}

// CreateInput carries the fields accepted when cataloguing a medication.
type CreateInput struct {
	Name                  string
	Brand                 *string
	UnitsPerBox           int
	ReferencePricePerBox  decimal.NullDecimal
	Active                *bool
	PrescriptionExpiresOn *time.Time
	DailyConsumption      *float64
}

func (s *Service) CreateMedication(ctx context.Context, in CreateInput) (*Medication, error) {
	m := &Medication{
		Name:                  strings.TrimSpace(in.Name),
		UnitsPerBox:           in.UnitsPerBox,
		ReferencePricePerBox:  in.ReferencePricePerBox,
		Active:                true,
		PrescriptionExpiresOn: in.PrescriptionExpiresOn,
		DailyConsumption:      in.DailyConsumption,
	}
	if in.Brand != nil {
		m.Brand = nilIfEmpty(strings.TrimSpace(*in.Brand))
	}
	if in.Active != nil {
		m.Active = *in.Active
	}
	if err := validate(m); err != nil {
		return nil, err
	}
	if err := s.ensureNameFree(ctx, m.Name, uuid.Nil); err != nil {
		return nil, err
	}
	if err := s.medications.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("create medication: %w", err)
	}
	s.logger.Info().Str("medication_id", m.ID.String()).Str("name", m.Name).Msg("medication created")
	return m, nil
}

func (s *Service) GetMedication(ctx context.Context, id uuid.UUID) (*Medication, error) {
	return s.medications.GetByID(ctx, id)
}

// GetMedicationByName matches case-insensitively.
func (s *Service) GetMedicationByName(ctx context.Context, name string) (*Medication, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperror.InvalidArgument("name is required")
	}
	return s.medications.GetByName(ctx, name)
}

func (s *Service) ListMedications(ctx context.Context, limit, offset int) ([]*Medication, int, error) {
	return s.medications.List(ctx, limit, offset)
}

// UpdateMedication applies p and persists the result. Only supplied fields change.
func (s *Service) UpdateMedication(ctx context.Context, id uuid.UUID, p Patch) (*Medication, error) {
	m, err := s.medications.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Name != nil {
		trimmed := strings.TrimSpace(*p.Name)
		p.Name = &trimmed
	}
	p.Apply(m)
	if err := validate(m); err != nil {
		return nil, err
	}
	if p.Name != nil {
		if err := s.ensureNameFree(ctx, m.Name, m.ID); err != nil {
			return nil, err
		}
	}
	if err := s.medications.Update(ctx, m); err != nil {
		return nil, fmt.Errorf("update medication: %w", err)
	}
	return m, nil
}

// DeleteMedication removes a medication and cascades its stock lots. It is
// refused while any order line item still references the medication.
func (s *Service) DeleteMedication(ctx context.Context, id uuid.UUID) (bool, error) {
	if s.lineItems != nil {
		n, err := s.lineItems.CountLineItemsByMedication(ctx, id)
		if err != nil {
			return false, fmt.Errorf("count line items: %w", err)
		}
		if n > 0 {
			return false, apperror.InvalidState("medication %s is referenced by %d order line item(s)", id, n)
		}
	}
	ok, err := s.medications.Delete(ctx, id)
	if err != nil {
		return false, fmt.Errorf("delete medication: %w", err)
	}
	if ok {
		s.logger.Info().Str("medication_id", id.String()).Msg("medication deleted")
	}
	return ok, nil
}

func (s *Service) ensureNameFree(ctx context.Context, name string, self uuid.UUID) error {
	existing, err := s.medications.GetByName(ctx, name)
	if apperror.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup medication name: %w", err)
	}
	if existing.ID != self {
		return apperror.Conflict("medication %q already exists", existing.Name)
	}
	return nil
}

func validate(m *Medication) error {
	if m.Name == "" {
		return apperror.InvalidArgument("name is required")
	}
	if m.UnitsPerBox <= 0 {
		return apperror.InvalidArgument("units_per_box must be a positive integer")
	}
	if m.ReferencePricePerBox.Valid {
		price := m.ReferencePricePerBox.Decimal
		if price.IsNegative() {
			return apperror.InvalidArgument("reference_price_per_box must not be negative")
		}
		if !price.Equal(price.Round(2)) {
			return apperror.InvalidArgument("reference_price_per_box allows at most 2 decimal places")
		}
	}
	if m.DailyConsumption != nil {
		v := *m.DailyConsumption
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return apperror.InvalidArgument("daily_consumption must be a non-negative number")
		}
	}
	return nil
}
