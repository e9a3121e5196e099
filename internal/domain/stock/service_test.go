package stock_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medstock/medstock/internal/domain/medication"
	"github.com/medstock/medstock/internal/domain/stock"
	"github.com/medstock/medstock/internal/platform/apperror"
	"github.com/medstock/medstock/internal/platform/clock"
	"github.com/medstock/medstock/internal/platform/store/memory"
)

var today = time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)

type fixture struct {
	ctx  context.Context
	db   *memory.DB
	meds *medication.Service
	svc  *stock.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := memory.New()
	svc := stock.NewService(db.Lots(), db.Medications())
	svc.SetClock(clock.Fixed(today.Add(9*time.Hour)), time.UTC)
	return &fixture{
		ctx:  context.Background(),
		db:   db,
		meds: medication.NewService(db.Medications(), db.Orders()),
		svc:  svc,
	}
}

func (f *fixture) medication(t *testing.T, name string, unitsPerBox int) *medication.Medication {
	t.Helper()
	m, err := f.meds.CreateMedication(f.ctx, medication.CreateInput{Name: name, UnitsPerBox: unitsPerBox})
	require.NoError(t, err)
	return m
}

func (f *fixture) lot(t *testing.T, medID uuid.UUID, boxes int, expires time.Time) *stock.Lot {
	t.Helper()
	l, err := f.svc.ReceiveLot(f.ctx, stock.ReceiveInput{MedicationID: medID, Boxes: boxes, ExpiresOn: &expires})
	require.NoError(t, err)
	return l
}

func TestParacetamolScenario(t *testing.T) {
	f := newFixture(t)
	m := f.medication(t, "Paracetamol", 20)
	lotA := f.lot(t, m.ID, 2, today.AddDate(0, 0, 10))
	f.lot(t, m.ID, 3, today.AddDate(0, 0, -1))

	units, err := f.svc.ActiveStockUnits(f.ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 40, units)

	nearest, err := f.svc.NearestExpiration(f.ctx, m.ID)
	require.NoError(t, err)
	require.NotNil(t, nearest)
	assert.Equal(t, lotA.ExpiresOn, *nearest)

	sum, err := f.svc.Summary(f.ctx, m)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.ActiveLots)
	assert.Equal(t, 1, sum.ExpiredLots)
}

func TestActiveStockUnits_LotExpiringTodayCounts(t *testing.T) {
	f := newFixture(t)
	m := f.medication(t, "Ibuprofen", 10)
	f.lot(t, m.ID, 1, today)
	f.lot(t, m.ID, 5, today.AddDate(0, 0, -1))

	units, err := f.svc.ActiveStockUnits(f.ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, units)
}

func TestNoLots_ZeroAndNone(t *testing.T) {
	f := newFixture(t)
	m := f.medication(t, "Cetirizine", 7)

	for _, id := range []uuid.UUID{m.ID, uuid.New()} {
		units, err := f.svc.ActiveStockUnits(f.ctx, id)
		require.NoError(t, err)
		assert.Zero(t, units)

		nearest, err := f.svc.NearestExpiration(f.ctx, id)
		require.NoError(t, err)
		assert.Nil(t, nearest)
	}
}

func TestNearestExpiration_EarlierActiveLotWinsExpiredNeverDoes(t *testing.T) {
	f := newFixture(t)
	m := f.medication(t, "Metformin", 30)
	f.lot(t, m.ID, 1, today.AddDate(0, 2, 0))

	f.lot(t, m.ID, 1, today.AddDate(0, 0, -3))
	nearest, err := f.svc.NearestExpiration(f.ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, today.AddDate(0, 2, 0), *nearest)

	f.lot(t, m.ID, 1, today.AddDate(0, 0, 5))
	nearest, err = f.svc.NearestExpiration(f.ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, today.AddDate(0, 0, 5), *nearest)
}

func TestActiveLots_OrderedByExpiration(t *testing.T) {
	f := newFixture(t)
	m := f.medication(t, "Losartan", 28)
	f.lot(t, m.ID, 1, today.AddDate(0, 3, 0))
	f.lot(t, m.ID, 1, today.AddDate(0, 0, -10))
	f.lot(t, m.ID, 1, today.AddDate(0, 1, 0))

	all, err := f.svc.ActiveLots(f.ctx, m.ID, false)
	require.NoError(t, err)
	require.Len(t, all, 3)
	for i := 1; i < len(all); i++ {
		assert.False(t, all[i].ExpiresOn.Before(all[i-1].ExpiresOn))
	}

	active, err := f.svc.ActiveLots(f.ctx, m.ID, true)
	require.NoError(t, err)
	assert.Len(t, active, 2)
}

func TestReceiveLot_Defaults(t *testing.T) {
	f := newFixture(t)
	m := f.medication(t, "Aspirin", 20)
	l := f.lot(t, m.ID, 2, today.AddDate(1, 0, 0))

	assert.Equal(t, 20, l.UnitsPerBox)
	assert.Equal(t, today, l.PurchasedOn)
	assert.Equal(t, 40, l.TotalUnits())
}

func TestReceiveLot_OverridesPackaging(t *testing.T) {
	f := newFixture(t)
	m := f.medication(t, "Aspirin", 20)
	upb := 12
	exp := today.AddDate(0, 6, 0)
	l, err := f.svc.ReceiveLot(f.ctx, stock.ReceiveInput{
		MedicationID:        m.ID,
		Boxes:               3,
		UnitsPerBox:         &upb,
		ExpiresOn:           &exp,
		PurchasePricePerBox: decimal.NewNullDecimal(decimal.RequireFromString("3.20")),
	})
	require.NoError(t, err)
	assert.Equal(t, 36, l.TotalUnits())
}

func TestReceiveLot_Rejections(t *testing.T) {
	f := newFixture(t)
	m := f.medication(t, "Aspirin", 20)
	exp := today.AddDate(0, 1, 0)
	zero := 0

	cases := map[string]struct {
		in   stock.ReceiveInput
		kind apperror.Kind
	}{
		"unknown medication": {stock.ReceiveInput{MedicationID: uuid.New(), Boxes: 1, ExpiresOn: &exp}, apperror.KindNotFound},
		"missing expiration": {stock.ReceiveInput{MedicationID: m.ID, Boxes: 1}, apperror.KindInvalidArgument},
		"zero boxes":         {stock.ReceiveInput{MedicationID: m.ID, Boxes: 0, ExpiresOn: &exp}, apperror.KindInvalidArgument},
		"zero units per box": {stock.ReceiveInput{MedicationID: m.ID, Boxes: 1, UnitsPerBox: &zero, ExpiresOn: &exp}, apperror.KindInvalidArgument},
		"negative price": {stock.ReceiveInput{MedicationID: m.ID, Boxes: 1, ExpiresOn: &exp,
			PurchasePricePerBox: decimal.NewNullDecimal(decimal.NewFromInt(-1))}, apperror.KindInvalidArgument},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.ReceiveLot(f.ctx, tc.in)
			assert.Equal(t, tc.kind, apperror.KindOf(err))
		})
	}
}

func TestUpdateLot(t *testing.T) {
	f := newFixture(t)
	m := f.medication(t, "Aspirin", 20)
	l := f.lot(t, m.ID, 2, today.AddDate(0, 1, 0))

	boxes := 5
	updated, err := f.svc.UpdateLot(f.ctx, l.ID, stock.LotPatch{Boxes: &boxes})
	require.NoError(t, err)
	assert.Equal(t, 100, updated.TotalUnits())
	assert.Equal(t, l.ExpiresOn, updated.ExpiresOn)

	neg := -1
	_, err = f.svc.UpdateLot(f.ctx, l.ID, stock.LotPatch{Boxes: &neg})
	assert.ErrorIs(t, err, apperror.ErrInvalidArgument)

	cleared := time.Time{}
	_, err = f.svc.UpdateLot(f.ctx, l.ID, stock.LotPatch{ExpiresOn: &cleared})
	assert.ErrorIs(t, err, apperror.ErrInvalidArgument)

	_, err = f.svc.UpdateLot(f.ctx, uuid.New(), stock.LotPatch{Boxes: &boxes})
	assert.True(t, apperror.IsNotFound(err))

	fine := decimal.NewNullDecimal(decimal.RequireFromString("2.50"))
	_, err = f.svc.UpdateLot(f.ctx, l.ID, stock.LotPatch{PurchasePricePerBox: &fine})
	assert.NoError(t, err)
	tooFine := decimal.NewNullDecimal(decimal.RequireFromString("0.125"))
	_, err = f.svc.UpdateLot(f.ctx, l.ID, stock.LotPatch{PurchasePricePerBox: &tooFine})
	assert.ErrorIs(t, err, apperror.ErrInvalidArgument)
}

func TestUpdateLot_DatesTruncatedToDay(t *testing.T) {
	f := newFixture(t)
	m := f.medication(t, "Aspirin", 20)
	l := f.lot(t, m.ID, 2, today.AddDate(0, 1, 0))

	expires := today.Add(18 * time.Hour)
	bought := today.AddDate(0, 0, -3).Add(7*time.Hour + 30*time.Minute)
	updated, err := f.svc.UpdateLot(f.ctx, l.ID, stock.LotPatch{ExpiresOn: &expires, PurchasedOn: &bought})
	require.NoError(t, err)
	assert.Equal(t, today, updated.ExpiresOn)
	assert.Equal(t, today.AddDate(0, 0, -3), updated.PurchasedOn)

	stored, err := f.svc.GetLot(f.ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, today, stored.ExpiresOn)
	assert.True(t, stored.IsActive(today))
	units, err := f.svc.ActiveStockUnits(f.ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 40, units)
}

func TestDeleteLot(t *testing.T) {
	f := newFixture(t)
	m := f.medication(t, "Aspirin", 20)
	l := f.lot(t, m.ID, 2, today.AddDate(0, 1, 0))

	ok, err := f.svc.DeleteLot(f.ctx, l.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.svc.DeleteLot(f.ctx, l.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSummaries_DaysOfSupply(t *testing.T) {
	f := newFixture(t)
	rate := 4.0
	m, err := f.meds.CreateMedication(f.ctx, medication.CreateInput{Name: "Levothyroxine", UnitsPerBox: 50, DailyConsumption: &rate})
	require.NoError(t, err)
	other := f.medication(t, "Folic acid", 30)
	f.lot(t, m.ID, 2, today.AddDate(0, 4, 0))

	sums, err := f.svc.Summaries(f.ctx, []*medication.Medication{m, other})
	require.NoError(t, err)
	require.NotNil(t, sums[m.ID].DaysOfSupply)
	assert.InDelta(t, 25.0, *sums[m.ID].DaysOfSupply, 1e-9)
	assert.Zero(t, sums[other.ID].ActiveUnits)
	assert.Nil(t, sums[other.ID].NearestExpiration)
}

func TestClock_TimezoneDecidesToday(t *testing.T) {
	f := newFixture(t)
	m := f.medication(t, "Aspirin", 10)
	f.lot(t, m.ID, 1, today)

	// 02:00 UTC on the 16th is still the 15th five hours west.
	f.svc.SetClock(clock.Fixed(today.Add(26*time.Hour)), time.FixedZone("UTC-5", -5*3600))
	units, err := f.svc.ActiveStockUnits(f.ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, units)

	f.svc.SetClock(clock.Fixed(today.Add(26*time.Hour)), time.UTC)
	units, err = f.svc.ActiveStockUnits(f.ctx, m.ID)
	require.NoError(t, err)
	assert.Zero(t, units)
}
