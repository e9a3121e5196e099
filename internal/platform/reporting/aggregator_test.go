package reporting_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medstock/medstock/internal/domain/medication"
	"github.com/medstock/medstock/internal/domain/order"
	"github.com/medstock/medstock/internal/domain/stock"
	"github.com/medstock/medstock/internal/platform/apperror"
	"github.com/medstock/medstock/internal/platform/auth"
	"github.com/medstock/medstock/internal/platform/blobstore"
	"github.com/medstock/medstock/internal/platform/clock"
	"github.com/medstock/medstock/internal/platform/reporting"
	"github.com/medstock/medstock/internal/platform/store/memory"
)

var today = time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)

type fixture struct {
	ctx    context.Context
	meds   *medication.Service
	stock  *stock.Service
	orders *order.Service
	agg    *reporting.Aggregator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := memory.New()
	now := clock.Fixed(today.Add(10 * time.Hour))
	meds := medication.NewService(db.Medications(), db.Orders())
	st := stock.NewService(db.Lots(), db.Medications())
	st.SetClock(now, time.UTC)
	ord := order.NewService(db.Orders(), db.Medications())
	ord.SetClock(now, time.UTC)
	return &fixture{
		ctx:    context.Background(),
		meds:   meds,
		stock:  st,
		orders: ord,
		agg:    reporting.NewAggregator(meds, st, ord),
	}
}

func (f *fixture) med(t *testing.T, in medication.CreateInput) *medication.Medication {
	t.Helper()
	m, err := f.meds.CreateMedication(f.ctx, in)
	require.NoError(t, err)
	return m
}

func (f *fixture) lot(t *testing.T, m *medication.Medication, boxes, days int) {
	t.Helper()
	exp := today.AddDate(0, 0, days)
	_, err := f.stock.ReceiveLot(f.ctx, stock.ReceiveInput{MedicationID: m.ID, Boxes: boxes, ExpiresOn: &exp})
	require.NoError(t, err)
}

func (f *fixture) order(t *testing.T, date time.Time, status order.Status, m *medication.Medication, boxes int, price string) {
	t.Helper()
	o, err := f.orders.CreateOrder(f.ctx, order.CreateInput{OrderDate: &date})
	require.NoError(t, err)
	_, err = f.orders.AddLineItem(f.ctx, order.AddLineItemInput{
		OrderID: o.ID, MedicationID: m.ID, Boxes: boxes,
		PricePerBox: decimal.NewNullDecimal(decimal.RequireFromString(price)),
	})
	require.NoError(t, err)
	switch status {
	case order.StatusReceived:
		_, err = f.orders.Receive(f.ctx, o.ID)
	case order.StatusCancelled:
		_, err = f.orders.Cancel(f.ctx, o.ID)
	}
	require.NoError(t, err)
}

func received() *order.Status {
	st := order.StatusReceived
	return &st
}

func TestExpiredLotCount_CountsEveryExpiredLot(t *testing.T) {
	f := newFixture(t)
	para := f.med(t, medication.CreateInput{Name: "Paracetamol", UnitsPerBox: 20})
	f.lot(t, para, 2, 10)
	f.lot(t, para, 3, -1)
	f.lot(t, para, 1, -30)
	f.lot(t, para, 1, 0)

	n, err := f.agg.ExpiredLotCount(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestMedicationsNearExpiry_InclusiveWindow(t *testing.T) {
	f := newFixture(t)
	a := f.med(t, medication.CreateInput{Name: "A", UnitsPerBox: 1})
	b := f.med(t, medication.CreateInput{Name: "B", UnitsPerBox: 1})
	c := f.med(t, medication.CreateInput{Name: "C", UnitsPerBox: 1})
	f.lot(t, a, 1, 0)
	f.lot(t, a, 1, 5)
	f.lot(t, b, 1, 30)
	f.lot(t, c, 1, 31)
	f.lot(t, c, 1, -1)

	n, err := f.agg.MedicationsNearExpiry(f.ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = f.agg.MedicationsNearExpiry(f.ctx, -1)
	assert.ErrorIs(t, err, apperror.ErrInvalidArgument)
}

func TestMedicationsLowStock(t *testing.T) {
	f := newFixture(t)
	empty := f.med(t, medication.CreateInput{Name: "Empty", UnitsPerBox: 10})
	expired := f.med(t, medication.CreateInput{Name: "Expired", UnitsPerBox: 10})
	low := f.med(t, medication.CreateInput{Name: "Low", UnitsPerBox: 10})
	plenty := f.med(t, medication.CreateInput{Name: "Plenty", UnitsPerBox: 10})
	_ = empty
	f.lot(t, expired, 5, -1)
	f.lot(t, low, 1, 10)
	f.lot(t, plenty, 5, 10)

	n, err := f.agg.MedicationsLowStock(f.ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = f.agg.MedicationsLowStock(f.ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	total, err := f.agg.TotalMedicationCount(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, total)
}

func TestCostForMonth_OnlyReceivedInMonth(t *testing.T) {
	f := newFixture(t)
	m := f.med(t, medication.CreateInput{Name: "Ibuprofen", UnitsPerBox: 10})
	f.order(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), order.StatusReceived, m, 2, "15.00")
	f.order(t, time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC), order.StatusReceived, m, 1, "4.25")
	f.order(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), order.StatusPending, m, 10, "1")
	f.order(t, time.Date(2024, 3, 16, 0, 0, 0, 0, time.UTC), order.StatusCancelled, m, 10, "1")
	f.order(t, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), order.StatusReceived, m, 10, "1")

	cost, err := f.agg.CostForMonth(f.ctx, 2024, 3, received())
	require.NoError(t, err)
	assert.Equal(t, "34.25", cost.String())

	all, err := f.agg.CostForMonth(f.ctx, 2024, 3, nil)
	require.NoError(t, err)
	assert.Equal(t, "54.25", all.String())

	none, err := f.agg.CostForMonth(f.ctx, 2023, 3, received())
	require.NoError(t, err)
	assert.True(t, none.IsZero())

	_, err = f.agg.CostForMonth(f.ctx, 2024, 13, received())
	assert.ErrorIs(t, err, apperror.ErrInvalidArgument)
}

func TestMonthsWithOrdersAndMonthlyReport_Descending(t *testing.T) {
	f := newFixture(t)
	m := f.med(t, medication.CreateInput{Name: "Ibuprofen", UnitsPerBox: 10})
	f.order(t, time.Date(2023, 12, 5, 0, 0, 0, 0, time.UTC), order.StatusReceived, m, 1, "2")
	f.order(t, time.Date(2024, 2, 5, 0, 0, 0, 0, time.UTC), order.StatusReceived, m, 1, "3")
	f.order(t, time.Date(2024, 2, 20, 0, 0, 0, 0, time.UTC), order.StatusReceived, m, 1, "4")
	f.order(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), order.StatusPending, m, 1, "5")

	months, err := f.agg.MonthsWithOrders(f.ctx, received())
	require.NoError(t, err)
	assert.Equal(t, []reporting.YearMonth{{Year: 2024, Month: 2}, {Year: 2023, Month: 12}}, months)

	report, err := f.agg.MonthlyCostReport(f.ctx, nil)
	require.NoError(t, err)
	require.Len(t, report, 3)
	assert.Equal(t, "2024-05", report[0].String())
	assert.Equal(t, 2, report[1].Orders)
	assert.Equal(t, "7", report[1].Total.String())
}

func TestGlobalStockValuation(t *testing.T) {
	f := newFixture(t)
	priced := f.med(t, medication.CreateInput{Name: "Priced", UnitsPerBox: 3,
		ReferencePricePerBox: decimal.NewNullDecimal(decimal.RequireFromString("10"))})
	unpriced := f.med(t, medication.CreateInput{Name: "Unpriced", UnitsPerBox: 10})
	f.lot(t, priced, 1, 10)
	f.lot(t, priced, 5, -1)
	f.lot(t, unpriced, 4, 10)

	v, err := f.agg.GlobalStockValuation(f.ctx)
	require.NoError(t, err)
	require.Len(t, v.Lines, 2)
	assert.Equal(t, "10", v.Total.String())

	byName := map[string]reporting.ValuationLine{}
	for _, l := range v.Lines {
		byName[l.Name] = l
	}
	require.NotNil(t, byName["Priced"].Value)
	assert.Equal(t, 3, byName["Priced"].ActiveUnits)
	assert.Nil(t, byName["Unpriced"].Value)
	assert.Equal(t, 40, byName["Unpriced"].ActiveUnits)
}

func TestMedicationsByExpiration_NoStockLast(t *testing.T) {
	f := newFixture(t)
	later := f.med(t, medication.CreateInput{Name: "Later", UnitsPerBox: 1})
	sooner := f.med(t, medication.CreateInput{Name: "Sooner", UnitsPerBox: 1})
	f.med(t, medication.CreateInput{Name: "Aaa no stock", UnitsPerBox: 1})
	f.lot(t, later, 1, 60)
	f.lot(t, sooner, 1, 5)
	f.lot(t, sooner, 1, -5)

	rows, err := f.agg.MedicationsByExpiration(f.ctx)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Sooner", rows[0].Name)
	assert.Equal(t, "Later", rows[1].Name)
	assert.Nil(t, rows[2].NearestExpiration)
}

func TestLotsByExpiration(t *testing.T) {
	f := newFixture(t)
	m := f.med(t, medication.CreateInput{Name: "Paracetamol", UnitsPerBox: 20})
	f.lot(t, m, 2, 10)
	f.lot(t, m, 3, -1)

	rows, err := f.agg.LotsByExpiration(f.ctx, false)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.True(t, rows[0].Expired)
	assert.Equal(t, "Paracetamol", rows[1].MedicationName)
	assert.Equal(t, 40, rows[1].TotalUnits)

	active, err := f.agg.LotsByExpiration(f.ctx, true)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestDashboard(t *testing.T) {
	f := newFixture(t)
	soon := today.AddDate(0, 0, 7)
	past := today.AddDate(0, 0, -2)
	inactive := false
	m := f.med(t, medication.CreateInput{Name: "Paracetamol", UnitsPerBox: 20, PrescriptionExpiresOn: &soon})
	f.med(t, medication.CreateInput{Name: "Old script", UnitsPerBox: 1, PrescriptionExpiresOn: &past})
	f.med(t, medication.CreateInput{Name: "Inactive", UnitsPerBox: 1, PrescriptionExpiresOn: &past, Active: &inactive})
	f.lot(t, m, 2, 10)
	f.lot(t, m, 3, -1)

	d, err := f.agg.Dashboard(f.ctx, reporting.DashboardOptions{NearExpiryDays: 30, LowStockThreshold: 10, PrescriptionWarningDays: 15})
	require.NoError(t, err)
	assert.Equal(t, "2024-06-15", d.Today)
	assert.Equal(t, 3, d.TotalMedications)
	assert.Equal(t, 1, d.NearExpiry)
	assert.Equal(t, 1, d.ExpiredLots)
	assert.Equal(t, 2, d.LowStock)
	assert.Equal(t, 1, d.PrescriptionsExpiring)
	assert.Equal(t, 1, d.PrescriptionsExpired)
}

func TestAggregator_LoadsInsideReadScope(t *testing.T) {
	f := newFixture(t)
	m := f.med(t, medication.CreateInput{Name: "Paracetamol", UnitsPerBox: 20})
	f.lot(t, m, 1, 10)

	var calls int
	f.agg.SetReadScope(func(ctx context.Context, fn func(ctx context.Context) error) error {
		calls++
		return fn(ctx)
	})
	d, err := f.agg.Dashboard(f.ctx, reporting.DashboardOptions{NearExpiryDays: 30})
	require.NoError(t, err)
	assert.Equal(t, 1, d.TotalMedications)
	assert.Equal(t, 1, d.NearExpiry)
	assert.Equal(t, 1, calls)

	boom := errors.New("begin transaction: refused")
	f.agg.SetReadScope(func(context.Context, func(context.Context) error) error { return boom })
	_, err = f.agg.Dashboard(f.ctx, reporting.DashboardOptions{})
	assert.ErrorIs(t, err, boom)

	f.agg.SetReadScope(nil)
	_, err = f.agg.Dashboard(f.ctx, reporting.DashboardOptions{})
	assert.NoError(t, err)
}

func TestReports_Evaluate(t *testing.T) {
	f := newFixture(t)
	m := f.med(t, medication.CreateInput{Name: "Ibuprofen", UnitsPerBox: 10})
	f.order(t, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), order.StatusReceived, m, 2, "15.00")
	reports := reporting.NewReports(f.agg, reporting.DashboardOptions{NearExpiryDays: 30})

	rep, err := reports.Evaluate(f.ctx, reporting.ReportMonthlyCosts, map[string]string{"year": "2024", "month": "3", "ignored": "x"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"year": "2024", "month": "3"}, rep.Parameters)
	costs, ok := rep.Results.([]reporting.MonthlyCost)
	require.True(t, ok)
	assert.Equal(t, "30", costs[0].Total.String())

	_, err = reports.Evaluate(f.ctx, "nope", nil)
	assert.True(t, apperror.IsNotFound(err))

	_, err = reports.Evaluate(f.ctx, reporting.ReportMonthlyCosts, map[string]string{"status": "lost"})
	assert.ErrorIs(t, err, apperror.ErrInvalidArgument)
}

func TestExporter_RoundTripThroughBlobStore(t *testing.T) {
	f := newFixture(t)
	f.med(t, medication.CreateInput{Name: "Ibuprofen", UnitsPerBox: 10})
	store := blobstore.NewMemory()
	exp := reporting.NewExporter(reporting.NewReports(f.agg, reporting.DashboardOptions{}), store)

	info, err := exp.Export(f.ctx, reporting.ReportDashboard, nil)
	require.NoError(t, err)
	assert.Contains(t, info.Key, "reports/dashboard/")

	list, err := exp.List(f.ctx, reporting.ReportDashboard)
	require.NoError(t, err)
	require.Len(t, list, 1)

	_, rc, err := exp.Open(f.ctx, info.Key)
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	var rep struct {
		ReportID string `json:"report_id"`
		Results  struct {
			TotalMedications int `json:"total_medications"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(body, &rep))
	assert.Equal(t, "dashboard", rep.ReportID)
	assert.Equal(t, 1, rep.Results.TotalMedications)

	_, _, err = exp.Open(f.ctx, "reports/missing.json")
	assert.True(t, apperror.IsNotFound(err))
}

func TestHandler_EvaluateReport(t *testing.T) {
	f := newFixture(t)
	f.med(t, medication.CreateInput{Name: "Ibuprofen", UnitsPerBox: 10})
	h := reporting.NewHandler(reporting.NewReports(f.agg, reporting.DashboardOptions{LowStockThreshold: 5}), nil)

	e := echo.New()
	e.HTTPErrorHandler = apperror.HTTPErrorHandler(zerolog.Nop())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := auth.WithUser(c.Request().Context(), "tester", []string{auth.RoleViewer})
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	})
	h.RegisterRoutes(e.Group("/api/v1"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/dashboard?low_stock_threshold=0", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var rep struct {
		Results reporting.Dashboard `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rep))
	assert.Equal(t, 1, rep.Results.LowStock)
	assert.Equal(t, 0, rep.Results.Options.LowStockThreshold)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/reports/unknown", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
