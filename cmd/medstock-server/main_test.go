package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medstock/medstock/internal/config"
	"github.com/medstock/medstock/internal/platform/auth"
	"github.com/medstock/medstock/internal/platform/blobstore"
	"github.com/medstock/medstock/internal/platform/store"
	"github.com/medstock/medstock/internal/platform/telemetry"
)

var fixedNow = time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)

func testApp(t *testing.T, secret string) *app {
	t.Helper()
	cfg := &config.Config{
		StoreDriver:             config.DriverMemory,
		NearExpiryDays:          30,
		LowStockThreshold:       10,
		PrescriptionWarningDays: 15,
		CORSOrigins:             []string{"http://localhost:3000"},
		AuthSecret:              secret,
	}
	st, err := store.Open(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return newApp(cfg, zerolog.Nop(), st, func() time.Time { return fixedNow }, time.UTC)
}

func testServer(t *testing.T, a *app) *echo.Echo {
	t.Helper()
	e, err := newServer(a, blobstore.NewMemory(), telemetry.NewProvider())
	require.NoError(t, err)
	return e
}

func do(t *testing.T, e *echo.Echo, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		r.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, r)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestServer_Health(t *testing.T) {
	e := testServer(t, testApp(t, ""))

	rec := do(t, e, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])

	rec = do(t, e, http.MethodGet, "/health/db", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "memory", body["driver"])
}

func TestServer_OrderFlowThroughAPI(t *testing.T) {
	e := testServer(t, testApp(t, ""))

	rec := do(t, e, http.MethodPost, "/api/v1/medications",
		`{"name":"Paracetamol","units_per_box":20,"reference_price_per_box":"5.00"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	medID := decode(t, rec)["id"].(string)

	rec = do(t, e, http.MethodPost, "/api/v1/medications/"+medID+"/lots",
		`{"boxes":2,"expires_on":"2024-07-01"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, e, http.MethodGet, "/api/v1/medications/"+medID+"/stock", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 40, decode(t, rec)["active_units"])

	rec = do(t, e, http.MethodPost, "/api/v1/orders", `{"supplier":"Central"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	orderID := decode(t, rec)["id"].(string)

	rec = do(t, e, http.MethodPost, "/api/v1/orders/"+orderID+"/items",
		`{"medication_id":"`+medID+`","boxes":2,"price_per_box":"15.00"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, e, http.MethodPost, "/api/v1/orders/"+orderID+"/receive", "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, e, http.MethodPost, "/api/v1/orders/"+orderID+"/items",
		`{"medication_id":"`+medID+`","boxes":1}`, "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, e, http.MethodGet, "/api/v1/reports/monthly-costs?year=2024&month=6", "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "monthly-costs", decode(t, rec)["report_id"])

	rec = do(t, e, http.MethodDelete, "/api/v1/medications/"+medID, "", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestServer_ErrorMapping(t *testing.T) {
	e := testServer(t, testApp(t, ""))

	rec := do(t, e, http.MethodGet, "/api/v1/medications/not-a-uuid", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, e, http.MethodGet, "/api/v1/orders/00000000-0000-0000-0000-000000000001", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, e, http.MethodPost, "/api/v1/medications", `{"name":"","units_per_box":0}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_JWTRoles(t *testing.T) {
	const secret = "test-secret"
	e := testServer(t, testApp(t, secret))

	rec := do(t, e, http.MethodGet, "/api/v1/medications", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	viewer, err := auth.IssueToken([]byte(secret), "alice", []string{auth.RoleViewer}, time.Hour, time.Now())
	require.NoError(t, err)
	rec = do(t, e, http.MethodGet, "/api/v1/medications", "", viewer)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, e, http.MethodPost, "/api/v1/medications", `{"name":"Zinc","units_per_box":10}`, viewer)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	manager, err := auth.IssueToken([]byte(secret), "bob", []string{auth.RoleManager}, time.Hour, time.Now())
	require.NoError(t, err)
	rec = do(t, e, http.MethodPost, "/api/v1/medications", `{"name":"Zinc","units_per_box":10}`, manager)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestServer_MetricsExposeInventoryGauges(t *testing.T) {
	e := testServer(t, testApp(t, ""))
	do(t, e, http.MethodGet, "/health", "", "")

	rec := do(t, e, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "medstock_inventory_medications 0")
	assert.Contains(t, body, "medstock_http_requests_total")
}

func TestRunCosts(t *testing.T) {
	a := testApp(t, "")
	ctx := context.Background()
	e := testServer(t, a)

	rec := do(t, e, http.MethodPost, "/api/v1/medications", `{"name":"Ibuprofen","units_per_box":10}`, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	medID := decode(t, rec)["id"].(string)
	rec = do(t, e, http.MethodPost, "/api/v1/orders", `{"order_date":"2024-05-03"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	orderID := decode(t, rec)["id"].(string)

	rec = do(t, e, http.MethodPost, "/api/v1/orders/"+orderID+"/items",
		`{"medication_id":"`+medID+`","boxes":3,"price_per_box":"2.50"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = do(t, e, http.MethodPost, "/api/v1/orders/"+orderID+"/receive", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var out bytes.Buffer
	require.NoError(t, runCosts(ctx, &out, a, 2024, 5, ""))
	assert.Equal(t, "2024-05 (Received): 7.50\n", out.String())

	out.Reset()
	require.NoError(t, runCosts(ctx, &out, a, 0, 0, "all"))
	assert.Contains(t, out.String(), "Monthly order costs (all statuses)")
	assert.Contains(t, out.String(), "2024-05")

	assert.Error(t, runCosts(ctx, &out, a, 2024, 0, ""))
	assert.Error(t, runCosts(ctx, &out, a, 0, 0, "shipped"))
}

func TestPrintDashboard(t *testing.T) {
	a := testApp(t, "")
	d, err := a.agg.Dashboard(context.Background(), dashboardOptions(a.cfg))
	require.NoError(t, err)

	var out bytes.Buffer
	printDashboard(&out, d)
	assert.Contains(t, out.String(), "Inventory dashboard for 2024-06-15")
	assert.Contains(t, out.String(), "Expiring within 30 days")
}

func TestMigrationSource(t *testing.T) {
	_, err := fs.Stat(migrationSource("", ""), "001_inventory.sql")
	assert.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "009_extra.sql"), []byte("SELECT 1;"), 0o600))
	b, err := fs.ReadFile(migrationSource(dir, "/elsewhere"), "009_extra.sql")
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1;", string(b))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd~", truncate("abcdefgh", 5))
}
