package reporting

import (
	"context"
	"strconv"
	"time"

	"github.com/medstock/medstock/internal/domain/order"
	"github.com/medstock/medstock/internal/platform/apperror"
)

// Definition describes a named report and the parameters it accepts.
type Definition struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Parameters  []string `json:"parameters"`
}

// Report is the evaluated result of a Definition.
type Report struct {
	ReportID    string            `json:"report_id"`
	ReportName  string            `json:"report_name"`
	GeneratedAt time.Time         `json:"generated_at"`
	Parameters  map[string]string `json:"parameters,omitempty"`
	Results     any               `json:"results"`
}

const (
	ReportDashboard               = "dashboard"
	ReportMonthlyCosts            = "monthly-costs"
	ReportMonthsWithOrders        = "months-with-orders"
	ReportStockValuation          = "stock-valuation"
	ReportLotsByExpiration        = "lots-by-expiration"
	ReportMedicationsByExpiration = "medications-by-expiration"
)

// Definitions is the list of available reports.
var Definitions = []Definition{
	{
		ID:          ReportDashboard,
		Name:        "Dashboard",
		Description: "Medication count, near-expiry, expired lots, low stock and prescription counters",
		Parameters:  []string{"near_expiry_days", "low_stock_threshold", "prescription_warning_days"},
	},
	{
		ID:          ReportMonthlyCosts,
		Name:        "Monthly Costs",
		Description: "Order cost per month; with year and month, the cost of that month only",
		Parameters:  []string{"status", "year", "month"},
	},
	{
		ID:          ReportMonthsWithOrders,
		Name:        "Months With Orders",
		Description: "Distinct months having orders, newest first",
		Parameters:  []string{"status"},
	},
	{
		ID:          ReportStockValuation,
		Name:        "Stock Valuation",
		Description: "Active stock valued at reference price per unit",
		Parameters:  []string{},
	},
	{
		ID:          ReportLotsByExpiration,
		Name:        "Lots By Expiration",
		Description: "Stock lots ordered by expiration date",
		Parameters:  []string{"active"},
	},
	{
		ID:          ReportMedicationsByExpiration,
		Name:        "Medications By Expiration",
		Description: "Medications ordered by nearest active expiration, those without stock last",
		Parameters:  []string{},
	},
}

// FindDefinition looks up a report by ID.
func FindDefinition(id string) *Definition {
	for i := range Definitions {
		if Definitions[i].ID == id {
			return &Definitions[i]
		}
	}
	return nil
}

// Reports evaluates definitions against an Aggregator.
type Reports struct {
	agg      *Aggregator
	defaults DashboardOptions
	now      func() time.Time
}

func NewReports(agg *Aggregator, defaults DashboardOptions) *Reports {
	return &Reports{agg: agg, defaults: defaults, now: time.Now}
}

func (r *Reports) Aggregator() *Aggregator { return r.agg }

// Evaluate runs report id. Parameters not accepted by the report are ignored.
func (r *Reports) Evaluate(ctx context.Context, id string, params map[string]string) (*Report, error) {
	def := FindDefinition(id)
	if def == nil {
		return nil, apperror.NotFound("report", id)
	}
	used := make(map[string]string)
	for _, p := range def.Parameters {
		if v, ok := params[p]; ok && v != "" {
			used[p] = v
		}
	}

	results, err := r.results(ctx, id, used)
	if err != nil {
		return nil, err
	}
	return &Report{
		ReportID:    def.ID,
		ReportName:  def.Name,
		GeneratedAt: r.now().UTC(),
		Parameters:  used,
		Results:     results,
	}, nil
}

func (r *Reports) results(ctx context.Context, id string, p map[string]string) (any, error) {
	switch id {
	case ReportDashboard:
		opts := r.defaults
		var err error
		if opts.NearExpiryDays, err = intParam(p, "near_expiry_days", opts.NearExpiryDays); err != nil {
			return nil, err
		}
		if opts.LowStockThreshold, err = intParam(p, "low_stock_threshold", opts.LowStockThreshold); err != nil {
			return nil, err
		}
		if opts.PrescriptionWarningDays, err = intParam(p, "prescription_warning_days", opts.PrescriptionWarningDays); err != nil {
			return nil, err
		}
		return r.agg.Dashboard(ctx, opts)

	case ReportMonthlyCosts:
		status, err := StatusParam(p["status"])
		if err != nil {
			return nil, err
		}
		year, err := intParam(p, "year", 0)
		if err != nil {
			return nil, err
		}
		month, err := intParam(p, "month", 0)
		if err != nil {
			return nil, err
		}
		if year == 0 && month == 0 {
			return r.agg.MonthlyCostReport(ctx, status)
		}
		total, err := r.agg.CostForMonth(ctx, year, month, status)
		if err != nil {
			return nil, err
		}
		return []MonthlyCost{{YearMonth: YearMonth{Year: year, Month: month}, Total: total}}, nil

	case ReportMonthsWithOrders:
		status, err := StatusParam(p["status"])
		if err != nil {
			return nil, err
		}
		return r.agg.MonthsWithOrders(ctx, status)

	case ReportStockValuation:
		return r.agg.GlobalStockValuation(ctx)

	case ReportLotsByExpiration:
		onlyActive := false
		if v, ok := p["active"]; ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return nil, apperror.InvalidArgument("active must be true or false")
			}
			onlyActive = b
		}
		return r.agg.LotsByExpiration(ctx, onlyActive)

	case ReportMedicationsByExpiration:
		return r.agg.MedicationsByExpiration(ctx)
	}
	return nil, apperror.NotFound("report", id)
}

// StatusParam parses a report status filter. Empty selects Received, the
// default for cost reports; "all" selects every status.
func StatusParam(v string) (*order.Status, error) {
	switch v {
	case "":
		st := order.StatusReceived
		return &st, nil
	case "all":
		return nil, nil
	}
	st, err := order.ParseStatus(v)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func intParam(p map[string]string, name string, def int) (int, error) {
	v, ok := p[name]
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, apperror.InvalidArgument("%s must be an integer", name)
	}
	return n, nil
}
