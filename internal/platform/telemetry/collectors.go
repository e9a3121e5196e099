package telemetry

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/medstock/medstock/internal/platform/reporting"
)

// InventoryCollector evaluates the dashboard on every scrape. Values are never
// cached between scrapes.
type InventoryCollector struct {
	agg     *reporting.Aggregator
	opts    reporting.DashboardOptions
	timeout time.Duration
	logger  zerolog.Logger

	medications           *prometheus.Desc
	nearExpiry            *prometheus.Desc
	expiredLots           *prometheus.Desc
	lowStock              *prometheus.Desc
	prescriptionsExpiring *prometheus.Desc
	prescriptionsExpired  *prometheus.Desc
	stockValue            *prometheus.Desc
	up                    *prometheus.Desc
}

func NewInventoryCollector(agg *reporting.Aggregator, opts reporting.DashboardOptions, logger zerolog.Logger) *InventoryCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(Namespace, "inventory", name), help, nil, nil)
	}
	return &InventoryCollector{
		agg:     agg,
		opts:    opts,
		timeout: 5 * time.Second,
		logger:  logger,

		medications:           desc("medications", "Catalogued medications."),
		nearExpiry:            desc("medications_near_expiry", "Medications with a lot expiring within the near-expiry window."),
		expiredLots:           desc("expired_lots", "Lots whose expiration date is before today."),
		lowStock:              desc("medications_low_stock", "Medications at or below the low-stock threshold."),
		prescriptionsExpiring: desc("prescriptions_expiring", "Active medications whose prescription expires within the warning window."),
		prescriptionsExpired:  desc("prescriptions_expired", "Active medications whose prescription has expired."),
		stockValue:            desc("stock_value", "Value of active stock at reference prices."),
		up:                    desc("up", "Whether the last inventory evaluation succeeded."),
	}
}

func (c *InventoryCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.medications, c.nearExpiry, c.expiredLots, c.lowStock,
		c.prescriptionsExpiring, c.prescriptionsExpired, c.stockValue, c.up,
	} {
		ch <- d
	}
}

func (c *InventoryCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	d, err := c.agg.Dashboard(ctx, c.opts)
	if err != nil {
		c.logger.Warn().Err(err).Msg("inventory metrics unavailable")
		ch <- prometheus.MustNewConstMetric(c.up, prometheus.GaugeValue, 0)
		return
	}
	gauge := func(desc *prometheus.Desc, v int) {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, float64(v))
	}
	gauge(c.medications, d.TotalMedications)
	gauge(c.nearExpiry, d.NearExpiry)
	gauge(c.expiredLots, d.ExpiredLots)
	gauge(c.lowStock, d.LowStock)
	gauge(c.prescriptionsExpiring, d.PrescriptionsExpiring)
	gauge(c.prescriptionsExpired, d.PrescriptionsExpired)

	up := 1
	if v, err := c.agg.GlobalStockValuation(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("stock valuation unavailable")
		up = 0
	} else {
		f, _ := v.Total.Float64()
		ch <- prometheus.MustNewConstMetric(c.stockValue, prometheus.GaugeValue, f)
	}
	gauge(c.up, up)
}

// PoolCollector reports pgxpool statistics.
type PoolCollector struct {
	pool *pgxpool.Pool

	total    *prometheus.Desc
	idle     *prometheus.Desc
	acquired *prometheus.Desc
	max      *prometheus.Desc
}

func NewPoolCollector(pool *pgxpool.Pool) *PoolCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(Namespace, "db_pool", name), help, nil, nil)
	}
	return &PoolCollector{
		pool:     pool,
		total:    desc("total_conns", "Open connections."),
		idle:     desc("idle_conns", "Idle connections."),
		acquired: desc("acquired_conns", "Connections in use."),
		max:      desc("max_conns", "Configured connection limit."),
	}
}

func (c *PoolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.total
	ch <- c.idle
	ch <- c.acquired
	ch <- c.max
}

func (c *PoolCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.pool.Stat()
	ch <- prometheus.MustNewConstMetric(c.total, prometheus.GaugeValue, float64(s.TotalConns()))
	ch <- prometheus.MustNewConstMetric(c.idle, prometheus.GaugeValue, float64(s.IdleConns()))
	ch <- prometheus.MustNewConstMetric(c.acquired, prometheus.GaugeValue, float64(s.AcquiredConns()))
	ch <- prometheus.MustNewConstMetric(c.max, prometheus.GaugeValue, float64(s.MaxConns()))
}
