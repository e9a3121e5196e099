package main

import (
	"context"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/medstock/medstock/internal/config"
	"github.com/medstock/medstock/internal/domain/medication"
	"github.com/medstock/medstock/internal/domain/order"
	"github.com/medstock/medstock/internal/domain/stock"
	"github.com/medstock/medstock/internal/platform/apperror"
	"github.com/medstock/medstock/internal/platform/auth"
	"github.com/medstock/medstock/internal/platform/blobstore"
	"github.com/medstock/medstock/internal/platform/db"
	"github.com/medstock/medstock/internal/platform/httpx"
	"github.com/medstock/medstock/internal/platform/middleware"
	"github.com/medstock/medstock/internal/platform/reporting"
	"github.com/medstock/medstock/internal/platform/store"
	"github.com/medstock/medstock/internal/platform/telemetry"
	"github.com/medstock/medstock/migrations"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:           "medstock-server",
		Short:         "Medication inventory and order accounting server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(dashboardCmd())
	rootCmd.AddCommand(costsCmd())
	rootCmd.AddCommand(valuationCmd())
	rootCmd.AddCommand(expirationsCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the inventory API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run PostgreSQL schema migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, migrationSource(dir, cfg.MigrationsDir))
			fmt.Fprintf(cmd.OutOrStdout(), "Running migrations on schema: %s\n", schema)
			count, err := migrator.Up(ctx, schema)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("schema", "public", "Target schema for migrations")
	upCmd.Flags().String("dir", "", "Migrations directory (defaults to MIGRATIONS_DIR, then the embedded set)")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, migrationSource(dir, cfg.MigrationsDir)).Status(ctx, schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printMigrationStatus(cmd.OutOrStdout(), schema, statuses)
			return nil
		},
	}
	statusCmd.Flags().String("schema", "public", "Target schema for migrations")
	statusCmd.Flags().String("dir", "", "Migrations directory (defaults to MIGRATIONS_DIR, then the embedded set)")
	cmd.AddCommand(statusCmd)

	return cmd
}

// migrationSource prefers the --dir flag, then MIGRATIONS_DIR, then the
// migrations compiled into the binary.
func migrationSource(flagDir, cfgDir string) fs.FS {
	if flagDir != "" {
		return os.DirFS(flagDir)
	}
	if cfgDir != "" {
		return os.DirFS(cfgDir)
	}
	return migrations.FS
}

func newLogger(cfg *config.Config) zerolog.Logger {
	var logger zerolog.Logger
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stdout)
	}
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return logger.Level(level).With().Timestamp().Logger()
}

// app holds the services built on top of one open Entity Store.
type app struct {
	cfg     *config.Config
	logger  zerolog.Logger
	store   *store.Store
	meds    *medication.Service
	stock   *stock.Service
	orders  *order.Service
	agg     *reporting.Aggregator
	reports *reporting.Reports
}

func openApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	st, err := store.Open(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return newApp(cfg, logger, st, time.Now, loc), nil
}

func newApp(cfg *config.Config, logger zerolog.Logger, st *store.Store, now func() time.Time, loc *time.Location) *app {
	medSvc := medication.NewService(st.Medications, st.Orders)
	medSvc.SetLogger(logger)

	stockSvc := stock.NewService(st.Lots, st.Medications)
	stockSvc.SetClock(now, loc)
	stockSvc.SetLogger(logger)

	orderSvc := order.NewService(st.Orders, st.Medications)
	orderSvc.SetClock(now, loc)
	orderSvc.SetLogger(logger)

	agg := reporting.NewAggregator(medSvc, stockSvc, orderSvc)
	agg.SetReadScope(st.ReadScope)
	agg.SetLogger(logger)

	return &app{
		cfg:     cfg,
		logger:  logger,
		store:   st,
		meds:    medSvc,
		stock:   stockSvc,
		orders:  orderSvc,
		agg:     agg,
		reports: reporting.NewReports(agg, dashboardOptions(cfg)),
	}
}

func dashboardOptions(cfg *config.Config) reporting.DashboardOptions {
	return reporting.DashboardOptions{
		NearExpiryDays:          cfg.NearExpiryDays,
		LowStockThreshold:       cfg.LowStockThreshold,
		PrescriptionWarningDays: cfg.PrescriptionWarningDays,
	}
}

func (a *app) Close() error { return a.store.Close() }

// newServer builds the HTTP surface. exports may be nil, which disables the
// export routes.
func newServer(a *app, exports blobstore.Store, metrics *telemetry.Provider) (*echo.Echo, error) {
	cfg, logger := a.cfg, a.logger

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = apperror.HTTPErrorHandler(logger)
	e.Validator = httpx.NewValidator()

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(metrics.MetricsMiddleware())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit("1M"))
	e.Use(middleware.RequestTimeout(30 * time.Second))

	if err := metrics.Register(telemetry.NewInventoryCollector(a.agg, dashboardOptions(cfg), logger)); err != nil {
		return nil, err
	}
	if a.store.Pool != nil {
		if err := metrics.Register(telemetry.NewPoolCollector(a.store.Pool)); err != nil {
			return nil, err
		}
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(a.store.Driver, a.store, a.store.Pool))
	e.GET("/metrics", metrics.PrometheusHandler())

	apiV1 := e.Group("/api/v1")
	if cfg.AuthSecret != "" {
		apiV1.Use(auth.JWTMiddleware(auth.JWTConfig{SigningKey: []byte(cfg.AuthSecret), Leeway: 30 * time.Second}))
	} else {
		logger.Warn().Msg("AUTH_SECRET not set, every request is treated as admin")
		apiV1.Use(auth.DevAuthMiddleware())
	}

	medication.NewHandler(a.meds).RegisterRoutes(apiV1)
	stock.NewHandler(a.stock).RegisterRoutes(apiV1)
	order.NewHandler(a.orders).RegisterRoutes(apiV1)

	var exporter *reporting.Exporter
	if exports != nil {
		exporter = reporting.NewExporter(a.reports, exports)
		exporter.SetLogger(logger)
	}
	reporting.NewHandler(a.reports, exporter).RegisterRoutes(apiV1)

	return e, nil
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg)

	ctx := context.Background()
	a, err := openApp(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to open store")
		return err
	}
	defer a.Close()

	exports, err := blobstore.Open(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("failed to open export store")
		return err
	}
	logger.Info().Str("driver", exports.Driver()).Msg("export store ready")

	e, err := newServer(a, exports, telemetry.NewProvider())
	if err != nil {
		return err
	}

	addr := ":" + cfg.Port
	go func() {
		logger.Info().Str("addr", addr).Str("store", cfg.StoreDriver).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	return nil
}
