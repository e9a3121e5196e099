package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/medstock/medstock/internal/config"
	"github.com/medstock/medstock/internal/platform/auth"
	"github.com/medstock/medstock/internal/platform/blobstore"
	"github.com/medstock/medstock/internal/platform/clock"
	"github.com/medstock/medstock/internal/platform/db"
	"github.com/medstock/medstock/internal/platform/reporting"
)

// withApp loads configuration, opens the store and runs fn against it.
func withApp(fn func(ctx context.Context, a *app) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	ctx := context.Background()
	// Command output goes to stdout; keep store chatter out of it.
	a, err := openApp(ctx, cfg, newLogger(cfg).Level(zerolog.WarnLevel))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func dashboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Print the inventory dashboard counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				d, err := a.agg.Dashboard(ctx, dashboardOptions(a.cfg))
				if err != nil {
					return err
				}
				printDashboard(cmd.OutOrStdout(), d)
				return nil
			})
		},
	}
}

func costsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "costs",
		Short: "Print order costs per month, or for one month with --year and --month",
		RunE: func(cmd *cobra.Command, args []string) error {
			year, _ := cmd.Flags().GetInt("year")
			month, _ := cmd.Flags().GetInt("month")
			statusFlag, _ := cmd.Flags().GetString("status")
			return withApp(func(ctx context.Context, a *app) error {
				return runCosts(ctx, cmd.OutOrStdout(), a, year, month, statusFlag)
			})
		},
	}
	cmd.Flags().Int("year", 0, "Calendar year (requires --month)")
	cmd.Flags().Int("month", 0, "Calendar month 1-12 (requires --year)")
	cmd.Flags().String("status", "", `Order status to count: Pending, Received, Cancelled or "all" (default Received)`)
	return cmd
}

func runCosts(ctx context.Context, w io.Writer, a *app, year, month int, statusFlag string) error {
	status, err := reporting.StatusParam(statusFlag)
	if err != nil {
		return err
	}
	label := "all statuses"
	if status != nil {
		label = string(*status)
	}

	if year != 0 || month != 0 {
		if year == 0 || month == 0 {
			return fmt.Errorf("--year and --month must be given together")
		}
		total, err := a.agg.CostForMonth(ctx, year, month, status)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%04d-%02d (%s): %s\n", year, month, label, total.StringFixed(2))
		return nil
	}

	rows, err := a.agg.MonthlyCostReport(ctx, status)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Monthly order costs (%s)\n", label)
	fmt.Fprintf(w, "%-8s %-7s %s\n", "MONTH", "ORDERS", "TOTAL")
	for _, r := range rows {
		fmt.Fprintf(w, "%-8s %-7d %s\n", r.YearMonth, r.Orders, r.Total.StringFixed(2))
	}
	return nil
}

func valuationCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "valuation",
		Short: "Print the active stock valued at reference price",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				v, err := a.agg.GlobalStockValuation(ctx)
				if err != nil {
					return err
				}
				printValuation(cmd.OutOrStdout(), v)
				return nil
			})
		},
	}
}

func expirationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "expirations",
		Short: "Print stock lots ordered by expiration date",
		RunE: func(cmd *cobra.Command, args []string) error {
			active, _ := cmd.Flags().GetBool("active")
			return withApp(func(ctx context.Context, a *app) error {
				rows, err := a.agg.LotsByExpiration(ctx, active)
				if err != nil {
					return err
				}
				printLots(cmd.OutOrStdout(), rows)
				return nil
			})
		},
	}
	cmd.Flags().Bool("active", false, "Only lots that have not expired")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a report snapshot to the export store",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, _ := cmd.Flags().GetString("report")
			params, _ := cmd.Flags().GetStringToString("param")
			return withApp(func(ctx context.Context, a *app) error {
				exports, err := blobstore.Open(ctx, a.cfg)
				if err != nil {
					return err
				}
				exporter := reporting.NewExporter(a.reports, exports)
				exporter.SetLogger(a.logger)
				info, err := exporter.Export(ctx, id, params)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Exported %s to %s (%d bytes)\n", id, info.Key, info.Size)
				return nil
			})
		},
	}
	cmd.Flags().String("report", reporting.ReportDashboard, "Report ID")
	cmd.Flags().StringToString("param", nil, "Report parameter, e.g. --param status=all")
	return cmd
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token signed with AUTH_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			subject, _ := cmd.Flags().GetString("subject")
			roles, _ := cmd.Flags().GetStringSlice("role")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.AuthSecret == "" {
				return fmt.Errorf("AUTH_SECRET is not set")
			}
			tok, err := auth.IssueToken([]byte(cfg.AuthSecret), subject, roles, ttl, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().String("subject", "", "Token subject")
	cmd.Flags().StringSlice("role", []string{auth.RoleViewer}, "Role to grant (repeatable)")
	cmd.Flags().Duration("ttl", 24*time.Hour, "Token lifetime")
	return cmd
}

func printMigrationStatus(w io.Writer, schema string, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "Migration status for schema: %s\n", schema)
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func printDashboard(w io.Writer, d *reporting.Dashboard) {
	fmt.Fprintf(w, "Inventory dashboard for %s\n", d.Today)
	fmt.Fprintf(w, "  %-38s %d\n", "Medications", d.TotalMedications)
	fmt.Fprintf(w, "  %-38s %d\n", fmt.Sprintf("Expiring within %d days", d.Options.NearExpiryDays), d.NearExpiry)
	fmt.Fprintf(w, "  %-38s %d\n", "Expired lots", d.ExpiredLots)
	fmt.Fprintf(w, "  %-38s %d\n", fmt.Sprintf("At or below %d units", d.Options.LowStockThreshold), d.LowStock)
	fmt.Fprintf(w, "  %-38s %d\n", fmt.Sprintf("Prescriptions expiring within %d days", d.Options.PrescriptionWarningDays), d.PrescriptionsExpiring)
	fmt.Fprintf(w, "  %-38s %d\n", "Prescriptions expired", d.PrescriptionsExpired)
}

func printValuation(w io.Writer, v *reporting.Valuation) {
	fmt.Fprintf(w, "%-30s %8s %12s %12s\n", "MEDICATION", "UNITS", "UNIT PRICE", "VALUE")
	for _, l := range v.Lines {
		price, value := "-", "-"
		if l.UnitPrice != nil {
			price = l.UnitPrice.String()
		}
		if l.Value != nil {
			value = l.Value.StringFixed(2)
		}
		fmt.Fprintf(w, "%-30s %8d %12s %12s\n", l.Name, l.ActiveUnits, price, value)
	}
	fmt.Fprintf(w, "%-30s %8s %12s %12s\n", "TOTAL", "", "", v.Total.StringFixed(2))
}

func printLots(w io.Writer, rows []reporting.LotRow) {
	fmt.Fprintf(w, "%-10s %-30s %6s %6s %s\n", "EXPIRES", "MEDICATION", "BOXES", "UNITS", "STATE")
	for _, r := range rows {
		state := "active"
		if r.Expired {
			state = "expired"
		}
		fmt.Fprintf(w, "%-10s %-30s %6d %6d %s\n",
			r.ExpiresOn.Format(clock.DateLayout), truncate(r.MedicationName, 30), r.Boxes, r.TotalUnits, state)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n-1])) + "~"
}
