package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"bilancio/internal/aggregate"
	"bilancio/internal/backend"
	"bilancio/internal/core"
	"bilancio/internal/dashboard"
)

func newReportCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print dashboard statistics",
	}
	cmd.AddCommand(
		newPeriodsCommand(app),
		newPartiesCommand(app),
		newVATCommand(app),
		newOverviewCommand(app),
	)
	return cmd
}

func newPeriodsCommand(app *App) *cobra.Command {
	var bucketName string
	cmd := &cobra.Command{
		Use:   "periods",
		Short: "Profit and loss per period",
		Example: `  bilancio-cli report periods --bucket quarter
  bilancio-cli report periods -o json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			bucket, err := aggregate.BucketByName(bucketName)
			if err != nil {
				return err
			}
			return app.withBackend(cmd.Context(), func(src backend.Source) error {
				records, err := src.ListRecords(cmd.Context())
				if err != nil {
					return backend.AsFetchError("records", err)
				}
				periods, diag := aggregate.SummarizeByPeriod(records, bucket)
				app.reportSkips(diag)
				total := aggregate.Totals(periods)
				if app.output == "json" {
					return app.writeJSON(map[string]any{"periods": periods, "total": total, "diagnostics": diag})
				}

				tw := tabwriter.NewWriter(app.Out, 0, 4, 2, ' ', tabwriter.AlignRight)
				fmt.Fprintln(tw, "Periodo\tRicavi\tCosti\tUtile\tMargine %\tMovimenti\t")
				for _, p := range append(periods, labelled(total, "Totale")) {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.2f\t%d\t\n", p.Key, p.Revenue, p.Cost, p.Profit, p.Margin, p.RecordCount)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&bucketName, "bucket", "month", "period granularity: month, quarter or year")
	return cmd
}

func newPartiesCommand(app *App) *cobra.Command {
	var roleName string
	cmd := &cobra.Command{
		Use:   "parties",
		Short: "Totals, payments and outstanding balance per supplier or customer",
		RunE: func(cmd *cobra.Command, _ []string) error {
			role := core.PartyRole(strings.ToLower(roleName))
			if role != core.RoleSupplier && role != core.RoleCustomer {
				return fmt.Errorf("unknown role %q: use supplier or customer", roleName)
			}
			return app.withBackend(cmd.Context(), func(src backend.Source) error {
				in, err := dashboard.Fetch(cmd.Context(), src, dashboard.FetchSpec{Parties: true, Role: role})
				if err != nil {
					return err
				}
				in.AsOf = app.Now()
				view, diag := dashboard.PartyModel(in, role)
				app.reportSkips(diag)
				if app.output == "json" {
					return app.writeJSON(view)
				}

				tw := tabwriter.NewWriter(app.Out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNome\tFatture\tTotale\tPagato\tDa pagare\tProssima scadenza")
				for _, p := range view.Parties {
					due := "-"
					if p.NextDue != nil {
						due = p.NextDue.Date.String()
					}
					fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
						p.PartyID, p.Name, p.InvoiceCount, p.Total, p.Paid, p.Outstanding, due)
				}
				fmt.Fprintf(tw, "\tTotale\t\t%s\t%s\t%s\t\n", view.Total, view.Paid, view.Outstanding)
				fmt.Fprintf(tw, "\tScadute\t%d\t%s\t\t\t\n", view.OverdueCount, view.OverdueAmount)
				return tw.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&roleName, "role", string(core.RoleSupplier), "supplier or customer")
	return cmd
}

func newVATCommand(app *App) *cobra.Command {
	var (
		bucketName string
		rateFlag   string
	)
	cmd := &cobra.Command{
		Use:   "vat",
		Short: "Estimated VAT on revenue per period",
		RunE: func(cmd *cobra.Command, _ []string) error {
			bucket, err := aggregate.BucketByName(bucketName)
			if err != nil {
				return err
			}
			rate := app.Config.Rate()
			if rateFlag != "" {
				if rate, err = aggregate.ParseRate(rateFlag); err != nil {
					return fmt.Errorf("invalid --rate: %w", err)
				}
			}
			return app.withBackend(cmd.Context(), func(src backend.Source) error {
				in, err := dashboard.Fetch(cmd.Context(), src, dashboard.FetchSpec{})
				if err != nil {
					return err
				}
				view, diag := dashboard.TaxModel(in, rate, bucket)
				app.reportSkips(diag)
				if app.output == "json" {
					return app.writeJSON(view)
				}

				tw := tabwriter.NewWriter(app.Out, 0, 4, 2, ' ', tabwriter.AlignRight)
				fmt.Fprintf(tw, "Periodo\tRicavi\tIVA %s%%\t\n", rate.Shift(2).String())
				for _, p := range view.Periods {
					fmt.Fprintf(tw, "%s\t%s\t%s\t\n", p.Key, p.Revenue, p.VAT)
				}
				fmt.Fprintf(tw, "Totale\t\t%s\t\n", view.TotalVAT)
				return tw.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&bucketName, "bucket", "quarter", "period granularity: month, quarter or year")
	cmd.Flags().StringVar(&rateFlag, "rate", "", "VAT rate override, e.g. 0.22 or 22%")
	return cmd
}

func newOverviewCommand(app *App) *cobra.Command {
	var year, month int
	cmd := &cobra.Command{
		Use:   "overview",
		Short: "Monthly totals by category",
		RunE: func(cmd *cobra.Command, _ []string) error {
			now := app.Now()
			if year == 0 {
				year = now.Year()
			}
			if month == 0 {
				month = int(now.Month())
			}
			if month < 1 || month > 12 {
				return fmt.Errorf("invalid month %d", month)
			}
			return app.withBackend(cmd.Context(), func(src backend.Source) error {
				records, err := src.ListRecords(cmd.Context())
				if err != nil {
					return backend.AsFetchError("records", err)
				}
				ov, diag := aggregate.MonthOverviewFor(records, year, month)
				app.reportSkips(diag)
				if app.output == "json" {
					return app.writeJSON(ov)
				}

				tw := tabwriter.NewWriter(app.Out, 0, 4, 2, ' ', 0)
				fmt.Fprintf(tw, "%04d-%02d\t\t\n", ov.Year, ov.Month)
				for _, c := range ov.ByCategory {
					fmt.Fprintf(tw, "%s\t%s\t%d\n", c.Name, c.Amount, c.Count)
				}
				fmt.Fprintf(tw, "Totale\t%s\t\n", ov.Total)
				return tw.Flush()
			})
		},
	}
	cmd.Flags().IntVar(&year, "year", 0, "year, default current")
	cmd.Flags().IntVar(&month, "month", 0, "month 1-12, default current")
	return cmd
}

func labelled(p core.PeriodSummary, key string) core.PeriodSummary {
	p.Key = key
	return p
}

// reportSkips logs malformed records; the report itself stays clean.
func (a *App) reportSkips(diag aggregate.Diagnostics) {
	if n := diag.Count(); n > 0 {
		a.Logger.Warn("Malformed records skipped", "skipped", n, "reasons", diag.ByReason())
	}
}
