package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"bilancio/internal/aggregate"
	"bilancio/internal/backend"
	"bilancio/internal/export/sheets"
)

func newExportCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export summaries to external tools",
	}
	cmd.AddCommand(newExportSheetsCommand(app))
	return cmd
}

func newExportSheetsCommand(app *App) *cobra.Command {
	var (
		bucketName  string
		spreadsheet string
		sheetName   string
		credentials string
	)
	cmd := &cobra.Command{
		Use:   "sheets",
		Short: "Write the profit and loss table to a Google spreadsheet",
		Long: `Replaces the content of the target sheet with one row per period and a
totals row.

Authentication uses, in order: --credentials, GOOGLE_CREDENTIALS_FILE, then
application default credentials.`,
		Example: `  bilancio-cli export sheets --spreadsheet 1AbC... --bucket quarter`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			bucket, err := aggregate.BucketByName(bucketName)
			if err != nil {
				return err
			}
			cfg := sheets.Config{
				SpreadsheetID:   firstNonEmpty(spreadsheet, app.Config.GoogleSpreadsheetID),
				SheetName:       firstNonEmpty(sheetName, app.Config.GoogleSheetName),
				CredentialsFile: firstNonEmpty(credentials, app.Config.GoogleCredentialsFile),
			}
			if cfg.SpreadsheetID == "" {
				return fmt.Errorf("no spreadsheet: pass --spreadsheet or set GOOGLE_SPREADSHEET_ID")
			}

			exp, err := sheets.New(cmd.Context(), cfg, app.Logger, app.SheetsOptions...)
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
				rng, err := exp.ExportPeriods(cmd.Context(), periods)
				if err != nil {
					return err
				}
				fmt.Fprintf(app.Out, "Exported %d periods to %s\n", len(periods), rng)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&bucketName, "bucket", "month", "period granularity: month, quarter or year")
	cmd.Flags().StringVar(&spreadsheet, "spreadsheet", "", "spreadsheet id (default GOOGLE_SPREADSHEET_ID)")
	cmd.Flags().StringVar(&sheetName, "sheet", "", "sheet name (default GOOGLE_SHEET_NAME)")
	cmd.Flags().StringVar(&credentials, "credentials", "", "service account JSON file")
	return cmd
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
