// Package sheets exports profit and loss summaries to a Google spreadsheet.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"bilancio/internal/aggregate"
	"bilancio/internal/core"
	"bilancio/internal/log"
)

var Header = []any{"Periodo", "Ricavi", "Costi", "Utile", "Margine %", "Movimenti"}

type Exporter struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
	logger        *log.Logger
}

// Config selects the target spreadsheet and how to authenticate. Inline JSON
// wins over a credentials file; with neither, application default
// credentials are used.
type Config struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsFile string
	CredentialsJSON string
}

func New(ctx context.Context, cfg Config, logger *log.Logger, opts ...goption.ClientOption) (*Exporter, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if cfg.SheetName == "" {
		cfg.SheetName = "Bilancio"
	}
	if logger == nil {
		logger = log.Discard()
	}

	clientOpts := []goption.ClientOption{goption.WithScopes(gsheet.SpreadsheetsScope)}
	switch {
	case cfg.CredentialsJSON != "":
		clientOpts = append(clientOpts, goption.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	case cfg.CredentialsFile != "":
		b, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read credentials file: %w", err)
		}
		clientOpts = append(clientOpts, goption.WithCredentialsJSON(b))
	}
	clientOpts = append(clientOpts, opts...)

	svc, err := gsheet.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &Exporter{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		sheetName:     cfg.SheetName,
		logger:        logger.WithComponent(log.ComponentExport),
	}, nil
}

// ExportPeriods replaces the sheet content with one row per period plus a
// totals row, and returns the written range.
func (e *Exporter) ExportPeriods(ctx context.Context, periods []core.PeriodSummary) (string, error) {
	rows := Rows(periods)

	if _, err := e.svc.Spreadsheets.Values.Clear(e.spreadsheetID, e.sheetName+"!A:F", &gsheet.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return "", fmt.Errorf("failed to clear sheet %s: %w", e.sheetName, err)
	}

	rng := fmt.Sprintf("%s!A1:F%d", e.sheetName, len(rows))
	vr := &gsheet.ValueRange{Values: rows}
	if _, err := e.svc.Spreadsheets.Values.Update(e.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do(); err != nil {
		return "", fmt.Errorf("failed to update %s: %w", rng, err)
	}

	e.logger.InfoContext(ctx, "Period summaries exported",
		log.FieldOperation, log.OpExport, "range", rng, "periods", len(periods))
	return rng, nil
}

// Rows lays out periods as sheet rows: header, periods, then totals.
// Amounts are euros; the margin is rounded to two decimals.
func Rows(periods []core.PeriodSummary) [][]any {
	rows := make([][]any, 0, len(periods)+2)
	rows = append(rows, Header)
	for _, p := range periods {
		rows = append(rows, row(p))
	}
	total := aggregate.Totals(periods)
	total.Key = "Totale"
	return append(rows, row(total))
}

func row(p core.PeriodSummary) []any {
	return []any{
		p.Key,
		p.Revenue.Euros(),
		p.Cost.Euros(),
		p.Profit.Euros(),
		math.Round(p.Margin*100) / 100,
		p.RecordCount,
	}
}
