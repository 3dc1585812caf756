package aggregate

import (
	"fmt"
	"sort"
	"strings"

	"bilancio/internal/core"
)

// BucketFunc maps a record date to a period key. Keys must sort
// lexicographically in chronological order.
type BucketFunc func(core.Date) string

// ByMonth buckets by calendar month ("2024-01").
func ByMonth(d core.Date) string {
	return d.Format("2006-01")
}

// ByQuarter buckets by calendar quarter ("2024-Q1").
func ByQuarter(d core.Date) string {
	return fmt.Sprintf("%04d-Q%d", d.Year(), (int(d.Month())-1)/3+1)
}

// ByYear buckets by calendar year ("2024").
func ByYear(d core.Date) string {
	return d.Format("2006")
}

// BucketByName resolves "month", "quarter" or "year". Empty means month.
func BucketByName(name string) (BucketFunc, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "month":
		return ByMonth, nil
	case "quarter":
		return ByQuarter, nil
	case "year":
		return ByYear, nil
	default:
		return nil, fmt.Errorf("unknown bucket %q: use month, quarter or year", name)
	}
}

// SummarizeByPeriod groups records into buckets and returns one summary per
// bucket, most recent first.
func SummarizeByPeriod(records []core.FinancialRecord, bucket BucketFunc) ([]core.PeriodSummary, Diagnostics) {
	if bucket == nil {
		bucket = ByMonth
	}
	var diag Diagnostics
	byKey := make(map[string]*core.PeriodSummary)
	for _, r := range records {
		if !diag.check(r) {
			continue
		}
		k := bucket(r.Date)
		s, ok := byKey[k]
		if !ok {
			s = &core.PeriodSummary{Key: k}
			byKey[k] = s
		}
		s.RecordCount++
		switch r.Kind {
		case core.Revenue:
			s.Revenue = s.Revenue.Add(*r.Amount)
		case core.Cost:
			s.Cost = s.Cost.Add(*r.Amount)
		}
	}

	out := make([]core.PeriodSummary, 0, len(byKey))
	for _, s := range byKey {
		s.Profit = s.Revenue.Sub(s.Cost)
		s.Margin = ComputeMargin(s.Revenue, s.Cost)
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key > out[j].Key })
	return out, diag
}

// Totals folds period summaries into a single overall summary.
func Totals(periods []core.PeriodSummary) core.PeriodSummary {
	total := core.PeriodSummary{Key: "total"}
	for _, p := range periods {
		total.Revenue = total.Revenue.Add(p.Revenue)
		total.Cost = total.Cost.Add(p.Cost)
		total.RecordCount += p.RecordCount
	}
	total.Profit = total.Revenue.Sub(total.Cost)
	total.Margin = ComputeMargin(total.Revenue, total.Cost)
	return total
}
