package aggregate

import (
	"sort"
	"strings"
	"time"

	"bilancio/internal/core"
)

// Predicate selects records.
type Predicate func(core.FinancialRecord) bool

// Filter returns the records matching every predicate, in input order.
func Filter(records []core.FinancialRecord, preds ...Predicate) []core.FinancialRecord {
	out := make([]core.FinancialRecord, 0, len(records))
next:
	for _, r := range records {
		for _, p := range preds {
			if !p(r) {
				continue next
			}
		}
		out = append(out, r)
	}
	return out
}

// Search matches a case-insensitive substring of the reference, category or
// description. An empty query matches everything.
func Search(query string) Predicate {
	q := strings.ToLower(strings.TrimSpace(query))
	return func(r core.FinancialRecord) bool {
		if q == "" {
			return true
		}
		return strings.Contains(strings.ToLower(r.Reference), q) ||
			strings.Contains(strings.ToLower(r.Category), q) ||
			strings.Contains(strings.ToLower(r.Description), q)
	}
}

// Between keeps records dated within [from, to]. A zero bound is open.
func Between(from, to core.Date) Predicate {
	return func(r core.FinancialRecord) bool {
		if !from.IsEmpty() && r.Date.Before(from) {
			return false
		}
		if !to.IsEmpty() && to.Before(r.Date) {
			return false
		}
		return true
	}
}

func OfKind(k core.Kind) Predicate {
	return func(r core.FinancialRecord) bool { return r.Kind == k }
}

func FromSource(s core.Source) Predicate {
	return func(r core.FinancialRecord) bool { return r.Source == s }
}

func WithStatus(s core.PaymentStatus) Predicate {
	return func(r core.FinancialRecord) bool { return r.Status == s }
}

func ForParty(id string) Predicate {
	return func(r core.FinancialRecord) bool { return r.PartyID == id }
}

// Overdue keeps unpaid records past their due date as of asOf.
func Overdue(asOf time.Time) Predicate {
	return func(r core.FinancialRecord) bool { return r.IsOverdue(asOf) }
}

// CountOverdue counts overdue records and sums their amounts. Invalid
// records are ignored.
func CountOverdue(records []core.FinancialRecord, asOf time.Time) (int, core.Money) {
	valid, _ := Valid(records)
	var total core.Money
	n := 0
	for _, r := range valid {
		if r.IsOverdue(asOf) {
			n++
			total = total.Add(*r.Amount)
		}
	}
	return n, total
}

// RankBy groups records by key and sums their amounts, largest first. Ties
// are ordered by name.
func RankBy(records []core.FinancialRecord, key func(core.FinancialRecord) string) ([]core.CategoryAmount, Diagnostics) {
	var diag Diagnostics
	byName := make(map[string]*core.CategoryAmount)
	for _, r := range records {
		if !diag.check(r) {
			continue
		}
		name := key(r)
		c, ok := byName[name]
		if !ok {
			c = &core.CategoryAmount{Name: name}
			byName[name] = c
		}
		c.Amount = c.Amount.Add(*r.Amount)
		c.Count++
	}
	out := make([]core.CategoryAmount, 0, len(byName))
	for _, c := range byName {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Amount.Cents != out[j].Amount.Cents {
			return out[i].Amount.Cents > out[j].Amount.Cents
		}
		return out[i].Name < out[j].Name
	})
	return out, diag
}

// ByCategory is a RankBy key grouping on the record category.
func ByCategory(r core.FinancialRecord) string {
	if strings.TrimSpace(r.Category) == "" {
		return "Altro"
	}
	return r.Category
}

// BySource is a RankBy key grouping on the originating subsystem.
func BySource(r core.FinancialRecord) string {
	if r.Source == "" {
		return string(core.SourceOther)
	}
	return string(r.Source)
}

// MonthOverviewFor summarizes the costs of one calendar month by category.
func MonthOverviewFor(records []core.FinancialRecord, year, month int) (core.MonthOverview, Diagnostics) {
	inMonth := Filter(records, OfKind(core.Cost), func(r core.FinancialRecord) bool {
		return r.Date.Year() == year && int(r.Date.Month()) == month
	})
	ranked, diag := RankBy(inMonth, ByCategory)
	overview := core.MonthOverview{Year: year, Month: month, ByCategory: ranked}
	for _, c := range ranked {
		overview.Total = overview.Total.Add(c.Amount)
	}
	return overview, diag
}
