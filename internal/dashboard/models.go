package dashboard

import (
	"sort"

	"github.com/shopspring/decimal"

	"bilancio/internal/aggregate"
	"bilancio/internal/core"
)

// PartyView backs the suppliers and customers panels.
type PartyView struct {
	Role          core.PartyRole         `json:"role"`
	Parties       []core.PartyStatistics `json:"parties"`
	Total         core.Money             `json:"total"`
	Paid          core.Money             `json:"paid"`
	Outstanding   core.Money             `json:"outstanding"`
	OverdueCount  int                    `json:"overdue_count"`
	OverdueAmount core.Money             `json:"overdue_amount"`
}

// ProfitLossView backs the profit and loss panel.
type ProfitLossView struct {
	Periods    []core.PeriodSummary  `json:"periods"`
	Total      core.PeriodSummary    `json:"total"`
	TopCosts   []core.CategoryAmount `json:"top_costs"`
	TopRevenue []core.CategoryAmount `json:"top_revenue"`
}

// TaxPeriod is the VAT estimate for one period.
type TaxPeriod struct {
	Key     string     `json:"key"`
	Revenue core.Money `json:"revenue"`
	VAT     core.Money `json:"vat"`
}

// TaxView backs the taxes panel.
type TaxView struct {
	Rate     decimal.Decimal `json:"rate"`
	Periods  []TaxPeriod     `json:"periods"`
	TotalVAT core.Money      `json:"total_vat"`
}

// PartyModel computes per-party statistics for one role, largest total first.
// Only parties with the requested role are considered.
func PartyModel(in Input, role core.PartyRole) (PartyView, aggregate.Diagnostics) {
	var parties []core.Party
	for _, p := range in.Parties {
		if role == "" || p.Role == role {
			parties = append(parties, p)
		}
	}
	stats, diag := aggregate.SummarizeByParty(in.Records, parties, aggregate.ByPartyID)

	v := PartyView{Role: role, Parties: make([]core.PartyStatistics, 0, len(stats))}
	for _, s := range stats {
		v.Parties = append(v.Parties, s)
		v.Total = v.Total.Add(s.Total)
		v.Paid = v.Paid.Add(s.Paid)
		v.Outstanding = v.Outstanding.Add(s.Outstanding)
	}
	sort.Slice(v.Parties, func(i, j int) bool {
		a, b := v.Parties[i], v.Parties[j]
		if a.Total.Cents != b.Total.Cents {
			return a.Total.Cents > b.Total.Cents
		}
		return a.PartyID < b.PartyID
	})

	known := make(map[string]struct{}, len(parties))
	for _, p := range parties {
		known[p.ID] = struct{}{}
	}
	own := aggregate.Filter(in.Records, func(r core.FinancialRecord) bool {
		_, ok := known[r.PartyID]
		return ok
	})
	v.OverdueCount, v.OverdueAmount = aggregate.CountOverdue(own, in.AsOf)
	return v, diag
}

// ProfitLossModel computes period summaries and the top categories per kind.
func ProfitLossModel(in Input, bucket aggregate.BucketFunc, top int) (ProfitLossView, aggregate.Diagnostics) {
	periods, diag := aggregate.SummarizeByPeriod(in.Records, bucket)
	v := ProfitLossView{Periods: periods, Total: aggregate.Totals(periods)}

	costs, _ := aggregate.RankBy(aggregate.Filter(in.Records, aggregate.OfKind(core.Cost)), aggregate.ByCategory)
	revenue, _ := aggregate.RankBy(aggregate.Filter(in.Records, aggregate.OfKind(core.Revenue)), aggregate.ByCategory)
	v.TopCosts = head(costs, top)
	v.TopRevenue = head(revenue, top)
	return v, diag
}

// TaxModel estimates VAT owed on revenue per period.
func TaxModel(in Input, rate decimal.Decimal, bucket aggregate.BucketFunc) (TaxView, aggregate.Diagnostics) {
	periods, diag := aggregate.SummarizeByPeriod(aggregate.Filter(in.Records, aggregate.OfKind(core.Revenue)), bucket)
	v := TaxView{Rate: rate, Periods: make([]TaxPeriod, 0, len(periods))}
	for _, p := range periods {
		vat := aggregate.ComputeVAT(p.Revenue, rate)
		v.Periods = append(v.Periods, TaxPeriod{Key: p.Key, Revenue: p.Revenue, VAT: vat})
		v.TotalVAT = v.TotalVAT.Add(vat)
	}
	return v, diag
}

func head(items []core.CategoryAmount, n int) []core.CategoryAmount {
	if n > 0 && len(items) > n {
		return items[:n]
	}
	return items
}
