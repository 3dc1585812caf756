package aggregate

import (
	"bilancio/internal/core"
)

// PartyKeyFunc extracts the counterparty id a record belongs to.
type PartyKeyFunc func(core.FinancialRecord) string

// ByPartyID keys records by their PartyID field.
func ByPartyID(r core.FinancialRecord) string {
	return r.PartyID
}

// SummarizeByParty builds one PartyStatistics per known party. Parties with
// no records get zero statistics; records whose key matches no party are
// ignored without being reported.
//
// The most recent invoice is the one with the latest Date. The nearest due
// invoice is the unpaid one with the earliest DueDate. Both break ties by
// record ID ascending.
func SummarizeByParty(records []core.FinancialRecord, parties []core.Party, key PartyKeyFunc) (map[string]core.PartyStatistics, Diagnostics) {
	if key == nil {
		key = ByPartyID
	}
	out := make(map[string]core.PartyStatistics, len(parties))
	for _, p := range parties {
		out[p.ID] = core.PartyStatistics{PartyID: p.ID, Name: p.Name, Role: p.Role}
	}

	var diag Diagnostics
	for _, r := range records {
		stats, known := out[key(r)]
		if !known {
			continue
		}
		if !diag.check(r) {
			continue
		}
		amount := *r.Amount
		stats.InvoiceCount++
		stats.Total = stats.Total.Add(amount)
		if r.IsPaid() {
			stats.PaidCount++
			stats.Paid = stats.Paid.Add(amount)
		}

		if stats.LastInvoice == nil || newerThan(r, stats.LastInvoice) {
			stats.LastInvoice = refOf(r)
		}
		if !r.IsPaid() && !r.DueDate.IsEmpty() {
			if stats.NextDue == nil || dueSooner(r, stats.NextDue) {
				stats.NextDue = refOfDue(r)
			}
		}
		out[stats.PartyID] = stats
	}

	for id, stats := range out {
		stats.Outstanding = stats.Total.Sub(stats.Paid)
		stats.OutstandingCount = stats.InvoiceCount - stats.PaidCount
		out[id] = stats
	}
	return out, diag
}

func refOf(r core.FinancialRecord) *core.RecordRef {
	return &core.RecordRef{ID: r.ID, Reference: r.Reference, Date: r.Date, Amount: *r.Amount}
}

// refOfDue stores the due date in the reference, since that is what the
// "next due" slot is ordered by.
func refOfDue(r core.FinancialRecord) *core.RecordRef {
	return &core.RecordRef{ID: r.ID, Reference: r.Reference, Date: r.DueDate, Amount: *r.Amount}
}

func newerThan(r core.FinancialRecord, cur *core.RecordRef) bool {
	if r.Date.Equal(cur.Date.Time) {
		return r.ID < cur.ID
	}
	return cur.Date.Before(r.Date)
}

func dueSooner(r core.FinancialRecord, cur *core.RecordRef) bool {
	if r.DueDate.Equal(cur.Date.Time) {
		return r.ID < cur.ID
	}
	return r.DueDate.Before(cur.Date)
}
