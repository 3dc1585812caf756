package core

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string `json:"name"`
	Amount Money  `json:"amount"`
	Count  int    `json:"count"`
}

// MonthOverview is a compact summary for a specific year+month.
type MonthOverview struct {
	Year       int              `json:"year"`
	Month      int              `json:"month"` // 1-12
	Total      Money            `json:"total"`
	ByCategory []CategoryAmount `json:"by_category"`
}

// RecordRef points at one record inside a PartyStatistics.
type RecordRef struct {
	ID        string `json:"id"`
	Reference string `json:"reference,omitempty"`
	Date      Date   `json:"date"`
	Amount    Money  `json:"amount"`
}

// PartyStatistics is derived per counterparty and never persisted.
// Outstanding always equals Total minus Paid.
type PartyStatistics struct {
	PartyID          string     `json:"party_id"`
	Name             string     `json:"name"`
	Role             PartyRole  `json:"role"`
	InvoiceCount     int        `json:"invoice_count"`
	Total            Money      `json:"total"`
	PaidCount        int        `json:"paid_count"`
	Paid             Money      `json:"paid"`
	OutstandingCount int        `json:"outstanding_count"`
	Outstanding      Money      `json:"outstanding"`
	LastInvoice      *RecordRef `json:"last_invoice,omitempty"`
	NextDue          *RecordRef `json:"next_due,omitempty"`
}

// PeriodSummary is one time bucket of a profit and loss view.
// Profit may be negative; Margin is 0 when Revenue is 0.
type PeriodSummary struct {
	Key         string  `json:"key"`
	Revenue     Money   `json:"revenue"`
	Cost        Money   `json:"cost"`
	Profit      Money   `json:"profit"`
	Margin      float64 `json:"margin"`
	RecordCount int     `json:"record_count"`
}
