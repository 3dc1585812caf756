// Package aggregate computes dashboard statistics over snapshots of
// financial records. Every function is pure: the inputs are never modified
// and identical inputs give identical outputs.
//
// Malformed records are left out of the totals and reported through
// Diagnostics instead of failing the whole computation.
package aggregate

import (
	"errors"
	"sort"

	"bilancio/internal/core"
)

const (
	MissingField   SkipReason = "missing_field"
	InvalidDate    SkipReason = "invalid_date"
	NegativeAmount SkipReason = "negative_amount"
)

type SkipReason string

// Skip describes one record left out of an aggregation.
type Skip struct {
	RecordID string     `json:"record_id"`
	Reason   SkipReason `json:"reason"`
	Field    string     `json:"field,omitempty"`
}

// Diagnostics lists the records an aggregation excluded, in input order.
type Diagnostics struct {
	Skipped []Skip `json:"skipped"`
}

func (d Diagnostics) Count() int {
	return len(d.Skipped)
}

// ByReason counts skips per reason.
func (d Diagnostics) ByReason() map[SkipReason]int {
	out := make(map[SkipReason]int, 3)
	for _, s := range d.Skipped {
		out[s.Reason]++
	}
	return out
}

// Reasons returns the distinct reasons in a stable order.
func (d Diagnostics) Reasons() []SkipReason {
	counts := d.ByReason()
	out := make([]SkipReason, 0, len(counts))
	for r := range counts {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (d *Diagnostics) add(r core.FinancialRecord, reason SkipReason, field string) {
	d.Skipped = append(d.Skipped, Skip{RecordID: r.ID, Reason: reason, Field: field})
}

// check classifies a record. It returns false when the record must be skipped.
// An unknown kind counts as a missing field: the record cannot be placed on
// either side of the ledger.
func (d *Diagnostics) check(r core.FinancialRecord) bool {
	err := r.Validate()
	if err == nil {
		return true
	}
	switch {
	case errors.Is(err, core.ErrMissingAmount):
		d.add(r, MissingField, "amount")
	case errors.Is(err, core.ErrMissingDate):
		d.add(r, MissingField, "date")
	case errors.Is(err, core.ErrEmptyID):
		d.add(r, MissingField, "id")
	case errors.Is(err, core.ErrInvalidKind):
		d.add(r, MissingField, "kind")
	case errors.Is(err, core.ErrNegativeAmount):
		d.add(r, NegativeAmount, "amount")
	case errors.Is(err, core.ErrInvalidDueDate):
		d.add(r, InvalidDate, "due_date")
	default:
		d.add(r, InvalidDate, "date")
	}
	return false
}

// Valid splits records into the usable ones and the diagnostics for the rest.
func Valid(records []core.FinancialRecord) ([]core.FinancialRecord, Diagnostics) {
	var diag Diagnostics
	out := make([]core.FinancialRecord, 0, len(records))
	for _, r := range records {
		if diag.check(r) {
			out = append(out, r)
		}
	}
	return out, diag
}
