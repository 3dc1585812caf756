package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	Revenue Kind = "revenue"
	Cost    Kind = "cost"
)

const (
	SourceSales          Source = "sales"
	SourceGeneralExpense Source = "general_expense"
	SourceTransport      Source = "transport"
	SourceSupplier       Source = "supplier"
	SourceOther          Source = "other"
)

const (
	StatusIssued  PaymentStatus = "issued"
	StatusPaid    PaymentStatus = "paid"
	StatusOverdue PaymentStatus = "overdue"
)

const (
	RoleSupplier PartyRole = "supplier"
	RoleCustomer PartyRole = "customer"
)

type (
	Kind          string
	Source        string
	PaymentStatus string
	PartyRole     string

	// Date is a calendar date. A value decoded from malformed input keeps
	// the raw text so callers can tell "absent" from "unparseable".
	Date struct {
		time.Time
		raw string
	}

	Money struct {
		Cents int64
	}

	// FinancialRecord is one revenue or cost event as returned by the backend.
	// Amount is nil when the backend omitted it.
	FinancialRecord struct {
		ID          string        `json:"id"`
		Reference   string        `json:"reference,omitempty"` // invoice number
		Date        Date          `json:"date"`
		DueDate     Date          `json:"due_date,omitempty"`
		Category    string        `json:"category,omitempty"`
		Description string        `json:"description,omitempty"`
		Amount      *Money        `json:"amount"`
		Kind        Kind          `json:"kind"`
		Source      Source        `json:"source,omitempty"`
		Status      PaymentStatus `json:"status,omitempty"`
		PartyID     string        `json:"party_id,omitempty"`
	}

	Party struct {
		ID        string    `json:"id"`
		Name      string    `json:"name"`
		Role      PartyRole `json:"role"`
		VATNumber string    `json:"vat_number,omitempty"`
	}
)

var (
	ErrInvalidDay       = errors.New("invalid day")
	ErrInvalidMonth     = errors.New("invalid month")
	ErrInvalidDate      = errors.New("invalid date")
	ErrMissingDate      = errors.New("missing date")
	ErrInvalidDueDate   = errors.New("invalid due date")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrMissingAmount    = errors.New("missing amount")
	ErrNegativeAmount   = errors.New("negative amount")
	ErrInvalidKind      = errors.New("invalid kind")
	ErrEmptyID          = errors.New("empty id")
	ErrEmptyDescription = errors.New("empty description")
)

var dateLayouts = []string{"2006-01-02", time.RFC3339, "02/01/2006"}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate accepts ISO dates, RFC3339 timestamps and dd/mm/yyyy.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, ErrMissingDate
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return NewDate(t.Year(), int(t.Month()), t.Day()), nil
		}
	}
	return Date{raw: s}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

func (d Date) Validate() error {
	if d.raw != "" {
		return ErrInvalidDate
	}
	if d.IsZero() {
		return ErrMissingDate
	}
	year, month, day := d.Date()
	if year < 1900 || year > 9999 {
		return ErrInvalidDate
	}
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// Invalid reports whether the date came from text that could not be parsed.
func (d Date) Invalid() bool {
	return d.raw != ""
}

// IsEmpty returns true if the date is absent (zero and not malformed).
func (d Date) IsEmpty() bool {
	return d.IsZero() && d.raw == ""
}

// Before compares calendar dates, ignoring any malformed raw text.
func (d Date) Before(o Date) bool {
	return d.Time.Before(o.Time)
}

func (d Date) String() string {
	if d.raw != "" {
		return d.raw
	}
	if d.IsZero() {
		return ""
	}
	return d.Format("2006-01-02")
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsEmpty() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

// UnmarshalJSON never fails on a bad date string: the value is kept as
// invalid so the record can be reported instead of aborting the decode.
func (d *Date) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		*d = Date{raw: string(b)}
		return nil
	}
	if strings.TrimSpace(s) == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		*d = Date{raw: s}
		return nil
	}
	*d = parsed
	return nil
}

func (k Kind) Valid() bool {
	return k == Revenue || k == Cost
}

// Validate checks the fields aggregation depends on.
func (r FinancialRecord) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return ErrEmptyID
	}
	if r.Date.Invalid() {
		return fmt.Errorf("date: %w", ErrInvalidDate)
	}
	if err := r.Date.Validate(); err != nil {
		return fmt.Errorf("date: %w", err)
	}
	if r.DueDate.Invalid() {
		return ErrInvalidDueDate
	}
	if r.Amount == nil {
		return ErrMissingAmount
	}
	if r.Amount.IsNegative() {
		return ErrNegativeAmount
	}
	if !r.Kind.Valid() {
		return ErrInvalidKind
	}
	return nil
}

func (r FinancialRecord) IsPaid() bool {
	return r.Status == StatusPaid
}

// IsOverdue is derived at query time: unpaid with a due date strictly
// before asOf's calendar day. A stored "overdue" status is not trusted on
// its own.
func (r FinancialRecord) IsOverdue(asOf time.Time) bool {
	if r.IsPaid() || r.DueDate.IsEmpty() || r.DueDate.Invalid() {
		return false
	}
	today := NewDate(asOf.Year(), int(asOf.Month()), asOf.Day())
	return r.DueDate.Before(today)
}

// AmountOrZero returns the amount, or zero when absent.
func (r FinancialRecord) AmountOrZero() Money {
	if r.Amount == nil {
		return Money{}
	}
	return *r.Amount
}

func (p Party) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return ErrEmptyID
	}
	if strings.TrimSpace(p.Name) == "" {
		return ErrEmptyDescription
	}
	switch p.Role {
	case RoleSupplier, RoleCustomer:
		return nil
	default:
		return errors.New("invalid party role")
	}
}
