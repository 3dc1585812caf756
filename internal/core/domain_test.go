package core

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestDateValidate(t *testing.T) {
	cases := []struct {
		d  Date
		ok bool
	}{
		{NewDate(2025, 1, 1), true},
		{NewDate(2025, 12, 31), true},
		{Date{Time: time.Time{}}, false}, // zero time
		{Date{raw: "31/31/2024"}, false},
		{NewDate(1200, 1, 1), false},
	}
	for i, tc := range cases {
		err := tc.d.Validate()
		if tc.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestParseDate(t *testing.T) {
	cases := []struct {
		in   string
		want Date
		ok   bool
	}{
		{"2024-01-15", NewDate(2024, 1, 15), true},
		{"2024-01-15T10:30:00Z", NewDate(2024, 1, 15), true},
		{"15/01/2024", NewDate(2024, 1, 15), true},
		{"", Date{}, false},
		{"not a date", Date{}, false},
	}
	for _, tc := range cases {
		got, err := ParseDate(tc.in)
		if tc.ok {
			if err != nil || !got.Equal(tc.want.Time) {
				t.Fatalf("%q expected %v, got %v (err=%v)", tc.in, tc.want, got, err)
			}
			continue
		}
		if err == nil {
			t.Fatalf("%q expected error", tc.in)
		}
	}
}

func TestDateUnmarshalKeepsInvalid(t *testing.T) {
	var r struct {
		D Date `json:"d"`
		E Date `json:"e"`
		F Date `json:"f"`
	}
	if err := json.Unmarshal([]byte(`{"d":"2024-02-30x","e":null,"f":"2024-03-01"}`), &r); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !r.D.Invalid() {
		t.Fatalf("expected d to be invalid")
	}
	if !r.E.IsEmpty() {
		t.Fatalf("expected e to be empty")
	}
	if r.F.String() != "2024-03-01" {
		t.Fatalf("unexpected f: %s", r.F)
	}
}

func TestFinancialRecordValidate(t *testing.T) {
	amt := Money{Cents: 100}
	neg := Money{Cents: -1}
	good := FinancialRecord{ID: "1", Date: NewDate(2024, 1, 1), Amount: &amt, Kind: Revenue}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	zero := good
	zero.Amount = &Money{}
	if err := zero.Validate(); err != nil {
		t.Fatalf("zero amount must be valid, got %v", err)
	}

	cases := []struct {
		name string
		mut  func(*FinancialRecord)
		want error
	}{
		{"missing amount", func(r *FinancialRecord) { r.Amount = nil }, ErrMissingAmount},
		{"negative amount", func(r *FinancialRecord) { r.Amount = &neg }, ErrNegativeAmount},
		{"missing date", func(r *FinancialRecord) { r.Date = Date{} }, ErrMissingDate},
		{"invalid date", func(r *FinancialRecord) { r.Date = Date{raw: "xx"} }, ErrInvalidDate},
		{"invalid due date", func(r *FinancialRecord) { r.DueDate = Date{raw: "xx"} }, ErrInvalidDueDate},
		{"bad kind", func(r *FinancialRecord) { r.Kind = "refund" }, ErrInvalidKind},
		{"no id", func(r *FinancialRecord) { r.ID = " " }, ErrEmptyID},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := good
			tc.mut(&r)
			if err := r.Validate(); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestIsOverdue(t *testing.T) {
	asOf := time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC)
	cases := []struct {
		name string
		r    FinancialRecord
		want bool
	}{
		{"due yesterday", FinancialRecord{Status: StatusIssued, DueDate: NewDate(2024, 3, 9)}, true},
		{"due today", FinancialRecord{Status: StatusIssued, DueDate: NewDate(2024, 3, 10)}, false},
		{"paid", FinancialRecord{Status: StatusPaid, DueDate: NewDate(2024, 1, 1)}, false},
		{"no due date", FinancialRecord{Status: StatusIssued}, false},
		{"stored overdue but not yet due", FinancialRecord{Status: StatusOverdue, DueDate: NewDate(2024, 4, 1)}, false},
	}
	for _, tc := range cases {
		if got := tc.r.IsOverdue(asOf); got != tc.want {
			t.Errorf("%s: IsOverdue = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestRecordJSONDecoding(t *testing.T) {
	body := `[{"id":"a","date":"2024-01-15","amount":"30,50","kind":"revenue","party_id":"A"},
	          {"id":"b","date":"2024-01-15","kind":"cost"},
	          {"id":"c","date":"2024-01-15","amount":12.3,"kind":"cost"}]`
	var recs []FinancialRecord
	if err := json.Unmarshal([]byte(body), &recs); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if recs[0].Amount == nil || recs[0].Amount.Cents != 3050 {
		t.Fatalf("unexpected amount: %+v", recs[0].Amount)
	}
	if recs[1].Amount != nil {
		t.Fatalf("expected missing amount to stay nil")
	}
	if recs[2].Amount.Cents != 1230 {
		t.Fatalf("unexpected numeric amount: %d", recs[2].Amount.Cents)
	}
}
