// Package http serves the dashboard over a JSON API.
//
// This file implements parsing and validation of query strings and request
// bodies shared by the handlers.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"bilancio/internal/aggregate"
	"bilancio/internal/core"
)

const maxBodyBytes = 1 << 20

// MonthParams holds parsed year/month values from request parameters.
type MonthParams struct {
	Year  int
	Month int
}

// ParseMonthParams extracts year and month from query parameters, using the
// current date as defaults. An out of range month falls back to now.
func ParseMonthParams(query url.Values, now time.Time) MonthParams {
	params := MonthParams{
		Year:  now.Year(),
		Month: int(now.Month()),
	}

	if v := strings.TrimSpace(query.Get("year")); v != "" {
		if y, err := strconv.Atoi(v); err == nil {
			params.Year = y
		}
	}
	if v := strings.TrimSpace(query.Get("month")); v != "" {
		if m, err := strconv.Atoi(v); err == nil && m >= 1 && m <= 12 {
			params.Month = m
		}
	}

	return params
}

// ParseBucket maps the bucket query value to a bucket function. Empty means month.
func ParseBucket(v string) (aggregate.BucketFunc, error) {
	return aggregate.BucketByName(v)
}

// ParseRole validates the role query value. Empty means every role.
func ParseRole(v string) (core.PartyRole, error) {
	switch role := core.PartyRole(strings.ToLower(strings.TrimSpace(v))); role {
	case "", core.RoleSupplier, core.RoleCustomer:
		return role, nil
	default:
		return "", fmt.Errorf("unknown role %q: use supplier or customer", v)
	}
}

// RecordQuery is the parsed form of GET /api/records.
type RecordQuery struct {
	Predicates []aggregate.Predicate
	Page       int
	Size       int
}

// ParseRecordQuery builds the record filters from the query string.
// Supported keys: q, kind, source, status, party, from, to, overdue, page, size.
func ParseRecordQuery(query url.Values, now time.Time) (RecordQuery, error) {
	rq := RecordQuery{Page: 1, Size: 20}

	if q := sanitizeInput(query.Get("q")); q != "" {
		rq.Predicates = append(rq.Predicates, aggregate.Search(q))
	}
	if v := strings.TrimSpace(query.Get("kind")); v != "" {
		k := core.Kind(v)
		if !k.Valid() {
			return rq, fmt.Errorf("unknown kind %q", v)
		}
		rq.Predicates = append(rq.Predicates, aggregate.OfKind(k))
	}
	if v := strings.TrimSpace(query.Get("source")); v != "" {
		rq.Predicates = append(rq.Predicates, aggregate.FromSource(core.Source(v)))
	}
	if v := strings.TrimSpace(query.Get("status")); v != "" {
		// overdue is derived, never read from the stored status
		if core.PaymentStatus(v) == core.StatusOverdue {
			rq.Predicates = append(rq.Predicates, aggregate.Overdue(now))
		} else {
			rq.Predicates = append(rq.Predicates, aggregate.WithStatus(core.PaymentStatus(v)))
		}
	}
	if v := strings.TrimSpace(query.Get("party")); v != "" {
		rq.Predicates = append(rq.Predicates, aggregate.ForParty(v))
	}
	if v := strings.TrimSpace(query.Get("overdue")); v != "" {
		if b, err := strconv.ParseBool(v); err != nil {
			return rq, fmt.Errorf("invalid overdue flag %q", v)
		} else if b {
			rq.Predicates = append(rq.Predicates, aggregate.Overdue(now))
		}
	}

	from, to := query.Get("from"), query.Get("to")
	if from != "" || to != "" {
		var fd, td core.Date
		var err error
		if from != "" {
			if fd, err = core.ParseDate(from); err != nil {
				return rq, fmt.Errorf("invalid from date: %w", err)
			}
		}
		if to != "" {
			if td, err = core.ParseDate(to); err != nil {
				return rq, fmt.Errorf("invalid to date: %w", err)
			}
		}
		rq.Predicates = append(rq.Predicates, aggregate.Between(fd, td))
	}

	var err error
	if rq.Page, err = parsePositive(query.Get("page"), rq.Page); err != nil {
		return rq, fmt.Errorf("invalid page: %w", err)
	}
	if rq.Size, err = parsePositive(query.Get("size"), rq.Size); err != nil {
		return rq, fmt.Errorf("invalid size: %w", err)
	}
	if rq.Size > 200 {
		rq.Size = 200
	}
	return rq, nil
}

func parsePositive(v string, def int) (int, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, errors.New("must be at least 1")
	}
	return n, nil
}

// DecodeRecord reads a FinancialRecord from a JSON body and sanitizes its
// free-text fields.
func DecodeRecord(r *http.Request) (core.FinancialRecord, error) {
	var rec core.FinancialRecord
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&rec); err != nil {
		return rec, fmt.Errorf("invalid JSON body: %w", err)
	}
	rec.ID = sanitizeInput(rec.ID)
	rec.Reference = sanitizeInput(rec.Reference)
	rec.Category = sanitizeInput(rec.Category)
	rec.Description = sanitizeInput(rec.Description)
	rec.PartyID = sanitizeInput(rec.PartyID)
	return rec, nil
}

// sanitizeInput removes control characters except tab and newlines, and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
