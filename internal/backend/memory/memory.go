package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"bilancio/internal/backend"
	"bilancio/internal/core"
)

type Store struct {
	mu      sync.Mutex
	records []core.FinancialRecord
	parties []core.Party
	seq     int
}

var _ backend.Source = (*Store)(nil)

func New(records []core.FinancialRecord, parties []core.Party) *Store {
	s := &Store{
		records: append([]core.FinancialRecord(nil), records...),
		parties: dedupeParties(parties),
	}
	s.seq = len(s.records)
	return s
}

// NewFromFiles seeds the store from records.json, suppliers.json and
// customers.json under base. A missing file leaves that part empty; a file
// that is not a JSON array is an error. A record whose amount cannot be
// parsed is kept with no amount, so aggregation reports it as skipped.
func NewFromFiles(base string) (*Store, error) {
	records, err := readRecords(filepath.Join(base, "records.json"))
	if err != nil {
		return nil, err
	}

	var suppliers, customers []core.Party
	if err := readJSON(filepath.Join(base, "suppliers.json"), &suppliers); err != nil {
		return nil, err
	}
	if err := readJSON(filepath.Join(base, "customers.json"), &customers); err != nil {
		return nil, err
	}
	for i := range suppliers {
		suppliers[i].Role = core.RoleSupplier
	}
	for i := range customers {
		customers[i].Role = core.RoleCustomer
	}
	return New(records, append(suppliers, customers...)), nil
}

// ListRecords returns a copy, so callers can never mutate the store.
func (s *Store) ListRecords(_ context.Context) ([]core.FinancialRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.FinancialRecord, len(s.records))
	for i, r := range s.records {
		out[i] = cloneRecord(r)
	}
	return out, nil
}

func (s *Store) ListParties(_ context.Context, role core.PartyRole) ([]core.Party, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Party
	for _, p := range s.parties {
		if role == "" || p.Role == role {
			out = append(out, p)
		}
	}
	return out, nil
}

// CreateRecord stores the record and returns a synthetic id when none is set.
func (s *Store) CreateRecord(_ context.Context, r core.FinancialRecord) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == "" {
		s.seq++
		r.ID = fmt.Sprintf("mem:%d", s.seq)
	}
	if r.Status == "" {
		r.Status = core.StatusIssued
	}
	if err := r.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", backend.ErrInvalidRecord, err)
	}
	for _, existing := range s.records {
		if existing.ID == r.ID {
			return "", fmt.Errorf("%w: duplicate id %s", backend.ErrInvalidRecord, r.ID)
		}
	}
	s.records = append(s.records, cloneRecord(r))
	return r.ID, nil
}

func (s *Store) MarkPaid(_ context.Context, id string) (core.FinancialRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.records {
		if s.records[i].ID != id {
			continue
		}
		if s.records[i].IsPaid() {
			return core.FinancialRecord{}, backend.ErrAlreadyPaid
		}
		s.records[i].Status = core.StatusPaid
		return cloneRecord(s.records[i]), nil
	}
	return core.FinancialRecord{}, backend.ErrNotFound
}

// UpsertParty adds or replaces a counterparty.
func (s *Store) UpsertParty(p core.Party) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.parties {
		if s.parties[i].ID == p.ID {
			s.parties[i] = p
			return nil
		}
	}
	s.parties = append(s.parties, p)
	return nil
}

func cloneRecord(r core.FinancialRecord) core.FinancialRecord {
	if r.Amount != nil {
		amt := *r.Amount
		r.Amount = &amt
	}
	return r
}

func readJSON(path string, dst any) error {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// seedRecord shadows Amount so one unparsable value does not fail the file.
type seedRecord struct {
	core.FinancialRecord
	Amount json.RawMessage `json:"amount"`
}

func readRecords(path string) ([]core.FinancialRecord, error) {
	var raw []seedRecord
	if err := readJSON(path, &raw); err != nil {
		return nil, err
	}
	out := make([]core.FinancialRecord, 0, len(raw))
	for _, r := range raw {
		rec := r.FinancialRecord
		rec.Amount = nil
		if len(r.Amount) > 0 && string(r.Amount) != "null" {
			var m core.Money
			if err := json.Unmarshal(r.Amount, &m); err == nil {
				rec.Amount = &m
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

func dedupeParties(in []core.Party) []core.Party {
	seen := map[string]struct{}{}
	out := make([]core.Party, 0, len(in))
	for _, p := range in {
		if p.ID == "" {
			continue
		}
		if _, ok := seen[p.ID]; ok {
			continue
		}
		seen[p.ID] = struct{}{}
		out = append(out, p)
	}
	// Preserve input order
	return out
}
