package cache

import (
	"context"
	"time"

	"bilancio/internal/backend"
	"bilancio/internal/core"
)

const recordsKey = "records"

// Source wraps a backend.Source with snapshot caches for the read side.
// Writes pass through and flush both caches on success.
type Source struct {
	next    backend.Source
	records *LRUCache[[]core.FinancialRecord]
	parties *LRUCache[[]core.Party]
}

var _ backend.Source = (*Source)(nil)

func NewSource(next backend.Source, size int, ttl time.Duration) *Source {
	return &Source{
		next:    next,
		records: NewLRUCache[[]core.FinancialRecord](1, ttl),
		parties: NewLRUCache[[]core.Party](size, ttl),
	}
}

// Register hands both snapshot caches to m.
func (s *Source) Register(m *Manager) {
	m.Register(s.records)
	m.Register(s.parties)
}

func (s *Source) ListRecords(ctx context.Context) ([]core.FinancialRecord, error) {
	if recs, ok := s.records.Get(recordsKey); ok {
		return cloneRecords(recs), nil
	}
	gen := s.records.Generation()
	recs, err := s.next.ListRecords(ctx)
	if err != nil {
		return nil, err
	}
	s.records.SetIfGeneration(recordsKey, cloneRecords(recs), gen)
	return recs, nil
}

func (s *Source) ListParties(ctx context.Context, role core.PartyRole) ([]core.Party, error) {
	key := "role:" + string(role)
	if parties, ok := s.parties.Get(key); ok {
		return append([]core.Party(nil), parties...), nil
	}
	gen := s.parties.Generation()
	parties, err := s.next.ListParties(ctx, role)
	if err != nil {
		return nil, err
	}
	s.parties.SetIfGeneration(key, append([]core.Party(nil), parties...), gen)
	return parties, nil
}

func (s *Source) CreateRecord(ctx context.Context, r core.FinancialRecord) (string, error) {
	id, err := s.next.CreateRecord(ctx, r)
	if err == nil {
		s.Clear()
	}
	return id, err
}

func (s *Source) MarkPaid(ctx context.Context, id string) (core.FinancialRecord, error) {
	rec, err := s.next.MarkPaid(ctx, id)
	if err == nil {
		s.Clear()
	}
	return rec, err
}

func (s *Source) Clear() {
	s.records.Clear()
	s.parties.Clear()
}

// cloneRecords copies the slice and every Amount so cached snapshots stay
// read-only for callers.
func cloneRecords(in []core.FinancialRecord) []core.FinancialRecord {
	out := make([]core.FinancialRecord, len(in))
	for i, r := range in {
		if r.Amount != nil {
			amt := *r.Amount
			r.Amount = &amt
		}
		out[i] = r
	}
	return out
}
