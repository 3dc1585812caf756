package dashboard

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"bilancio/internal/backend"
	"bilancio/internal/core"
)

// Reader is the read side of a backend.
type Reader interface {
	backend.RecordLister
	backend.PartyLister
}

// Input is one fetched snapshot handed to the aggregation functions.
type Input struct {
	Records []core.FinancialRecord
	Parties []core.Party
	AsOf    time.Time
}

// FetchSpec says what a panel needs from the backend.
type FetchSpec struct {
	Parties bool
	Role    core.PartyRole // "" means every role
}

// Fetch loads records and, when asked, parties concurrently. It waits for
// both and fails with a *backend.FetchError if either fails.
func Fetch(ctx context.Context, src Reader, spec FetchSpec) (Input, error) {
	var in Input
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		recs, err := src.ListRecords(gctx)
		if err != nil {
			return backend.AsFetchError("records", err)
		}
		in.Records = recs
		return nil
	})
	if spec.Parties {
		g.Go(func() error {
			parties, err := src.ListParties(gctx, spec.Role)
			if err != nil {
				return backend.AsFetchError("parties", err)
			}
			in.Parties = parties
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Input{}, err
	}
	return in, nil
}
