package dashboard

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"bilancio/internal/aggregate"
	"bilancio/internal/backend"
	"bilancio/internal/backend/memory"
	"bilancio/internal/core"
	"bilancio/internal/events"
)

var asOf = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func money(euros int64) *core.Money {
	m := core.FromEuros(euros)
	return &m
}

func fixture() *memory.Store {
	return memory.New([]core.FinancialRecord{
		{ID: "1", Date: core.NewDate(2024, 1, 10), DueDate: core.NewDate(2024, 2, 10), Amount: money(300), Kind: core.Cost, PartyID: "S1", Category: "Materiali"},
		{ID: "2", Date: core.NewDate(2024, 1, 20), Amount: money(200), Kind: core.Cost, PartyID: "S1", Status: core.StatusPaid, Category: "Materiali"},
		{ID: "3", Date: core.NewDate(2024, 2, 5), Amount: money(1000), Kind: core.Revenue, PartyID: "C1", Category: "Vendite"},
		{ID: "4", Date: core.NewDate(2024, 2, 6), Amount: nil, Kind: core.Revenue, PartyID: "C1"},
	}, []core.Party{
		{ID: "S1", Name: "Fornitore", Role: core.RoleSupplier},
		{ID: "C1", Name: "Cliente", Role: core.RoleCustomer},
	})
}

type countingReader struct {
	Reader
	records atomic.Int32
	fail    error
}

func (c *countingReader) ListRecords(ctx context.Context) ([]core.FinancialRecord, error) {
	c.records.Add(1)
	if c.fail != nil {
		return nil, c.fail
	}
	return c.Reader.ListRecords(ctx)
}

func TestFetchFanOut(t *testing.T) {
	in, err := Fetch(context.Background(), fixture(), FetchSpec{Parties: true, Role: core.RoleSupplier})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(in.Records) != 4 || len(in.Parties) != 1 {
		t.Fatalf("unexpected input: %d records %d parties", len(in.Records), len(in.Parties))
	}

	r := &countingReader{Reader: fixture(), fail: errors.New("connection refused")}
	_, err = Fetch(context.Background(), r, FetchSpec{Parties: true})
	var fe *backend.FetchError
	if !errors.As(err, &fe) || fe.Resource != "records" {
		t.Fatalf("expected FetchError for records, got %v", err)
	}
}

func TestPartyModel(t *testing.T) {
	in, _ := Fetch(context.Background(), fixture(), FetchSpec{Parties: true})
	in.AsOf = asOf

	v, diag := PartyModel(in, core.RoleSupplier)
	if len(v.Parties) != 1 {
		t.Fatalf("expected one supplier, got %+v", v.Parties)
	}
	s := v.Parties[0]
	if s.Total.Cents != 50000 || s.Paid.Cents != 20000 || s.Outstanding.Cents != 30000 {
		t.Fatalf("unexpected supplier stats: %+v", s)
	}
	if v.OverdueCount != 1 || v.OverdueAmount.Cents != 30000 {
		t.Fatalf("unexpected overdue: %d %v", v.OverdueCount, v.OverdueAmount)
	}
	if diag.Count() != 0 {
		t.Fatalf("supplier view should not see the customer's malformed record: %+v", diag)
	}

	cv, cdiag := PartyModel(in, core.RoleCustomer)
	if len(cv.Parties) != 1 || cv.Total.Cents != 100000 {
		t.Fatalf("unexpected customer view: %+v", cv)
	}
	if cdiag.ByReason()[aggregate.MissingField] != 1 {
		t.Fatalf("expected one missing_field skip, got %+v", cdiag)
	}
}

func TestProfitLossAndTaxModels(t *testing.T) {
	in, _ := Fetch(context.Background(), fixture(), FetchSpec{})

	pl, diag := ProfitLossModel(in, aggregate.ByMonth, 1)
	if len(pl.Periods) != 2 || pl.Periods[0].Key != "2024-02" {
		t.Fatalf("unexpected periods: %+v", pl.Periods)
	}
	if pl.Total.Profit.Cents != 50000 || pl.Total.Margin != 50 {
		t.Fatalf("unexpected totals: %+v", pl.Total)
	}
	if len(pl.TopCosts) != 1 || pl.TopCosts[0].Name != "Materiali" {
		t.Fatalf("unexpected top costs: %+v", pl.TopCosts)
	}
	if diag.Count() != 1 {
		t.Fatalf("expected one skip, got %d", diag.Count())
	}

	amt := core.FromEuros(28750)
	tv, _ := TaxModel(Input{Records: []core.FinancialRecord{
		{ID: "r", Date: core.NewDate(2024, 3, 1), Amount: &amt, Kind: core.Revenue},
		{ID: "c", Date: core.NewDate(2024, 3, 2), Amount: money(999), Kind: core.Cost},
	}}, aggregate.DefaultVATRate, aggregate.ByQuarter)
	if len(tv.Periods) != 1 || tv.Periods[0].Key != "2024-Q1" || tv.TotalVAT.Cents != 287500 {
		t.Fatalf("unexpected tax view: %+v", tv)
	}
}

func TestPanelLifecycle(t *testing.T) {
	bus := events.New()
	var renders atomic.Int32
	var last View[PartyView]
	r := RendererFunc[PartyView](func(_ context.Context, v View[PartyView]) {
		renders.Add(1)
		last = v
	})
	p := NewSuppliersPanel(Deps{Bus: bus, Source: fixture(), Now: func() time.Time { return asOf }}, r)
	ctx := context.Background()

	if err := p.Mount(ctx); err != nil {
		t.Fatalf("mount: %v", err)
	}
	if renders.Load() != 1 || !p.Mounted() {
		t.Fatalf("expected initial render")
	}
	if bus.SubscriberCount(events.SupplierUpdated) != 1 {
		t.Fatalf("expected subscription on supplier_updated")
	}

	bus.Publish(ctx, events.SupplierUpdated, events.PartyPayload{PartyID: "S1"})
	bus.Publish(ctx, events.CustomerUpdated, events.PartyPayload{PartyID: "C1"})
	if renders.Load() != 2 {
		t.Fatalf("expected one refresh per trigger, got %d renders", renders.Load())
	}
	if last.Model.Total.Cents != 50000 || !last.RefreshedAt.Equal(asOf) {
		t.Fatalf("unexpected view: %+v", last)
	}

	p.Unmount()
	bus.Publish(ctx, events.StatsUpdated, events.StatsPayload{Domain: DomainInvoices})
	if renders.Load() != 2 || p.Mounted() {
		t.Fatalf("unmounted panel must not refresh")
	}
}

func TestPanelRendersFetchErrorWithoutRetry(t *testing.T) {
	bus := events.New()
	src := &countingReader{Reader: fixture(), fail: errors.New("timeout")}
	var got View[ProfitLossView]
	p := NewProfitLossPanel(Deps{Bus: bus, Source: src}, aggregate.ByMonth,
		RendererFunc[ProfitLossView](func(_ context.Context, v View[ProfitLossView]) { got = v }))

	err := p.Mount(context.Background())
	var fe *backend.FetchError
	if !errors.As(err, &fe) || !errors.As(got.Err, &fe) || got.Error == "" {
		t.Fatalf("expected rendered FetchError, got err=%v view=%+v", err, got)
	}
	if src.records.Load() != 1 {
		t.Fatalf("expected a single attempt, got %d", src.records.Load())
	}
	if p.Last().Err == nil {
		t.Fatalf("Last should keep the failed view")
	}
}

func TestServicePublishesAfterSuccessfulWrite(t *testing.T) {
	bus := events.New()
	var seen []events.Name
	for _, n := range events.Vocabulary() {
		bus.Subscribe(n, func(_ context.Context, e events.Event) error {
			seen = append(seen, e.Name)
			return nil
		})
	}
	svc := NewService(fixture(), bus, nil)
	ctx := context.Background()

	rec, err := svc.CreateInvoice(ctx, core.FinancialRecord{Date: core.NewDate(2024, 3, 1), Amount: money(10), Kind: core.Revenue, PartyID: "C1"})
	if err != nil || rec.ID == "" || rec.Status != core.StatusIssued {
		t.Fatalf("create: %+v err=%v", rec, err)
	}
	if _, err := svc.MarkPaid(ctx, rec.ID); err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	if _, err := svc.MarkPaid(ctx, "1"); err != nil {
		t.Fatalf("mark paid cost: %v", err)
	}

	want := []events.Name{
		events.InvoiceCreated, events.StatsUpdated,
		events.SaleCompleted, events.StatsUpdated,
		events.PurchaseCompleted, events.StatsUpdated,
	}
	if len(seen) != len(want) {
		t.Fatalf("expected %v, got %v", want, seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("event %d: expected %s, got %s", i, want[i], seen[i])
		}
	}

	seen = nil
	if _, err := svc.MarkPaid(ctx, "missing"); !errors.Is(err, backend.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := svc.CreateInvoice(ctx, core.FinancialRecord{Kind: core.Revenue}); !errors.Is(err, backend.ErrInvalidRecord) {
		t.Fatalf("expected ErrInvalidRecord, got %v", err)
	}
	if len(seen) != 0 {
		t.Fatalf("failed writes must not publish, got %v", seen)
	}
}

func TestOriginatingPanelRefreshesAfterMutation(t *testing.T) {
	bus := events.New()
	store := fixture()
	snaps := NewSnapshots()
	suppliers := NewSuppliersPanel(Deps{Bus: bus, Source: store, Now: func() time.Time { return asOf }}, SnapshotRenderer[PartyView](snaps))
	taxes := NewTaxPanel(Deps{Bus: bus, Source: store}, aggregate.DefaultVATRate, aggregate.ByMonth, SnapshotRenderer[TaxView](snaps))
	ctx := context.Background()
	for _, m := range []interface{ Mount(context.Context) error }{suppliers, taxes} {
		if err := m.Mount(ctx); err != nil {
			t.Fatalf("mount: %v", err)
		}
	}

	if _, err := NewService(store, bus, nil).MarkPaid(ctx, "1"); err != nil {
		t.Fatalf("mark paid: %v", err)
	}

	v := suppliers.Last()
	if v.Model.Outstanding.Cents != 0 || v.Model.Paid.Cents != 50000 || v.Model.OverdueCount != 0 {
		t.Fatalf("suppliers panel not refreshed: %+v", v.Model)
	}
	if got := snaps.Panels(); len(got) != 2 || got[0] != PanelSuppliers || got[1] != PanelTaxes {
		t.Fatalf("unexpected snapshot panels: %v", got)
	}
	if _, ok := snaps.Get(PanelTaxes); !ok {
		t.Fatalf("expected taxes snapshot")
	}
}

// gatedReader holds one armed ListRecords call after it has read its
// snapshot, so a later refresh can overtake it.
type gatedReader struct {
	Reader
	armed   atomic.Bool
	started chan struct{}
	release chan struct{}
}

func (g *gatedReader) ListRecords(ctx context.Context) ([]core.FinancialRecord, error) {
	recs, err := g.Reader.ListRecords(ctx)
	if g.armed.CompareAndSwap(true, false) {
		close(g.started)
		<-g.release
	}
	return recs, err
}

func TestSlowRefreshDoesNotOverwriteNewerView(t *testing.T) {
	bus := events.New()
	store := fixture()
	src := &gatedReader{Reader: store, started: make(chan struct{}), release: make(chan struct{})}
	snaps := NewSnapshots()
	var renders atomic.Int32
	p := NewCustomersPanel(Deps{Bus: bus, Source: src, Now: func() time.Time { return asOf }},
		RendererFunc[PartyView](func(ctx context.Context, v View[PartyView]) {
			renders.Add(1)
			SnapshotRenderer[PartyView](snaps).Render(ctx, v)
		}))
	ctx := context.Background()
	if err := p.Mount(ctx); err != nil {
		t.Fatalf("mount: %v", err)
	}
	if got := p.Last().Model.Total.Cents; got != 100000 {
		t.Fatalf("initial total: %d", got)
	}

	src.armed.Store(true)
	done := make(chan error, 1)
	go func() { done <- p.Refresh(ctx) }()
	<-src.started

	if _, err := NewService(store, bus, nil).CreateInvoice(ctx, core.FinancialRecord{Date: core.NewDate(2024, 3, 1), Amount: money(10), Kind: core.Revenue, PartyID: "C1"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	close(src.release)
	if err := <-done; err != nil {
		t.Fatalf("slow refresh: %v", err)
	}

	if got := p.Last().Model.Total.Cents; got != 101000 {
		t.Fatalf("stale refresh overwrote the view: total %d", got)
	}
	if renders.Load() != 2 {
		t.Fatalf("expected the stale result to be discarded, got %d renders", renders.Load())
	}
	if v, ok := snaps.Get(PanelCustomers); !ok || v.(View[PartyView]).Model.Total.Cents != 101000 {
		t.Fatalf("snapshot holds a stale view: %+v", v)
	}
}
