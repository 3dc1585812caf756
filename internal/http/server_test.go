package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"bilancio/internal/aggregate"
	"bilancio/internal/backend"
	"bilancio/internal/backend/memory"
	"bilancio/internal/core"
	"bilancio/internal/dashboard"
	"bilancio/internal/events"
	"bilancio/internal/metrics"
)

var testNow = time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)

func euros(n int64) *core.Money {
	m := core.FromEuros(n)
	return &m
}

func fixtureStore() *memory.Store {
	return memory.New([]core.FinancialRecord{
		{ID: "r1", Date: core.NewDate(2024, 1, 15), DueDate: core.NewDate(2024, 2, 1), Amount: euros(100), Kind: core.Revenue, PartyID: "c1", Category: "Vendite", Description: "Consulenza gennaio"},
		{ID: "r2", Date: core.NewDate(2024, 1, 20), Amount: euros(40), Kind: core.Cost, PartyID: "s1", Category: "Materiali"},
		{ID: "r3", Date: core.NewDate(2024, 2, 10), Amount: euros(50), Kind: core.Revenue, PartyID: "c1", Status: core.StatusPaid},
		{ID: "r4", Date: core.NewDate(2024, 2, 12), Kind: core.Cost, PartyID: "s1"},
	}, []core.Party{
		{ID: "s1", Name: "Fornitore", Role: core.RoleSupplier},
		{ID: "c1", Name: "Cliente", Role: core.RoleCustomer},
	})
}

func newTestServer(t *testing.T, src dashboard.Reader, w backend.RecordWriter) (*Server, *events.Bus) {
	t.Helper()
	bus := events.New()
	deps := Deps{
		Source:  src,
		Metrics: metrics.New(),
		VATRate: decimal.RequireFromString("0.10"),
		Now:     func() time.Time { return testNow },
	}
	if w != nil {
		deps.Service = dashboard.NewService(w, bus, nil)
	}
	srv := NewServer(":0", deps)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv, bus
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("decode body %q: %v", rr.Body.String(), err)
	}
}

type failingSource struct{}

func (failingSource) ListRecords(context.Context) ([]core.FinancialRecord, error) {
	return nil, &backend.FetchError{Resource: "records", Status: http.StatusServiceUnavailable, Err: errors.New("down")}
}

func (failingSource) ListParties(context.Context, core.PartyRole) ([]core.Party, error) {
	return nil, &backend.FetchError{Resource: "parties", Status: http.StatusServiceUnavailable, Err: errors.New("down")}
}

// plainErrorSource fails the way a local store does, without a FetchError.
type plainErrorSource struct{}

func (plainErrorSource) ListRecords(context.Context) ([]core.FinancialRecord, error) {
	return nil, errors.New("database is locked")
}

func (plainErrorSource) ListParties(context.Context, core.PartyRole) ([]core.Party, error) {
	return nil, errors.New("database is locked")
}

func TestHealthReadyAndMetrics(t *testing.T) {
	srv, _ := newTestServer(t, fixtureStore(), nil)
	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		rr := do(t, srv, http.MethodGet, path, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
	}
	if id := do(t, srv, http.MethodGet, "/healthz", "").Header().Get("X-Request-ID"); id == "" {
		t.Fatalf("missing request id header")
	}
}

func TestReadyReportsBackendFailure(t *testing.T) {
	srv := NewServer(":0", Deps{
		Source: fixtureStore(),
		Ready:  func(context.Context) error { return errors.New("db locked") },
	})
	defer srv.Shutdown(context.Background())

	if rr := do(t, srv, http.MethodGet, "/readyz", ""); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d, want 503", rr.Code)
	}
}

func TestPeriodsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, fixtureStore(), nil)

	rr := do(t, srv, http.MethodGet, "/api/periods?bucket=month", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	var body struct {
		Periods []struct {
			Key     string  `json:"key"`
			Revenue float64 `json:"revenue"`
			Cost    float64 `json:"cost"`
		} `json:"periods"`
		Total struct {
			Revenue float64 `json:"revenue"`
			Profit  float64 `json:"profit"`
		} `json:"total"`
		Diagnostics aggregate.Diagnostics `json:"diagnostics"`
	}
	decode(t, rr, &body)

	if len(body.Periods) != 2 || body.Periods[0].Key != "2024-02" {
		t.Fatalf("periods = %+v, want 2024-02 first", body.Periods)
	}
	if body.Total.Revenue != 150 || body.Total.Profit != 110 {
		t.Fatalf("total = %+v", body.Total)
	}
	if body.Diagnostics.Count() != 1 || body.Diagnostics.Skipped[0].RecordID != "r4" {
		t.Fatalf("diagnostics = %+v", body.Diagnostics)
	}
}

func TestBadQueryParams(t *testing.T) {
	srv, _ := newTestServer(t, fixtureStore(), nil)
	for _, path := range []string{
		"/api/periods?bucket=week",
		"/api/taxes?bucket=day",
		"/api/parties?role=agent",
		"/api/records?kind=refund",
		"/api/records?from=yesterday",
		"/api/records?page=0",
		"/api/records?overdue=maybe",
	} {
		if rr := do(t, srv, http.MethodGet, path, ""); rr.Code != http.StatusBadRequest {
			t.Fatalf("%s status=%d, want 400", path, rr.Code)
		}
	}
}

func TestPartiesEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, fixtureStore(), nil)

	rr := do(t, srv, http.MethodGet, "/api/parties?role=customer", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	var body struct {
		Parties []struct {
			PartyID     string  `json:"party_id"`
			Total       float64 `json:"total"`
			Outstanding float64 `json:"outstanding"`
		} `json:"parties"`
		OverdueCount int `json:"overdue_count"`
	}
	decode(t, rr, &body)

	if len(body.Parties) != 1 || body.Parties[0].PartyID != "c1" {
		t.Fatalf("parties = %+v", body.Parties)
	}
	if body.Parties[0].Total != 150 || body.Parties[0].Outstanding != 100 {
		t.Fatalf("stats = %+v", body.Parties[0])
	}
	if body.OverdueCount != 1 {
		t.Fatalf("overdue_count = %d, want 1", body.OverdueCount)
	}
}

func TestTaxesEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, fixtureStore(), nil)

	rr := do(t, srv, http.MethodGet, "/api/taxes?bucket=year", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	var body struct {
		TotalVAT float64 `json:"total_vat"`
		Periods  []struct {
			Key string `json:"key"`
		} `json:"periods"`
	}
	decode(t, rr, &body)
	if body.TotalVAT != 15 || len(body.Periods) != 1 || body.Periods[0].Key != "2024" {
		t.Fatalf("taxes = %+v", body)
	}
}

func TestOverviewEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, fixtureStore(), nil)

	rr := do(t, srv, http.MethodGet, "/api/overview?year=2024&month=1", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	var body struct {
		Year  int     `json:"year"`
		Month int     `json:"month"`
		Total float64 `json:"total"`
	}
	decode(t, rr, &body)
	if body.Year != 2024 || body.Month != 1 {
		t.Fatalf("overview period = %d-%d", body.Year, body.Month)
	}
}

func TestListRecordsFiltersAndPaginates(t *testing.T) {
	srv, _ := newTestServer(t, fixtureStore(), nil)

	tests := []struct {
		name    string
		query   string
		wantIDs []string
		total   int
	}{
		{"all newest first", "", []string{"r4", "r3", "r2", "r1"}, 4},
		{"by kind", "?kind=revenue", []string{"r3", "r1"}, 2},
		{"search", "?q=consulenza", []string{"r1"}, 1},
		{"overdue flag", "?overdue=true", []string{"r1"}, 1},
		{"overdue status", "?status=overdue", []string{"r1"}, 1},
		{"paid", "?status=paid", []string{"r3"}, 1},
		{"date range", "?from=2024-01-16&to=2024-02-10", []string{"r3", "r2"}, 2},
		{"second page", "?page=2&size=3", []string{"r1"}, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, srv, http.MethodGet, "/api/records"+tt.query, "")
			if rr.Code != http.StatusOK {
				t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
			}
			var page struct {
				Items []struct {
					ID      string `json:"id"`
					Overdue bool   `json:"overdue"`
				} `json:"items"`
				Total int `json:"total"`
			}
			decode(t, rr, &page)
			if page.Total != tt.total {
				t.Fatalf("total = %d, want %d", page.Total, tt.total)
			}
			var got []string
			for _, it := range page.Items {
				got = append(got, it.ID)
				if it.ID == "r1" && !it.Overdue {
					t.Fatalf("r1 should be overdue")
				}
			}
			if strings.Join(got, ",") != strings.Join(tt.wantIDs, ",") {
				t.Fatalf("ids = %v, want %v", got, tt.wantIDs)
			}
		})
	}
}

func TestBackendFailureIsBadGateway(t *testing.T) {
	srv, _ := newTestServer(t, failingSource{}, nil)
	for _, path := range []string{"/api/periods", "/api/parties", "/api/taxes", "/api/records", "/api/overview"} {
		rr := do(t, srv, http.MethodGet, path, "")
		if rr.Code != http.StatusBadGateway {
			t.Fatalf("%s status=%d, want 502", path, rr.Code)
		}
		var body ErrorBody
		decode(t, rr, &body)
		if body.Error == "" {
			t.Fatalf("%s: empty error message", path)
		}
	}
}

func TestLocalReadFailureIsBadGateway(t *testing.T) {
	srv, _ := newTestServer(t, plainErrorSource{}, nil)
	for _, path := range []string{"/api/periods", "/api/overview", "/api/records", "/api/parties", "/api/taxes"} {
		if rr := do(t, srv, http.MethodGet, path, ""); rr.Code != http.StatusBadGateway {
			t.Fatalf("%s status=%d, want 502", path, rr.Code)
		}
	}
}

func TestCreateRecordPublishesEvents(t *testing.T) {
	store := fixtureStore()
	srv, bus := newTestServer(t, store, store)

	var got []events.Name
	for _, name := range []events.Name{events.InvoiceCreated, events.StatsUpdated} {
		bus.Subscribe(name, func(_ context.Context, evt events.Event) error {
			got = append(got, evt.Name)
			return nil
		})
	}

	rr := do(t, srv, http.MethodPost, "/api/records",
		`{"date":"2024-03-01","amount":"120,50","kind":"revenue","description":"Fattura marzo","party_id":"c1"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	var rec core.FinancialRecord
	decode(t, rr, &rec)
	if rec.ID == "" || rr.Header().Get("Location") != "/api/records/"+rec.ID {
		t.Fatalf("id=%q location=%q", rec.ID, rr.Header().Get("Location"))
	}
	if rec.AmountOrZero().Cents != 12050 || rec.Status != core.StatusIssued {
		t.Fatalf("record = %+v", rec)
	}
	if len(got) != 2 || got[0] != events.InvoiceCreated || got[1] != events.StatsUpdated {
		t.Fatalf("events = %v", got)
	}
}

func TestCreateRecordRejectsInvalidInput(t *testing.T) {
	store := fixtureStore()
	srv, _ := newTestServer(t, store, store)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed json", `{"date":`, http.StatusBadRequest},
		{"unknown field", `{"date":"2024-03-01","amount":"1","kind":"cost","colour":"red"}`, http.StatusBadRequest},
		{"negative amount", `{"date":"2024-03-01","amount":"-5","kind":"cost"}`, http.StatusUnprocessableEntity},
		{"missing kind", `{"date":"2024-03-01","amount":"5"}`, http.StatusUnprocessableEntity},
		{"duplicate id", `{"id":"r1","date":"2024-03-01","amount":"5","kind":"cost"}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rr := do(t, srv, http.MethodPost, "/api/records", tt.body); rr.Code != tt.want {
				t.Fatalf("status=%d, want %d (body=%s)", rr.Code, tt.want, rr.Body.String())
			}
		})
	}
}

func TestMarkPaid(t *testing.T) {
	store := fixtureStore()
	srv, bus := newTestServer(t, store, store)

	var purchases int
	bus.Subscribe(events.PurchaseCompleted, func(context.Context, events.Event) error {
		purchases++
		return nil
	})

	if rr := do(t, srv, http.MethodPost, "/api/records/r2/paid", ""); rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	if purchases != 1 {
		t.Fatalf("purchase_completed published %d times", purchases)
	}
	if rr := do(t, srv, http.MethodPost, "/api/records/r2/paid", ""); rr.Code != http.StatusConflict {
		t.Fatalf("second mark status=%d, want 409", rr.Code)
	}
	if rr := do(t, srv, http.MethodPost, "/api/records/nope/paid", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("unknown id status=%d, want 404", rr.Code)
	}
}

func TestWritesWithoutServiceAreRejected(t *testing.T) {
	srv, _ := newTestServer(t, fixtureStore(), nil)
	for _, path := range []string{"/api/records", "/api/records/r1/paid", "/api/sync"} {
		if rr := do(t, srv, http.MethodPost, path, `{}`); rr.Code != http.StatusMethodNotAllowed {
			t.Fatalf("%s status=%d, want 405", path, rr.Code)
		}
	}
}

func TestSyncPublishesSyncRequested(t *testing.T) {
	store := fixtureStore()
	srv, bus := newTestServer(t, store, store)

	var origin string
	bus.Subscribe(events.SyncRequested, func(_ context.Context, evt events.Event) error {
		origin = evt.Payload.(events.SyncPayload).Origin
		return nil
	})
	if rr := do(t, srv, http.MethodPost, "/api/sync", ""); rr.Code != http.StatusAccepted {
		t.Fatalf("status=%d", rr.Code)
	}
	if origin != "api" {
		t.Fatalf("origin = %q", origin)
	}
}

func TestDashboardSnapshots(t *testing.T) {
	store := fixtureStore()
	snaps := dashboard.NewSnapshots()
	bus := events.New()
	panel := dashboard.NewProfitLossPanel(dashboard.Deps{Bus: bus, Source: store, Now: func() time.Time { return testNow }},
		aggregate.ByMonth, dashboard.SnapshotRenderer[dashboard.ProfitLossView](snaps))
	if err := panel.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	srv := NewServer(":0", Deps{Source: store, Snapshots: snaps})
	defer srv.Shutdown(context.Background())

	rr := do(t, srv, http.MethodGet, "/api/dashboard", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	var all struct {
		Panels map[string]json.RawMessage `json:"panels"`
	}
	decode(t, rr, &all)
	if _, ok := all.Panels[dashboard.PanelProfitLoss]; !ok {
		t.Fatalf("panels = %v", all.Panels)
	}

	rr = do(t, srv, http.MethodGet, "/api/dashboard/"+dashboard.PanelProfitLoss, "")
	var view struct {
		Panel string `json:"panel"`
		Model struct {
			Periods []json.RawMessage `json:"periods"`
		} `json:"model"`
	}
	decode(t, rr, &view)
	if view.Panel != dashboard.PanelProfitLoss || len(view.Model.Periods) != 2 {
		t.Fatalf("view = %+v", view)
	}

	if rr := do(t, srv, http.MethodGet, "/api/dashboard/missing", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("missing panel status=%d", rr.Code)
	}
}

func TestSecurityHeadersAndRateLimit(t *testing.T) {
	store := fixtureStore()
	srv, _ := newTestServer(t, store, store)

	rr := do(t, srv, http.MethodGet, "/api/records", "")
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" || rr.Header().Get("X-Frame-Options") != "DENY" {
		t.Fatalf("missing security headers: %v", rr.Header())
	}

	var last int
	for i := 0; i < 61; i++ {
		last = do(t, srv, http.MethodPost, "/api/sync", "").Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("61st POST status=%d, want 429", last)
	}
	// reads are never rate limited
	if rr := do(t, srv, http.MethodGet, "/api/records", ""); rr.Code != http.StatusOK {
		t.Fatalf("GET after limit status=%d", rr.Code)
	}
}
