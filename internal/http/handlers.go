package http

import (
	"context"
	"net/http"
	"sort"
	"strings"

	"bilancio/internal/aggregate"
	"bilancio/internal/backend"
	"bilancio/internal/core"
	"bilancio/internal/dashboard"
)

// periodsResponse is the body of GET /api/periods.
type periodsResponse struct {
	Periods     []core.PeriodSummary  `json:"periods"`
	Total       core.PeriodSummary    `json:"total"`
	Diagnostics aggregate.Diagnostics `json:"diagnostics"`
}

type partiesResponse struct {
	dashboard.PartyView
	Diagnostics aggregate.Diagnostics `json:"diagnostics"`
}

type taxesResponse struct {
	dashboard.TaxView
	Diagnostics aggregate.Diagnostics `json:"diagnostics"`
}

type overviewResponse struct {
	core.MonthOverview
	Diagnostics aggregate.Diagnostics `json:"diagnostics"`
}

// recordView adds the derived overdue flag to a stored record.
type recordView struct {
	core.FinancialRecord
	Overdue bool `json:"overdue"`
}

func (s *Server) handleDashboard(w http.ResponseWriter, _ *http.Request) {
	panels := make(map[string]any)
	for _, name := range s.deps.Snapshots.Panels() {
		if v, ok := s.deps.Snapshots.Get(name); ok {
			panels[name] = v
		}
	}
	NewJSONResponse().Body(map[string]any{"panels": panels}).Write(w)
}

func (s *Server) handleDashboardPanel(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("panel")
	v, ok := s.deps.Snapshots.Get(name)
	if !ok {
		NotFoundError("unknown panel " + name).Write(w)
		return
	}
	NewJSONResponse().Body(v).Write(w)
}

func (s *Server) handleParties(w http.ResponseWriter, r *http.Request) {
	role, err := ParseRole(r.URL.Query().Get("role"))
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	in, err := dashboard.Fetch(r.Context(), s.deps.Source, dashboard.FetchSpec{Parties: true, Role: role})
	if err != nil {
		BackendError(r, err).Write(w)
		return
	}
	in.AsOf = s.deps.Now()
	view, diag := dashboard.PartyModel(in, role)
	NewJSONResponse().Body(partiesResponse{PartyView: view, Diagnostics: diag}).Write(w)
}

// listRecords reads the full record set. Any failure is reported as a
// *backend.FetchError so it maps to 502 like the panel fetches.
func (s *Server) listRecords(ctx context.Context) ([]core.FinancialRecord, error) {
	records, err := s.deps.Source.ListRecords(ctx)
	if err != nil {
		return nil, backend.AsFetchError("records", err)
	}
	return records, nil
}

func (s *Server) handlePeriods(w http.ResponseWriter, r *http.Request) {
	bucket, err := ParseBucket(r.URL.Query().Get("bucket"))
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	records, err := s.listRecords(r.Context())
	if err != nil {
		BackendError(r, err).Write(w)
		return
	}
	periods, diag := aggregate.SummarizeByPeriod(records, bucket)
	NewJSONResponse().Body(periodsResponse{
		Periods:     periods,
		Total:       aggregate.Totals(periods),
		Diagnostics: diag,
	}).Write(w)
}

func (s *Server) handleTaxes(w http.ResponseWriter, r *http.Request) {
	bucket, err := ParseBucket(r.URL.Query().Get("bucket"))
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	in, err := dashboard.Fetch(r.Context(), s.deps.Source, dashboard.FetchSpec{})
	if err != nil {
		BackendError(r, err).Write(w)
		return
	}
	view, diag := dashboard.TaxModel(in, s.deps.VATRate, bucket)
	NewJSONResponse().Body(taxesResponse{TaxView: view, Diagnostics: diag}).Write(w)
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	params := ParseMonthParams(r.URL.Query(), s.deps.Now())
	records, err := s.listRecords(r.Context())
	if err != nil {
		BackendError(r, err).Write(w)
		return
	}
	ov, diag := aggregate.MonthOverviewFor(records, params.Year, params.Month)
	NewJSONResponse().Body(overviewResponse{MonthOverview: ov, Diagnostics: diag}).Write(w)
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	now := s.deps.Now()
	q, err := ParseRecordQuery(r.URL.Query(), now)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	records, err := s.listRecords(r.Context())
	if err != nil {
		BackendError(r, err).Write(w)
		return
	}

	matched := aggregate.Filter(records, q.Predicates...)
	// newest first, ties by id
	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.Date.Equal(b.Date.Time) {
			return b.Date.Before(a.Date)
		}
		return a.ID < b.ID
	})

	views := make([]recordView, len(matched))
	for i, rec := range matched {
		views[i] = recordView{FinancialRecord: rec, Overdue: rec.IsOverdue(now)}
	}
	NewJSONResponse().Body(aggregate.Paginate(views, q.Page, q.Size)).Write(w)
}

func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	if s.deps.Service == nil {
		ErrorResponse(http.StatusMethodNotAllowed, "backend is read-only").Write(w)
		return
	}
	rec, err := DecodeRecord(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	created, err := s.deps.Service.CreateInvoice(r.Context(), rec)
	if err != nil {
		BackendError(r, err).Write(w)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/records/"+created.ID).
		Body(created).
		Write(w)
}

func (s *Server) handleMarkPaid(w http.ResponseWriter, r *http.Request) {
	if s.deps.Service == nil {
		ErrorResponse(http.StatusMethodNotAllowed, "backend is read-only").Write(w)
		return
	}
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		BadRequestError("missing record id").Write(w)
		return
	}
	rec, err := s.deps.Service.MarkPaid(r.Context(), id)
	if err != nil {
		BackendError(r, err).Write(w)
		return
	}
	NewJSONResponse().Body(rec).Write(w)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if s.deps.Service == nil {
		ErrorResponse(http.StatusMethodNotAllowed, "backend is read-only").Write(w)
		return
	}
	s.deps.Service.RequestSync(r.Context(), "api")
	s.logger.InfoContext(r.Context(), "Sync requested over HTTP")
	NewJSONResponse().Status(http.StatusAccepted).Body(map[string]string{"status": "sync requested"}).Write(w)
}
