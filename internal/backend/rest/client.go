// Package rest reads financial records from the external accounting API.
//
// Every call is a single attempt. Transport failures, non-2xx answers and
// undecodable bodies are returned as *backend.FetchError; retry policy, if
// any, belongs to the caller.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"bilancio/internal/backend"
	"bilancio/internal/core"
	"bilancio/internal/log"

	"golang.org/x/sync/errgroup"
)

const (
	PathInvoices  = "/invoices"
	PathSuppliers = "/suppliers"
	PathCustomers = "/customers"
	PathTaxes     = "/taxes"
	PathTransport = "/transport-expenses"
)

// collection is one record endpoint and the defaults applied to records
// that omit kind or source.
type collection struct {
	path   string
	kind   core.Kind
	source core.Source
}

var recordCollections = []collection{
	{path: PathInvoices},
	{path: PathTaxes, kind: core.Cost, source: core.SourceOther},
	{path: PathTransport, kind: core.Cost, source: core.SourceTransport},
}

type Client struct {
	baseURL *url.URL
	http    *http.Client
	logger  *log.Logger
}

var _ backend.Source = (*Client)(nil)

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func WithLogger(l *log.Logger) Option {
	return func(c *Client) { c.logger = l.WithComponent(log.ComponentBackend) }
}

func New(baseURL string, timeout time.Duration, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid api base url %q", baseURL)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := &Client{
		baseURL: u,
		http:    &http.Client{Timeout: timeout},
		logger:  log.Discard(),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// ListRecords fetches every record collection concurrently and fails as a
// whole when any of them fails.
func (c *Client) ListRecords(ctx context.Context) ([]core.FinancialRecord, error) {
	results := make([][]core.FinancialRecord, len(recordCollections))
	g, gctx := errgroup.WithContext(ctx)
	for i, col := range recordCollections {
		g.Go(func() error {
			var recs []core.FinancialRecord
			if err := c.getJSON(gctx, col.path, &recs); err != nil {
				return err
			}
			for j := range recs {
				if recs[j].Kind == "" {
					recs[j].Kind = col.kind
				}
				if recs[j].Source == "" {
					recs[j].Source = col.source
				}
			}
			results[i] = recs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []core.FinancialRecord
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}

func (c *Client) ListParties(ctx context.Context, role core.PartyRole) ([]core.Party, error) {
	switch role {
	case core.RoleSupplier:
		return c.listParties(ctx, PathSuppliers, role)
	case core.RoleCustomer:
		return c.listParties(ctx, PathCustomers, role)
	case "":
		var sups, custs []core.Party
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() (err error) {
			sups, err = c.listParties(gctx, PathSuppliers, core.RoleSupplier)
			return err
		})
		g.Go(func() (err error) {
			custs, err = c.listParties(gctx, PathCustomers, core.RoleCustomer)
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return append(sups, custs...), nil
	default:
		return nil, fmt.Errorf("unknown party role %q", role)
	}
}

func (c *Client) listParties(ctx context.Context, path string, role core.PartyRole) ([]core.Party, error) {
	var parties []core.Party
	if err := c.getJSON(ctx, path, &parties); err != nil {
		return nil, err
	}
	for i := range parties {
		if parties[i].Role == "" {
			parties[i].Role = role
		}
	}
	return parties, nil
}

type createResponse struct {
	ID string `json:"id"`
}

func (c *Client) CreateRecord(ctx context.Context, r core.FinancialRecord) (string, error) {
	// The API assigns ids, so validate everything else
	probe := r
	if probe.ID == "" {
		probe.ID = "pending"
	}
	if err := probe.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", backend.ErrInvalidRecord, err)
	}
	var resp createResponse
	if err := c.send(ctx, http.MethodPost, PathInvoices, r, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", &backend.FetchError{Resource: PathInvoices, Err: errors.New("response without id")}
	}
	return resp.ID, nil
}

func (c *Client) MarkPaid(ctx context.Context, id string) (core.FinancialRecord, error) {
	path := PathInvoices + "/" + url.PathEscape(id) + "/paid"
	var rec core.FinancialRecord
	if err := c.send(ctx, http.MethodPost, path, nil, &rec); err != nil {
		var fe *backend.FetchError
		if errors.As(err, &fe) {
			switch fe.Status {
			case http.StatusNotFound:
				return core.FinancialRecord{}, backend.ErrNotFound
			case http.StatusConflict:
				return core.FinancialRecord{}, backend.ErrAlreadyPaid
			}
		}
		return core.FinancialRecord{}, err
	}
	return rec, nil
}

func (c *Client) getJSON(ctx context.Context, path string, dst any) error {
	return c.send(ctx, http.MethodGet, path, nil, dst)
}

func (c *Client) send(ctx context.Context, method, path string, body, dst any) error {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s: %w", path, err)
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, rdr)
	if err != nil {
		return &backend.FetchError{Resource: path, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.WarnContext(ctx, "Backend request failed",
			log.FieldOperation, log.OpFetch, log.FieldPath, path, log.FieldError, err)
		return &backend.FetchError{Resource: path, Err: err}
	}
	defer resp.Body.Close()

	c.logger.DebugContext(ctx, "Backend request completed",
		log.FieldMethod, method, log.FieldPath, path,
		log.FieldStatusCode, resp.StatusCode, log.FieldDuration, time.Since(start).Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &backend.FetchError{
			Resource: path,
			Status:   resp.StatusCode,
			Err:      fmt.Errorf("unexpected response: %s", strings.TrimSpace(string(snippet))),
		}
	}
	if dst == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return &backend.FetchError{Resource: path, Status: resp.StatusCode, Err: fmt.Errorf("decode: %w", err)}
	}
	return nil
}
