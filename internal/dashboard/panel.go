// Package dashboard holds the panel controllers: each panel subscribes to
// the domain events that affect it, refetches from the backend when one
// arrives, recomputes its view model and hands it to a Renderer.
package dashboard

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"bilancio/internal/aggregate"
	"bilancio/internal/events"
	"bilancio/internal/log"
)

// View is what a panel renders after a refresh. On a failed fetch Model
// keeps its zero value and Err is a *backend.FetchError.
type View[V any] struct {
	Panel       string                `json:"panel"`
	Model       V                     `json:"model"`
	Diagnostics aggregate.Diagnostics `json:"diagnostics"`
	Error       string                `json:"error,omitempty"`
	RefreshedAt time.Time             `json:"refreshed_at"`
	Err         error                 `json:"-"`
}

type Renderer[V any] interface {
	Render(ctx context.Context, v View[V])
}

// RendererFunc adapts a function to Renderer.
type RendererFunc[V any] func(ctx context.Context, v View[V])

func (f RendererFunc[V]) Render(ctx context.Context, v View[V]) { f(ctx, v) }

// Observer records panel refresh outcomes; *metrics.Metrics satisfies it.
type Observer interface {
	ObserveFetch(panel string, d time.Duration, err error)
	ObserveSkips(panel string, diag aggregate.Diagnostics)
}

// Deps are the collaborators every panel shares.
type Deps struct {
	Bus      *events.Bus
	Source   Reader
	Logger   *log.Logger
	Observer Observer
	Now      func() time.Time
}

type computeFunc[V any] func(Input) (V, aggregate.Diagnostics)

type Panel[V any] struct {
	name     string
	deps     Deps
	fetch    FetchSpec
	triggers []events.Name
	compute  computeFunc[V]
	renderer Renderer[V]
	logger   *log.Logger

	mu   sync.Mutex
	subs []events.Subscription
	last View[V]

	// seq stamps each refresh before its fetch; renderMu orders publication
	// so a refresh that fetched earlier never overwrites a newer view.
	seq      atomic.Uint64
	renderMu sync.Mutex
	rendered uint64
}

func newPanel[V any](name string, deps Deps, spec FetchSpec, triggers []events.Name, compute computeFunc[V], r Renderer[V]) *Panel[V] {
	if deps.Logger == nil {
		deps.Logger = log.Discard()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Panel[V]{
		name:     name,
		deps:     deps,
		fetch:    spec,
		triggers: triggers,
		compute:  compute,
		renderer: r,
		logger:   deps.Logger.WithComponent(log.ComponentDashboard).With(log.FieldPanel, name),
	}
}

func (p *Panel[V]) Name() string { return p.name }

// Triggers returns the events the panel refreshes on.
func (p *Panel[V]) Triggers() []events.Name {
	return append([]events.Name(nil), p.triggers...)
}

// Mount subscribes to the trigger events and renders once. Mounting an
// already mounted panel only refreshes it.
func (p *Panel[V]) Mount(ctx context.Context) error {
	p.mu.Lock()
	if len(p.subs) == 0 {
		for _, name := range p.triggers {
			p.subs = append(p.subs, p.deps.Bus.Subscribe(name, p.onEvent))
		}
	}
	p.mu.Unlock()
	return p.Refresh(ctx)
}

// Unmount drops every subscription. Events already queued for the panel are
// not delivered afterwards.
func (p *Panel[V]) Unmount() {
	p.mu.Lock()
	subs := p.subs
	p.subs = nil
	p.mu.Unlock()
	for _, s := range subs {
		p.deps.Bus.Unsubscribe(s)
	}
}

func (p *Panel[V]) Mounted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs) > 0
}

func (p *Panel[V]) onEvent(ctx context.Context, evt events.Event) error {
	p.logger.DebugContext(ctx, "Panel refresh triggered", log.FieldEvent, evt.Name, log.FieldEventID, evt.ID)
	return p.Refresh(ctx)
}

// Refresh fetches once, recomputes and renders. A fetch failure is rendered
// and returned; nothing retries it. When refreshes overlap, a result whose
// fetch started before the last rendered one is discarded.
func (p *Panel[V]) Refresh(ctx context.Context) error {
	seq := p.seq.Add(1)
	start := time.Now()
	in, err := Fetch(ctx, p.deps.Source, p.fetch)
	if p.deps.Observer != nil {
		p.deps.Observer.ObserveFetch(p.name, time.Since(start), err)
	}

	v := View[V]{Panel: p.name, RefreshedAt: p.deps.Now()}
	if err != nil {
		v.Err = err
		v.Error = err.Error()
		p.logger.WarnContext(ctx, "Panel refresh failed", log.FieldOperation, log.OpRefresh, log.FieldError, err)
	} else {
		in.AsOf = v.RefreshedAt
		v.Model, v.Diagnostics = p.compute(in)
		if p.deps.Observer != nil {
			p.deps.Observer.ObserveSkips(p.name, v.Diagnostics)
		}
		if n := v.Diagnostics.Count(); n > 0 {
			p.logger.InfoContext(ctx, "Malformed records skipped", log.FieldSkipped, n)
		}
	}

	p.renderMu.Lock()
	defer p.renderMu.Unlock()
	if seq < p.rendered {
		p.logger.DebugContext(ctx, "Stale panel refresh discarded", log.FieldOperation, log.OpRefresh)
		return err
	}
	p.rendered = seq
	p.mu.Lock()
	p.last = v
	p.mu.Unlock()
	if p.renderer != nil {
		p.renderer.Render(ctx, v)
	}
	return err
}

// Last returns the most recent view.
func (p *Panel[V]) Last() View[V] {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}
