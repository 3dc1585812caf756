// Package events is the in-process publish/subscribe channel panels use to
// tell each other that backend data changed.
//
// Delivery is synchronous: Publish returns after every handler registered
// at publish time has run. A handler that publishes again using the context
// it was given does not recurse; the new event is queued behind the current
// one and delivered by the same Publish call, in FIFO order.
package events

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"bilancio/internal/log"
)

// Event is one published notification.
type Event struct {
	ID         string    `json:"id"`
	Name       Name      `json:"name"`
	Payload    any       `json:"payload,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Handler reacts to an event. Returned errors and panics are isolated.
type Handler func(ctx context.Context, evt Event) error

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	ID   uint64
	Name Name
}

// HandlerError reports one failed delivery. It never reaches the publisher.
type HandlerError struct {
	Event        Event
	Subscription Subscription
	Err          error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler %d for %s failed: %v", e.Subscription.ID, e.Event.Name, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

// Observer is notified of bus activity, for metrics.
type Observer interface {
	EventPublished(name Name)
	HandlerFailed(name Name)
}

type Option func(*Bus)

// WithLogger sets the logger used for failures and unknown event names.
func WithLogger(l *log.Logger) Option {
	return func(b *Bus) { b.logger = l.WithComponent(log.ComponentBus) }
}

// WithFailureHook is called for every HandlerError, after it is logged.
func WithFailureHook(fn func(*HandlerError)) Option {
	return func(b *Bus) { b.onFailure = fn }
}

// WithObserver attaches a metrics observer.
func WithObserver(o Observer) Option {
	return func(b *Bus) { b.observer = o }
}

// WithClock overrides the event timestamp source.
func WithClock(now func() time.Time) Option {
	return func(b *Bus) { b.now = now }
}

type subscriber struct {
	sub    Subscription
	h      Handler
	active atomic.Bool
}

// Bus holds the subscriber table. Construct one per application with New
// and pass it to every consumer. Safe for concurrent use.
type Bus struct {
	mu        sync.RWMutex
	subs      map[Name][]*subscriber
	nextID    atomic.Uint64
	logger    *log.Logger
	onFailure func(*HandlerError)
	observer  Observer
	now       func() time.Time
}

func New(opts ...Option) *Bus {
	b := &Bus{
		subs:   make(map[Name][]*subscriber),
		logger: log.Discard(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers h for name. Handlers for the same name run in
// registration order. Subscribing to a name nobody publishes is allowed.
func (b *Bus) Subscribe(name Name, h Handler) Subscription {
	if h == nil {
		panic("events: nil handler")
	}
	s := &subscriber{sub: Subscription{ID: b.nextID.Add(1), Name: name}, h: h}
	s.active.Store(true)

	b.mu.Lock()
	b.subs[name] = append(b.subs[name], s)
	b.mu.Unlock()
	return s.sub
}

// Unsubscribe removes the handler. It reports false if the subscription was
// unknown or already removed. A removed handler is not called again, even
// for events already queued.
func (b *Bus) Unsubscribe(sub Subscription) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.subs[sub.Name]
	for i, s := range list {
		if s.sub.ID != sub.ID {
			continue
		}
		s.active.Store(false)
		next := make([]*subscriber, 0, len(list)-1)
		next = append(next, list[:i]...)
		next = append(next, list[i+1:]...)
		if len(next) == 0 {
			delete(b.subs, sub.Name)
		} else {
			b.subs[sub.Name] = next
		}
		return true
	}
	return false
}

// SubscriberCount returns the number of handlers registered for name.
func (b *Bus) SubscriberCount(name Name) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[name])
}

type dispatchKey struct{}

// frame is the queue of one top-level Publish call.
type frame struct {
	bus   *Bus
	mu    sync.Mutex
	queue []pending
	done  bool
}

type pending struct {
	evt  Event
	subs []*subscriber
}

func (f *frame) push(p pending) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.done {
		return false
	}
	f.queue = append(f.queue, p)
	return true
}

func (f *frame) pop() (pending, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queue) == 0 {
		f.done = true
		return pending{}, false
	}
	p := f.queue[0]
	f.queue = f.queue[1:]
	return p, true
}

// Publish delivers an event to the handlers registered for name right now.
// With no subscribers it does nothing. Unknown names are delivered too.
func (b *Bus) Publish(ctx context.Context, name Name, payload any) Event {
	evt := Event{ID: uuid.NewString(), Name: name, Payload: payload, OccurredAt: b.now()}
	if !Known(name) {
		b.logger.DebugContext(ctx, "Publishing event outside the documented vocabulary", log.FieldEvent, string(name))
	}
	if b.observer != nil {
		b.observer.EventPublished(name)
	}

	p := pending{evt: evt, subs: b.snapshot(name)}
	if f, ok := ctx.Value(dispatchKey{}).(*frame); ok && f.bus == b && f.push(p) {
		return evt
	}

	f := &frame{bus: b, queue: []pending{p}}
	dctx := context.WithValue(ctx, dispatchKey{}, f)
	for {
		next, ok := f.pop()
		if !ok {
			return evt
		}
		b.deliver(dctx, next)
	}
}

func (b *Bus) snapshot(name Name) []*subscriber {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]*subscriber(nil), b.subs[name]...)
}

func (b *Bus) deliver(ctx context.Context, p pending) {
	for _, s := range p.subs {
		if !s.active.Load() {
			continue
		}
		if err := invoke(ctx, s.h, p.evt); err != nil {
			b.fail(ctx, &HandlerError{Event: p.evt, Subscription: s.sub, Err: err})
		}
	}
}

func invoke(ctx context.Context, h Handler, evt Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h(ctx, evt)
}

func (b *Bus) fail(ctx context.Context, herr *HandlerError) {
	fields := log.NewFields().
		WithEvent(string(herr.Event.Name), herr.Event.ID).
		WithOperation(log.OpDispatch).
		WithError(herr.Err)
	fields[log.FieldSubscription] = herr.Subscription.ID
	b.logger.ErrorContext(ctx, "Event handler failed", fields.ToSlice()...)
	if b.observer != nil {
		b.observer.HandlerFailed(herr.Event.Name)
	}
	if b.onFailure != nil {
		b.onFailure(herr)
	}
}
