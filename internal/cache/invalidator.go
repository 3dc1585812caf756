package cache

import (
	"context"

	"bilancio/internal/events"
	"bilancio/internal/log"
)

// Invalidator flushes the registered caches on every domain event. Attach it
// before any panel mounts so it runs ahead of their refreshes.
type Invalidator struct {
	manager *Manager
	logger  *log.Logger
	subs    []events.Subscription
}

func NewInvalidator(m *Manager, logger *log.Logger) *Invalidator {
	if logger == nil {
		logger = log.Discard()
	}
	return &Invalidator{manager: m, logger: logger.WithComponent(log.ComponentCache)}
}

// Attach subscribes to the whole event vocabulary on bus.
func (inv *Invalidator) Attach(bus *events.Bus) {
	for _, name := range events.Vocabulary() {
		inv.subs = append(inv.subs, bus.Subscribe(name, inv.handle))
	}
}

// Detach undoes Attach.
func (inv *Invalidator) Detach(bus *events.Bus) {
	for _, s := range inv.subs {
		bus.Unsubscribe(s)
	}
	inv.subs = nil
}

func (inv *Invalidator) handle(ctx context.Context, evt events.Event) error {
	inv.manager.ClearAll()
	inv.logger.DebugContext(ctx, "Caches invalidated", log.FieldEvent, evt.Name, log.FieldEventID, evt.ID)
	return nil
}
