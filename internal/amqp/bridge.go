package amqp

import (
	"context"
	"errors"
	"sync"
	"time"

	"bilancio/internal/events"
	"bilancio/internal/log"
)

// Publisher is the outbound half of Client.
type Publisher interface {
	Publish(ctx context.Context, msg *EventMessage) error
}

const (
	bridgeQueueSize = 64
	drainTimeout    = 5 * time.Second
)

var ErrBridgeQueueFull = errors.New("bridge queue full")

// Bridge connects the local bus to other instances. Every local write ends
// with stats_updated, so that is the one event forwarded to the exchange; a
// remote event becomes a local sync_requested so mounted panels refetch.
// sync_requested itself never leaves the process, which keeps two bridged
// instances from echoing each other.
//
// Forwarding only enqueues; a goroutine started by Attach publishes, so a
// slow broker never holds up the request that caused the event.
type Bridge struct {
	pub       Publisher
	bus       *events.Bus
	origin    string
	logger    *log.Logger
	queueSize int

	mu     sync.Mutex
	subs   []events.Subscription
	queue  chan *EventMessage
	done   chan struct{}
	cancel context.CancelFunc
}

func NewBridge(pub Publisher, bus *events.Bus, origin string, logger *log.Logger) *Bridge {
	if logger == nil {
		logger = log.Discard()
	}
	return &Bridge{pub: pub, bus: bus, origin: origin, queueSize: bridgeQueueSize, logger: logger.WithComponent(log.ComponentAMQP)}
}

// Attach subscribes the forwarder and starts the publishing goroutine.
func (b *Bridge) Attach() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.queue != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	b.queue = make(chan *EventMessage, b.queueSize)
	b.done = make(chan struct{})
	b.cancel = cancel
	go b.run(ctx, b.queue, b.done)
	b.subs = append(b.subs, b.bus.Subscribe(events.StatsUpdated, b.forward))
}

// Detach unsubscribes and waits for queued messages to be published, giving
// up after drainTimeout.
func (b *Bridge) Detach() {
	b.mu.Lock()
	for _, s := range b.subs {
		b.bus.Unsubscribe(s)
	}
	b.subs = nil
	queue, done, cancel := b.queue, b.done, b.cancel
	b.queue = nil
	b.mu.Unlock()
	if queue == nil {
		return
	}

	close(queue)
	select {
	case <-done:
	case <-time.After(drainTimeout):
		b.logger.Warn("AMQP bridge drain timed out", "pending", len(queue))
		cancel()
		<-done
	}
	cancel()
}

func (b *Bridge) forward(ctx context.Context, evt events.Event) error {
	msg, err := NewEventMessage(evt, b.origin)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.queue == nil {
		return nil
	}
	select {
	case b.queue <- msg:
		return nil
	default:
		b.logger.WarnContext(ctx, "AMQP bridge queue full, event not forwarded",
			log.FieldEvent, msg.Name, log.FieldEventID, msg.ID)
		return ErrBridgeQueueFull
	}
}

func (b *Bridge) run(ctx context.Context, queue <-chan *EventMessage, done chan<- struct{}) {
	defer close(done)
	for msg := range queue {
		if err := b.pub.Publish(ctx, msg); err != nil {
			b.logger.WarnContext(ctx, "Failed to forward event",
				log.FieldEvent, msg.Name, log.FieldEventID, msg.ID, log.FieldError, err)
		}
	}
}

// HandleRemote is the Consume callback. Messages published by this instance
// are dropped.
func (b *Bridge) HandleRemote(ctx context.Context, msg *EventMessage) error {
	if msg.Origin == b.origin {
		return nil
	}
	b.logger.InfoContext(ctx, "Remote event received",
		log.FieldEvent, msg.Name, log.FieldEventID, msg.ID, "origin", msg.Origin)
	b.bus.Publish(ctx, events.SyncRequested, events.SyncPayload{Origin: msg.Origin})
	return nil
}
