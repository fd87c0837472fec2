package publisher

import (
	"context"
	"sync"
	"time"

	id "carbonledger/pkg/domain"
	audit "carbonledger/pkg/platform/audit"
)

// Publisher captures structured audit events. It is append-only and uses the
// storage layer for persistence so tests can swap sinks easily.
//
// By default Emit writes synchronously. With WithAsyncBuffer the publisher
// queues events on a channel drained by a background goroutine; a full buffer
// drops the event rather than blocking the registry operation.
type Publisher struct {
	store audit.Store

	inbox  chan audit.Event
	done   chan struct{}
	closed sync.Once
}

type Option func(*Publisher)

// WithAsyncBuffer enables asynchronous emission with the given channel
// capacity.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		p.inbox = make(chan audit.Event, size)
	}
}

func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store}
	for _, opt := range opts {
		opt(p)
	}
	if p.inbox != nil {
		p.done = make(chan struct{})
		go p.drain()
	}
	return p
}

// Emit records an audit event, stamping the timestamp when unset.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Category == "" {
		event.Category = audit.AuditEvent(event.Action).Category()
	}
	if p.inbox == nil {
		return p.store.Append(ctx, event)
	}
	select {
	case p.inbox <- event:
		return nil
	default:
		// Buffer full: drop rather than stall the mutating operation.
		return nil
	}
}

// List returns the events recorded for an actor.
func (p *Publisher) List(ctx context.Context, actor id.Identity) ([]audit.Event, error) {
	return p.store.ListByActor(ctx, actor)
}

// Close stops the background goroutine, draining any queued events first.
// Safe to call on a synchronous publisher and safe to call twice.
func (p *Publisher) Close() {
	p.closed.Do(func() {
		if p.inbox == nil {
			return
		}
		close(p.inbox)
		<-p.done
	})
}

func (p *Publisher) drain() {
	defer close(p.done)
	for event := range p.inbox {
		// Persistence errors are dropped here; async audit is best-effort.
		_ = p.store.Append(context.Background(), event)
	}
}
