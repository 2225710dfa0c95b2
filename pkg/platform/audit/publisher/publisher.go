// Package publisher provides the audit emission entry point used by domain
// services. Sync by default; an async buffered mode trades delivery
// guarantees for latency on hot paths.
package publisher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	id "grantor/pkg/domain"
	audit "grantor/pkg/platform/audit"
	"grantor/pkg/requestcontext"
)

// Publisher writes audit events to a store, optionally through a buffered
// channel drained by a background goroutine.
type Publisher struct {
	store  audit.Store
	logger *slog.Logger

	inbox chan audit.Event
	done  chan struct{}
	wg    sync.WaitGroup
	once  sync.Once
}

// Option configures a Publisher instance.
type Option func(*Publisher)

// WithAsyncBuffer switches the publisher to async mode with the given
// buffer size. When the buffer is full, events are dropped and counted in
// logs rather than blocking the request path.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		if size > 0 {
			p.inbox = make(chan audit.Event, size)
		}
	}
}

// WithLogger sets a logger for drop/failure reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPublisher constructs a publisher over the given store.
func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{
		store:  store,
		logger: slog.Default(),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if p.inbox != nil {
		p.wg.Add(1)
		go p.drain()
	}
	return p
}

// Emit records an audit event. Missing timestamps, categories, and request
// metadata are filled in from the action and the request context. In async
// mode a full buffer drops the event.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Category == "" {
		event.Category = audit.AuditEvent(event.Action).Category()
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	if event.Device == "" {
		event.Device = requestcontext.Device(ctx)
	}

	if p.inbox == nil {
		return p.store.Append(ctx, event)
	}

	select {
	case p.inbox <- event:
		return nil
	default:
		p.logger.Warn("audit buffer full, dropping event", "action", event.Action)
		return nil
	}
}

// List returns the recorded events for one subject.
func (p *Publisher) List(ctx context.Context, subjectID id.SubjectID) ([]audit.Event, error) {
	return p.store.ListBySubject(ctx, subjectID)
}

// Close drains any buffered events and stops the background goroutine.
// Idempotent.
func (p *Publisher) Close() {
	p.once.Do(func() {
		close(p.done)
		p.wg.Wait()
	})
}

func (p *Publisher) drain() {
	defer p.wg.Done()
	for {
		select {
		case event := <-p.inbox:
			p.append(event)
		case <-p.done:
			for {
				select {
				case event := <-p.inbox:
					p.append(event)
				default:
					return
				}
			}
		}
	}
}

func (p *Publisher) append(event audit.Event) {
	if err := p.store.Append(context.Background(), event); err != nil {
		p.logger.Error("audit append failed", "action", event.Action, "error", err)
	}
}
