package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type Kind string

const (
	KindBillCreated      Kind = "bill_created"
	KindBillPaid         Kind = "bill_paid"
	KindPaymentCompleted Kind = "payment_completed"
	KindPaymentFailed    Kind = "payment_failed"
	KindDisputeOpened    Kind = "dispute_opened"
	KindDisputeResolved  Kind = "dispute_resolved"
	KindRecurringPaused  Kind = "recurring_paused"
	KindRecurringDueSoon Kind = "recurring_due_soon"
	KindAdminAlert       Kind = "admin_alert"
)

// Event is a notification to be delivered out-of-band. Delivery transport is
// out of scope here; a Sink decides what to do with events.
type Event struct {
	Kind      Kind              `json:"kind"`
	ClusterID string            `json:"cluster_id"`
	UserIDs   []string          `json:"user_ids,omitempty"`
	Title     string            `json:"title"`
	Body      string            `json:"body,omitempty"`
	Meta      map[string]string `json:"meta,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

type Sink interface {
	Send(ctx context.Context, e Event) error
}

// AsyncDispatcher forwards events to a sink without ever blocking the caller.
// Money paths publish through this; a slow or broken sink must not stall a
// payment. Overflowing events are dropped with a warning.
type AsyncDispatcher struct {
	sink   Sink
	log    *slog.Logger
	ch     chan Event
	done   chan struct{}
	clock  func() time.Time
	closed sync.Once
}

func NewAsyncDispatcher(sink Sink, log *slog.Logger, buffer int) *AsyncDispatcher {
	if buffer <= 0 {
		buffer = 256
	}
	d := &AsyncDispatcher{
		sink:  sink,
		log:   log,
		ch:    make(chan Event, buffer),
		done:  make(chan struct{}),
		clock: time.Now,
	}
	go d.run()
	return d
}

func (d *AsyncDispatcher) run() {
	for e := range d.ch {
		if err := d.sink.Send(context.Background(), e); err != nil {
			d.log.Warn("notification delivery failed",
				"kind", string(e.Kind),
				"cluster_id", e.ClusterID,
				"error", err,
			)
		}
	}
	close(d.done)
}

// Publish enqueues the event. It never blocks: when the buffer is full the
// event is dropped and logged.
func (d *AsyncDispatcher) Publish(e Event) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = d.clock().UTC()
	}
	select {
	case d.ch <- e:
	default:
		d.log.Warn("notification buffer full, dropping event",
			"kind", string(e.Kind),
			"cluster_id", e.ClusterID,
		)
	}
}

// Close stops intake and waits for queued events to drain.
func (d *AsyncDispatcher) Close() {
	d.closed.Do(func() {
		close(d.ch)
		<-d.done
	})
}

// Publisher is the producer-side surface services depend on.
type Publisher interface {
	Publish(e Event)
}

// NopPublisher discards events; useful as a default in tests.
type NopPublisher struct{}

func (NopPublisher) Publish(Event) {}

// LogSink writes events to the process log. It stands in for a real delivery
// transport (push, email) which is wired per deployment.
type LogSink struct {
	Log *slog.Logger
}

func (s LogSink) Send(ctx context.Context, e Event) error {
	_ = ctx
	s.Log.Info("notification",
		"kind", string(e.Kind),
		"cluster_id", e.ClusterID,
		"recipients", len(e.UserIDs),
		"title", e.Title,
	)
	return nil
}

// MemorySink collects events for assertions in tests.
type MemorySink struct {
	mu     sync.Mutex
	Events []Event
}

func (s *MemorySink) Send(ctx context.Context, e Event) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Events = append(s.Events, e)
	return nil
}

func (s *MemorySink) Snapshot() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.Events))
	copy(out, s.Events)
	return out
}

// MemoryPublisher records published events synchronously for tests.
type MemoryPublisher struct {
	mu     sync.Mutex
	Events []Event
}

func (p *MemoryPublisher) Publish(e Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Events = append(p.Events, e)
}

func (p *MemoryPublisher) Snapshot() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Event, len(p.Events))
	copy(out, p.Events)
	return out
}
