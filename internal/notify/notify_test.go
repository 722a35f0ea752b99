package notify

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"
)

func TestAsyncDispatcher_DeliversInOrder(t *testing.T) {
	sink := &MemorySink{}
	d := NewAsyncDispatcher(sink, slog.New(slog.NewTextHandler(os.Stderr, nil)), 8)

	d.Publish(Event{Kind: KindBillCreated, ClusterID: "est-1", Title: "first"})
	d.Publish(Event{Kind: KindBillPaid, ClusterID: "est-1", Title: "second"})
	d.Close()

	got := sink.Snapshot()
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].Title != "first" || got[1].Title != "second" {
		t.Fatalf("events out of order: %+v", got)
	}
	if got[0].CreatedAt.IsZero() {
		t.Fatalf("CreatedAt should be stamped on publish")
	}
}

func TestAsyncDispatcher_DropsWhenFull(t *testing.T) {
	// A sink that blocks until released, forcing the buffer to fill.
	release := make(chan struct{})
	sink := blockingSink{release: release}
	d := NewAsyncDispatcher(sink, slog.New(slog.NewTextHandler(os.Stderr, nil)), 1)

	// First event occupies the worker, second fills the buffer; the rest
	// must be dropped without blocking this goroutine.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			d.Publish(Event{Kind: KindAdminAlert, ClusterID: "est-1"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Publish blocked on a full buffer")
	}
	close(release)
	d.Close()
}

type blockingSink struct{ release chan struct{} }

func (s blockingSink) Send(ctx context.Context, e Event) error {
	<-s.release
	return nil
}
