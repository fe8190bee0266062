package queue

import (
	"context"
	"errors"
	"testing"

	"github.com/okian/quorum/internal/domain/model"
)

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}

	res, err := q.Enqueue(ctx, model.ScanRequest{Reason: "manual"})
	if err != nil {
		t.Fatalf("expected enqueue to succeed: %v", err)
	}
	if res.Coalesced || res.Request.ID == "" || res.Request.RequestedAt.IsZero() {
		t.Errorf("unexpected result %+v", res)
	}
	if l := q.Len(ctx); l != 1 {
		t.Errorf("expected length 1, got %d", l)
	}

	got := <-q.Dequeue(ctx)
	if got.ID != res.Request.ID || got.Reason != "manual" {
		t.Errorf("dequeued %+v, want %+v", got, res.Request)
	}
	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
}

func TestInMemoryQueue_Coalescing(t *testing.T) {
	q := NewInMemoryQueue()
	ctx := context.Background()

	first, err := q.Enqueue(ctx, model.ScanRequest{ID: "a"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	second, err := q.Enqueue(ctx, model.ScanRequest{ID: "b"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if !second.Coalesced || second.Request.ID != first.Request.ID {
		t.Errorf("expected b to fold into a, got %+v", second)
	}
	if l := q.Len(ctx); l != 1 {
		t.Errorf("expected one waiting request, got %d", l)
	}

	<-q.Dequeue(ctx)
	third, err := q.Enqueue(ctx, model.ScanRequest{ID: "c"})
	if err != nil || third.Coalesced {
		t.Errorf("expected c to be queued once the queue drained, got %+v %v", third, err)
	}
}

func TestInMemoryQueue_Capacity(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2), WithCoalescing(false))
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		if _, err := q.Enqueue(ctx, model.ScanRequest{ID: id}); err != nil {
			t.Fatalf("enqueue %s: %v", id, err)
		}
	}
	if _, err := q.Enqueue(ctx, model.ScanRequest{ID: "c"}); !errors.Is(err, ErrQueueFull) {
		t.Errorf("expected ErrQueueFull, got %v", err)
	}
}

func TestInMemoryQueue_Close(t *testing.T) {
	q := NewInMemoryQueue()
	ctx := context.Background()

	if err := q.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := q.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if !q.IsClosed() {
		t.Error("expected queue to report closed")
	}
	if _, err := q.Enqueue(ctx, model.ScanRequest{}); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("expected ErrQueueClosed, got %v", err)
	}
	if _, ok := <-q.Dequeue(ctx); ok {
		t.Error("expected dequeue channel to be closed")
	}
}

func TestInMemoryQueue_CancelledContext(t *testing.T) {
	q := NewInMemoryQueue()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := q.Enqueue(ctx, model.ScanRequest{}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
