// Package queue holds on-demand reconcile requests until the sync runner
// picks them up.
package queue

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/okian/quorum/internal/domain/model"
	"github.com/okian/quorum/pkg/metrics"
)

const defaultQueueCapacity = 8

// Result describes what Enqueue did with a request.
type Result struct {
	// Request is the queued request. When Coalesced it is the request that
	// was already waiting.
	Request   model.ScanRequest
	Coalesced bool
}

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a request. It returns ErrQueueFull when at capacity and
	// ErrQueueClosed after Close.
	Enqueue(ctx context.Context, req model.ScanRequest) (Result, error)

	// Dequeue returns a channel that will receive requests as they become
	// available. The channel is closed when the queue is closed.
	Dequeue(ctx context.Context) <-chan model.ScanRequest

	// Len returns the current number of waiting requests.
	Len(ctx context.Context) int

	// Close stops accepting requests and closes the dequeue channel.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel. With coalescing
// on, a request arriving while another is still waiting is folded into it:
// one pending pass will observe the newer catalog anyway.
type InMemoryQueue struct {
	requests chan model.ScanRequest
	capacity int
	coalesce bool

	mu      sync.Mutex
	closed  bool
	waiting model.ScanRequest // most recent enqueued request
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity: defaultQueueCapacity,
		coalesce: true,
	}
	for _, opt := range opts {
		opt(q)
	}
	q.requests = make(chan model.ScanRequest, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	return q
}

// Enqueue adds a request, filling in a missing id and timestamp.
func (q *InMemoryQueue) Enqueue(ctx context.Context, req model.ScanRequest) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if strings.TrimSpace(req.ID) == "" {
		req.ID = uuid.NewString()
	}
	if req.RequestedAt.IsZero() {
		req.RequestedAt = time.Now().UTC()
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		metrics.RecordErrorByComponent("queue", "closed")
		return Result{}, ErrQueueClosed
	}
	if q.coalesce && len(q.requests) > 0 {
		metrics.RecordQueueCoalesced()
		return Result{Request: q.waiting, Coalesced: true}, nil
	}

	select {
	case q.requests <- req:
		q.waiting = req
		metrics.RecordQueueEnqueue()
		metrics.UpdateQueueSize(len(q.requests))
		return Result{Request: req}, nil
	default:
		metrics.RecordQueueRejected()
		metrics.RecordErrorByComponent("queue", "queue_full")
		return Result{}, ErrQueueFull
	}
}

// Dequeue returns the receive side of the queue.
func (q *InMemoryQueue) Dequeue(_ context.Context) <-chan model.ScanRequest {
	return q.requests
}

// Len returns the current number of waiting requests.
func (q *InMemoryQueue) Len(_ context.Context) int {
	size := len(q.requests)
	metrics.UpdateQueueSize(size)
	return size
}

// Close gracefully shuts down the queue.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	close(q.requests)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
