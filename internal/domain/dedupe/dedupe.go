// Package dedupe remembers recently seen request keys so a retried request
// is acted on at most once.
package dedupe

import (
	"context"
	"sync"
)

const defaultMaxSize = 1024

// Deduper records seen keys.
type Deduper interface {
	// SeenAndRecord atomically checks if key was seen and records it if not.
	// Returns true if key was already seen.
	SeenAndRecord(ctx context.Context, key string) bool

	// Unrecord forgets a key so the request can be retried, e.g. after it
	// was marked as seen but then rejected by backpressure.
	Unrecord(ctx context.Context, key string)

	Size() int
}

// window is a bounded Deduper that evicts the oldest key once full.
type window struct {
	mu      sync.Mutex
	seen    map[string]int // key -> slot in ring
	ring    []string
	next    int
	maxSize int
}

// NewWindow creates a bounded deduper.
func NewWindow(opts ...Option) Deduper {
	w := &window{maxSize: defaultMaxSize}
	for _, opt := range opts {
		opt(w)
	}
	w.seen = make(map[string]int, w.maxSize)
	w.ring = make([]string, w.maxSize)
	return w
}

func (w *window) SeenAndRecord(_ context.Context, key string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.seen[key]; ok {
		return true
	}
	if old := w.ring[w.next]; old != "" {
		delete(w.seen, old)
	}
	w.ring[w.next] = key
	w.seen[key] = w.next
	w.next = (w.next + 1) % w.maxSize
	return false
}

func (w *window) Unrecord(_ context.Context, key string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	slot, ok := w.seen[key]
	if !ok {
		return
	}
	delete(w.seen, key)
	w.ring[slot] = ""
}

func (w *window) Size() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.seen)
}
