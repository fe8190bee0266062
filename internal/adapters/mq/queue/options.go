package queue

// Option applies a configuration option to the InMemoryQueue.
type Option func(*InMemoryQueue)

// WithCapacity sets the maximum number of waiting requests.
func WithCapacity(capacity int) Option {
	return func(q *InMemoryQueue) {
		if capacity > 0 {
			q.capacity = capacity
		}
	}
}

// WithCoalescing turns folding of requests into a waiting one on or off.
func WithCoalescing(on bool) Option {
	return func(q *InMemoryQueue) {
		q.coalesce = on
	}
}
