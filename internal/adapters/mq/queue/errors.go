package queue

import "errors"

// Sentinel kinds for queue errors.
var (
	ErrQueueFull   = errors.New("scan queue full")
	ErrQueueClosed = errors.New("scan queue closed")
)
