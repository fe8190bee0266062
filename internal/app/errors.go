package service

import "errors"

var (
	// ErrNotStarted reports a call before Start or after Stop.
	ErrNotStarted = errors.New("service not started")
	// ErrSyncDisabled reports a sync request without a content source.
	ErrSyncDisabled = errors.New("no content source configured")
)
