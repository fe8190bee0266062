package catalog

import "errors"

// Sentinel kinds for content provider errors.
var (
	ErrNoManifest   = errors.New("catalog manifest path not configured")
	ErrReadManifest = errors.New("read catalog manifest")
)
