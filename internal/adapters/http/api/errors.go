package api

import "errors"

// Sentinel kinds for API errors.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrUnauthorized = errors.New("unknown judge token")
	ErrForbidden    = errors.New("admin token required")
)
