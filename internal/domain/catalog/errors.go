package catalog

import "errors"

// ErrInvalidSnapshot reports a content listing that cannot be reconciled.
var ErrInvalidSnapshot = errors.New("invalid snapshot")
