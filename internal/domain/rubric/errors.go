package rubric

import "errors"

// ErrInvalidScores reports a score vector that violates the rubric.
var ErrInvalidScores = errors.New("invalid scores")
