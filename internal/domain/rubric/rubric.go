// Package rubric declares the score dimensions a judge fills in and the
// closed bounds each score must respect.
package rubric

import (
	"fmt"
	"strings"
)

// Default rubric configuration constants.
const (
	defaultMinScore = 1
	defaultMaxScore = 5
)

// DefaultDimensions lists the dimensions used when none are configured.
var DefaultDimensions = []string{"semantic", "motion", "temporal", "realism"} //nolint:gochecknoglobals // read-only defaults

// Dimension is one axis of the score vector.
type Dimension struct {
	Name string
	Min  int
	Max  int
}

// Option applies a configuration option to the Rubric.
type Option func(*Rubric)

// WithDimensions replaces the dimension names. Blank names are ignored.
func WithDimensions(names []string) Option {
	return func(r *Rubric) {
		var cleaned []string
		for _, n := range names {
			if n = strings.TrimSpace(n); n != "" {
				cleaned = append(cleaned, n)
			}
		}
		if len(cleaned) > 0 {
			r.names = cleaned
		}
	}
}

// WithBounds sets the closed range shared by every dimension.
func WithBounds(minScore, maxScore int) Option {
	return func(r *Rubric) {
		if minScore <= maxScore {
			r.min = minScore
			r.max = maxScore
		}
	}
}

// Rubric validates score vectors.
type Rubric struct {
	names []string
	min   int
	max   int
}

// New creates a rubric with the default four dimensions scored 1-5.
func New(opts ...Option) *Rubric {
	r := &Rubric{
		names: append([]string(nil), DefaultDimensions...),
		min:   defaultMinScore,
		max:   defaultMaxScore,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Dimensions returns the declared dimensions in vector order.
func (r *Rubric) Dimensions() []Dimension {
	dims := make([]Dimension, len(r.names))
	for i, n := range r.names {
		dims[i] = Dimension{Name: n, Min: r.min, Max: r.max}
	}
	return dims
}

// Size returns the fixed length of a score vector.
func (r *Rubric) Size() int { return len(r.names) }

// Validate checks the vector length and that every score is within bounds.
func (r *Rubric) Validate(scores []int) error {
	if len(scores) != len(r.names) {
		return fmt.Errorf("%w: got %d scores, want %d", ErrInvalidScores, len(scores), len(r.names))
	}
	for i, s := range scores {
		if s < r.min || s > r.max {
			return fmt.Errorf("%w: %s=%d outside [%d,%d]", ErrInvalidScores, r.names[i], s, r.min, r.max)
		}
	}
	return nil
}

// Neutral returns a vector filled with the midpoint score, used to prefill
// a form when the judge has no rating yet.
func (r *Rubric) Neutral() []int {
	mid := r.min + (r.max-r.min)/2
	out := make([]int, len(r.names))
	for i := range out {
		out[i] = mid
	}
	return out
}
