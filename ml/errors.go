package ml

import "github.com/pkg/errors"

var (
	// ErrEncoding is returned for missing, empty or unknown categorical values.
	ErrEncoding = errors.New("encoding error")
	// ErrDegenerateInput is returned when a stage receives data it cannot
	// compute meaningful statistics over (empty set, zero variance under the
	// reject policy, an empty train or test side).
	ErrDegenerateInput = errors.New("degenerate input")
	// ErrShapeMismatch is returned when feature and label counts or row widths disagree.
	ErrShapeMismatch = errors.New("shape mismatch")
	// ErrNotTrained is returned when predicting with a model that has no fitted trees.
	ErrNotTrained = errors.New("model not trained")
)
