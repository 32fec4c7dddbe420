package ml

import (
	"math"

	"github.com/pkg/errors"
)

func isErr(err, target error) bool {
	return errors.Is(err, target)
}

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}
