package ml

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

type ZeroVariancePolicy string

const (
	// ZeroVarianceFallback treats a zero std as 1, leaving the column centered only.
	ZeroVarianceFallback ZeroVariancePolicy = "fallback"
	// ZeroVarianceReject fails the fit with ErrDegenerateInput.
	ZeroVarianceReject ZeroVariancePolicy = "reject"
)

// StandardScaler rescales every column to zero mean and unit variance using
// population statistics.
type StandardScaler struct {
	Policy       ZeroVariancePolicy `json:"policy"`
	Mean         []float64          `json:"mean"`
	Std          []float64          `json:"std"`
	ZeroVariance []int              `json:"zero_variance,omitempty"`
}

func NewStandardScaler(policy ZeroVariancePolicy) *StandardScaler {
	if policy == "" {
		policy = ZeroVarianceFallback
	}
	return &StandardScaler{Policy: policy}
}

func (s *StandardScaler) Fit(X [][]float64) error {
	cols, err := matrixWidth(X)
	if err != nil {
		return err
	}
	mean := make([]float64, cols)
	std := make([]float64, cols)
	var zero []int
	column := make([]float64, len(X))
	for j := 0; j < cols; j++ {
		for i := range X {
			column[i] = X[i][j]
		}
		mean[j], std[j] = stat.PopMeanStdDev(column, nil)
		// constant columns can yield a rounding-sized std, test the range instead
		if floats.Max(column) == floats.Min(column) {
			if s.Policy == ZeroVarianceReject {
				return errors.Wrapf(ErrDegenerateInput, "column %d has zero variance", j)
			}
			mean[j], std[j] = column[0], 1
			zero = append(zero, j)
		}
	}
	s.Mean, s.Std, s.ZeroVariance = mean, std, zero
	return nil
}

func (s *StandardScaler) Transform(X [][]float64) ([][]float64, error) {
	if len(s.Mean) == 0 {
		return nil, errors.New("scaler not fitted")
	}
	out := make([][]float64, len(X))
	for i, row := range X {
		scaled, err := s.TransformRow(row)
		if err != nil {
			return nil, errors.Wrapf(err, "row %d", i)
		}
		out[i] = scaled
	}
	return out, nil
}

func (s *StandardScaler) TransformRow(row []float64) ([]float64, error) {
	if len(row) != len(s.Mean) {
		return nil, errors.Wrapf(ErrShapeMismatch, "expected %d columns, got %d", len(s.Mean), len(row))
	}
	out := make([]float64, len(row))
	for j, v := range row {
		out[j] = (v - s.Mean[j]) / s.Std[j]
	}
	return out, nil
}

func (s *StandardScaler) FitTransform(X [][]float64) ([][]float64, error) {
	if err := s.Fit(X); err != nil {
		return nil, err
	}
	return s.Transform(X)
}

// matrixWidth validates that X is non-empty and rectangular.
func matrixWidth(X [][]float64) (int, error) {
	if len(X) == 0 {
		return 0, errors.Wrap(ErrDegenerateInput, "empty feature matrix")
	}
	cols := len(X[0])
	if cols == 0 {
		return 0, errors.Wrap(ErrShapeMismatch, "feature rows have no columns")
	}
	for i, row := range X {
		if len(row) != cols {
			return 0, errors.Wrapf(ErrShapeMismatch, "row %d has %d columns, expected %d", i, len(row), cols)
		}
	}
	return cols, nil
}
