package ml

import (
	"sort"

	"github.com/pkg/errors"

	"obesityboard/dataset"
)

// DefaultOutlierMultiplier is the Tukey fence multiplier.
const DefaultOutlierMultiplier = 1.5

type IQRBounds struct {
	Q1         float64 `json:"q1"`
	Q3         float64 `json:"q3"`
	IQR        float64 `json:"iqr"`
	Multiplier float64 `json:"multiplier"`
	Lower      float64 `json:"lower"`
	Upper      float64 `json:"upper"`
}

// Contains reports whether v lies inside the fences, inclusive on both ends.
func (b IQRBounds) Contains(v float64) bool {
	return v >= b.Lower && v <= b.Upper
}

// Percentile returns the p-th percentile (0 <= p <= 100) using linear
// interpolation between the closest order statistics.
func Percentile(values []float64, p float64) (float64, error) {
	n := len(values)
	if n == 0 {
		return 0, errors.Wrap(ErrDegenerateInput, "percentile of empty column")
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	if p <= 0 {
		return sorted[0], nil
	}
	if p >= 100 {
		return sorted[n-1], nil
	}
	rank := p / 100 * float64(n-1)
	lower := int(rank)
	weight := rank - float64(lower)
	if lower+1 >= n {
		return sorted[lower], nil
	}
	return sorted[lower] + (sorted[lower+1]-sorted[lower])*weight, nil
}

func ComputeIQRBounds(values []float64, multiplier float64) (IQRBounds, error) {
	if len(values) == 0 {
		return IQRBounds{}, errors.Wrap(ErrDegenerateInput, "cannot compute quartiles of an empty dataset")
	}
	if multiplier < 0 {
		return IQRBounds{}, errors.Errorf("outlier multiplier must be non-negative, got %v", multiplier)
	}
	q1, err := Percentile(values, 25)
	if err != nil {
		return IQRBounds{}, err
	}
	q3, err := Percentile(values, 75)
	if err != nil {
		return IQRBounds{}, err
	}
	iqr := q3 - q1
	return IQRBounds{
		Q1:         q1,
		Q3:         q3,
		IQR:        iqr,
		Multiplier: multiplier,
		Lower:      q1 - multiplier*iqr,
		Upper:      q3 + multiplier*iqr,
	}, nil
}

// FilterOutliers drops records whose BMI falls outside the IQR fences computed
// over the full input. The input slice is not modified.
func FilterOutliers(records []dataset.Record, multiplier float64) ([]dataset.Record, IQRBounds, error) {
	bmi := make([]float64, len(records))
	for i, r := range records {
		bmi[i] = r.BMI
	}
	bounds, err := ComputeIQRBounds(bmi, multiplier)
	if err != nil {
		return nil, IQRBounds{}, err
	}

	kept := make([]dataset.Record, 0, len(records))
	for _, r := range records {
		if bounds.Contains(r.BMI) {
			kept = append(kept, r)
		}
	}
	return kept, bounds, nil
}
