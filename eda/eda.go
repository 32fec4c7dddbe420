// Package eda computes the exploratory summaries shown on the EDA page.
package eda

import (
	"math"
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"obesityboard/dataset"
	"obesityboard/ml"
)

const DefaultBins = 20

// NumericFeatures are the columns that get histograms.
var NumericFeatures = []string{dataset.ColumnAge, dataset.ColumnHeight, dataset.ColumnWeight, dataset.ColumnBMI}

// CorrelationColumns is the column order of CorrelationMatrix.
var CorrelationColumns = []string{
	dataset.ColumnAge, dataset.ColumnGender, dataset.ColumnHeight,
	dataset.ColumnWeight, dataset.ColumnBMI, dataset.ColumnLabel,
}

type Histogram struct {
	Feature string    `json:"feature"`
	Edges   []float64 `json:"edges"`
	Counts  []float64 `json:"counts"`
}

type BoxSummary struct {
	Gender       string    `json:"gender"`
	Label        string    `json:"label"`
	N            int       `json:"n"`
	Min          float64   `json:"min"`
	Q1           float64   `json:"q1"`
	Median       float64   `json:"median"`
	Q3           float64   `json:"q3"`
	Max          float64   `json:"max"`
	LowerWhisker float64   `json:"lower_whisker"`
	UpperWhisker float64   `json:"upper_whisker"`
	Outliers     []float64 `json:"outliers"`
}

// CorrelationMatrix holds Pearson coefficients. A nil entry means the
// coefficient is undefined because a column has zero variance.
type CorrelationMatrix struct {
	Columns []string     `json:"columns"`
	Values  [][]*float64 `json:"values"`
}

type Counts struct {
	Total         int                       `json:"total"`
	ByLabel       map[string]int            `json:"by_label"`
	ByGender      map[string]int            `json:"by_gender"`
	ByGenderLabel map[string]map[string]int `json:"by_gender_label"`
}

// FeatureValues extracts one numeric column.
func FeatureValues(records []dataset.Record, feature string) ([]float64, error) {
	out := make([]float64, len(records))
	for i, r := range records {
		switch feature {
		case dataset.ColumnAge:
			out[i] = float64(r.Age)
		case dataset.ColumnHeight:
			out[i] = r.Height
		case dataset.ColumnWeight:
			out[i] = r.Weight
		case dataset.ColumnBMI:
			out[i] = r.BMI
		default:
			return nil, errors.Errorf("unknown numeric feature %q", feature)
		}
	}
	return out, nil
}

// NewHistogram bins values into equal-width bins spanning [min, max].
func NewHistogram(feature string, values []float64, bins int) (Histogram, error) {
	if len(values) == 0 {
		return Histogram{}, errors.Wrapf(ml.ErrDegenerateInput, "no values for %s", feature)
	}
	if bins <= 0 {
		bins = DefaultBins
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	lo, hi := sorted[0], sorted[len(sorted)-1]
	if lo == hi {
		lo, hi = lo-0.5, hi+0.5
	}
	edges := floats.Span(make([]float64, bins+1), lo, hi)
	// stat.Histogram uses half-open bins, nudge the last edge so max is counted
	dividers := append([]float64(nil), edges...)
	dividers[bins] = math.Nextafter(hi, math.Inf(1))
	counts := stat.Histogram(nil, dividers, sorted, nil)
	return Histogram{Feature: feature, Edges: edges, Counts: counts}, nil
}

// Histograms returns one histogram per numeric feature.
func Histograms(records []dataset.Record, bins int) ([]Histogram, error) {
	out := make([]Histogram, 0, len(NumericFeatures))
	for _, feature := range NumericFeatures {
		values, err := FeatureValues(records, feature)
		if err != nil {
			return nil, err
		}
		h, err := NewHistogram(feature, values, bins)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, nil
}

// NewBoxSummary computes a Tukey box plot summary with 1.5 IQR whiskers.
func NewBoxSummary(values []float64) (BoxSummary, error) {
	bounds, err := ml.ComputeIQRBounds(values, ml.DefaultOutlierMultiplier)
	if err != nil {
		return BoxSummary{}, err
	}
	median, err := ml.Percentile(values, 50)
	if err != nil {
		return BoxSummary{}, err
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	s := BoxSummary{
		N:            len(sorted),
		Min:          sorted[0],
		Max:          sorted[len(sorted)-1],
		Q1:           bounds.Q1,
		Median:       median,
		Q3:           bounds.Q3,
		LowerWhisker: bounds.Q1,
		UpperWhisker: bounds.Q3,
		Outliers:     []float64{},
	}
	first := true
	for _, v := range sorted {
		if !bounds.Contains(v) {
			s.Outliers = append(s.Outliers, v)
			continue
		}
		if first {
			s.LowerWhisker = v
			first = false
		}
		s.UpperWhisker = v
	}
	return s, nil
}

// BMIBoxPlots groups BMI by gender and label. Groups are ordered by gender,
// then label, lexicographically.
func BMIBoxPlots(records []dataset.Record) ([]BoxSummary, error) {
	type key struct{ gender, label string }
	groups := make(map[key][]float64)
	for _, r := range records {
		k := key{r.Gender, r.Label}
		groups[k] = append(groups[k], r.BMI)
	}
	keys := make([]key, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].gender != keys[j].gender {
			return keys[i].gender < keys[j].gender
		}
		return keys[i].label < keys[j].label
	})

	out := make([]BoxSummary, 0, len(keys))
	for _, k := range keys {
		s, err := NewBoxSummary(groups[k])
		if err != nil {
			return nil, errors.WithMessagef(err, "%s/%s", k.gender, k.label)
		}
		s.Gender, s.Label = k.gender, k.label
		out = append(out, s)
	}
	return out, nil
}

// Correlation computes the Pearson correlation matrix of the encoded frame.
func Correlation(records []dataset.Record, gender, label *ml.LabelEncoder) (*CorrelationMatrix, error) {
	n := len(records)
	if n < 2 {
		return nil, errors.Wrapf(ml.ErrDegenerateInput, "correlation needs at least 2 rows, got %d", n)
	}
	cols := len(CorrelationColumns)
	data := make([]float64, 0, n*cols)
	for i, r := range records {
		g, err := gender.Encode(r.Gender)
		if err != nil {
			return nil, errors.WithMessagef(err, "row %d", i)
		}
		l, err := label.Encode(r.Label)
		if err != nil {
			return nil, errors.WithMessagef(err, "row %d", i)
		}
		data = append(data, float64(r.Age), float64(g), r.Height, r.Weight, r.BMI, float64(l))
	}

	frame := mat.NewDense(n, cols, data)
	corr := mat.NewSymDense(cols, nil)
	stat.CorrelationMatrix(corr, frame, nil)
	constant := make([]bool, cols)
	for j := 0; j < cols; j++ {
		column := mat.Col(nil, j, frame)
		constant[j] = floats.Max(column) == floats.Min(column)
	}
	out := &CorrelationMatrix{
		Columns: append([]string(nil), CorrelationColumns...),
		Values:  make([][]*float64, cols),
	}
	for i := 0; i < cols; i++ {
		out.Values[i] = make([]*float64, cols)
		for j := 0; j < cols; j++ {
			v := corr.At(i, j)
			// a constant column is undefined everywhere, including its diagonal
			if constant[i] || constant[j] || math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			out.Values[i][j] = &v
		}
	}
	return out, nil
}

func CountRecords(records []dataset.Record) Counts {
	c := Counts{
		Total:         len(records),
		ByLabel:       make(map[string]int),
		ByGender:      make(map[string]int),
		ByGenderLabel: make(map[string]map[string]int),
	}
	for _, r := range records {
		c.ByLabel[r.Label]++
		c.ByGender[r.Gender]++
		if c.ByGenderLabel[r.Gender] == nil {
			c.ByGenderLabel[r.Gender] = make(map[string]int)
		}
		c.ByGenderLabel[r.Gender][r.Label]++
	}
	return c
}
