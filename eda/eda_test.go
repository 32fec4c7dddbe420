package eda

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/pkg/errors"

	"obesityboard/dataset"
	"obesityboard/ml"
)

func sampleRecords() []dataset.Record {
	return []dataset.Record{
		{Age: 20, Gender: "Male", Height: 170, Weight: 50, BMI: 17.3, Label: "Underweight"},
		{Age: 25, Gender: "Male", Height: 175, Weight: 70, BMI: 22.9, Label: "Normal Weight"},
		{Age: 30, Gender: "Female", Height: 160, Weight: 60, BMI: 23.4, Label: "Normal Weight"},
		{Age: 35, Gender: "Female", Height: 165, Weight: 80, BMI: 29.4, Label: "Overweight"},
		{Age: 40, Gender: "Male", Height: 180, Weight: 110, BMI: 34.0, Label: "Obese"},
		{Age: 45, Gender: "Female", Height: 155, Weight: 95, BMI: 39.5, Label: "Obese"},
	}
}

func TestNewHistogram(t *testing.T) {
	h, err := NewHistogram("BMI", []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 10}, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(h.Edges) != 6 || len(h.Counts) != 5 {
		t.Fatalf("expected 6 edges and 5 counts, got %d/%d", len(h.Edges), len(h.Counts))
	}
	want := []float64{2, 2, 2, 2, 2}
	for i := range want {
		if h.Counts[i] != want[i] {
			t.Fatalf("unexpected counts %v", h.Counts)
		}
	}
	if h.Edges[0] != 0 || h.Edges[5] != 10 {
		t.Fatalf("unexpected edges %v", h.Edges)
	}

	constant, err := NewHistogram("Age", []float64{30, 30, 30}, 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	total := 0.0
	for _, c := range constant.Counts {
		total += c
	}
	if total != 3 {
		t.Fatalf("constant column should still be counted, got %v", constant.Counts)
	}

	if _, err := NewHistogram("BMI", nil, 5); !errors.Is(err, ml.ErrDegenerateInput) {
		t.Fatalf("expected degenerate input, got %v", err)
	}
}

func TestHistograms(t *testing.T) {
	hists, err := Histograms(sampleRecords(), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hists) != len(NumericFeatures) {
		t.Fatalf("expected %d histograms, got %d", len(NumericFeatures), len(hists))
	}
	for _, h := range hists {
		if len(h.Counts) != DefaultBins {
			t.Fatalf("%s: expected %d bins, got %d", h.Feature, DefaultBins, len(h.Counts))
		}
		sum := 0.0
		for _, c := range h.Counts {
			sum += c
		}
		if sum != 6 {
			t.Fatalf("%s: expected 6 values binned, got %f", h.Feature, sum)
		}
	}
}

func TestNewBoxSummary(t *testing.T) {
	s, err := NewBoxSummary([]float64{18, 19, 20, 21, 22, 23, 24, 25, 26, 95})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Q1 != 20.25 || s.Q3 != 24.75 || s.Median != 22.5 {
		t.Fatalf("unexpected quartiles %+v", s)
	}
	if s.LowerWhisker != 18 || s.UpperWhisker != 26 {
		t.Fatalf("unexpected whiskers %+v", s)
	}
	if len(s.Outliers) != 1 || s.Outliers[0] != 95 {
		t.Fatalf("expected 95 as the only outlier, got %v", s.Outliers)
	}
	if s.Min != 18 || s.Max != 95 || s.N != 10 {
		t.Fatalf("unexpected extremes %+v", s)
	}
}

func TestBMIBoxPlotsOrdering(t *testing.T) {
	boxes, err := BMIBoxPlots(sampleRecords())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(boxes) != 6 {
		t.Fatalf("expected 6 groups, got %d", len(boxes))
	}
	if boxes[0].Gender != "Female" || boxes[0].Label != "Normal Weight" {
		t.Fatalf("unexpected first group %s/%s", boxes[0].Gender, boxes[0].Label)
	}
	if boxes[5].Gender != "Male" || boxes[5].Label != "Underweight" {
		t.Fatalf("unexpected last group %s/%s", boxes[5].Gender, boxes[5].Label)
	}
}

func TestCorrelation(t *testing.T) {
	records := sampleRecords()
	gender, _ := ml.NewLabelEncoder(dataset.Genders(records))
	label, _ := ml.NewLabelEncoder(dataset.Labels(records))

	corr, err := Correlation(records, gender, label)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(corr.Values) != len(CorrelationColumns) {
		t.Fatalf("expected %d rows, got %d", len(CorrelationColumns), len(corr.Values))
	}
	for i := range corr.Values {
		if corr.Values[i][i] == nil || math.Abs(*corr.Values[i][i]-1) > 1e-9 {
			t.Fatalf("diagonal entry %d should be 1", i)
		}
		for j := range corr.Values[i] {
			if *corr.Values[i][j] != *corr.Values[j][i] {
				t.Fatalf("matrix not symmetric at %d,%d", i, j)
			}
		}
	}
	// weight and bmi move together in the sample
	if *corr.Values[3][4] < 0.8 {
		t.Fatalf("expected strong weight/bmi correlation, got %f", *corr.Values[3][4])
	}

	for i := range records {
		records[i].Age = 30
	}
	corr, err = Correlation(records, gender, label)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for j := range CorrelationColumns {
		if corr.Values[0][j] != nil || corr.Values[j][0] != nil {
			t.Fatalf("constant Age should be undefined against %s", CorrelationColumns[j])
		}
	}
	if corr.Values[3][3] == nil || *corr.Values[3][3] != 1 {
		t.Fatalf("Weight diagonal should stay 1")
	}

	if _, err := Correlation(records[:1], gender, label); !errors.Is(err, ml.ErrDegenerateInput) {
		t.Fatalf("expected degenerate input, got %v", err)
	}
}

func TestCountRecords(t *testing.T) {
	c := CountRecords(sampleRecords())
	if c.Total != 6 || c.ByLabel["Obese"] != 2 || c.ByGender["Female"] != 3 {
		t.Fatalf("unexpected counts %+v", c)
	}
	if c.ByGenderLabel["Male"]["Obese"] != 1 {
		t.Fatalf("unexpected cross counts %+v", c.ByGenderLabel)
	}
}

func TestCharts(t *testing.T) {
	records := sampleRecords()
	tests := []struct {
		name   string
		render func(*bytes.Buffer) error
	}{
		{"histogram", func(b *bytes.Buffer) error { return WriteHistogramSVG(b, records, "BMI", 5) }},
		{"boxplot", func(b *bytes.Buffer) error { return WriteBMIBoxPlotSVG(b, records) }},
		{"importance", func(b *bytes.Buffer) error {
			return WriteImportanceSVG(b, []ml.FeatureImportance{{Feature: "BMI", Importance: 0.7}, {Feature: "Age", Importance: 0.3}})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := tt.render(&buf); err != nil {
				t.Fatalf("render failed: %v", err)
			}
			if !strings.Contains(buf.String(), "<svg") {
				t.Fatalf("expected svg output, got %.80q", buf.String())
			}
		})
	}

	if err := WriteHistogramSVG(&bytes.Buffer{}, records, "Shoe", 5); err == nil {
		t.Fatal("expected error for unknown feature")
	}
}
