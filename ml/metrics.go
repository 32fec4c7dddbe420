package ml

import (
	"github.com/pkg/errors"
)

type ClassMetrics struct {
	Class     string  `json:"class"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

// ClassificationReport mirrors the usual per-class table. Precision, recall
// and F1 are 0 whenever their denominator is 0.
type ClassificationReport struct {
	Accuracy    float64        `json:"accuracy"`
	Classes     []ClassMetrics `json:"classes"`
	MacroAvg    ClassMetrics   `json:"macro_avg"`
	WeightedAvg ClassMetrics   `json:"weighted_avg"`
	Confusion   [][]int        `json:"confusion"`
	Total       int            `json:"total"`
}

func Accuracy(yTrue, yPred []int) (float64, error) {
	if len(yTrue) != len(yPred) {
		return 0, errors.Wrapf(ErrShapeMismatch, "%d true labels but %d predictions", len(yTrue), len(yPred))
	}
	if len(yTrue) == 0 {
		return 0, errors.Wrap(ErrDegenerateInput, "no labels to score")
	}
	correct := 0
	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(yTrue)), nil
}

// ConfusionMatrix returns m where m[t][p] counts rows with true class t predicted as p.
func ConfusionMatrix(yTrue, yPred []int, nClasses int) ([][]int, error) {
	if len(yTrue) != len(yPred) {
		return nil, errors.Wrapf(ErrShapeMismatch, "%d true labels but %d predictions", len(yTrue), len(yPred))
	}
	matrix := make([][]int, nClasses)
	for i := range matrix {
		matrix[i] = make([]int, nClasses)
	}
	for i := range yTrue {
		t, p := yTrue[i], yPred[i]
		if t < 0 || t >= nClasses || p < 0 || p >= nClasses {
			return nil, errors.Wrapf(ErrEncoding, "class code outside [0, %d) at row %d", nClasses, i)
		}
		matrix[t][p]++
	}
	return matrix, nil
}

// Evaluate scores predictions for every class in classes (indexed by code).
// Averages only include classes that occur in yTrue or yPred.
func Evaluate(yTrue, yPred []int, classes []string) (*ClassificationReport, error) {
	accuracy, err := Accuracy(yTrue, yPred)
	if err != nil {
		return nil, err
	}
	confusion, err := ConfusionMatrix(yTrue, yPred, len(classes))
	if err != nil {
		return nil, err
	}

	report := &ClassificationReport{
		Accuracy:  accuracy,
		Classes:   make([]ClassMetrics, len(classes)),
		Confusion: confusion,
		Total:     len(yTrue),
	}

	var macro, weighted ClassMetrics
	present := 0
	for c, name := range classes {
		tp := confusion[c][c]
		support, predicted := 0, 0
		for k := range classes {
			support += confusion[c][k]
			predicted += confusion[k][c]
		}
		m := ClassMetrics{
			Class:     name,
			Precision: safeDiv(float64(tp), float64(predicted)),
			Recall:    safeDiv(float64(tp), float64(support)),
			Support:   support,
		}
		m.F1 = safeDiv(2*m.Precision*m.Recall, m.Precision+m.Recall)
		report.Classes[c] = m

		if support == 0 && predicted == 0 {
			continue
		}
		present++
		macro.Precision += m.Precision
		macro.Recall += m.Recall
		macro.F1 += m.F1
		w := float64(support)
		weighted.Precision += w * m.Precision
		weighted.Recall += w * m.Recall
		weighted.F1 += w * m.F1
	}

	total := float64(len(yTrue))
	report.MacroAvg = ClassMetrics{
		Class:     "macro avg",
		Precision: safeDiv(macro.Precision, float64(present)),
		Recall:    safeDiv(macro.Recall, float64(present)),
		F1:        safeDiv(macro.F1, float64(present)),
		Support:   len(yTrue),
	}
	report.WeightedAvg = ClassMetrics{
		Class:     "weighted avg",
		Precision: safeDiv(weighted.Precision, total),
		Recall:    safeDiv(weighted.Recall, total),
		F1:        safeDiv(weighted.F1, total),
		Support:   len(yTrue),
	}
	return report, nil
}

func safeDiv(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}
