package ml

import (
	"sort"

	"github.com/pkg/errors"
)

type FeatureImportance struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
}

// RankImportances pairs names with values and sorts by importance, highest
// first. Equal importances keep the column order.
func RankImportances(names []string, values []float64) ([]FeatureImportance, error) {
	if len(names) != len(values) {
		return nil, errors.Wrapf(ErrShapeMismatch, "%d feature names but %d importances", len(names), len(values))
	}
	ranked := make([]FeatureImportance, len(names))
	for i, name := range names {
		ranked[i] = FeatureImportance{Feature: name, Importance: values[i]}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Importance > ranked[j].Importance
	})
	return ranked, nil
}
