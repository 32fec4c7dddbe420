package ml

// MLModel is implemented by DecisionTree and RandomForest.
type MLModel interface {
	Train(features [][]float64, labels []int) error
	Predict(features []float64) (int, float64, error)
	FeatureImportances() []float64
	Save(path string) error
	Load(path string) error
}

var (
	_ MLModel = (*DecisionTree)(nil)
	_ MLModel = (*RandomForest)(nil)
)
