package ml

import (
	"github.com/pkg/errors"
)

const (
	ModelTypeRandomForest = "random_forest"
	ModelTypeDecisionTree = "decision_tree"
)

func LoadModel(modelType, path string) (MLModel, error) {
	var model MLModel
	switch modelType {
	case ModelTypeRandomForest, "":
		model = &RandomForest{}
	case ModelTypeDecisionTree:
		model = &DecisionTree{}
	default:
		return nil, errors.Errorf("unsupported model type %q", modelType)
	}
	if err := model.Load(path); err != nil {
		return nil, errors.Wrapf(err, "load %s model from %s", modelType, path)
	}
	return model, nil
}
