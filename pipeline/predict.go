package pipeline

import (
	"math"

	"github.com/pkg/errors"

	"obesityboard/ml"
)

// Input 单条待预测观测（原始单位，未编码）
type Input struct {
	Age    int     `json:"age"`
	Gender string  `json:"gender"`
	Height float64 `json:"height"`
	Weight float64 `json:"weight"`
	// BMI 为 0 时按 weight/(height/100)^2 计算
	BMI float64 `json:"bmi"`
}

// Prediction 预测结果
type Prediction struct {
	Label     string  `json:"label"`
	Code      int     `json:"code"`
	VoteShare float64 `json:"vote_share"`
	BMI       float64 `json:"bmi"`
}

// Predictor 由编码器、标准化器和模型组成的推理链
type Predictor struct {
	Gender *ml.LabelEncoder
	Label  *ml.LabelEncoder
	Scaler *ml.StandardScaler
	Model  *ml.RandomForest
}

func (p Predictor) Predict(in Input) (Prediction, error) {
	if p.Model == nil || p.Scaler == nil || p.Gender == nil || p.Label == nil {
		return Prediction{}, ml.ErrNotTrained
	}
	bmi := in.BMI
	if bmi == 0 {
		if in.Height <= 0 {
			return Prediction{}, errors.Wrap(ml.ErrShapeMismatch, "height must be positive to derive bmi")
		}
		m := in.Height / 100
		bmi = in.Weight / (m * m)
	}
	for _, v := range []float64{in.Height, in.Weight, bmi} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Prediction{}, errors.Wrap(ml.ErrShapeMismatch, "non-finite input")
		}
	}
	gender, err := p.Gender.Encode(in.Gender)
	if err != nil {
		return Prediction{}, err
	}
	row, err := p.Scaler.TransformRow(featureRow(in.Age, in.Height, in.Weight, bmi, gender))
	if err != nil {
		return Prediction{}, err
	}
	code, share, err := p.Model.Predict(row)
	if err != nil {
		return Prediction{}, err
	}
	label, err := p.Label.Decode(code)
	if err != nil {
		return Prediction{}, err
	}
	return Prediction{Label: label, Code: code, VoteShare: share, BMI: bmi}, nil
}

func (r *Result) Predictor() Predictor {
	return Predictor{Gender: r.Gender, Label: r.Label, Scaler: r.Scaler, Model: r.Model}
}

// Predict 使用本次运行的编码器、标准化器和模型预测单条观测
func (r *Result) Predict(in Input) (Prediction, error) {
	return r.Predictor().Predict(in)
}
