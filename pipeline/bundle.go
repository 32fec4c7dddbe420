package pipeline

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"obesityboard/ml"
)

// Bundle 可持久化的推理链与元数据
type Bundle struct {
	RunID     string             `json:"run_id"`
	CreatedAt time.Time          `json:"created_at"`
	Features  []string           `json:"features"`
	Accuracy  float64            `json:"accuracy"`
	Gender    *ml.LabelEncoder   `json:"gender"`
	Label     *ml.LabelEncoder   `json:"label"`
	Scaler    *ml.StandardScaler `json:"scaler"`
	Model     *ml.RandomForest   `json:"model"`
}

func (r *Result) Bundle() *Bundle {
	return &Bundle{
		RunID:     r.RunID,
		CreatedAt: r.StartedAt,
		Features:  append([]string(nil), FeatureNames...),
		Accuracy:  r.Report.Accuracy,
		Gender:    r.Gender,
		Label:     r.Label,
		Scaler:    r.Scaler,
		Model:     r.Model,
	}
}

func (b *Bundle) Predictor() Predictor {
	return Predictor{Gender: b.Gender, Label: b.Label, Scaler: b.Scaler, Model: b.Model}
}

// Save 以 JSON 写出模型包
func (b *Bundle) Save(path string) error {
	payload, err := json.Marshal(b)
	if err != nil {
		return errors.Wrap(err, "encode bundle")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "create bundle dir %s", dir)
		}
	}
	if err := os.WriteFile(path, payload, 0o600); err != nil {
		return errors.Wrapf(err, "write bundle %s", path)
	}
	return nil
}

// LoadBundle 读取模型包
func LoadBundle(path string) (*Bundle, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read bundle %s", path)
	}
	var b Bundle
	if err := json.Unmarshal(payload, &b); err != nil {
		return nil, errors.Wrap(err, "decode bundle")
	}
	if b.Model == nil || b.Scaler == nil || b.Gender == nil || b.Label == nil {
		return nil, errors.New("bundle is incomplete")
	}
	return &b, nil
}
