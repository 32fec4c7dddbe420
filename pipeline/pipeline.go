package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"obesityboard/dataset"
	"obesityboard/ml"
)

// FeatureNames 特征列顺序，与特征矩阵列一一对应
var FeatureNames = []string{"Age", "Height", "Weight", "BMI", "Gender"}

// Result 一次流水线运行的不可变结果
type Result struct {
	RunID     string        `json:"run_id"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Config    Config        `json:"config"`

	InputRows int              `json:"input_rows"`
	Removed   int              `json:"removed"`
	Bounds    ml.IQRBounds     `json:"bounds"`
	Records   []dataset.Record `json:"-"`

	Gender *ml.LabelEncoder   `json:"gender_classes"`
	Label  *ml.LabelEncoder   `json:"label_classes"`
	Scaler *ml.StandardScaler `json:"scaler"`
	Model  *ml.RandomForest   `json:"-"`

	TrainIndex []int `json:"-"`
	TestIndex  []int `json:"-"`

	Importances []ml.FeatureImportance   `json:"importances"`
	Report      *ml.ClassificationReport `json:"report"`

	Quality      []QualityIssue `json:"quality_issues"`
	QualityStats AuditStats     `json:"quality_stats"`
}

// Options 可选钩子
type Options struct {
	// OnTreeFitted 每棵树训练完成后回调
	OnTreeFitted func(done, total int)
	Auditor      *Auditor
}

// PrepareAndEvaluate 过滤、编码、标准化、切分、训练并评估。任何一步失败都返回错误，不产生部分结果。
func PrepareAndEvaluate(ctx context.Context, records []dataset.Record, cfg Config, logger *zap.Logger) (*Result, error) {
	return Run(ctx, records, cfg, logger, Options{})
}

func Run(ctx context.Context, records []dataset.Record, cfg Config, logger *zap.Logger, opts Options) (*Result, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid pipeline config")
	}
	started := time.Now()
	runID := uuid.NewString()
	log := logger.With(zap.String("run_id", runID))

	filtered, bounds, err := ml.FilterOutliers(records, cfg.OutlierMultiplier)
	if err != nil {
		return nil, errors.WithMessage(err, "outlier filter")
	}
	log.Info("outliers removed",
		zap.Int("input", len(records)),
		zap.Int("kept", len(filtered)),
		zap.Float64("lower", bounds.Lower),
		zap.Float64("upper", bounds.Upper))

	auditor := opts.Auditor
	if auditor == nil {
		auditor = NewAuditor()
	}
	issues, stats := auditor.Audit(filtered)
	if stats.Flagged > 0 {
		log.Warn("data quality issues found", zap.Int("flagged_rows", stats.Flagged), zap.Any("by_rule", stats.Issues))
	}

	genderEnc, err := ml.NewLabelEncoder(dataset.Genders(filtered))
	if err != nil {
		return nil, errors.WithMessage(err, "encode gender")
	}
	labelEnc, err := ml.NewLabelEncoder(dataset.Labels(filtered))
	if err != nil {
		return nil, errors.WithMessage(err, "encode label")
	}
	genders, err := genderEnc.Transform(dataset.Genders(filtered))
	if err != nil {
		return nil, errors.WithMessage(err, "encode gender")
	}
	y, err := labelEnc.Transform(dataset.Labels(filtered))
	if err != nil {
		return nil, errors.WithMessage(err, "encode label")
	}

	X := make([][]float64, len(filtered))
	for i, r := range filtered {
		X[i] = featureRow(r.Age, r.Height, r.Weight, r.BMI, genders[i])
	}

	scaler := ml.NewStandardScaler(ml.ZeroVariancePolicy(cfg.ZeroVariance))
	scaled, err := scaler.FitTransform(X)
	if err != nil {
		return nil, errors.WithMessage(err, "scale features")
	}
	for _, col := range scaler.ZeroVariance {
		log.Warn("zero-variance feature left centered only", zap.String("feature", FeatureNames[col]))
	}

	split, err := ml.TrainTestSplit(scaled, y, cfg.TestFraction, cfg.Seed)
	if err != nil {
		return nil, errors.WithMessage(err, "train/test split")
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	forest := ml.NewRandomForest(cfg.forestConfig())
	forest.OnTreeFitted = opts.OnTreeFitted
	if err := forest.Fit(ctx, split.TrainX, split.TrainY, labelEnc.Len()); err != nil {
		return nil, errors.WithMessage(err, "fit forest")
	}
	log.Debug("forest fitted", zap.Int("trees", forest.Trees()), zap.Int("nodes", forest.NodeCount()))

	importances, err := ml.RankImportances(FeatureNames, forest.FeatureImportances())
	if err != nil {
		return nil, err
	}
	predicted, err := forest.PredictBatch(split.TestX)
	if err != nil {
		return nil, errors.WithMessage(err, "predict test split")
	}
	report, err := ml.Evaluate(split.TestY, predicted, labelEnc.Classes())
	if err != nil {
		return nil, errors.WithMessage(err, "evaluate")
	}

	result := &Result{
		RunID:        runID,
		StartedAt:    started,
		Duration:     time.Since(started),
		Config:       cfg,
		InputRows:    len(records),
		Removed:      len(records) - len(filtered),
		Bounds:       bounds,
		Records:      filtered,
		Gender:       genderEnc,
		Label:        labelEnc,
		Scaler:       scaler,
		Model:        forest,
		TrainIndex:   split.TrainIndex,
		TestIndex:    split.TestIndex,
		Importances:  importances,
		Report:       report,
		Quality:      issues,
		QualityStats: stats,
	}
	log.Info("pipeline finished",
		zap.Float64("accuracy", report.Accuracy),
		zap.Int("train", len(split.TrainIndex)),
		zap.Int("test", len(split.TestIndex)),
		zap.Duration("took", result.Duration))
	return result, nil
}

func featureRow(age int, height, weight, bmi float64, gender int) []float64 {
	return []float64{float64(age), height, weight, bmi, float64(gender)}
}
