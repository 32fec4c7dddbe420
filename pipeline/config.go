package pipeline

import (
	"github.com/pkg/errors"

	"obesityboard/ml"
)

// Config 流水线参数
type Config struct {
	TreeCount         int     `mapstructure:"tree_count" yaml:"tree_count" json:"tree_count"`
	TestFraction      float64 `mapstructure:"test_fraction" yaml:"test_fraction" json:"test_fraction"`
	Seed              int64   `mapstructure:"seed" yaml:"seed" json:"seed"`
	OutlierMultiplier float64 `mapstructure:"outlier_multiplier" yaml:"outlier_multiplier" json:"outlier_multiplier"`
	MaxFeatures       int     `mapstructure:"max_features" yaml:"max_features" json:"max_features"`
	MaxDepth          int     `mapstructure:"max_depth" yaml:"max_depth" json:"max_depth"`
	Workers           int     `mapstructure:"workers" yaml:"workers" json:"workers"`
	ZeroVariance      string  `mapstructure:"zero_variance" yaml:"zero_variance" json:"zero_variance"`
}

// DefaultConfig 默认参数
func DefaultConfig() Config {
	return Config{
		TreeCount:         100,
		TestFraction:      0.2,
		Seed:              42,
		OutlierMultiplier: ml.DefaultOutlierMultiplier,
		ZeroVariance:      string(ml.ZeroVarianceFallback),
	}
}

// Validate 校验参数
func (c Config) Validate() error {
	if c.TreeCount <= 0 {
		return errors.Errorf("tree_count must be positive, got %d", c.TreeCount)
	}
	if c.TestFraction <= 0 || c.TestFraction >= 1 {
		return errors.Errorf("test_fraction must be in (0, 1), got %v", c.TestFraction)
	}
	if c.OutlierMultiplier < 0 {
		return errors.Errorf("outlier_multiplier must be non-negative, got %v", c.OutlierMultiplier)
	}
	if c.MaxFeatures < 0 || c.MaxDepth < 0 || c.Workers < 0 {
		return errors.New("max_features, max_depth and workers must not be negative")
	}
	switch ml.ZeroVariancePolicy(c.ZeroVariance) {
	case ml.ZeroVarianceFallback, ml.ZeroVarianceReject, "":
	default:
		return errors.Errorf("zero_variance must be %q or %q, got %q", ml.ZeroVarianceFallback, ml.ZeroVarianceReject, c.ZeroVariance)
	}
	return nil
}

func (c Config) forestConfig() ml.ForestConfig {
	return ml.ForestConfig{
		TreeCount:   c.TreeCount,
		MaxFeatures: c.MaxFeatures,
		MaxDepth:    c.MaxDepth,
		Seed:        c.Seed,
		Workers:     c.Workers,
	}
}
