package cmd

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"obesityboard/config"
	"obesityboard/dataset"
	"obesityboard/db"
	"obesityboard/pipeline"
)

// runPipeline 读取数据集并运行一次完整流水线
func runPipeline(ctx context.Context, c *config.Config, logger *zap.Logger, opts pipeline.Options) (*pipeline.Result, error) {
	records, err := dataset.Load(c.Dataset.Path, c.Dataset.LoadOptions())
	if err != nil {
		return nil, err
	}
	logger.Info("dataset loaded", zap.String("path", c.Dataset.Path), zap.Int("rows", len(records)))
	return pipeline.Run(ctx, records, c.Pipeline, logger, opts)
}

// openStore 数据库路径为空时返回 nil
func openStore(c *config.Config) (*db.Store, error) {
	if c.Database.Path == "" {
		return nil, nil
	}
	store, err := db.Open(c.Database.Path)
	if err != nil {
		return nil, errors.WithMessage(err, "open run log")
	}
	return store, nil
}

func saveBundle(result *pipeline.Result, path string, logger *zap.Logger) error {
	if path == "" {
		return nil
	}
	if err := result.Bundle().Save(path); err != nil {
		return err
	}
	logger.Info("model bundle saved", zap.String("path", path))
	return nil
}
