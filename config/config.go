// Package config 从 YAML 文件、OBESITYBOARD_* 环境变量和默认值加载配置
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"

	"obesityboard/dataset"
	qhttp "obesityboard/http"
	"obesityboard/logger"
	"obesityboard/pipeline"
)

// EnvPrefix 环境变量前缀，例如 OBESITYBOARD_HTTP_PORT
const EnvPrefix = "OBESITYBOARD"

// DefaultFile 未指定 --config 时在当前目录查找的文件
const DefaultFile = "config.yaml"

// Config 全部配置
type Config struct {
	Dataset  DatasetConfig   `mapstructure:"dataset" yaml:"dataset"`
	Pipeline pipeline.Config `mapstructure:"pipeline" yaml:"pipeline"`
	HTTP     HTTPConfig      `mapstructure:"http" yaml:"http"`
	Log      logger.Config   `mapstructure:"log" yaml:"log"`
	Database DatabaseConfig  `mapstructure:"database" yaml:"database"`
	Model    ModelConfig     `mapstructure:"model" yaml:"model"`
}

// DatasetConfig 数据集来源
type DatasetConfig struct {
	Path      string `mapstructure:"path" yaml:"path"`
	Delimiter string `mapstructure:"delimiter" yaml:"delimiter"`
	Encoding  string `mapstructure:"encoding" yaml:"encoding"`
	// Watch 为 true 时 serve 监听文件变化并重新训练
	Watch      bool `mapstructure:"watch" yaml:"watch"`
	DebounceMS int  `mapstructure:"debounce_ms" yaml:"debounce_ms"`
}

// HTTPConfig 看板服务
type HTTPConfig struct {
	Port             int      `mapstructure:"port" yaml:"port"`
	TimeoutSec       int      `mapstructure:"timeout_sec" yaml:"timeout_sec"`
	AllowedOrigins   []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	PredictCacheSize int      `mapstructure:"predict_cache_size" yaml:"predict_cache_size"`
	MaxBodyBytes     int64    `mapstructure:"max_body_bytes" yaml:"max_body_bytes"`
}

// DatabaseConfig 运行日志，Path 为空时关闭
type DatabaseConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// ModelConfig 模型包输出位置，Path 为空时不保存
type ModelConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// Default 默认配置
func Default() *Config {
	server := qhttp.DefaultServerConfig()
	return &Config{
		Dataset: DatasetConfig{
			Path:       "data/obesity_data.csv",
			Delimiter:  ",",
			Encoding:   "utf-8",
			DebounceMS: 500,
		},
		Pipeline: pipeline.DefaultConfig(),
		HTTP: HTTPConfig{
			Port:             server.Port,
			TimeoutSec:       int(server.Timeout / time.Second),
			AllowedOrigins:   []string{},
			PredictCacheSize: server.PredictCacheSize,
			MaxBodyBytes:     server.MaxBodyBytes,
		},
		Log:      logger.DefaultConfig(),
		Database: DatabaseConfig{Path: "data/runs.db"},
		Model:    ModelConfig{Path: ""},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("dataset.path", d.Dataset.Path)
	v.SetDefault("dataset.delimiter", d.Dataset.Delimiter)
	v.SetDefault("dataset.encoding", d.Dataset.Encoding)
	v.SetDefault("dataset.watch", d.Dataset.Watch)
	v.SetDefault("dataset.debounce_ms", d.Dataset.DebounceMS)

	v.SetDefault("pipeline.tree_count", d.Pipeline.TreeCount)
	v.SetDefault("pipeline.test_fraction", d.Pipeline.TestFraction)
	v.SetDefault("pipeline.seed", d.Pipeline.Seed)
	v.SetDefault("pipeline.outlier_multiplier", d.Pipeline.OutlierMultiplier)
	v.SetDefault("pipeline.max_features", d.Pipeline.MaxFeatures)
	v.SetDefault("pipeline.max_depth", d.Pipeline.MaxDepth)
	v.SetDefault("pipeline.workers", d.Pipeline.Workers)
	v.SetDefault("pipeline.zero_variance", d.Pipeline.ZeroVariance)

	v.SetDefault("http.port", d.HTTP.Port)
	v.SetDefault("http.timeout_sec", d.HTTP.TimeoutSec)
	v.SetDefault("http.allowed_origins", d.HTTP.AllowedOrigins)
	v.SetDefault("http.predict_cache_size", d.HTTP.PredictCacheSize)
	v.SetDefault("http.max_body_bytes", d.HTTP.MaxBodyBytes)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)

	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("model.path", d.Model.Path)
}

// Load 加载配置。优先级：环境变量 > 配置文件 > 默认值。
// cfgFile 为空时在当前目录查找可选的 config.yaml；显式指定的文件必须存在。
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config %s", cfgFile)
		}
	} else {
		v.AddConfigPath(".")
		v.SetConfigName(strings.TrimSuffix(DefaultFile, filepath.Ext(DefaultFile)))
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, errors.Wrap(err, "read config")
			}
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Save 把配置写为 YAML
func Save(c *Config, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, "mkdir config dir")
		}
	}
	b, err := Marshal(c)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return errors.Wrap(err, "write config")
	}
	return nil
}

// Marshal 编码为 YAML
func Marshal(c *Config) ([]byte, error) {
	b, err := yaml.Marshal(c)
	if err != nil {
		return nil, errors.Wrap(err, "marshal yaml")
	}
	return b, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	if err := c.Pipeline.Validate(); err != nil {
		return errors.WithMessage(err, "pipeline")
	}
	if _, err := c.Dataset.delimiter(); err != nil {
		return err
	}
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return errors.Errorf("http.port out of range: %d", c.HTTP.Port)
	}
	if c.HTTP.TimeoutSec < 0 {
		return errors.Errorf("http.timeout_sec must not be negative: %d", c.HTTP.TimeoutSec)
	}
	return nil
}

func (d DatasetConfig) delimiter() (rune, error) {
	switch d.Delimiter {
	case "":
		return ',', nil
	case `\t`, "tab":
		return '\t', nil
	}
	if utf8.RuneCountInString(d.Delimiter) != 1 {
		return 0, errors.Errorf("dataset.delimiter must be a single character, got %q", d.Delimiter)
	}
	r, _ := utf8.DecodeRuneInString(d.Delimiter)
	return r, nil
}

// LoadOptions 转换为加载器参数
func (d DatasetConfig) LoadOptions() dataset.LoadOptions {
	r, err := d.delimiter()
	if err != nil {
		r = ','
	}
	return dataset.LoadOptions{Delimiter: r, Encoding: d.Encoding}
}

// Debounce 文件监听防抖间隔
func (d DatasetConfig) Debounce() time.Duration {
	return time.Duration(d.DebounceMS) * time.Millisecond
}

// Server 转换为 HTTP 服务配置
func (h HTTPConfig) Server() qhttp.ServerConfig {
	return qhttp.ServerConfig{
		Port:             h.Port,
		Timeout:          time.Duration(h.TimeoutSec) * time.Second,
		AllowedOrigins:   h.AllowedOrigins,
		PredictCacheSize: h.PredictCacheSize,
		MaxBodyBytes:     h.MaxBodyBytes,
	}
}
