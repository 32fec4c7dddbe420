// Package http 提供看板的HTTP服务
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"obesityboard/db"
	"obesityboard/monitoring"
)

// Server HTTP服务器
type Server struct {
	server   *http.Server
	config   ServerConfig
	handlers *Handlers
	logger   *zap.Logger
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port           int           `mapstructure:"port" yaml:"port"`
	Timeout        time.Duration `mapstructure:"timeout" yaml:"timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	// PredictCacheSize 预测结果LRU缓存容量
	PredictCacheSize int   `mapstructure:"predict_cache_size" yaml:"predict_cache_size"`
	MaxBodyBytes     int64 `mapstructure:"max_body_bytes" yaml:"max_body_bytes"`
}

// DefaultServerConfig 默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Port:             8080,
		Timeout:          30 * time.Second,
		AllowedOrigins:   []string{},
		PredictCacheSize: 1024,
		MaxBodyBytes:     1 << 20,
	}
}

// RunLister 训练记录查询
type RunLister interface {
	ListRuns(ctx context.Context, limit int) ([]db.Run, error)
}

// Deps 服务依赖
type Deps struct {
	Dashboard *monitoring.Dashboard
	Hub       *monitoring.WebSocketHub
	Metrics   *monitoring.MetricsCollector
	// Runs 为 nil 时 /api/runs 返回 503
	Runs   RunLister
	Logger *zap.Logger
}

// NewServer 创建HTTP服务器
func NewServer(config ServerConfig, deps Deps) (*Server, error) {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Metrics == nil {
		deps.Metrics = monitoring.NewMetricsCollector()
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultServerConfig().Timeout
	}
	handlers, err := NewHandlers(config, deps)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	handlers.Register(mux)

	// 创建中间件链
	chain := Chain(
		RecoveryMiddleware(deps.Logger),       // 1. 恢复中间件（最先执行，捕获panic）
		LoggerMiddleware(deps.Logger),         // 2. 日志中间件
		MetricsMiddleware(deps.Metrics),       // 3. 请求指标
		SecurityHeadersMiddleware,             // 4. 安全头中间件
		CORSMiddleware(config.AllowedOrigins), // 5. CORS中间件
		TimeoutMiddleware(config.Timeout),     // 6. 超时中间件（websocket除外）
	)

	return &Server{
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", config.Port),
			Handler:           chain(mux),
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		config:   config,
		handlers: handlers,
		logger:   deps.Logger,
	}, nil
}

// Handler 返回带中间件的根处理器
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start 启动服务器，阻塞直到关闭
func (s *Server) Start() error {
	s.logger.Info("starting http server",
		zap.String("addr", s.server.Addr),
		zap.String("websocket", fmt.Sprintf("ws://localhost%s/api/ws/dashboard", s.server.Addr)))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, "server failed")
	}
	return nil
}

// Stop 停止服务器
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	if err := s.server.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "server forced to shutdown")
	}
	return nil
}

// Addr 返回服务器地址
func (s *Server) Addr() string {
	return s.server.Addr
}
