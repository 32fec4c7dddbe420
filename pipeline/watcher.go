package pipeline

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ReloadFunc 重新加载数据集并运行流水线
type ReloadFunc func(ctx context.Context) (*Result, error)

// WatcherConfig 文件监听配置
type WatcherConfig struct {
	Path     string
	Debounce time.Duration
	// OnResult 重新运行成功后调用
	OnResult func(*Result)
	// OnError 重新运行失败时调用，之前的结果保持不变
	OnError func(error)
}

// Watcher 数据集文件变化时重新运行流水线
type Watcher struct {
	config WatcherConfig
	reload ReloadFunc
	logger *zap.Logger

	fsw      *fsnotify.Watcher
	stopChan chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

// NewWatcher 创建监听器
func NewWatcher(config WatcherConfig, reload ReloadFunc, logger *zap.Logger) *Watcher {
	if config.Debounce <= 0 {
		config.Debounce = 500 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		config:   config,
		reload:   reload,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start 开始监听。监听的是所在目录，编辑器替换文件时也能收到事件。
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "create file watcher")
	}
	dir := filepath.Dir(w.config.Path)
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return errors.Wrapf(err, "watch %s", dir)
	}
	w.fsw = fsw
	w.logger.Info("watching dataset", zap.String("path", w.config.Path))

	w.wg.Add(1)
	go w.loop(ctx)
	return nil
}

// Stop 停止监听并等待正在进行的重新加载结束
func (w *Watcher) Stop() {
	w.once.Do(func() {
		close(w.stopChan)
		w.wg.Wait()
		if w.fsw != nil {
			w.fsw.Close()
		}
	})
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()

	target := filepath.Clean(w.config.Path)
	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-w.stopChan:
			return
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.config.Debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.config.Debounce)
			}
			pending = timer.C
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", zap.Error(err))
		case <-pending:
			pending = nil
			w.runReload(ctx)
		}
	}
}

func (w *Watcher) runReload(ctx context.Context) {
	w.logger.Info("dataset changed, re-running pipeline", zap.String("path", w.config.Path))
	result, err := w.reload(ctx)
	if err != nil {
		w.logger.Error("reload failed, keeping previous snapshot", zap.Error(err))
		if w.config.OnError != nil {
			w.config.OnError(err)
		}
		return
	}
	if w.config.OnResult != nil {
		w.config.OnResult(result)
	}
}
