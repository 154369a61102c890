package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const reloadDelay = 300 * time.Millisecond

// Watcher 监听配置文件变化并重新加载
type Watcher struct {
	fs       afero.Fs
	path     string
	onChange func(*Config)
	logger   *zap.Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	timer   *time.Timer
}

// NewWatcher 创建配置监听器，path 应为绝对路径
func NewWatcher(fs afero.Fs, path string, onChange func(*Config), logger *zap.Logger) *Watcher {
	return &Watcher{
		fs:       fs,
		path:     filepath.Clean(path),
		onChange: onChange,
		logger:   logger,
	}
}

// Start 开始监听，ctx 结束后自动停止
func (w *Watcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("创建文件监控器失败: %w", err)
	}

	// 监听所在目录，编辑器保存时通常是替换文件
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("添加文件监控失败: %w", err)
	}

	w.mu.Lock()
	w.watcher = watcher
	w.mu.Unlock()

	go w.loop(ctx, watcher)
	w.logger.Info("配置文件监听已启动", zap.String("path", w.path))
	return nil
}

func (w *Watcher) loop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer watcher.Close()
	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			if w.timer != nil {
				w.timer.Stop()
			}
			w.mu.Unlock()
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.scheduleReload()
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("文件监控错误", zap.Error(err))
		}
	}
}

// scheduleReload 合并短时间内的多次写入
func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(reloadDelay, w.reload)
}

func (w *Watcher) reload() {
	cfg, err := Load(w.fs, w.path)
	if err != nil {
		// 保留旧配置
		w.logger.Error("重新加载配置失败", zap.String("path", w.path), zap.Error(err))
		return
	}
	w.logger.Info("配置已重新加载", zap.String("path", w.path))
	w.onChange(cfg)
}
