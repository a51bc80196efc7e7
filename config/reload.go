package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ReloadConfig 热更新配置
type ReloadConfig struct {
	Enabled      bool          // 是否启用热更新
	CooldownTime time.Duration // 冷却时间，避免频繁更新
}

// DefaultReloadConfig 默认热更新配置
func DefaultReloadConfig() ReloadConfig {
	return ReloadConfig{
		Enabled:      true,
		CooldownTime: 5 * time.Second,
	}
}

// Reloader 监听配置文件变化并回调新配置。
// 只有通过校验的配置才会触发回调，坏配置保持旧值继续运行。
type Reloader struct {
	config     ReloadConfig
	configPath string
	watcher    *fsnotify.Watcher
	onReload   func(AppConfig) error
	lastReload time.Time
	mu         sync.Mutex
	stopChan   chan struct{}
	doneChan   chan struct{}
}

// NewReloader 创建热更新器
func NewReloader(configPath string, cfg ReloadConfig, onReload func(AppConfig) error) (*Reloader, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	return &Reloader{
		config:     cfg,
		configPath: configPath,
		watcher:    watcher,
		onReload:   onReload,
		stopChan:   make(chan struct{}),
		doneChan:   make(chan struct{}),
	}, nil
}

// Start 启动热更新监听
func (r *Reloader) Start(ctx context.Context) error {
	if !r.config.Enabled {
		close(r.doneChan)
		return nil
	}
	if err := r.watcher.Add(r.configPath); err != nil {
		return fmt.Errorf("watch config file: %w", err)
	}
	go r.watch(ctx)
	return nil
}

// Stop 停止热更新
func (r *Reloader) Stop() error {
	select {
	case <-r.stopChan:
	default:
		close(r.stopChan)
	}
	select {
	case <-r.doneChan:
	case <-time.After(1 * time.Second):
	}
	if r.watcher != nil {
		return r.watcher.Close()
	}
	return nil
}

func (r *Reloader) watch(ctx context.Context) {
	defer close(r.doneChan)
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopChan:
			return
		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			// 编辑器保存常见的两种事件
			if event.Op&fsnotify.Write == fsnotify.Write ||
				event.Op&fsnotify.Create == fsnotify.Create {
				r.handleChange()
			}
		case _, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (r *Reloader) handleChange() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if time.Since(r.lastReload) < r.config.CooldownTime {
		return
	}
	cfg, err := LoadWithEnvOverrides(r.configPath)
	if err != nil {
		// 保留旧配置继续运行
		return
	}
	if r.onReload != nil {
		if err := r.onReload(cfg); err != nil {
			return
		}
	}
	r.lastReload = time.Now()
}

// LastReloadTime 获取最后一次成功重载的时间
func (r *Reloader) LastReloadTime() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastReload
}
