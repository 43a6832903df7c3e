// 本文件用于告警规则文件的热加载监控
package watcher

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"ci-alert/internal/logger"
	"ci-alert/internal/models"
)

const (
	reloadDebounce = 500 * time.Millisecond // 编辑器多次写入合并为一次重载
)

// RuleLoader 负责读取并解析规则文件
type RuleLoader func(path string) (*models.AlertRuleset, error)

// RuleApplier 负责把解析后的规则集应用到告警管线
type RuleApplier func(ruleset *models.AlertRuleset) error

// RulesWatcher 监控规则文件变化并触发热加载
// 监听规则文件所在目录而非文件本身 以覆盖原子替换写入的场景
type RulesWatcher struct {
	watcher *fsnotify.Watcher
	path    string
	load    RuleLoader
	apply   RuleApplier

	stateMutex  sync.Mutex
	reloadTimer *time.Timer
	closed      bool
}

// NewRulesWatcher 创建规则文件监控器
func NewRulesWatcher(path string, load RuleLoader, apply RuleApplier) (*RulesWatcher, error) {
	if path == "" {
		return nil, fmt.Errorf("规则文件路径不能为空")
	}
	if load == nil || apply == nil {
		return nil, fmt.Errorf("规则加载或应用回调不能为空")
	}
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("创建文件监听器失败: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		_ = fsWatcher.Close()
		return nil, fmt.Errorf("解析规则文件路径失败: %w", err)
	}
	return &RulesWatcher{
		watcher: fsWatcher,
		path:    abs,
		load:    load,
		apply:   apply,
	}, nil
}

// Start 启动规则文件监控
func (rw *RulesWatcher) Start() error {
	dir := filepath.Dir(rw.path)
	if err := rw.watcher.Add(dir); err != nil {
		return fmt.Errorf("添加规则目录监控失败: %w", err)
	}

	go rw.handleEvents()

	logger.Info("规则文件热加载已启动: %s", rw.path)
	return nil
}

// Close 关闭规则文件监控
func (rw *RulesWatcher) Close() error {
	rw.stateMutex.Lock()
	rw.closed = true
	if rw.reloadTimer != nil {
		rw.reloadTimer.Stop()
		rw.reloadTimer = nil
	}
	rw.stateMutex.Unlock()

	return rw.watcher.Close()
}

// handleEvents 处理文件事件
func (rw *RulesWatcher) handleEvents() {
	for {
		select {
		case event, ok := <-rw.watcher.Events:
			if !ok {
				return
			}
			rw.handleEvent(event)
		case err, ok := <-rw.watcher.Errors:
			if !ok {
				return
			}
			logger.Error("规则文件监控错误: %v", err)
		}
	}
}

func (rw *RulesWatcher) handleEvent(event fsnotify.Event) {
	if !rw.isRulesFileEvent(event) {
		return
	}
	logger.Debug("规则文件事件: %s, 操作: %s", event.Name, event.Op.String())
	rw.scheduleReload()
}

// isRulesFileEvent 判断事件是否指向规则文件的内容变化
func (rw *RulesWatcher) isRulesFileEvent(event fsnotify.Event) bool {
	abs, err := filepath.Abs(event.Name)
	if err != nil || abs != rw.path {
		return false
	}
	return event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0
}

// scheduleReload 推迟重载 抖动窗口内的连续写入只触发一次
func (rw *RulesWatcher) scheduleReload() {
	rw.stateMutex.Lock()
	defer rw.stateMutex.Unlock()

	if rw.closed {
		return
	}
	if rw.reloadTimer != nil {
		rw.reloadTimer.Stop()
	}
	rw.reloadTimer = time.AfterFunc(reloadDebounce, rw.reload)
}

// reload 加载并应用规则 解析失败时保留现有规则继续服务
func (rw *RulesWatcher) reload() {
	ruleset, err := rw.load(rw.path)
	if err != nil {
		logger.Error("重载规则文件失败: %v", err)
		return
	}
	if err := rw.apply(ruleset); err != nil {
		logger.Error("应用新规则集失败: %v", err)
		return
	}
	logger.Info("规则文件已热加载: rules=%d windows=%d", len(ruleset.Rules), len(ruleset.MaintenanceWindows))
}
