// 本文件用于规则文件热加载相关测试
package watcher

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"ci-alert/internal/alert"
	"ci-alert/internal/models"
)

func writeRulesFile(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "alert_rules.yaml")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		t.Fatalf("写入规则文件失败: %v", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatalf("替换规则文件失败: %v", err)
	}
	return path
}

func TestRulesWatcherReloadOnAtomicReplace(t *testing.T) {
	dir := t.TempDir()
	path := writeRulesFile(t, dir, "version: 1\nrules:\n  - name: base\n    job_pattern: deploy\n")

	var mu sync.Mutex
	var applied *models.AlertRuleset
	done := make(chan struct{}, 4)

	rw, err := NewRulesWatcher(path, alert.LoadRules, func(ruleset *models.AlertRuleset) error {
		mu.Lock()
		applied = ruleset
		mu.Unlock()
		done <- struct{}{}
		return nil
	})
	if err != nil {
		t.Fatalf("创建规则监控器失败: %v", err)
	}
	defer rw.Close()
	if err := rw.Start(); err != nil {
		t.Fatalf("启动规则监控器失败: %v", err)
	}

	writeRulesFile(t, dir, "version: 2\nrules:\n  - name: base\n    job_pattern: deploy\n  - name: infra\n    job_pattern: infra\n    min_severity: high\n")

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("等待规则热加载超时")
	}

	mu.Lock()
	defer mu.Unlock()
	if applied == nil || len(applied.Rules) != 2 {
		t.Fatalf("热加载后的规则集不符合预期: %+v", applied)
	}
}

func TestRulesWatcherIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := writeRulesFile(t, dir, "version: 1\n")

	applied := make(chan struct{}, 1)
	rw, err := NewRulesWatcher(path, alert.LoadRules, func(ruleset *models.AlertRuleset) error {
		applied <- struct{}{}
		return nil
	})
	if err != nil {
		t.Fatalf("创建规则监控器失败: %v", err)
	}
	defer rw.Close()
	if err := rw.Start(); err != nil {
		t.Fatalf("启动规则监控器失败: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x: 1\n"), 0o644); err != nil {
		t.Fatalf("写入无关文件失败: %v", err)
	}

	select {
	case <-applied:
		t.Fatalf("无关文件不应触发规则重载")
	case <-time.After(1200 * time.Millisecond):
	}
}

func TestNewRulesWatcherValidatesInput(t *testing.T) {
	if _, err := NewRulesWatcher("", alert.LoadRules, func(*models.AlertRuleset) error { return nil }); err == nil {
		t.Fatalf("空路径应返回错误")
	}
	if _, err := NewRulesWatcher("rules.yaml", nil, nil); err == nil {
		t.Fatalf("空回调应返回错误")
	}
}
