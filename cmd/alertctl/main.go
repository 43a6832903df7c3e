// 本文件用于告警状态快照管理命令入口
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"ci-alert/internal/alert"
)

const (
	exitCodeOK       = 0
	exitCodeUsage    = 1
	exitCodeStoreErr = 2
	exitCodeDegraded = 3
)

const (
	defaultDedupWindow = 5 * time.Minute
	rateWindow         = time.Hour
)

type cliOptions struct {
	statePath   string
	action      string
	dedupWindow time.Duration
}

func main() {
	os.Exit(runWithArgs(os.Args[1:], os.Stdout, os.Stderr))
}

func runWithArgs(args []string, stdout io.Writer, stderr io.Writer) int {
	options, err := parseOptions(args, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "alertctl 参数错误: %v\n", err)
		return exitCodeUsage
	}
	code, err := execute(options, stdout)
	if err == nil {
		return code
	}
	fmt.Fprintf(stderr, "alertctl 执行失败: %v\n", err)
	return code
}

func parseOptions(args []string, stderr io.Writer) (cliOptions, error) {
	fs := flag.NewFlagSet("alertctl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	statePath := fs.String("state", "data/alert_state.json", "状态快照文件路径")
	action := fs.String("action", "inspect", "操作类型：inspect|check|prune|reset")
	dedupWindow := fs.Duration("dedup-window", defaultDedupWindow, "去重窗口 prune 时用于判定指纹过期")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "用法：alertctl -action <inspect|check|prune|reset> [-state <path>] [-dedup-window <duration>]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return cliOptions{}, err
	}

	options := cliOptions{
		statePath:   strings.TrimSpace(*statePath),
		action:      strings.ToLower(strings.TrimSpace(*action)),
		dedupWindow: *dedupWindow,
	}
	if options.statePath == "" {
		fs.Usage()
		return cliOptions{}, fmt.Errorf("-state 不能为空")
	}
	if options.dedupWindow <= 0 {
		fs.Usage()
		return cliOptions{}, fmt.Errorf("-dedup-window 必须大于零")
	}

	switch options.action {
	case "inspect", "check", "prune", "reset":
		return options, nil
	default:
		fs.Usage()
		return cliOptions{}, fmt.Errorf("不支持的 action: %s", options.action)
	}
}

func execute(options cliOptions, stdout io.Writer) (int, error) {
	store, err := alert.NewFileStore(options.statePath)
	if err != nil {
		return exitCodeStoreErr, err
	}

	switch options.action {
	case "inspect":
		return handleInspect(store, stdout)
	case "check":
		return handleCheck(store, stdout)
	case "prune":
		return handlePrune(store, options.dedupWindow, stdout)
	case "reset":
		if err := store.Save(&alert.Snapshot{
			Fingerprints: make(map[string]time.Time),
			SavedAt:      time.Now(),
		}); err != nil {
			return exitCodeStoreErr, err
		}
		fmt.Fprintln(stdout, "state reset ok")
		return exitCodeOK, nil
	default:
		return exitCodeUsage, fmt.Errorf("不支持的 action: %s", options.action)
	}
}

func handleInspect(store *alert.FileStore, stdout io.Writer) (int, error) {
	snapshot, err := store.Load()
	if err != nil {
		return exitCodeStoreErr, err
	}
	if snapshot == nil {
		fmt.Fprintf(stdout, "state=%s\n", store.Path())
		fmt.Fprintln(stdout, "snapshot missing, cold start")
		return exitCodeOK, nil
	}
	counters := snapshot.Counters
	fmt.Fprintf(stdout, "state=%s\n", store.Path())
	fmt.Fprintf(stdout, "savedAt=%s\n", formatSavedAt(snapshot.SavedAt))
	fmt.Fprintf(stdout, "fingerprints=%d\n", len(snapshot.Fingerprints))
	fmt.Fprintf(stdout, "alertTimestamps=%d\n", len(snapshot.AlertTimestamps))
	fmt.Fprintf(stdout, "totalReceived=%d\n", counters.TotalReceived)
	fmt.Fprintf(stdout, "totalSent=%d\n", counters.TotalSent)
	fmt.Fprintf(stdout, "suppressedDuplicate=%d\n", counters.SuppressedDuplicate)
	fmt.Fprintf(stdout, "suppressedMaintenance=%d\n", counters.SuppressedMaintenance)
	fmt.Fprintf(stdout, "suppressedRateLimit=%d\n", counters.SuppressedRateLimit)
	fmt.Fprintf(stdout, "suppressedSeverity=%d\n", counters.SuppressedSeverity)
	fmt.Fprintf(stdout, "batched=%d\n", counters.Batched)
	return exitCodeOK, nil
}

func handleCheck(store *alert.FileStore, stdout io.Writer) (int, error) {
	snapshot, err := store.Load()
	if err != nil {
		// 快照损坏时服务仍可冷启动 这里只提示降级
		fmt.Fprintf(stdout, "status=degraded state=%s reason=%v\n", store.Path(), err)
		return exitCodeDegraded, nil
	}
	if snapshot == nil {
		fmt.Fprintf(stdout, "status=ok state=%s snapshot=missing\n", store.Path())
		return exitCodeOK, nil
	}
	fmt.Fprintf(stdout, "status=ok state=%s fingerprints=%d\n", store.Path(), len(snapshot.Fingerprints))
	return exitCodeOK, nil
}

// handlePrune 清理过期指纹与限流时间戳后回写快照
func handlePrune(store *alert.FileStore, dedupWindow time.Duration, stdout io.Writer) (int, error) {
	snapshot, err := store.Load()
	if err != nil {
		return exitCodeStoreErr, err
	}
	if snapshot == nil {
		fmt.Fprintln(stdout, "snapshot missing, nothing to prune")
		return exitCodeOK, nil
	}

	now := time.Now()
	prunedFingerprints := 0
	for fingerprint, sentAt := range snapshot.Fingerprints {
		if now.Sub(sentAt) >= dedupWindow {
			delete(snapshot.Fingerprints, fingerprint)
			prunedFingerprints++
		}
	}
	kept := snapshot.AlertTimestamps[:0]
	for _, ts := range snapshot.AlertTimestamps {
		if now.Sub(ts) < rateWindow {
			kept = append(kept, ts)
		}
	}
	prunedTimestamps := len(snapshot.AlertTimestamps) - len(kept)
	snapshot.AlertTimestamps = kept
	snapshot.SavedAt = now

	if err := store.Save(snapshot); err != nil {
		return exitCodeStoreErr, err
	}
	fmt.Fprintf(stdout, "prune ok: fingerprints=%d timestamps=%d\n", prunedFingerprints, prunedTimestamps)
	return exitCodeOK, nil
}

func formatSavedAt(savedAt time.Time) string {
	if savedAt.IsZero() {
		return "-"
	}
	return savedAt.UTC().Format(time.RFC3339)
}
