// 本文件用于健康检查的主机资源快照采集
package sysinfo

import (
	"fmt"
	"math"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// HostSnapshot 表示一次主机资源快照
type HostSnapshot struct {
	Hostname    string  `json:"hostname"`
	OS          string  `json:"os"`
	Uptime      string  `json:"uptime"`
	Load        string  `json:"load"`
	CPUUsedPct  float64 `json:"cpuUsedPct"`
	MemUsedPct  float64 `json:"memUsedPct"`
	DiskUsedPct float64 `json:"diskUsedPct"`
	CollectedAt string  `json:"collectedAt"`
}

// Snapshot 采集一次主机资源快照
// 单项采集失败不中断整体 对应字段保持零值
func Snapshot() HostSnapshot {
	snapshot := HostSnapshot{
		CollectedAt: time.Now().Format(time.RFC3339),
	}

	if info, err := host.Info(); err == nil {
		snapshot.Hostname = info.Hostname
		snapshot.OS = fmt.Sprintf("%s %s", info.Platform, info.PlatformVersion)
		snapshot.Uptime = formatUptime(info.Uptime)
	}
	if avg, err := load.Avg(); err == nil {
		snapshot.Load = fmt.Sprintf("%.2f %.2f %.2f", avg.Load1, avg.Load5, avg.Load15)
	}
	// 采样间隔取 0 返回自启动以来的平均占用 避免健康检查阻塞
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		snapshot.CPUUsedPct = round1(percents[0])
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		snapshot.MemUsedPct = round1(vm.UsedPercent)
	}
	if usage, err := disk.Usage("/"); err == nil {
		snapshot.DiskUsedPct = round1(usage.UsedPercent)
	}
	return snapshot
}

// formatUptime 把秒数格式化为人类可读时长
func formatUptime(seconds uint64) string {
	duration := time.Duration(seconds) * time.Second
	days := int(duration.Hours()) / 24
	hours := int(duration.Hours()) % 24
	minutes := int(duration.Minutes()) % 60
	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}

func round1(value float64) float64 {
	return math.Round(value*10) / 10
}
