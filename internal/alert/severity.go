// 本文件用于异常级别判定
package alert

import (
	"strings"

	"ci-alert/internal/models"
)

// 分值阶梯 与检测器的 z-score 语义对齐
const (
	criticalScore = 5.0
	highScore     = 4.0
	mediumScore   = 2.5
)

// ClassifySeverity 判定事件级别
// 事件携带显式级别时原样采用 否则按异常分值阶梯推导 永远有返回值
func ClassifySeverity(event *models.AnomalyEvent) Severity {
	if event != nil {
		if severity, ok := parseSeverity(strings.ToLower(strings.TrimSpace(event.Severity))); ok {
			return severity
		}
	}
	score := 0.0
	if event != nil {
		score = event.MaxZScore
	}
	switch {
	case score > criticalScore:
		return SeverityCritical
	case score > highScore:
		return SeverityHigh
	case score > mediumScore:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// jobNameOf 提取任务标识 缺失时退回 unknown 保证事件总能被归类
func jobNameOf(event *models.AnomalyEvent) string {
	if event == nil {
		return "unknown"
	}
	name := strings.TrimSpace(event.JobName)
	if name == "" {
		return "unknown"
	}
	return name
}
