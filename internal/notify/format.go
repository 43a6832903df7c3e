// 本文件用于告警消息文本组装
package notify

import (
	"fmt"
	"sort"
	"strings"

	"ci-alert/internal/alert"
	"ci-alert/internal/models"
)

// severityColors Slack attachment 颜色 与级别一一对应
var severityColors = map[alert.Severity]string{
	alert.SeverityLow:      "#36a64f",
	alert.SeverityMedium:   "#ffcc00",
	alert.SeverityHigh:     "#ff6600",
	alert.SeverityCritical: "#ff0000",
}

func severityColor(severity alert.Severity) string {
	if color, ok := severityColors[severity]; ok {
		return color
	}
	return severityColors[alert.SeverityLow]
}

// formatEvent 组装单条告警的标题与正文
func formatEvent(event *models.AnomalyEvent) (string, string) {
	severity := alert.ClassifySeverity(event)
	job := jobOf(event)

	title := fmt.Sprintf("CI Anomaly: %s [%s]", job, strings.ToUpper(string(severity)))

	var builder strings.Builder
	fmt.Fprintf(&builder, "job: %s\n", job)
	if event != nil && event.Source != "" {
		fmt.Fprintf(&builder, "source: %s\n", event.Source)
	}
	if event != nil && event.MaxZScore > 0 {
		fmt.Fprintf(&builder, "max z-score: %.2f\n", event.MaxZScore)
	}
	if event != nil {
		for _, feature := range event.Features {
			fmt.Fprintf(&builder, "- %s: %.2f (expected %.2f, z=%.2f)\n",
				feature.Feature, feature.Value, feature.Expected, feature.ZScore)
		}
		if event.Detail != "" {
			fmt.Fprintf(&builder, "detail: %s\n", event.Detail)
		}
		if !event.DetectedAt.IsZero() {
			fmt.Fprintf(&builder, "detected at: %s\n", event.DetectedAt.Format("2006-01-02 15:04:05"))
		}
	}
	return title, strings.TrimRight(builder.String(), "\n")
}

// formatBatch 组装批量告警摘要 按任务聚合
// 批次整体级别取事件中的最高级别
func formatBatch(events []*models.AnomalyEvent) (string, string, alert.Severity) {
	topSeverity := alert.SeverityLow
	byJob := make(map[string]int)
	for _, event := range events {
		byJob[jobOf(event)]++
		if severity := alert.ClassifySeverity(event); severityRank(severity) > severityRank(topSeverity) {
			topSeverity = severity
		}
	}

	title := fmt.Sprintf("CI Anomaly Batch: %d anomalies [%s]", len(events), strings.ToUpper(string(topSeverity)))

	jobs := make([]string, 0, len(byJob))
	for job := range byJob {
		jobs = append(jobs, job)
	}
	sort.Strings(jobs)

	var builder strings.Builder
	fmt.Fprintf(&builder, "%d anomalies across %d jobs:\n", len(events), len(jobs))
	for _, job := range jobs {
		fmt.Fprintf(&builder, "- %s: %d\n", job, byJob[job])
	}
	return title, strings.TrimRight(builder.String(), "\n"), topSeverity
}

func severityRank(severity alert.Severity) int {
	switch severity {
	case alert.SeverityCritical:
		return 3
	case alert.SeverityHigh:
		return 2
	case alert.SeverityMedium:
		return 1
	default:
		return 0
	}
}

func jobOf(event *models.AnomalyEvent) string {
	if event == nil || strings.TrimSpace(event.JobName) == "" {
		return "unknown"
	}
	return strings.TrimSpace(event.JobName)
}
