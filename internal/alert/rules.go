// 本文件用于告警路由规则与维护窗口的解析校验
package alert

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"ci-alert/internal/models"
)

// Rule 表示编译后的路由规则
type Rule struct {
	Name         string
	JobPattern   string // 已转小写 空串匹配所有任务
	MinSeverity  Severity
	Channels     []string
	TeamName     string
	SlackWebhook string
}

// MatchesJob 判断规则是否命中任务 子串匹配 忽略大小写
func (r *Rule) MatchesJob(jobName string) bool {
	if r.JobPattern == "" {
		return true
	}
	return strings.Contains(strings.ToLower(jobName), r.JobPattern)
}

// SeverityPasses 判断级别是否达到规则门槛
func (r *Rule) SeverityPasses(severity Severity) bool {
	return rankOf(severity) >= rankOf(r.MinSeverity)
}

// Window 表示编译后的维护窗口
type Window struct {
	Name         string
	Start        time.Time
	End          time.Time
	AffectedJobs []string // 为空时影响所有任务
}

// ActiveAt 判断窗口在指定时刻是否生效
func (w *Window) ActiveAt(now time.Time) bool {
	return !now.Before(w.Start) && !now.After(w.End)
}

// AffectsJob 判断窗口是否影响指定任务
func (w *Window) AffectsJob(jobName string) bool {
	if len(w.AffectedJobs) == 0 {
		return true
	}
	for _, job := range w.AffectedJobs {
		if job == jobName {
			return true
		}
	}
	return false
}

// LoadRules 读取并解析规则文件
func LoadRules(path string) (*models.AlertRuleset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取告警规则失败: %w", err)
	}

	var ruleset models.AlertRuleset
	if err := yaml.Unmarshal(data, &ruleset); err != nil {
		return nil, fmt.Errorf("解析告警规则失败: %w", err)
	}
	if ruleset.Version == 0 {
		ruleset.Version = 1
	}
	return &ruleset, nil
}

// compileRule 编译并校验单条规则
func compileRule(raw models.AlertRule) (Rule, error) {
	name := strings.TrimSpace(raw.Name)
	if name == "" {
		return Rule{}, fmt.Errorf("告警规则缺少名称")
	}

	minSeverity := SeverityLow
	if trimmed := strings.ToLower(strings.TrimSpace(raw.MinSeverity)); trimmed != "" {
		parsed, ok := parseSeverity(trimmed)
		if !ok {
			return Rule{}, fmt.Errorf("告警规则 %s 级别无效: %s", name, raw.MinSeverity)
		}
		minSeverity = parsed
	}

	channels := cleanChannels(raw.Channels)
	if len(channels) == 0 {
		channels = []string{"slack"}
	}

	return Rule{
		Name:         name,
		JobPattern:   strings.ToLower(strings.TrimSpace(raw.JobPattern)),
		MinSeverity:  minSeverity,
		Channels:     channels,
		TeamName:     strings.TrimSpace(raw.TeamName),
		SlackWebhook: strings.TrimSpace(raw.SlackWebhook),
	}, nil
}

// compileWindow 编译并校验维护窗口
func compileWindow(raw models.MaintenanceWindow) (Window, error) {
	name := strings.TrimSpace(raw.Name)
	if name == "" {
		return Window{}, fmt.Errorf("维护窗口缺少名称")
	}
	start, err := parseWindowTime(raw.Start)
	if err != nil {
		return Window{}, fmt.Errorf("维护窗口 %s 开始时间无效: %w", name, err)
	}
	end, err := parseWindowTime(raw.End)
	if err != nil {
		return Window{}, fmt.Errorf("维护窗口 %s 结束时间无效: %w", name, err)
	}
	if end.Before(start) {
		return Window{}, fmt.Errorf("维护窗口 %s 结束时间早于开始时间", name)
	}

	jobs := make([]string, 0, len(raw.AffectedJobs))
	for _, job := range raw.AffectedJobs {
		trimmed := strings.TrimSpace(job)
		if trimmed == "" {
			continue
		}
		jobs = append(jobs, trimmed)
	}

	return Window{
		Name:         name,
		Start:        start,
		End:          end,
		AffectedJobs: jobs,
	}, nil
}

// parseWindowTime 解析窗口时间 接受 RFC3339 与常用本地格式
func parseWindowTime(raw string) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}, fmt.Errorf("时间不能为空")
	}
	if ts, err := time.Parse(time.RFC3339, trimmed); err == nil {
		return ts, nil
	}
	if ts, err := time.ParseInLocation("2006-01-02 15:04:05", trimmed, time.Local); err == nil {
		return ts, nil
	}
	return time.Time{}, fmt.Errorf("无效时间: %s", raw)
}

// cleanChannels 清理渠道列表中的空值并统一小写
func cleanChannels(values []string) []string {
	out := make([]string, 0, len(values))
	for _, val := range values {
		trimmed := strings.ToLower(strings.TrimSpace(val))
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}
