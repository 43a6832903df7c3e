// 本文件用于定义告警路由规则结构体
package models

// AlertRuleset 表示告警路由规则集
type AlertRuleset struct {
	Version            int                 `yaml:"version" json:"version"`
	Rules              []AlertRule         `yaml:"rules" json:"rules"`
	MaintenanceWindows []MaintenanceWindow `yaml:"maintenance_windows" json:"maintenance_windows"`
}

// AlertRule 表示单条路由规则 按插入顺序求值 首个匹配生效
type AlertRule struct {
	Name         string   `yaml:"name" json:"name"`
	JobPattern   string   `yaml:"job_pattern" json:"job_pattern"` // 子串匹配 为空时匹配所有任务
	MinSeverity  string   `yaml:"min_severity" json:"min_severity"`
	Channels     []string `yaml:"channels" json:"channels"`
	TeamName     string   `yaml:"team_name" json:"team_name"`
	SlackWebhook string   `yaml:"slack_webhook" json:"slack_webhook"` // 覆盖基础 webhook
}

// MaintenanceWindow 表示维护窗口 窗口内匹配任务的告警被静默
type MaintenanceWindow struct {
	Name         string   `yaml:"name" json:"name"`
	Start        string   `yaml:"start" json:"start"` // RFC3339
	End          string   `yaml:"end" json:"end"`
	AffectedJobs []string `yaml:"affected_jobs" json:"affected_jobs"` // 为空时影响所有任务
}
