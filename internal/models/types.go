// 本文件用于定义配置与业务模型
package models

import (
	"time"
)

// Config 配置结构体
type Config struct {
	LogLevel       string `yaml:"log_level"`
	LogFile        string `yaml:"log_file"`
	APIBind        string `yaml:"api_bind"` // API 服务监听地址
	APIAuthToken   string `yaml:"api_auth_token"`
	APICORSOrigins string `yaml:"api_cors_origins"`

	DataDir   string `yaml:"data_dir"`   // SQLite 数据目录
	StateFile string `yaml:"state_file"` // 告警管线状态快照文件

	BatchWindow      string `yaml:"batch_window"`        // 批量聚合窗口
	DedupWindow      string `yaml:"dedup_window"`        // 去重窗口
	MaxAlertsPerHour int    `yaml:"max_alerts_per_hour"` // 每小时最大告警数
	DefaultChannels  string `yaml:"default_channels"`    // 默认通知渠道 逗号分隔

	AlertRules     *AlertRuleset `yaml:"alert_rules"`
	AlertRulesFile string        `yaml:"alert_rules_file"`

	SlackWebhookURL string `yaml:"slack_webhook_url"`
	WebhookURL      string `yaml:"webhook_url"`
	EmailHost       string `yaml:"email_host"`
	EmailPort       int    `yaml:"email_port"`
	EmailUser       string `yaml:"email_user"`
	EmailPass       string `yaml:"email_pass"`
	EmailFrom       string `yaml:"email_from"`
	EmailTo         string `yaml:"email_to"`
	EmailUseTLS     bool   `yaml:"email_use_tls"`

	CollectInterval string `yaml:"collect_interval"` // 采集周期
	JenkinsHost     string `yaml:"jenkins_host"`
	JenkinsUser     string `yaml:"jenkins_user"`
	JenkinsToken    string `yaml:"jenkins_token"`
	GitHubToken     string `yaml:"github_token"`
	GitHubRepo      string `yaml:"github_repo"` // owner/repo 格式
	BuildsPerJob    int    `yaml:"builds_per_job"`

	ZScoreThreshold float64 `yaml:"zscore_threshold"` // 异常判定阈值
	MinSamples      int     `yaml:"min_samples"`      // 基线最小样本数

	ReportUpload   string `yaml:"report_upload"` // 报告上传目标 none/oss/s3
	Bucket         string `yaml:"bucket"`
	AK             string `yaml:"ak"`
	SK             string `yaml:"sk"`
	Endpoint       string `yaml:"endpoint"`
	Region         string `yaml:"region"`
	ForcePathStyle bool   `yaml:"force_path_style"`
	DisableSSL     bool   `yaml:"disable_ssl"`

	SystemResourceEnabled bool `yaml:"system_resource_enabled"`
}

// BuildMetric 表示一次构建的采集指标
type BuildMetric struct {
	Source       string    `json:"source"` // jenkins / github
	JobName      string    `json:"job_name"`
	BuildNumber  int64     `json:"build_number"`
	Timestamp    time.Time `json:"timestamp"`
	Duration     float64   `json:"duration"` // 秒
	Result       string    `json:"result"`
	QueueTime    float64   `json:"queue_time"`
	TestCount    int       `json:"test_count"`
	FailureCount int       `json:"failure_count"`
	FailureRate  float64   `json:"failure_rate"`
}

// JobSummary 表示单个任务在统计周期内的构建概况
type JobSummary struct {
	JobName      string  `json:"job_name"`
	Source       string  `json:"source"`
	Builds       int     `json:"builds"`
	SuccessRate  float64 `json:"success_rate"`
	AvgDuration  float64 `json:"avg_duration"`
	AnomalyCount int     `json:"anomaly_count"`
}

// SummaryReport 表示周期性汇总报告
type SummaryReport struct {
	GeneratedAt    time.Time      `json:"generated_at"`
	PeriodDays     int            `json:"period_days"`
	TotalBuilds    int            `json:"total_builds"`
	SuccessRate    float64        `json:"success_rate"`
	AvgDuration    float64        `json:"avg_duration"`
	TotalAnomalies int            `json:"total_anomalies"`
	BySeverity     map[string]int `json:"anomalies_by_severity"`
	Jobs           []JobSummary   `json:"jobs"`
}

// PipelineHealth 表示告警管线健康指标
type PipelineHealth struct {
	PendingInBatch     int    `json:"pendingInBatch"`
	AlertsLastHour     int    `json:"alertsLastHour"`
	RegisteredRules    int    `json:"registeredRules"`
	ActiveMaintenance  int    `json:"activeMaintenance"`
	StateFile          string `json:"stateFile"`
	StateSaveFailTotal uint64 `json:"stateSaveFailTotal"`
}

// HealthSnapshot 表示健康检查返回的运行指标
type HealthSnapshot struct {
	Pipeline      PipelineHealth `json:"pipeline"`
	CycleTotal    uint64         `json:"cycleTotal"`
	LastCycleAt   string         `json:"lastCycleAt"`
	LastCycleErr  string         `json:"lastCycleErr,omitempty"`
	MetricsStored uint64         `json:"metricsStored"`
}
