package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v2"

	"ci-alert/internal/models"
)

// LoadConfig 加载配置文件
func LoadConfig(configFile string) (*models.Config, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %v", err)
	}

	var config models.Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %v", err)
	}

	applyDefaults(&config)
	return &config, nil
}

// applyDefaults 设置缺省配置
func applyDefaults(config *models.Config) {
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
	if config.APIBind == "" {
		config.APIBind = ":8080"
	}
	if config.DataDir == "" {
		config.DataDir = "data"
	}
	if config.StateFile == "" {
		config.StateFile = "data/alert_state.json"
	}
	if config.BatchWindow == "" {
		config.BatchWindow = "60s"
	}
	if config.DedupWindow == "" {
		config.DedupWindow = "5m"
	}
	if config.MaxAlertsPerHour <= 0 {
		config.MaxAlertsPerHour = 20
	}
	if config.DefaultChannels == "" {
		config.DefaultChannels = "slack"
	}
	if config.CollectInterval == "" {
		config.CollectInterval = "5m"
	}
	if config.BuildsPerJob <= 0 {
		config.BuildsPerJob = 50
	}
	if config.ZScoreThreshold <= 0 {
		config.ZScoreThreshold = 3.0
	}
	if config.MinSamples <= 0 {
		config.MinSamples = 10
	}
	if config.ReportUpload == "" {
		config.ReportUpload = "none"
	}
}

// ValidateConfig 验证配置
func ValidateConfig(config *models.Config) error {
	if config.MaxAlertsPerHour <= 0 {
		return fmt.Errorf("每小时最大告警数必须大于零")
	}
	switch strings.ToLower(config.ReportUpload) {
	case "none", "":
	case "oss", "s3":
		if config.Bucket == "" {
			return fmt.Errorf("报告上传 Bucket 不能为空")
		}
		if config.AK == "" || config.SK == "" {
			return fmt.Errorf("报告上传认证信息不能为空")
		}
		if config.Endpoint == "" {
			return fmt.Errorf("报告上传 Endpoint 不能为空")
		}
		if strings.ToLower(config.ReportUpload) == "s3" && config.Region == "" {
			return fmt.Errorf("S3 Region不能为空")
		}
	default:
		return fmt.Errorf("无效的报告上传目标: %s", config.ReportUpload)
	}
	if config.JenkinsHost != "" && config.JenkinsUser == "" {
		return fmt.Errorf("Jenkins 用户不能为空")
	}
	if config.GitHubToken != "" && !strings.Contains(config.GitHubRepo, "/") {
		return fmt.Errorf("GitHub 仓库必须为 owner/repo 格式")
	}
	return nil
}

// ParseChannels 解析渠道列表 逗号分隔 去重去空
func ParseChannels(raw string) []string {
	parts := strings.Split(raw, ",")
	seen := make(map[string]struct{})
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.ToLower(strings.TrimSpace(part))
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}
