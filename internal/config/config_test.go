// 本文件用于配置加载与校验的单元测试
package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("写入配置文件失败: %v", err)
	}
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	path := writeConfigFile(t, "log_level: \"\"\n")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("默认日志级别应为 info, got %s", cfg.LogLevel)
	}
	if cfg.BatchWindow != "60s" {
		t.Fatalf("默认批量窗口应为 60s, got %s", cfg.BatchWindow)
	}
	if cfg.DedupWindow != "5m" {
		t.Fatalf("默认去重窗口应为 5m, got %s", cfg.DedupWindow)
	}
	if cfg.MaxAlertsPerHour != 20 {
		t.Fatalf("默认每小时告警上限应为 20, got %d", cfg.MaxAlertsPerHour)
	}
	if cfg.DefaultChannels != "slack" {
		t.Fatalf("默认渠道应为 slack, got %s", cfg.DefaultChannels)
	}
	if cfg.ZScoreThreshold != 3.0 {
		t.Fatalf("默认 zscore 阈值应为 3.0, got %v", cfg.ZScoreThreshold)
	}
	if cfg.ReportUpload != "none" {
		t.Fatalf("默认报告上传应为 none, got %s", cfg.ReportUpload)
	}
}

func TestLoadConfig_InvalidYaml(t *testing.T) {
	path := writeConfigFile(t, "::::")
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("无效 YAML 应该返回错误")
	}
}

func TestValidateConfig_ReportUpload(t *testing.T) {
	path := writeConfigFile(t, "report_upload: oss\n")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}
	if err := ValidateConfig(cfg); err == nil || !strings.Contains(err.Error(), "Bucket") {
		t.Fatalf("期望 Bucket 校验错误，实际: %v", err)
	}

	cfg.Bucket = "reports"
	cfg.AK = "ak"
	cfg.SK = "sk"
	cfg.Endpoint = "oss-cn-hangzhou.aliyuncs.com"
	if err := ValidateConfig(cfg); err != nil {
		t.Fatalf("OSS 配置完整时校验应通过: %v", err)
	}

	cfg.ReportUpload = "s3"
	if err := ValidateConfig(cfg); err == nil || !strings.Contains(err.Error(), "Region") {
		t.Fatalf("期望 S3 Region 校验错误，实际: %v", err)
	}

	cfg.ReportUpload = "ftp"
	if err := ValidateConfig(cfg); err == nil || !strings.Contains(err.Error(), "无效的报告上传目标") {
		t.Fatalf("期望无效上传目标错误，实际: %v", err)
	}
}

func TestValidateConfig_GitHubRepoFormat(t *testing.T) {
	cfg, err := LoadConfig(writeConfigFile(t, "github_token: tok\ngithub_repo: badformat\n"))
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}
	if err := ValidateConfig(cfg); err == nil || !strings.Contains(err.Error(), "owner/repo") {
		t.Fatalf("期望 GitHub 仓库格式错误，实际: %v", err)
	}
}

func TestParseChannels(t *testing.T) {
	got := ParseChannels(" Slack , email,,slack ")
	if len(got) != 2 || got[0] != "slack" || got[1] != "email" {
		t.Fatalf("渠道解析结果不符合预期: %v", got)
	}
	if len(ParseChannels("")) != 0 {
		t.Fatal("空渠道串应解析为空列表")
	}
}
