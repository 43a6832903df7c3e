// 本文件用于汇总报告生成与上传
// 文件职责：实现当前模块的核心业务逻辑与数据流转
// 关键路径：入口参数先校验再执行业务处理 最后返回统一结果
// 边界与容错：异常场景显式返回错误 由上层决定重试或降级

package report

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"ci-alert/internal/logger"
	"ci-alert/internal/metrics"
	"ci-alert/internal/models"
	"ci-alert/internal/oss"
	"ci-alert/internal/pathutil"
	"ci-alert/internal/s3"
)

// Summarizer 聚合统计周期内的构建与异常概况
type Summarizer interface {
	SummaryReport(days int) (*models.SummaryReport, error)
}

// Uploader 把报告内容写入对象存储并返回下载链接
type Uploader interface {
	UploadBytes(ctx context.Context, objectKey string, data []byte, contentType string) (string, error)
}

// Generator 负责生成汇总报告 可选上传到对象存储
type Generator struct {
	store     Summarizer
	uploader  Uploader
	keyPrefix string
}

// NewGenerator 创建报告生成器 uploader 允许为空
func NewGenerator(store Summarizer, uploader Uploader, keyPrefix string) (*Generator, error) {
	if store == nil {
		return nil, fmt.Errorf("统计数据源不能为空")
	}
	return &Generator{
		store:     store,
		uploader:  uploader,
		keyPrefix: strings.TrimSpace(keyPrefix),
	}, nil
}

// NewUploader 按配置选择对象存储后端 none 时返回空
func NewUploader(config *models.Config) (Uploader, error) {
	switch strings.ToLower(strings.TrimSpace(config.ReportUpload)) {
	case "", "none":
		return nil, nil
	case "oss":
		return oss.NewClient(config)
	case "s3":
		return s3.NewClient(config)
	default:
		return nil, fmt.Errorf("未知报告上传目标: %s", config.ReportUpload)
	}
}

// Generate 生成近 N 天的汇总报告
func (g *Generator) Generate(days int) (*models.SummaryReport, error) {
	if g == nil || g.store == nil {
		return nil, fmt.Errorf("报告生成器未初始化")
	}
	report, err := g.store.SummaryReport(days)
	if err != nil {
		return nil, fmt.Errorf("生成汇总报告失败: %w", err)
	}
	return report, nil
}

// GenerateAndUpload 生成报告并上传 未配置上传目标时只生成
// 返回报告与下载链接 链接为空表示未上传
func (g *Generator) GenerateAndUpload(ctx context.Context, days int) (*models.SummaryReport, string, error) {
	report, err := g.Generate(days)
	if err != nil {
		return nil, "", err
	}
	if g.uploader == nil {
		return report, "", nil
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, "", fmt.Errorf("序列化报告失败: %w", err)
	}
	objectKey := pathutil.BuildReportObjectKey(g.keyPrefix, report.GeneratedAt)

	downloadURL, err := g.uploader.UploadBytes(ctx, objectKey, data, "application/json")
	metrics.Global().ObserveReportUpload(err == nil)
	if err != nil {
		return nil, "", fmt.Errorf("上传报告失败: %w", err)
	}
	logger.Info("汇总报告已上传: %s", downloadURL)
	return report, downloadURL, nil
}
