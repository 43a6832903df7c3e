// 本文件用于 Jenkins 构建指标采集
package collectors

import (
	"context"
	"fmt"

	"github.com/bndr/gojenkins"

	"ci-alert/internal/logger"
	"ci-alert/internal/models"
)

const defaultBuildsPerJob = 50

// JenkinsCollector 通过 Jenkins API 拉取各任务的最近构建
type JenkinsCollector struct {
	jenkins      *gojenkins.Jenkins
	buildsPerJob int
}

// NewJenkinsCollector 创建 Jenkins 采集器并验证连接
func NewJenkinsCollector(config *models.Config) (*JenkinsCollector, error) {
	logger.Info("初始化 Jenkins 采集器...")

	jenkins := gojenkins.CreateJenkins(nil, config.JenkinsHost, config.JenkinsUser, config.JenkinsToken)
	if _, err := jenkins.Init(context.Background()); err != nil {
		return nil, fmt.Errorf("jenkins 初始化失败: %w", err)
	}

	buildsPerJob := config.BuildsPerJob
	if buildsPerJob <= 0 {
		buildsPerJob = defaultBuildsPerJob
	}

	logger.Info("Jenkins 连接成功: %s", config.JenkinsHost)
	return &JenkinsCollector{
		jenkins:      jenkins,
		buildsPerJob: buildsPerJob,
	}, nil
}

// Name 返回来源标识
func (c *JenkinsCollector) Name() string {
	return "jenkins"
}

// Collect 拉取全部任务的最近构建指标
// 单个任务失败只记日志 不中断整轮采集
func (c *JenkinsCollector) Collect(ctx context.Context) ([]models.BuildMetric, error) {
	jobNames, err := c.jenkins.GetAllJobNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("获取 Jenkins 任务列表失败: %w", err)
	}

	out := make([]models.BuildMetric, 0, len(jobNames)*4)
	for _, jobName := range jobNames {
		metrics, err := c.collectJob(ctx, jobName.Name)
		if err != nil {
			logger.Warn("采集任务 %s 失败: %v", jobName.Name, err)
			continue
		}
		out = append(out, metrics...)
	}
	logger.Info("Jenkins 采集完成: jobs=%d metrics=%d", len(jobNames), len(out))
	return out, nil
}

func (c *JenkinsCollector) collectJob(ctx context.Context, jobName string) ([]models.BuildMetric, error) {
	job, err := c.jenkins.GetJob(ctx, jobName)
	if err != nil {
		return nil, fmt.Errorf("获取任务失败: %w", err)
	}
	buildIds, err := job.GetAllBuildIds(ctx)
	if err != nil {
		return nil, fmt.Errorf("获取构建列表失败: %w", err)
	}

	out := make([]models.BuildMetric, 0, c.buildsPerJob)
	for idx, buildId := range buildIds {
		if idx >= c.buildsPerJob {
			break
		}
		build, err := job.GetBuild(ctx, buildId.Number)
		if err != nil {
			logger.Debug("获取构建 %s#%d 失败: %v", jobName, buildId.Number, err)
			continue
		}
		// 进行中的构建耗时不完整 跳过
		if build.IsRunning(ctx) {
			continue
		}
		out = append(out, buildToMetric(jobName, build))
	}
	return out, nil
}

// buildToMetric 把 Jenkins 构建映射为统一指标
func buildToMetric(jobName string, build *gojenkins.Build) models.BuildMetric {
	result := build.GetResult()
	failureRate := 0.0
	if result != "SUCCESS" {
		failureRate = 1.0
	}
	return models.BuildMetric{
		Source:      "jenkins",
		JobName:     jobName,
		BuildNumber: build.GetBuildNumber(),
		Timestamp:   build.GetTimestamp(),
		Duration:    build.GetDuration() / 1000, // 毫秒转秒
		Result:      result,
		FailureRate: failureRate,
	}
}
