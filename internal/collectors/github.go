// 本文件用于 GitHub Actions 构建指标采集
package collectors

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ci-alert/internal/logger"
	"ci-alert/internal/models"
)

const githubAPIBase = "https://api.github.com"

// GitHubCollector 通过 GitHub REST API 拉取 Actions 工作流运行记录
type GitHubCollector struct {
	token   string
	owner   string
	repo    string
	perPage int
	baseURL string // 测试时可指向本地服务
	client  *http.Client
}

// workflowRunsResponse GitHub /actions/runs 响应体
type workflowRunsResponse struct {
	TotalCount   int           `json:"total_count"`
	WorkflowRuns []workflowRun `json:"workflow_runs"`
}

type workflowRun struct {
	Name         string    `json:"name"`
	RunNumber    int64     `json:"run_number"`
	Status       string    `json:"status"`
	Conclusion   string    `json:"conclusion"`
	CreatedAt    time.Time `json:"created_at"`
	RunStartedAt time.Time `json:"run_started_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NewGitHubCollector 创建 GitHub 采集器
// repo 必须是 owner/repo 格式
func NewGitHubCollector(config *models.Config) (*GitHubCollector, error) {
	parts := strings.Split(strings.TrimSpace(config.GitHubRepo), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("github 仓库格式无效: %s", config.GitHubRepo)
	}
	perPage := config.BuildsPerJob
	if perPage <= 0 {
		perPage = defaultBuildsPerJob
	}
	if perPage > 100 {
		perPage = 100
	}
	return &GitHubCollector{
		token:   strings.TrimSpace(config.GitHubToken),
		owner:   parts[0],
		repo:    parts[1],
		perPage: perPage,
		baseURL: githubAPIBase,
		client:  &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Name 返回来源标识
func (c *GitHubCollector) Name() string {
	return "github"
}

// Collect 拉取最近完成的工作流运行
func (c *GitHubCollector) Collect(ctx context.Context) ([]models.BuildMetric, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/actions/runs?per_page=%d&status=completed",
		c.baseURL, c.owner, c.repo, c.perPage)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("创建 GitHub 请求失败: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("请求 GitHub API 失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("GitHub API 状态码异常: %d %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed workflowRunsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("解析 GitHub 响应失败: %w", err)
	}

	out := make([]models.BuildMetric, 0, len(parsed.WorkflowRuns))
	for _, run := range parsed.WorkflowRuns {
		if run.Status != "completed" {
			continue
		}
		out = append(out, runToMetric(run))
	}
	logger.Info("GitHub 采集完成: repo=%s/%s metrics=%d", c.owner, c.repo, len(out))
	return out, nil
}

// runToMetric 把工作流运行映射为统一指标
func runToMetric(run workflowRun) models.BuildMetric {
	startedAt := run.RunStartedAt
	if startedAt.IsZero() {
		startedAt = run.CreatedAt
	}
	duration := run.UpdatedAt.Sub(startedAt).Seconds()
	if duration < 0 {
		duration = 0
	}
	queueTime := startedAt.Sub(run.CreatedAt).Seconds()
	if queueTime < 0 {
		queueTime = 0
	}
	failureRate := 0.0
	if run.Conclusion != "success" {
		failureRate = 1.0
	}
	jobName := run.Name
	if jobName == "" {
		jobName = "workflow"
	}
	return models.BuildMetric{
		Source:      "github",
		JobName:     jobName,
		BuildNumber: run.RunNumber,
		Timestamp:   startedAt,
		Duration:    duration,
		Result:      run.Conclusion,
		QueueTime:   queueTime,
		FailureRate: failureRate,
	}
}
