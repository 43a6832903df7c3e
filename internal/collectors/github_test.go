// 本文件用于 GitHub 采集相关测试
package collectors

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ci-alert/internal/models"
)

func TestNewGitHubCollectorValidatesRepo(t *testing.T) {
	cases := []string{"", "owner", "owner/", "/repo", "a/b/c"}
	for _, repo := range cases {
		if _, err := NewGitHubCollector(&models.Config{GitHubRepo: repo}); err == nil {
			t.Fatalf("仓库 %q 应被拒绝", repo)
		}
	}
	if _, err := NewGitHubCollector(&models.Config{GitHubRepo: "octocat/hello"}); err != nil {
		t.Fatalf("合法仓库不应报错: %v", err)
	}
}

func TestGitHubCollect(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/repos/octocat/hello/actions/runs" {
			t.Errorf("请求路径异常: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"total_count": 2,
			"workflow_runs": [
				{
					"name": "ci",
					"run_number": 42,
					"status": "completed",
					"conclusion": "success",
					"created_at": "2026-08-26T10:00:00Z",
					"run_started_at": "2026-08-26T10:00:30Z",
					"updated_at": "2026-08-26T10:05:30Z"
				},
				{
					"name": "ci",
					"run_number": 43,
					"status": "in_progress",
					"conclusion": "",
					"created_at": "2026-08-26T10:10:00Z",
					"run_started_at": "2026-08-26T10:10:10Z",
					"updated_at": "2026-08-26T10:10:10Z"
				}
			]
		}`))
	}))
	defer server.Close()

	collector, err := NewGitHubCollector(&models.Config{GitHubRepo: "octocat/hello", GitHubToken: "tok"})
	if err != nil {
		t.Fatalf("创建采集器失败: %v", err)
	}
	collector.baseURL = server.URL

	metrics, err := collector.Collect(context.Background())
	if err != nil {
		t.Fatalf("采集失败: %v", err)
	}
	if gotAuth != "Bearer tok" {
		t.Fatalf("应携带 token, got %q", gotAuth)
	}
	if len(metrics) != 1 {
		t.Fatalf("进行中的运行应被跳过, got %d", len(metrics))
	}

	metric := metrics[0]
	if metric.Source != "github" || metric.JobName != "ci" || metric.BuildNumber != 42 {
		t.Fatalf("指标映射异常: %+v", metric)
	}
	if metric.Duration != 300 {
		t.Fatalf("耗时应为 300 秒, got %v", metric.Duration)
	}
	if metric.QueueTime != 30 {
		t.Fatalf("排队时长应为 30 秒, got %v", metric.QueueTime)
	}
	if metric.FailureRate != 0 {
		t.Fatalf("成功运行失败率应为 0, got %v", metric.FailureRate)
	}
}

func TestGitHubCollectServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer server.Close()

	collector, err := NewGitHubCollector(&models.Config{GitHubRepo: "octocat/hello"})
	if err != nil {
		t.Fatalf("创建采集器失败: %v", err)
	}
	collector.baseURL = server.URL
	if _, err := collector.Collect(context.Background()); err == nil {
		t.Fatalf("服务端错误应返回 error")
	}
}

func TestRunToMetricFailureAndClamp(t *testing.T) {
	run := workflowRun{
		Name:       "deploy",
		RunNumber:  7,
		Status:     "completed",
		Conclusion: "failure",
		CreatedAt:  time.Date(2026, 8, 26, 10, 0, 10, 0, time.UTC),
		// run_started_at 缺失时回退 created_at
		UpdatedAt: time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC),
	}
	metric := runToMetric(run)
	if metric.FailureRate != 1.0 {
		t.Fatalf("失败运行失败率应为 1, got %v", metric.FailureRate)
	}
	if metric.Duration != 0 || metric.QueueTime != 0 {
		t.Fatalf("负耗时应钳位为 0: %+v", metric)
	}
	if !metric.Timestamp.Equal(run.CreatedAt) {
		t.Fatalf("缺失开始时间应回退创建时间: %+v", metric)
	}
}
