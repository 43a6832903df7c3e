// 本文件用于指标存储相关测试
package storage

import (
	"testing"
	"time"

	"ci-alert/internal/models"
)

func newTestStore(t *testing.T) *MetricsStore {
	t.Helper()
	store, err := NewMetricsStore(t.TempDir())
	if err != nil {
		t.Fatalf("初始化指标存储失败: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

func buildMetric(job string, build int64, result string, duration float64) models.BuildMetric {
	return models.BuildMetric{
		Source:      "jenkins",
		JobName:     job,
		BuildNumber: build,
		Timestamp:   time.Now().UTC(),
		Duration:    duration,
		Result:      result,
	}
}

func TestSaveMetricsIdempotent(t *testing.T) {
	store := newTestStore(t)

	batch := []models.BuildMetric{
		buildMetric("build-core", 1, "SUCCESS", 120),
		buildMetric("build-core", 2, "FAILURE", 300),
	}
	inserted, err := store.SaveMetrics(batch)
	if err != nil {
		t.Fatalf("写入指标失败: %v", err)
	}
	if inserted != 2 {
		t.Fatalf("首次写入应新增 2 行, got %d", inserted)
	}

	// 同一批构建重复写入应幂等跳过
	inserted, err = store.SaveMetrics(batch)
	if err != nil {
		t.Fatalf("重复写入失败: %v", err)
	}
	if inserted != 0 {
		t.Fatalf("重复写入不应新增, got %d", inserted)
	}
}

func TestLoadMetricsFilters(t *testing.T) {
	store := newTestStore(t)

	metrics := []models.BuildMetric{
		buildMetric("build-core", 1, "SUCCESS", 100),
		buildMetric("deploy-app", 1, "SUCCESS", 200),
	}
	metrics[1].Source = "github"
	if _, err := store.SaveMetrics(metrics); err != nil {
		t.Fatalf("写入指标失败: %v", err)
	}

	got, err := store.LoadMetrics("jenkins", "build-core", 7)
	if err != nil {
		t.Fatalf("查询指标失败: %v", err)
	}
	if len(got) != 1 || got[0].JobName != "build-core" {
		t.Fatalf("过滤结果异常: %+v", got)
	}

	all, err := store.LoadMetrics("", "", 7)
	if err != nil {
		t.Fatalf("全量查询失败: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("全量查询应返回 2 行, got %d", len(all))
	}

	jobs, err := store.JobNames(7)
	if err != nil {
		t.Fatalf("查询任务列表失败: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("任务列表异常: %v", jobs)
	}
}

func TestAnomalyRoundTrip(t *testing.T) {
	store := newTestStore(t)

	event := &models.AnomalyEvent{
		JobName:    "build-core",
		Source:     "jenkins",
		Severity:   "high",
		MaxZScore:  4.2,
		Features:   []models.AnomalyFeature{{Feature: "duration", Value: 900, Expected: 300, ZScore: 4.2}},
		DetectedAt: time.Now(),
		Detail:     "duration spike",
	}
	if err := store.SaveAnomaly(event); err != nil {
		t.Fatalf("写入异常记录失败: %v", err)
	}

	got, err := store.RecentAnomalies(1)
	if err != nil {
		t.Fatalf("查询异常记录失败: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("应返回 1 条异常, got %d", len(got))
	}
	if got[0].JobName != "build-core" || got[0].Severity != "high" {
		t.Fatalf("异常记录内容异常: %+v", got[0])
	}
	if len(got[0].Features) != 1 || got[0].Features[0].Feature != "duration" {
		t.Fatalf("特征反序列化异常: %+v", got[0].Features)
	}
}

func TestSummaryReport(t *testing.T) {
	store := newTestStore(t)

	metrics := []models.BuildMetric{
		buildMetric("build-core", 1, "SUCCESS", 100),
		buildMetric("build-core", 2, "FAILURE", 300),
		buildMetric("deploy-app", 1, "success", 50),
	}
	if _, err := store.SaveMetrics(metrics); err != nil {
		t.Fatalf("写入指标失败: %v", err)
	}
	if err := store.SaveAnomaly(&models.AnomalyEvent{JobName: "build-core", Severity: "high", DetectedAt: time.Now()}); err != nil {
		t.Fatalf("写入异常记录失败: %v", err)
	}

	report, err := store.SummaryReport(7)
	if err != nil {
		t.Fatalf("生成汇总报告失败: %v", err)
	}
	if report.TotalBuilds != 3 {
		t.Fatalf("构建总数异常: %+v", report)
	}
	if report.SuccessRate < 0.66 || report.SuccessRate > 0.67 {
		t.Fatalf("成功率应约为 2/3, got %v", report.SuccessRate)
	}
	if report.TotalAnomalies != 1 || report.BySeverity["high"] != 1 {
		t.Fatalf("异常统计异常: %+v", report)
	}
	if len(report.Jobs) != 2 {
		t.Fatalf("任务概况异常: %+v", report.Jobs)
	}
	for _, job := range report.Jobs {
		if job.JobName == "build-core" && job.AnomalyCount != 1 {
			t.Fatalf("任务异常计数错误: %+v", job)
		}
	}
}
