// 本文件用于调度器相关测试
package scheduler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"ci-alert/internal/alert"
	"ci-alert/internal/collectors"
	"ci-alert/internal/detector"
	"ci-alert/internal/models"
	"ci-alert/internal/storage"
)

type fakeSource struct {
	name    string
	metrics []models.BuildMetric
	err     error
	calls   int
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Collect(ctx context.Context) ([]models.BuildMetric, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.metrics, nil
}

type noopNotifier struct {
	sent int
}

func (n *noopNotifier) SendOne(ctx context.Context, event *models.AnomalyEvent, channels []string) bool {
	n.sent++
	return true
}

func (n *noopNotifier) SendBatch(ctx context.Context, events []*models.AnomalyEvent, channels []string) bool {
	n.sent += len(events)
	return true
}

func (n *noopNotifier) WithWebhook(webhook string) alert.Notifier { return n }

func newTestDeps(t *testing.T) (*storage.MetricsStore, *alert.Pipeline, *noopNotifier) {
	t.Helper()
	store, err := storage.NewMetricsStore(t.TempDir())
	if err != nil {
		t.Fatalf("初始化指标存储失败: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	notifier := &noopNotifier{}
	pipeline, err := alert.NewPipeline(alert.Options{}, notifier, nil)
	if err != nil {
		t.Fatalf("创建管线失败: %v", err)
	}
	return store, pipeline, notifier
}

func stableSeries(job string, count int, duration float64) []models.BuildMetric {
	out := make([]models.BuildMetric, 0, count)
	base := time.Now().Add(-time.Duration(count) * time.Hour)
	for i := 0; i < count; i++ {
		out = append(out, models.BuildMetric{
			Source:      "jenkins",
			JobName:     job,
			BuildNumber: int64(i + 1),
			Timestamp:   base.Add(time.Duration(i) * time.Hour),
			Duration:    duration,
		})
	}
	return out
}

func TestRunCycleStoresAndAlerts(t *testing.T) {
	store, pipeline, notifier := newTestDeps(t)

	// 稳定基线加一个明显尖峰 构造可检出的异常
	series := stableSeries("build-core", 12, 100)
	for i := range series {
		series[i].Duration = 100 + float64(i%3)
	}
	series[len(series)-1].Duration = 900

	source := &fakeSource{name: "jenkins", metrics: series}
	sched, err := New(time.Minute, []collectors.Collector{source}, store, detector.New(3.0, 5), pipeline)
	if err != nil {
		t.Fatalf("创建调度器失败: %v", err)
	}

	if err := sched.RunCycle(context.Background()); err != nil {
		t.Fatalf("采集周期失败: %v", err)
	}
	if source.calls != 1 {
		t.Fatalf("来源应被调用一次, got %d", source.calls)
	}
	if notifier.sent == 0 {
		t.Fatalf("尖峰应触发告警发送")
	}

	anomalies, err := store.RecentAnomalies(1)
	if err != nil {
		t.Fatalf("查询异常记录失败: %v", err)
	}
	if len(anomalies) == 0 {
		t.Fatalf("异常检出应落库")
	}

	var snapshot models.HealthSnapshot
	sched.Status(&snapshot)
	if snapshot.CycleTotal != 1 || snapshot.MetricsStored == 0 {
		t.Fatalf("调度状态异常: %+v", snapshot)
	}
}

func TestRunCycleCollectorFailureIsIsolated(t *testing.T) {
	store, pipeline, _ := newTestDeps(t)

	bad := &fakeSource{name: "jenkins", err: fmt.Errorf("connection refused")}
	good := &fakeSource{name: "github", metrics: stableSeries("deploy", 3, 50)}
	for i := range good.metrics {
		good.metrics[i].Source = "github"
	}

	sched, err := New(time.Minute, []collectors.Collector{bad, good}, store, detector.New(3.0, 5), pipeline)
	if err != nil {
		t.Fatalf("创建调度器失败: %v", err)
	}

	cycleErr := sched.RunCycle(context.Background())
	if cycleErr == nil {
		t.Fatalf("失败来源应反映到周期错误")
	}
	if good.calls != 1 {
		t.Fatalf("失败来源不应阻断其他来源")
	}

	stored, err := store.LoadMetrics("github", "", 7)
	if err != nil {
		t.Fatalf("查询指标失败: %v", err)
	}
	if len(stored) != 3 {
		t.Fatalf("正常来源的指标应落库, got %d", len(stored))
	}

	var snapshot models.HealthSnapshot
	sched.Status(&snapshot)
	if snapshot.LastCycleErr == "" {
		t.Fatalf("周期错误应记录到状态")
	}
}

func TestNewValidatesDeps(t *testing.T) {
	store, pipeline, _ := newTestDeps(t)
	if _, err := New(time.Minute, nil, nil, detector.New(0, 0), pipeline); err == nil {
		t.Fatalf("缺少存储应返回错误")
	}
	if _, err := New(time.Minute, nil, store, nil, pipeline); err == nil {
		t.Fatalf("缺少检测器应返回错误")
	}
	if _, err := New(time.Minute, nil, store, detector.New(0, 0), nil); err == nil {
		t.Fatalf("缺少管线应返回错误")
	}
}
