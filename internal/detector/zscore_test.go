// 本文件用于异常检测相关测试
package detector

import (
	"math"
	"testing"
	"time"

	"ci-alert/internal/models"
)

func metricSeries(job string, durations ...float64) []models.BuildMetric {
	out := make([]models.BuildMetric, 0, len(durations))
	base := time.Date(2026, 8, 26, 0, 0, 0, 0, time.UTC)
	for i, duration := range durations {
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

func TestDetectSpikeOnDuration(t *testing.T) {
	det := New(3.0, 5)
	series := metricSeries("build-core", 100, 102, 98, 101, 99, 100, 103, 97, 101, 99)
	history := series[:len(series)-1]
	latest := series[len(series)-1]
	latest.Duration = 900

	event := det.Detect(history, latest)
	if event == nil {
		t.Fatalf("明显的耗时尖峰应被检出")
	}
	if event.JobName != "build-core" {
		t.Fatalf("事件任务名异常: %+v", event)
	}
	if len(event.Features) != 1 || event.Features[0].Feature != "duration" {
		t.Fatalf("应只有 duration 特征越界: %+v", event.Features)
	}
	if event.MaxZScore < 3 {
		t.Fatalf("最大 z-score 应超过阈值: %v", event.MaxZScore)
	}
}

func TestDetectRequiresMinSamples(t *testing.T) {
	det := New(3.0, 10)
	series := metricSeries("build-core", 100, 100, 100)
	if event := det.Detect(series[:2], series[2]); event != nil {
		t.Fatalf("样本不足不应检出异常: %+v", event)
	}
}

func TestDetectSkipsConstantSeries(t *testing.T) {
	det := New(3.0, 5)
	series := metricSeries("build-core", 100, 100, 100, 100, 100, 100)
	latest := series[len(series)-1]
	latest.Duration = 100
	if event := det.Detect(series[:len(series)-1], latest); event != nil {
		t.Fatalf("常量序列不应检出异常: %+v", event)
	}
}

func TestDetectNormalBuildPasses(t *testing.T) {
	det := New(3.0, 5)
	series := metricSeries("build-core", 100, 110, 95, 105, 98, 102, 108, 94, 103, 100)
	if event := det.Detect(series[:len(series)-1], series[len(series)-1]); event != nil {
		t.Fatalf("正常波动不应检出异常: %+v", event)
	}
}

func TestDetectAllGroupsByJob(t *testing.T) {
	det := New(3.0, 5)
	stable := metricSeries("build-core", 100, 101, 99, 100, 102, 98, 100)
	spiky := metricSeries("deploy-app", 50, 51, 49, 50, 52, 48, 500)

	events := det.DetectAll(append(stable, spiky...))
	if len(events) != 1 {
		t.Fatalf("应只检出 deploy-app 的异常, got %d", len(events))
	}
	if events[0].JobName != "deploy-app" {
		t.Fatalf("检出的任务异常: %+v", events[0])
	}
}

func TestMeanStd(t *testing.T) {
	mean, std := meanStd([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	if math.Abs(mean-5) > 1e-9 {
		t.Fatalf("均值应为 5, got %v", mean)
	}
	if math.Abs(std-2) > 1e-9 {
		t.Fatalf("总体标准差应为 2, got %v", std)
	}
	if _, std := meanStd(nil); std != 0 {
		t.Fatalf("空序列标准差应为 0")
	}
}
