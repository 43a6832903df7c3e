// 本文件用于构建指标的 z-score 异常检测
// 文件职责：实现当前模块的核心业务逻辑与数据流转
// 关键路径：入口参数先校验再执行业务处理 最后返回统一结果
// 边界与容错：异常场景显式返回错误 由上层决定重试或降级

package detector

import (
	"fmt"
	"math"
	"sort"
	"time"

	"ci-alert/internal/logger"
	"ci-alert/internal/metrics"
	"ci-alert/internal/models"
)

const (
	defaultThreshold  = 3.0
	defaultMinSamples = 10
	// 标准差过小视为常量序列 不做 z-score 判定
	epsilon = 1e-9
)

// Detector 基于任务历史构建基线并检测离群构建
type Detector struct {
	threshold  float64
	minSamples int
}

// New 创建检测器 非法参数回退默认值
func New(threshold float64, minSamples int) *Detector {
	if threshold <= 0 {
		threshold = defaultThreshold
	}
	if minSamples <= 0 {
		minSamples = defaultMinSamples
	}
	return &Detector{threshold: threshold, minSamples: minSamples}
}

// featureExtractors 参与检测的构建特征
var featureExtractors = []struct {
	name    string
	extract func(models.BuildMetric) float64
}{
	{name: "duration", extract: func(m models.BuildMetric) float64 { return m.Duration }},
	{name: "queue_time", extract: func(m models.BuildMetric) float64 { return m.QueueTime }},
	{name: "failure_rate", extract: func(m models.BuildMetric) float64 { return m.FailureRate }},
}

// Detect 以 history 为基线检测 latest 是否离群
// 基线样本不足或无特征越过阈值时返回 nil
func (d *Detector) Detect(history []models.BuildMetric, latest models.BuildMetric) *models.AnomalyEvent {
	if d == nil || len(history) < d.minSamples {
		return nil
	}

	var (
		anomalous []models.AnomalyFeature
		maxScore  float64
	)
	for _, feature := range featureExtractors {
		values := make([]float64, 0, len(history))
		for _, metric := range history {
			values = append(values, feature.extract(metric))
		}
		mean, std := meanStd(values)
		if std < epsilon {
			continue
		}
		score := (feature.extract(latest) - mean) / std
		if math.Abs(score) < d.threshold {
			continue
		}
		anomalous = append(anomalous, models.AnomalyFeature{
			Feature:  feature.name,
			Value:    feature.extract(latest),
			Expected: mean,
			ZScore:   score,
		})
		if math.Abs(score) > maxScore {
			maxScore = math.Abs(score)
		}
	}
	if len(anomalous) == 0 {
		return nil
	}

	event := &models.AnomalyEvent{
		JobName:    latest.JobName,
		Source:     latest.Source,
		MaxZScore:  maxScore,
		Features:   anomalous,
		DetectedAt: time.Now(),
		Detail:     fmt.Sprintf("build #%d deviates from baseline of %d builds", latest.BuildNumber, len(history)),
	}
	logger.Info("检出异常: job=%s maxZ=%.2f features=%d", event.JobName, maxScore, len(anomalous))
	return event
}

// DetectAll 对全量指标按任务分组 以最新构建对比此前历史
func (d *Detector) DetectAll(all []models.BuildMetric) []*models.AnomalyEvent {
	if d == nil || len(all) == 0 {
		return nil
	}

	grouped := make(map[string][]models.BuildMetric)
	for _, metric := range all {
		key := metric.Source + "/" + metric.JobName
		grouped[key] = append(grouped[key], metric)
	}

	keys := make([]string, 0, len(grouped))
	for key := range grouped {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var events []*models.AnomalyEvent
	for _, key := range keys {
		series := grouped[key]
		sort.Slice(series, func(i, j int) bool {
			return series[i].Timestamp.Before(series[j].Timestamp)
		})
		latest := series[len(series)-1]
		history := series[:len(series)-1]
		if event := d.Detect(history, latest); event != nil {
			metrics.Global().IncAnomalyDetected(severityHint(event.MaxZScore))
			events = append(events, event)
		}
	}
	return events
}

// severityHint 粗粒度级别标签 仅用于指标分组 真正的级别判定在告警管线
func severityHint(score float64) string {
	switch {
	case score > 5:
		return "critical"
	case score > 4:
		return "high"
	case score > 2.5:
		return "medium"
	default:
		return "low"
	}
}

// meanStd 计算均值与总体标准差
func meanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	variance := 0.0
	for _, v := range values {
		diff := v - mean
		variance += diff * diff
	}
	variance /= float64(len(values))
	return mean, math.Sqrt(variance)
}
