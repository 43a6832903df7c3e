// 本文件用于 Prometheus 指标聚合与导出 将运行时指标统一收口便于监控接入

package metrics

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Collector 聚合运行期指标，并以 Prometheus 文本格式输出。
type Collector struct {
	pendingInBatch atomic.Int64
	alertsLastHour atomic.Int64

	alertsReceivedTotal atomic.Uint64
	alertsSentTotal     atomic.Uint64
	alertsBatchedTotal  atomic.Uint64

	collectCycleTotal   atomic.Uint64
	collectErrorTotal   atomic.Uint64
	metricsStoredTotal  atomic.Uint64
	notifySuccessTotal  atomic.Uint64
	notifyFailureTotal  atomic.Uint64
	stateSaveFailTotal  atomic.Uint64
	reportUploadTotal   atomic.Uint64
	reportUploadFailure atomic.Uint64

	mu                 sync.RWMutex
	suppressedByReason map[string]uint64
	anomaliesBySeverity map[string]uint64
	notifyByChannel    map[string]uint64
	collectDurationSec *histogram
	notifyDurationSec  *histogram
}

type histogram struct {
	buckets []float64
	counts  []uint64 // 累计桶计数
	count   uint64
	sum     float64
}

var (
	globalCollector = NewCollector()
)

// Global 返回进程级全局指标收集器。
func Global() *Collector {
	return globalCollector
}

// NewCollector 创建指标收集器。
func NewCollector() *Collector {
	return &Collector{
		suppressedByReason:  make(map[string]uint64),
		anomaliesBySeverity: make(map[string]uint64),
		notifyByChannel:     make(map[string]uint64),
		collectDurationSec:  newHistogram([]float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60}),
		notifyDurationSec:   newHistogram([]float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10}),
	}
}

func newHistogram(buckets []float64) *histogram {
	clean := make([]float64, 0, len(buckets))
	for _, bucket := range buckets {
		if bucket <= 0 {
			continue
		}
		clean = append(clean, bucket)
	}
	sort.Float64s(clean)
	return &histogram{
		buckets: clean,
		counts:  make([]uint64, len(clean)),
	}
}

func (h *histogram) observe(v float64) {
	if h == nil {
		return
	}
	for idx, bound := range h.buckets {
		if v <= bound {
			h.counts[idx]++
		}
	}
	h.count++
	h.sum += v
}

func (h *histogram) writePrometheus(builder *strings.Builder, metric string, labels map[string]string) {
	if h == nil {
		return
	}
	for idx, bound := range h.buckets {
		bucketLabels := mergeLabels(labels, map[string]string{
			"le": trimFloat(bound),
		})
		builder.WriteString(metric)
		builder.WriteString("_bucket")
		writeLabels(builder, bucketLabels)
		builder.WriteByte(' ')
		builder.WriteString(strconv.FormatUint(h.counts[idx], 10))
		builder.WriteByte('\n')
	}
	infLabels := mergeLabels(labels, map[string]string{
		"le": "+Inf",
	})
	builder.WriteString(metric)
	builder.WriteString("_bucket")
	writeLabels(builder, infLabels)
	builder.WriteByte(' ')
	builder.WriteString(strconv.FormatUint(h.count, 10))
	builder.WriteByte('\n')

	builder.WriteString(metric)
	builder.WriteString("_sum")
	writeLabels(builder, labels)
	builder.WriteByte(' ')
	builder.WriteString(trimFloat(h.sum))
	builder.WriteByte('\n')

	builder.WriteString(metric)
	builder.WriteString("_count")
	writeLabels(builder, labels)
	builder.WriteByte(' ')
	builder.WriteString(strconv.FormatUint(h.count, 10))
	builder.WriteByte('\n')
}

// IncReceived 记录一次异常事件提交。
func (c *Collector) IncReceived() {
	if c == nil {
		return
	}
	c.alertsReceivedTotal.Add(1)
}

// IncSent 记录一次告警批次发送。
func (c *Collector) IncSent() {
	if c == nil {
		return
	}
	c.alertsSentTotal.Add(1)
}

// IncBatched 记录一次事件入批。
func (c *Collector) IncBatched() {
	if c == nil {
		return
	}
	c.alertsBatchedTotal.Add(1)
}

// IncSuppressed 记录一次告警抑制 按原因分组。
func (c *Collector) IncSuppressed(reason string) {
	if c == nil {
		return
	}
	key := normalizeMetricLabel(reason)
	c.mu.Lock()
	c.suppressedByReason[key]++
	c.mu.Unlock()
}

// IncAnomalyDetected 记录一次异常检出 按级别分组。
func (c *Collector) IncAnomalyDetected(severity string) {
	if c == nil {
		return
	}
	key := normalizeMetricLabel(severity)
	c.mu.Lock()
	c.anomaliesBySeverity[key]++
	c.mu.Unlock()
}

// SetPendingInBatch 刷新在途批次长度。
func (c *Collector) SetPendingInBatch(pending int) {
	if c == nil {
		return
	}
	c.pendingInBatch.Store(int64(pending))
}

// SetAlertsLastHour 刷新一小时窗口内的发送数。
func (c *Collector) SetAlertsLastHour(count int) {
	if c == nil {
		return
	}
	c.alertsLastHour.Store(int64(count))
}

// ObserveCollectCycle 记录一轮采集的结果与耗时。
func (c *Collector) ObserveCollectCycle(latency time.Duration, stored int, err error) {
	if c == nil {
		return
	}
	c.collectCycleTotal.Add(1)
	if err != nil {
		c.collectErrorTotal.Add(1)
	}
	if stored > 0 {
		c.metricsStoredTotal.Add(uint64(stored))
	}
	c.mu.Lock()
	c.collectDurationSec.observe(latency.Seconds())
	c.mu.Unlock()
}

// ObserveNotify 记录一次渠道投递结果与耗时。
func (c *Collector) ObserveNotify(channel string, latency time.Duration, ok bool) {
	if c == nil {
		return
	}
	if ok {
		c.notifySuccessTotal.Add(1)
	} else {
		c.notifyFailureTotal.Add(1)
	}
	key := normalizeMetricLabel(channel)
	c.mu.Lock()
	c.notifyByChannel[key]++
	c.notifyDurationSec.observe(latency.Seconds())
	c.mu.Unlock()
}

// IncStateSaveFailure 记录一次状态快照保存失败。
func (c *Collector) IncStateSaveFailure() {
	if c == nil {
		return
	}
	c.stateSaveFailTotal.Add(1)
}

// ObserveReportUpload 记录一次报告上传结果。
func (c *Collector) ObserveReportUpload(ok bool) {
	if c == nil {
		return
	}
	c.reportUploadTotal.Add(1)
	if !ok {
		c.reportUploadFailure.Add(1)
	}
}

// RenderPrometheus 以 text exposition 格式导出指标。
func (c *Collector) RenderPrometheus() string {
	if c == nil {
		return ""
	}
	builder := strings.Builder{}
	builder.Grow(4096)

	writeMetricHeader(&builder, "ca_alerts_received_total", "counter", "Total anomaly events submitted to the alert pipeline.")
	writeCounter(&builder, "ca_alerts_received_total", c.alertsReceivedTotal.Load(), nil)

	writeMetricHeader(&builder, "ca_alerts_sent_total", "counter", "Total alert batches delivered to notifiers.")
	writeCounter(&builder, "ca_alerts_sent_total", c.alertsSentTotal.Load(), nil)

	writeMetricHeader(&builder, "ca_alerts_batched_total", "counter", "Total anomaly events queued into the aggregation batch.")
	writeCounter(&builder, "ca_alerts_batched_total", c.alertsBatchedTotal.Load(), nil)

	writeMetricHeader(&builder, "ca_alerts_pending_in_batch", "gauge", "Current anomaly events waiting in the aggregation batch.")
	writeGaugeInt(&builder, "ca_alerts_pending_in_batch", c.pendingInBatch.Load(), nil)

	writeMetricHeader(&builder, "ca_alerts_last_hour", "gauge", "Alert sends counted in the rolling one hour window.")
	writeGaugeInt(&builder, "ca_alerts_last_hour", c.alertsLastHour.Load(), nil)

	suppressedByReason := make(map[string]uint64)
	anomaliesBySeverity := make(map[string]uint64)
	notifyByChannel := make(map[string]uint64)
	var collectDurationCopy histogram
	var notifyDurationCopy histogram
	c.mu.RLock()
	for reason, count := range c.suppressedByReason {
		suppressedByReason[reason] = count
	}
	for severity, count := range c.anomaliesBySeverity {
		anomaliesBySeverity[severity] = count
	}
	for channel, count := range c.notifyByChannel {
		notifyByChannel[channel] = count
	}
	collectDurationCopy = cloneHistogram(c.collectDurationSec)
	notifyDurationCopy = cloneHistogram(c.notifyDurationSec)
	c.mu.RUnlock()

	writeMetricHeader(&builder, "ca_alerts_suppressed_total", "counter", "Suppressed alerts grouped by reason.")
	// 始终输出四类抑制原因，避免零流量时缺失时序导致巡检误报
	for _, reason := range []string{"duplicate", "maintenance_window", "rate_limit", "below_severity_threshold"} {
		if _, ok := suppressedByReason[reason]; !ok {
			suppressedByReason[reason] = 0
		}
	}
	for _, reason := range sortedStringKeysFromUintMap(suppressedByReason) {
		writeCounter(&builder, "ca_alerts_suppressed_total", suppressedByReason[reason], map[string]string{
			"reason": reason,
		})
	}

	writeMetricHeader(&builder, "ca_anomalies_detected_total", "counter", "Detected anomalies grouped by severity.")
	for _, severity := range sortedStringKeysFromUintMap(anomaliesBySeverity) {
		writeCounter(&builder, "ca_anomalies_detected_total", anomaliesBySeverity[severity], map[string]string{
			"severity": severity,
		})
	}

	writeMetricHeader(&builder, "ca_collect_cycles_total", "counter", "Total collection cycles executed.")
	writeCounter(&builder, "ca_collect_cycles_total", c.collectCycleTotal.Load(), nil)

	writeMetricHeader(&builder, "ca_collect_errors_total", "counter", "Total collection cycles that ended with an error.")
	writeCounter(&builder, "ca_collect_errors_total", c.collectErrorTotal.Load(), nil)

	writeMetricHeader(&builder, "ca_metrics_stored_total", "counter", "Total build metrics persisted to storage.")
	writeCounter(&builder, "ca_metrics_stored_total", c.metricsStoredTotal.Load(), nil)

	writeMetricHeader(&builder, "ca_collect_duration_seconds", "histogram", "Collection cycle latency distribution in seconds.")
	collectDurationCopy.writePrometheus(&builder, "ca_collect_duration_seconds", nil)

	writeMetricHeader(&builder, "ca_notify_success_total", "counter", "Total successful channel deliveries.")
	writeCounter(&builder, "ca_notify_success_total", c.notifySuccessTotal.Load(), nil)

	writeMetricHeader(&builder, "ca_notify_failure_total", "counter", "Total failed channel deliveries.")
	writeCounter(&builder, "ca_notify_failure_total", c.notifyFailureTotal.Load(), nil)

	writeMetricHeader(&builder, "ca_notify_channel_total", "counter", "Channel deliveries grouped by channel.")
	for _, channel := range sortedStringKeysFromUintMap(notifyByChannel) {
		writeCounter(&builder, "ca_notify_channel_total", notifyByChannel[channel], map[string]string{
			"channel": channel,
		})
	}

	writeMetricHeader(&builder, "ca_notify_duration_seconds", "histogram", "Channel delivery latency distribution in seconds.")
	notifyDurationCopy.writePrometheus(&builder, "ca_notify_duration_seconds", nil)

	writeMetricHeader(&builder, "ca_state_save_failure_total", "counter", "Total alert state snapshot save failures.")
	writeCounter(&builder, "ca_state_save_failure_total", c.stateSaveFailTotal.Load(), nil)

	writeMetricHeader(&builder, "ca_report_upload_total", "counter", "Total summary report upload attempts.")
	writeCounter(&builder, "ca_report_upload_total", c.reportUploadTotal.Load(), nil)

	writeMetricHeader(&builder, "ca_report_upload_failure_total", "counter", "Total failed summary report uploads.")
	writeCounter(&builder, "ca_report_upload_failure_total", c.reportUploadFailure.Load(), nil)

	return builder.String()
}

func cloneHistogram(h *histogram) histogram {
	if h == nil {
		return histogram{}
	}
	copyHist := histogram{
		buckets: append([]float64(nil), h.buckets...),
		counts:  append([]uint64(nil), h.counts...),
		count:   h.count,
		sum:     h.sum,
	}
	return copyHist
}

func writeMetricHeader(builder *strings.Builder, metric, metricType, help string) {
	builder.WriteString("# HELP ")
	builder.WriteString(metric)
	builder.WriteByte(' ')
	builder.WriteString(help)
	builder.WriteByte('\n')
	builder.WriteString("# TYPE ")
	builder.WriteString(metric)
	builder.WriteByte(' ')
	builder.WriteString(metricType)
	builder.WriteByte('\n')
}

func writeCounter(builder *strings.Builder, metric string, value uint64, labels map[string]string) {
	builder.WriteString(metric)
	writeLabels(builder, labels)
	builder.WriteByte(' ')
	builder.WriteString(strconv.FormatUint(value, 10))
	builder.WriteByte('\n')
}

func writeGaugeInt(builder *strings.Builder, metric string, value int64, labels map[string]string) {
	builder.WriteString(metric)
	writeLabels(builder, labels)
	builder.WriteByte(' ')
	builder.WriteString(strconv.FormatInt(value, 10))
	builder.WriteByte('\n')
}

func writeLabels(builder *strings.Builder, labels map[string]string) {
	if len(labels) == 0 {
		return
	}
	keys := make([]string, 0, len(labels))
	for key := range labels {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	builder.WriteByte('{')
	for idx, key := range keys {
		if idx > 0 {
			builder.WriteByte(',')
		}
		builder.WriteString(key)
		builder.WriteString("=\"")
		builder.WriteString(escapeLabelValue(labels[key]))
		builder.WriteByte('"')
	}
	builder.WriteByte('}')
}

func mergeLabels(base, ext map[string]string) map[string]string {
	if len(base) == 0 && len(ext) == 0 {
		return nil
	}
	merged := make(map[string]string, len(base)+len(ext))
	for key, value := range base {
		merged[key] = value
	}
	for key, value := range ext {
		merged[key] = value
	}
	return merged
}

func normalizeMetricLabel(value string) string {
	clean := strings.TrimSpace(strings.ToLower(value))
	if clean == "" {
		return "unknown"
	}
	clean = strings.ReplaceAll(clean, "\n", " ")
	clean = strings.ReplaceAll(clean, "\r", " ")
	clean = strings.ReplaceAll(clean, "\t", " ")
	clean = strings.Join(strings.Fields(clean), " ")
	if len(clean) > 120 {
		clean = clean[:120]
	}
	return clean
}

func escapeLabelValue(value string) string {
	replacer := strings.NewReplacer(
		`\\`, `\\\\`,
		`"`, `\"`,
		"\n", `\n`,
	)
	return replacer.Replace(value)
}

func sortedStringKeysFromUintMap(items map[string]uint64) []string {
	keys := make([]string, 0, len(items))
	for key := range items {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func trimFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}

// ResetForTest 仅用于测试，避免跨用例污染。
func (c *Collector) ResetForTest() {
	if c == nil {
		return
	}
	c.pendingInBatch.Store(0)
	c.alertsLastHour.Store(0)
	c.alertsReceivedTotal.Store(0)
	c.alertsSentTotal.Store(0)
	c.alertsBatchedTotal.Store(0)
	c.collectCycleTotal.Store(0)
	c.collectErrorTotal.Store(0)
	c.metricsStoredTotal.Store(0)
	c.notifySuccessTotal.Store(0)
	c.notifyFailureTotal.Store(0)
	c.stateSaveFailTotal.Store(0)
	c.reportUploadTotal.Store(0)
	c.reportUploadFailure.Store(0)

	c.mu.Lock()
	c.suppressedByReason = make(map[string]uint64)
	c.anomaliesBySeverity = make(map[string]uint64)
	c.notifyByChannel = make(map[string]uint64)
	c.collectDurationSec = newHistogram([]float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60})
	c.notifyDurationSec = newHistogram([]float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10})
	c.mu.Unlock()
}

// MustGlobalPrometheus 返回全局指标文本，便于在 handler 中直接输出。
func MustGlobalPrometheus() string {
	return Global().RenderPrometheus()
}

// EnsureCollectorForTest 仅用于测试替换全局实例。
func EnsureCollectorForTest(collector *Collector) {
	if collector == nil {
		return
	}
	globalCollector = collector
}

// NewTestCollector 提供带默认配置的测试 Collector。
func NewTestCollector() *Collector {
	collector := NewCollector()
	collector.ResetForTest()
	return collector
}

// SnapshotString 仅用于本地调试。
func (c *Collector) SnapshotString() string {
	if c == nil {
		return ""
	}
	return fmt.Sprintf(
		"received=%d sent=%d batched=%d pending=%d lasthour=%d",
		c.alertsReceivedTotal.Load(),
		c.alertsSentTotal.Load(),
		c.alertsBatchedTotal.Load(),
		c.pendingInBatch.Load(),
		c.alertsLastHour.Load(),
	)
}
