// 本文件用于定义告警决策相关的数据结构
// 文件职责：实现当前模块的核心业务逻辑与数据流转
// 关键路径：入口参数先校验再执行业务处理 最后返回统一结果
// 边界与容错：异常场景显式返回错误 由上层决定重试或降级

package alert

// Severity 表示异常级别
type Severity string

const (
	// SeverityLow 表示低级别
	SeverityLow Severity = "low"
	// SeverityMedium 表示中级别
	SeverityMedium Severity = "medium"
	// SeverityHigh 表示高级别
	SeverityHigh Severity = "high"
	// SeverityCritical 表示致命级别
	SeverityCritical Severity = "critical"
)

// severityRanks 级别次序 low < medium < high < critical
var severityRanks = map[Severity]int{
	SeverityLow:      0,
	SeverityMedium:   1,
	SeverityHigh:     2,
	SeverityCritical: 3,
}

// Reason 表示一次提交的处理结果原因
type Reason string

const (
	// ReasonMaintenanceWindow 表示命中维护窗口被静默
	ReasonMaintenanceWindow Reason = "maintenance_window"
	// ReasonDuplicate 表示去重窗口内重复
	ReasonDuplicate Reason = "duplicate"
	// ReasonRateLimit 表示触发限流
	ReasonRateLimit Reason = "rate_limit"
	// ReasonBelowSeverity 表示低于规则级别门槛
	ReasonBelowSeverity Reason = "below_severity_threshold"
	// ReasonQueuedInBatch 表示已入批等待聚合发送
	ReasonQueuedInBatch Reason = "queued_in_batch"
	// ReasonBatchFlushed 表示本次提交触发了批量发送
	ReasonBatchFlushed Reason = "batch_flushed"
)

// Outcome 表示一次提交的决策结果 便于调用方记录
type Outcome struct {
	Sent     bool     `json:"sent"`
	Reason   Reason   `json:"reason"`
	JobName  string   `json:"job_name"`
	Severity Severity `json:"severity"`
}

// parseSeverity 用于解析输入参数或配置
func parseSeverity(raw string) (Severity, bool) {
	switch Severity(raw) {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return Severity(raw), true
	default:
		return "", false
	}
}

// rankOf 返回级别次序 未知级别按最低处理
func rankOf(severity Severity) int {
	if rank, ok := severityRanks[severity]; ok {
		return rank
	}
	return 0
}
