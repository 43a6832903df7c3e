// 本文件用于告警决策管线 去重 限流 静默 路由与批量聚合
// 文件职责：实现当前模块的核心业务逻辑与数据流转
// 关键路径：入口参数先校验再执行业务处理 最后返回统一结果
// 边界与容错：异常场景显式返回错误 由上层决定重试或降级

package alert

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ci-alert/internal/logger"
	"ci-alert/internal/metrics"
	"ci-alert/internal/models"
)

// 限流统计窗口固定一小时
const rateWindow = time.Hour

// Notifier 表示告警通知发送器
// WithWebhook 返回覆盖了 Slack 目标的派生实例 不得修改原实例配置
type Notifier interface {
	SendOne(ctx context.Context, event *models.AnomalyEvent, channels []string) bool
	SendBatch(ctx context.Context, events []*models.AnomalyEvent, channels []string) bool
	WithWebhook(webhook string) Notifier
}

// Options 表示管线配置
type Options struct {
	BatchWindow      time.Duration
	DedupWindow      time.Duration
	MaxAlertsPerHour int
	DefaultChannels  []string
}

// RuleSummary 表示规则列表项
type RuleSummary struct {
	Name        string   `json:"name"`
	JobPattern  string   `json:"job_pattern"`
	MinSeverity string   `json:"min_severity"`
	Channels    []string `json:"channels"`
	TeamName    string   `json:"team_name,omitempty"`
}

// WindowSummary 表示生效中的维护窗口列表项
type WindowSummary struct {
	Name         string   `json:"name"`
	Start        string   `json:"start"`
	End          string   `json:"end"`
	AffectedJobs []string `json:"affected_jobs,omitempty"`
}

// Stats 表示管线运行统计
type Stats struct {
	TotalReceived            uint64  `json:"total_received"`
	TotalSent                uint64  `json:"total_sent"`
	SuppressedDuplicate      uint64  `json:"suppressed_duplicate"`
	SuppressedMaintenance    uint64  `json:"suppressed_maintenance"`
	SuppressedRateLimit      uint64  `json:"suppressed_rate_limit"`
	SuppressedSeverity       uint64  `json:"suppressed_severity"`
	Batched                  uint64  `json:"batched"`
	TotalSuppressed          uint64  `json:"total_suppressed"`
	SuppressionRate          float64 `json:"suppression_rate"`
	PendingInBatch           int     `json:"pending_in_batch"`
	ActiveMaintenanceWindows int     `json:"active_maintenance_windows"`
	RegisteredRules          int     `json:"registered_rules"`
	AlertsLastHour           int     `json:"alerts_last_hour"`
}

// Pipeline 负责异常事件的告警决策
// 所有可变状态由单个互斥锁串行化 支持并发调用
type Pipeline struct {
	mu sync.Mutex

	notifier         Notifier
	store            Store
	batchWindow      time.Duration
	dedupWindow      time.Duration
	maxAlertsPerHour int
	defaultChannels  []string

	fingerprints    map[string]time.Time
	alertTimestamps []time.Time
	rules           []Rule
	windows         []Window
	pending         []*models.AnomalyEvent
	batchStart      time.Time // 零值表示无在途批次
	counters        Counters
	saveFailTotal   uint64

	now func() time.Time // 便于测试注入时钟
}

// NewPipeline 创建告警决策管线并加载历史状态
// store 允许为空 此时状态仅保存在内存
func NewPipeline(opts Options, notifier Notifier, store Store) (*Pipeline, error) {
	if notifier == nil {
		return nil, fmt.Errorf("通知发送器不能为空")
	}
	if opts.BatchWindow <= 0 {
		opts.BatchWindow = 60 * time.Second
	}
	if opts.DedupWindow <= 0 {
		opts.DedupWindow = 5 * time.Minute
	}
	if opts.MaxAlertsPerHour <= 0 {
		opts.MaxAlertsPerHour = 20
	}
	channels := cleanChannels(opts.DefaultChannels)
	if len(channels) == 0 {
		channels = []string{"slack"}
	}

	pipeline := &Pipeline{
		notifier:         notifier,
		store:            store,
		batchWindow:      opts.BatchWindow,
		dedupWindow:      opts.DedupWindow,
		maxAlertsPerHour: opts.MaxAlertsPerHour,
		defaultChannels:  channels,
		fingerprints:     make(map[string]time.Time),
		alertTimestamps:  make([]time.Time, 0, 32),
		now:              time.Now,
	}
	pipeline.loadState()
	return pipeline, nil
}

// loadState 启动时恢复快照 缺失快照按冷启动处理
func (p *Pipeline) loadState() {
	if p.store == nil {
		return
	}
	snapshot, err := p.store.Load()
	if err != nil {
		logger.Warn("加载告警状态失败: %v", err)
		return
	}
	if snapshot == nil {
		return
	}
	for fp, ts := range snapshot.Fingerprints {
		p.fingerprints[fp] = ts
	}
	p.alertTimestamps = append(p.alertTimestamps, snapshot.AlertTimestamps...)
	p.counters.merge(snapshot.Counters)
	logger.Info("已恢复告警状态: fingerprints=%d timestamps=%d", len(p.fingerprints), len(p.alertTimestamps))
}

// Submit 提交异常事件并执行抑制与路由决策
// 除规则登记类错误外不返回 error 传输与持久化失败只记日志
func (p *Pipeline) Submit(ctx context.Context, event *models.AnomalyEvent, channelsOverride []string, force bool) Outcome {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	p.counters.TotalReceived++
	metrics.Global().IncReceived()

	jobName := jobNameOf(event)
	severity := ClassifySeverity(event)
	outcome := Outcome{JobName: jobName, Severity: severity}

	flushOverride := cleanChannels(channelsOverride)

	if !force {
		// 固定顺序执行三道抑制闸门 首个命中即短路
		if p.inMaintenanceLocked(jobName, now) {
			p.counters.SuppressedMaintenance++
			metrics.Global().IncSuppressed(string(ReasonMaintenanceWindow))
			outcome.Reason = ReasonMaintenanceWindow
			logger.Info("告警静默(维护窗口): %s", jobName)
			p.saveLocked(now)
			return outcome
		}

		fingerprint := Fingerprint(event)
		if p.isDuplicateLocked(fingerprint, now) {
			p.counters.SuppressedDuplicate++
			metrics.Global().IncSuppressed(string(ReasonDuplicate))
			outcome.Reason = ReasonDuplicate
			logger.Info("告警抑制(重复): %s", jobName)
			p.saveLocked(now)
			return outcome
		}

		if p.isRateLimitedLocked(now) {
			p.counters.SuppressedRateLimit++
			metrics.Global().IncSuppressed(string(ReasonRateLimit))
			outcome.Reason = ReasonRateLimit
			logger.Warn("告警抑制(限流): %s", jobName)
			p.saveLocked(now)
			return outcome
		}

		rule := p.resolveRuleLocked(jobName)
		if rule != nil && !rule.SeverityPasses(severity) {
			p.counters.SuppressedSeverity++
			metrics.Global().IncSuppressed(string(ReasonBelowSeverity))
			outcome.Reason = ReasonBelowSeverity
			logger.Info("告警抑制(级别 %s < %s): %s", severity, rule.MinSeverity, jobName)
			p.saveLocked(now)
			return outcome
		}

		// 通过全部闸门即视为准入 指纹按准入时刻登记而非实际送达时刻
		p.recordSentLocked(fingerprint, now)
	} else if len(flushOverride) == 0 {
		// 强制发送时默认覆盖全部渠道
		flushOverride = []string{"slack", "email", "webhook"}
	}

	p.addToBatchLocked(event, now)

	if force || p.shouldFlushLocked(now) {
		ok := p.flushLocked(ctx, flushOverride, now)
		outcome.Sent = ok
		outcome.Reason = ReasonBatchFlushed
	} else {
		outcome.Reason = ReasonQueuedInBatch
		logger.Info("告警入批(%d 条待发): %s", len(p.pending), jobName)
	}

	p.saveLocked(now)
	return outcome
}

// FlushNow 立即发送全部在途批次
// 无在途批次时返回 true 供轮询周期结束时兜底调用
func (p *Pipeline) FlushNow(ctx context.Context, channelsOverride []string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.pending) == 0 {
		return true
	}
	now := p.now()
	ok := p.flushLocked(ctx, cleanChannels(channelsOverride), now)
	p.saveLocked(now)
	return ok
}

// flushLocked 原子快照并清空批次后执行发送
// 路由以批次首个事件解析 发送失败不回滚状态 至多一次语义
func (p *Pipeline) flushLocked(ctx context.Context, channelsOverride []string, now time.Time) bool {
	if len(p.pending) == 0 {
		return true
	}

	first := p.pending[0]
	rule := p.resolveRuleLocked(jobNameOf(first))
	effective := p.notifier
	if rule != nil && rule.SlackWebhook != "" {
		effective = p.notifier.WithWebhook(rule.SlackWebhook)
	}
	channels := channelsOverride
	if len(channels) == 0 {
		if rule != nil {
			channels = rule.Channels
		} else {
			channels = p.defaultChannels
		}
	}

	batch := p.pending
	p.pending = nil
	p.batchStart = time.Time{}

	// 一次批量发送只计一条限流配额
	p.alertTimestamps = append(p.alertTimestamps, now)
	p.counters.TotalSent++
	metrics.Global().IncSent()
	metrics.Global().SetPendingInBatch(0)

	var ok bool
	if len(batch) == 1 {
		ok = effective.SendOne(ctx, batch[0], channels)
		logger.Info("已发送告警: %s", jobNameOf(batch[0]))
	} else {
		ok = effective.SendBatch(ctx, batch, channels)
		logger.Info("已发送批量告警: %d 条", len(batch))
	}
	if !ok {
		logger.Error("告警通知发送失败: %d 条", len(batch))
	}
	return ok
}

// addToBatchLocked 事件入批 首次入批记录开批时间
func (p *Pipeline) addToBatchLocked(event *models.AnomalyEvent, now time.Time) {
	if p.batchStart.IsZero() {
		p.batchStart = now
	}
	p.pending = append(p.pending, event)
	p.counters.Batched++
	metrics.Global().IncBatched()
	metrics.Global().SetPendingInBatch(len(p.pending))
}

// shouldFlushLocked 判断批量窗口是否到期
func (p *Pipeline) shouldFlushLocked(now time.Time) bool {
	if len(p.pending) == 0 || p.batchStart.IsZero() {
		return false
	}
	return now.Sub(p.batchStart) >= p.batchWindow
}

// inMaintenanceLocked 判断任务是否命中任一生效窗口
func (p *Pipeline) inMaintenanceLocked(jobName string, now time.Time) bool {
	for i := range p.windows {
		window := &p.windows[i]
		if window.ActiveAt(now) && window.AffectsJob(jobName) {
			return true
		}
	}
	return false
}

// isDuplicateLocked 判断指纹是否处于去重窗口内
func (p *Pipeline) isDuplicateLocked(fingerprint string, now time.Time) bool {
	last, ok := p.fingerprints[fingerprint]
	if !ok {
		return false
	}
	return now.Sub(last) < p.dedupWindow
}

// recordSentLocked 登记指纹并顺带清理过期项
func (p *Pipeline) recordSentLocked(fingerprint string, now time.Time) {
	p.fingerprints[fingerprint] = now
	for fp, ts := range p.fingerprints {
		if now.Sub(ts) >= p.dedupWindow {
			delete(p.fingerprints, fp)
		}
	}
}

// isRateLimitedLocked 判断一小时窗口内发送数是否达到上限
// 闸门本身不追加时间戳 时间戳只在批次实际发送时追加
func (p *Pipeline) isRateLimitedLocked(now time.Time) bool {
	p.pruneTimestampsLocked(now)
	return len(p.alertTimestamps) >= p.maxAlertsPerHour
}

// pruneTimestampsLocked 裁剪一小时窗口外的发送时间戳
func (p *Pipeline) pruneTimestampsLocked(now time.Time) {
	if len(p.alertTimestamps) == 0 {
		return
	}
	kept := p.alertTimestamps[:0]
	for _, ts := range p.alertTimestamps {
		if now.Sub(ts) < rateWindow {
			kept = append(kept, ts)
		}
	}
	p.alertTimestamps = kept
}

// resolveRuleLocked 按插入顺序返回首个命中规则
func (p *Pipeline) resolveRuleLocked(jobName string) *Rule {
	for i := range p.rules {
		if p.rules[i].MatchesJob(jobName) {
			return &p.rules[i]
		}
	}
	return nil
}

// saveLocked 尽力持久化状态 失败只告警不中断决策
func (p *Pipeline) saveLocked(now time.Time) {
	if p.store == nil {
		return
	}
	snapshot := &Snapshot{
		Fingerprints:    make(map[string]time.Time, len(p.fingerprints)),
		AlertTimestamps: append([]time.Time(nil), p.alertTimestamps...),
		Counters:        p.counters,
		SavedAt:         now,
	}
	for fp, ts := range p.fingerprints {
		snapshot.Fingerprints[fp] = ts
	}
	if err := p.store.Save(snapshot); err != nil {
		p.saveFailTotal++
		metrics.Global().IncStateSaveFailure()
		logger.Warn("保存告警状态失败: %v", err)
	}
}

// AddRule 登记路由规则 按插入顺序求值 首个匹配生效
func (p *Pipeline) AddRule(raw models.AlertRule) error {
	rule, err := compileRule(raw)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.rules = append(p.rules, rule)
	p.mu.Unlock()
	logger.Info("已添加告警规则: %s", rule.Name)
	return nil
}

// RemoveRule 按名称删除规则
func (p *Pipeline) RemoveRule(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	kept := p.rules[:0]
	removed := false
	for _, rule := range p.rules {
		if rule.Name == name {
			removed = true
			continue
		}
		kept = append(kept, rule)
	}
	p.rules = kept
	return removed
}

// ListRules 返回全部规则摘要
func (p *Pipeline) ListRules() []RuleSummary {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]RuleSummary, 0, len(p.rules))
	for _, rule := range p.rules {
		out = append(out, RuleSummary{
			Name:        rule.Name,
			JobPattern:  rule.JobPattern,
			MinSeverity: string(rule.MinSeverity),
			Channels:    append([]string(nil), rule.Channels...),
			TeamName:    rule.TeamName,
		})
	}
	return out
}

// AddMaintenanceWindow 登记维护窗口
func (p *Pipeline) AddMaintenanceWindow(raw models.MaintenanceWindow) error {
	window, err := compileWindow(raw)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.windows = append(p.windows, window)
	p.mu.Unlock()
	logger.Info("已添加维护窗口: %s", window.Name)
	return nil
}

// RemoveMaintenanceWindow 按名称删除维护窗口
func (p *Pipeline) RemoveMaintenanceWindow(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	kept := p.windows[:0]
	removed := false
	for _, window := range p.windows {
		if window.Name == name {
			removed = true
			continue
		}
		kept = append(kept, window)
	}
	p.windows = kept
	return removed
}

// ListActiveWindows 返回当前生效的维护窗口摘要
// 过期窗口只是不再生效 不会被自动清除
func (p *Pipeline) ListActiveWindows() []WindowSummary {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.activeWindowsLocked(p.now())
}

func (p *Pipeline) activeWindowsLocked(now time.Time) []WindowSummary {
	out := make([]WindowSummary, 0, len(p.windows))
	for i := range p.windows {
		window := &p.windows[i]
		if !window.ActiveAt(now) {
			continue
		}
		out = append(out, WindowSummary{
			Name:         window.Name,
			Start:        window.Start.Format(time.RFC3339),
			End:          window.End.Format(time.RFC3339),
			AffectedJobs: append([]string(nil), window.AffectedJobs...),
		})
	}
	return out
}

// ReplaceRuleset 整体替换规则与维护窗口 供规则文件热加载使用
// 任一条目非法时整体不生效
func (p *Pipeline) ReplaceRuleset(ruleset *models.AlertRuleset) error {
	if ruleset == nil {
		return fmt.Errorf("告警规则集为空")
	}
	rules := make([]Rule, 0, len(ruleset.Rules))
	for _, raw := range ruleset.Rules {
		rule, err := compileRule(raw)
		if err != nil {
			return err
		}
		rules = append(rules, rule)
	}
	windows := make([]Window, 0, len(ruleset.MaintenanceWindows))
	for _, raw := range ruleset.MaintenanceWindows {
		window, err := compileWindow(raw)
		if err != nil {
			return err
		}
		windows = append(windows, window)
	}

	p.mu.Lock()
	p.rules = rules
	p.windows = windows
	p.mu.Unlock()
	logger.Info("告警规则集已更新: rules=%d windows=%d", len(rules), len(windows))
	return nil
}

// GetStats 返回运行统计
func (p *Pipeline) GetStats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	p.pruneTimestampsLocked(now)

	suppressed := p.counters.suppressed()
	received := p.counters.TotalReceived
	rate := 0.0
	if received > 0 {
		rate = float64(suppressed) / float64(received)
	}
	stats := Stats{
		TotalReceived:            received,
		TotalSent:                p.counters.TotalSent,
		SuppressedDuplicate:      p.counters.SuppressedDuplicate,
		SuppressedMaintenance:    p.counters.SuppressedMaintenance,
		SuppressedRateLimit:      p.counters.SuppressedRateLimit,
		SuppressedSeverity:       p.counters.SuppressedSeverity,
		Batched:                  p.counters.Batched,
		TotalSuppressed:          suppressed,
		SuppressionRate:          rate,
		PendingInBatch:           len(p.pending),
		ActiveMaintenanceWindows: len(p.activeWindowsLocked(now)),
		RegisteredRules:          len(p.rules),
		AlertsLastHour:           len(p.alertTimestamps),
	}
	metrics.Global().SetAlertsLastHour(stats.AlertsLastHour)
	return stats
}

// Health 返回健康检查所需的管线指标
func (p *Pipeline) Health() models.PipelineHealth {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	p.pruneTimestampsLocked(now)
	statePath := ""
	if fileStore, ok := p.store.(*FileStore); ok {
		statePath = fileStore.Path()
	}
	return models.PipelineHealth{
		PendingInBatch:     len(p.pending),
		AlertsLastHour:     len(p.alertTimestamps),
		RegisteredRules:    len(p.rules),
		ActiveMaintenance:  len(p.activeWindowsLocked(now)),
		StateFile:          statePath,
		StateSaveFailTotal: p.saveFailTotal,
	}
}
