// 本文件用于采集-检测-告警的周期调度
// 文件职责：实现当前模块的核心业务逻辑与数据流转
// 关键路径：入口参数先校验再执行业务处理 最后返回统一结果
// 边界与容错：异常场景显式返回错误 由上层决定重试或降级

package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ci-alert/internal/alert"
	"ci-alert/internal/collectors"
	"ci-alert/internal/detector"
	"ci-alert/internal/logger"
	"ci-alert/internal/metrics"
	"ci-alert/internal/models"
	"ci-alert/internal/storage"
)

const (
	defaultInterval = 5 * time.Minute
	// 检测基线取近 7 天的构建历史
	detectionWindowDays = 7
)

// Scheduler 驱动采集 落库 检测 告警的完整周期
type Scheduler struct {
	interval   time.Duration
	collectors []collectors.Collector
	store      *storage.MetricsStore
	detector   *detector.Detector
	pipeline   *alert.Pipeline

	mu            sync.Mutex
	cycleTotal    uint64
	lastCycleAt   time.Time
	lastCycleErr  string
	metricsStored uint64
}

// New 创建调度器
func New(interval time.Duration, sources []collectors.Collector, store *storage.MetricsStore, det *detector.Detector, pipeline *alert.Pipeline) (*Scheduler, error) {
	if store == nil {
		return nil, fmt.Errorf("指标存储不能为空")
	}
	if det == nil {
		return nil, fmt.Errorf("检测器不能为空")
	}
	if pipeline == nil {
		return nil, fmt.Errorf("告警管线不能为空")
	}
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Scheduler{
		interval:   interval,
		collectors: sources,
		store:      store,
		detector:   det,
		pipeline:   pipeline,
	}, nil
}

// Run 阻塞运行调度循环 直到上下文取消
// 启动时先跑一轮 避免首个周期前服务一直无数据
func (s *Scheduler) Run(ctx context.Context) {
	logger.Info("调度器启动: interval=%s collectors=%d", s.interval, len(s.collectors))
	s.runCycleLogged(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("调度器退出")
			return
		case <-ticker.C:
			s.runCycleLogged(ctx)
		}
	}
}

func (s *Scheduler) runCycleLogged(ctx context.Context) {
	if err := s.RunCycle(ctx); err != nil {
		logger.Error("采集周期失败: %v", err)
	}
}

// RunCycle 执行一轮采集-检测-告警 供调度循环与手动触发共用
// 单个来源失败不阻断其余来源 错误汇总到返回值
func (s *Scheduler) RunCycle(ctx context.Context) error {
	start := time.Now()
	var firstErr error
	stored := 0

	for _, source := range s.collectors {
		collected, err := source.Collect(ctx)
		if err != nil {
			logger.Error("来源 %s 采集失败: %v", source.Name(), err)
			if firstErr == nil {
				firstErr = fmt.Errorf("来源 %s 采集失败: %w", source.Name(), err)
			}
			continue
		}
		inserted, err := s.store.SaveMetrics(collected)
		if err != nil {
			logger.Error("来源 %s 指标落库失败: %v", source.Name(), err)
			if firstErr == nil {
				firstErr = fmt.Errorf("来源 %s 指标落库失败: %w", source.Name(), err)
			}
			continue
		}
		stored += inserted
	}

	if err := s.detectAndAlert(ctx); err != nil && firstErr == nil {
		firstErr = err
	}

	metrics.Global().ObserveCollectCycle(time.Since(start), stored, firstErr)
	s.recordCycle(stored, firstErr)
	logger.Info("采集周期完成: stored=%d elapsed=%s", stored, time.Since(start))
	return firstErr
}

// detectAndAlert 以近期历史为基线检测异常并提交告警
func (s *Scheduler) detectAndAlert(ctx context.Context) error {
	history, err := s.store.LoadMetrics("", "", detectionWindowDays)
	if err != nil {
		return fmt.Errorf("加载检测基线失败: %w", err)
	}

	events := s.detector.DetectAll(history)
	for _, event := range events {
		// 检出记录落库失败只记日志 告警链路照常走
		if err := s.store.SaveAnomaly(event); err != nil {
			logger.Warn("异常记录落库失败: %v", err)
		}
		outcome := s.pipeline.Submit(ctx, event, nil, false)
		logger.Debug("告警决策: job=%s sent=%v reason=%s", outcome.JobName, outcome.Sent, outcome.Reason)
	}

	// 周期收尾兜底发送在途批次
	s.pipeline.FlushNow(ctx, nil)
	return nil
}

func (s *Scheduler) recordCycle(stored int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cycleTotal++
	s.lastCycleAt = time.Now()
	s.lastCycleErr = ""
	if err != nil {
		s.lastCycleErr = err.Error()
	}
	if stored > 0 {
		s.metricsStored += uint64(stored)
	}
}

// Status 填充健康检查所需的调度状态
func (s *Scheduler) Status(snapshot *models.HealthSnapshot) {
	if s == nil || snapshot == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot.CycleTotal = s.cycleTotal
	if !s.lastCycleAt.IsZero() {
		snapshot.LastCycleAt = s.lastCycleAt.Format(time.RFC3339)
	}
	snapshot.LastCycleErr = s.lastCycleErr
	snapshot.MetricsStored = s.metricsStored
}
