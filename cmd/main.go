// 本文件用于程序启动入口
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"ci-alert/internal/alert"
	"ci-alert/internal/api"
	"ci-alert/internal/collectors"
	"ci-alert/internal/config"
	"ci-alert/internal/detector"
	"ci-alert/internal/logger"
	"ci-alert/internal/models"
	"ci-alert/internal/notify"
	"ci-alert/internal/report"
	"ci-alert/internal/scheduler"
	"ci-alert/internal/storage"
	"ci-alert/internal/watcher"
)

const reportKeyPrefix = "ci-alert"

func main() {
	if err := run(); err != nil {
		log.Fatalf("程序退出: %v", err)
	}
}

func run() error {
	configPath := parseFlags()
	log.Printf("程序启动，配置文件: %s", configPath)

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return err
	}

	if err := logger.InitLogger(cfg); err != nil {
		return err
	}
	defer logger.Close()

	logConfig(cfg)

	pipeline, rulesWatcher, err := buildPipeline(cfg)
	if err != nil {
		logger.Error("创建告警管线失败: %v", err)
		return err
	}
	if rulesWatcher != nil {
		defer rulesWatcher.Close()
	}

	metricsStore, err := storage.NewMetricsStore(cfg.DataDir)
	if err != nil {
		logger.Error("初始化指标存储失败: %v", err)
		return err
	}
	defer metricsStore.Close()

	reporter, err := buildReporter(cfg, metricsStore)
	if err != nil {
		logger.Error("创建报告生成器失败: %v", err)
		return err
	}

	sched, err := buildScheduler(cfg, metricsStore, pipeline)
	if err != nil {
		logger.Error("创建调度器失败: %v", err)
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sched.Run(ctx)

	apiServer := api.NewServer(cfg, pipeline, metricsStore, sched, reporter)
	apiServer.Start()

	waitForShutdown(cancel, pipeline, apiServer)
	return nil
}

func parseFlags() string {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "配置文件路径")
	flag.Parse()
	return configPath
}

// buildPipeline 装配告警决策管线 含状态快照与规则热加载
func buildPipeline(cfg *models.Config) (*alert.Pipeline, *watcher.RulesWatcher, error) {
	batchWindow, err := time.ParseDuration(cfg.BatchWindow)
	if err != nil {
		return nil, nil, fmt.Errorf("解析批量聚合窗口失败: %w", err)
	}
	dedupWindow, err := time.ParseDuration(cfg.DedupWindow)
	if err != nil {
		return nil, nil, fmt.Errorf("解析去重窗口失败: %w", err)
	}

	store, err := alert.NewFileStore(cfg.StateFile)
	if err != nil {
		return nil, nil, fmt.Errorf("创建状态快照存储失败: %w", err)
	}

	notifier := notify.NewManager(cfg)
	pipeline, err := alert.NewPipeline(alert.Options{
		BatchWindow:      batchWindow,
		DedupWindow:      dedupWindow,
		MaxAlertsPerHour: cfg.MaxAlertsPerHour,
		DefaultChannels:  config.ParseChannels(cfg.DefaultChannels),
	}, notifier, store)
	if err != nil {
		return nil, nil, err
	}

	if cfg.AlertRules != nil {
		if err := pipeline.ReplaceRuleset(cfg.AlertRules); err != nil {
			return nil, nil, fmt.Errorf("加载内联告警规则失败: %w", err)
		}
	}

	var rulesWatcher *watcher.RulesWatcher
	if strings.TrimSpace(cfg.AlertRulesFile) != "" {
		ruleset, err := alert.LoadRules(cfg.AlertRulesFile)
		if err != nil {
			return nil, nil, fmt.Errorf("加载告警规则文件失败: %w", err)
		}
		if err := pipeline.ReplaceRuleset(ruleset); err != nil {
			return nil, nil, fmt.Errorf("应用告警规则文件失败: %w", err)
		}
		rulesWatcher, err = watcher.NewRulesWatcher(cfg.AlertRulesFile, alert.LoadRules, pipeline.ReplaceRuleset)
		if err != nil {
			return nil, nil, fmt.Errorf("创建规则文件监控失败: %w", err)
		}
		if err := rulesWatcher.Start(); err != nil {
			return nil, nil, fmt.Errorf("启动规则文件监控失败: %w", err)
		}
	}
	return pipeline, rulesWatcher, nil
}

func buildReporter(cfg *models.Config, store *storage.MetricsStore) (*report.Generator, error) {
	uploader, err := report.NewUploader(cfg)
	if err != nil {
		return nil, err
	}
	return report.NewGenerator(store, uploader, reportKeyPrefix)
}

func buildScheduler(cfg *models.Config, store *storage.MetricsStore, pipeline *alert.Pipeline) (*scheduler.Scheduler, error) {
	interval, err := time.ParseDuration(cfg.CollectInterval)
	if err != nil {
		return nil, fmt.Errorf("解析采集周期失败: %w", err)
	}

	var sources []collectors.Collector
	if strings.TrimSpace(cfg.JenkinsHost) != "" {
		jenkins, err := collectors.NewJenkinsCollector(cfg)
		if err != nil {
			// Jenkins 不可达不阻断启动 其余来源与告警链路照常工作
			logger.Error("创建 Jenkins 采集器失败: %v", err)
		} else {
			sources = append(sources, jenkins)
		}
	}
	if strings.TrimSpace(cfg.GitHubRepo) != "" {
		github, err := collectors.NewGitHubCollector(cfg)
		if err != nil {
			return nil, fmt.Errorf("创建 GitHub 采集器失败: %w", err)
		}
		sources = append(sources, github)
	}
	if len(sources) == 0 {
		logger.Warn("未配置任何采集来源 仅提供 API 与告警服务")
	}

	return scheduler.New(interval, sources, store, detector.New(cfg.ZScoreThreshold, cfg.MinSamples), pipeline)
}

func logConfig(cfg *models.Config) {
	logger.Info("配置加载成功")
	logger.Info("API 监听地址: %s", cfg.APIBind)
	logger.Info("数据目录: %s", cfg.DataDir)
	logger.Info("状态快照文件: %s", cfg.StateFile)
	logger.Info("批量聚合窗口: %s", cfg.BatchWindow)
	logger.Info("去重窗口: %s", cfg.DedupWindow)
	logger.Info("每小时最大告警数: %d", cfg.MaxAlertsPerHour)
	logger.Info("默认通知渠道: %s", cfg.DefaultChannels)
	logger.Info("采集周期: %s", cfg.CollectInterval)
	if cfg.JenkinsHost != "" {
		logger.Info("Jenkins 地址: %s", cfg.JenkinsHost)
	}
	if cfg.GitHubRepo != "" {
		logger.Info("GitHub 仓库: %s", cfg.GitHubRepo)
	}
	logger.Info("报告上传目标: %s", cfg.ReportUpload)
	logger.Info("日志级别: %s", cfg.LogLevel)
	if cfg.LogFile != "" {
		logger.Info("日志文件: %s", cfg.LogFile)
	}
}

func waitForShutdown(cancel context.CancelFunc, pipeline *alert.Pipeline, apiServer *api.Server) {
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	<-signalChan
	logger.Info("收到退出信号，正在关闭服务...")
	cancel()

	// 退出前兜底发送在途批次 避免告警滞留
	flushCtx, flushCancel := context.WithTimeout(context.Background(), 10*time.Second)
	pipeline.FlushNow(flushCtx, nil)
	flushCancel()

	if apiServer != nil {
		ctx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShutdown()
		if err := apiServer.Shutdown(ctx); err != nil {
			logger.Warn("关闭 API 服务失败: %v", err)
		}
	}

	logger.Info("程序已退出")
	os.Exit(0)
}
