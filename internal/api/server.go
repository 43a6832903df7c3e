// 本文件用于对外 HTTP API 服务的装配与生命周期管理
// 文件职责：实现当前模块的核心业务逻辑与数据流转
// 关键路径：入口参数先校验再执行业务处理 最后返回统一结果
// 边界与容错：异常场景显式返回错误 由上层决定重试或降级

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"ci-alert/internal/alert"
	"ci-alert/internal/logger"
	"ci-alert/internal/models"
	"ci-alert/internal/report"
	"ci-alert/internal/scheduler"
	"ci-alert/internal/storage"
)

// Server wraps the HTTP API server.
type Server struct {
	httpServer *http.Server
}

type handler struct {
	cfg      *models.Config
	pipeline *alert.Pipeline
	store    *storage.MetricsStore
	sched    *scheduler.Scheduler
	reporter *report.Generator
}

// NewServer builds the HTTP server for console/API consumption.
// sched 与 reporter 允许为空 对应接口按未配置处理
func NewServer(cfg *models.Config, pipeline *alert.Pipeline, store *storage.MetricsStore, sched *scheduler.Scheduler, reporter *report.Generator) *Server {
	h := &handler{cfg: cfg, pipeline: pipeline, store: store, sched: sched, reporter: reporter}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", h.health)
	mux.HandleFunc("/api/stats", h.stats)
	mux.HandleFunc("/api/rules", h.rules)
	mux.HandleFunc("/api/windows", h.windows)
	mux.HandleFunc("/api/anomalies", h.anomalies)
	mux.HandleFunc("/api/flush", h.flush)
	mux.HandleFunc("/api/report", h.report)
	mux.HandleFunc("/metrics", h.prometheusMetrics)

	srv := &http.Server{
		Addr:         cfg.APIBind,
		Handler:      withCORS(cfg, withAPIAuth(cfg, mux)),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return &Server{httpServer: srv}
}

// Start boots the API server asynchronously.
func (s *Server) Start() {
	go func() {
		logger.Info("API 服务监听 %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("API 服务异常退出: %v", err)
		}
	}()
}

// Shutdown gracefully stops the API server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
