// 本文件用于 API 各接口的请求处理
// 文件职责：实现当前模块的核心业务逻辑与数据流转
// 关键路径：入口参数先校验再执行业务处理 最后返回统一结果
// 边界与容错：异常场景显式返回错误 由上层决定重试或降级

package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"ci-alert/internal/metrics"
	"ci-alert/internal/models"
	"ci-alert/internal/sysinfo"
)

const (
	defaultAnomalyHours = 24
	defaultReportDays   = 7
)

type healthResponse struct {
	Status string `json:"status"`
	models.HealthSnapshot
	System *sysinfo.HostSnapshot `json:"system,omitempty"`
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	resp := healthResponse{Status: "ok"}
	if h.pipeline != nil {
		resp.Pipeline = h.pipeline.Health()
	}
	h.sched.Status(&resp.HealthSnapshot)
	if h.cfg != nil && h.cfg.SystemResourceEnabled {
		snapshot := sysinfo.Snapshot()
		resp.System = &snapshot
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) stats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	writeJSON(w, http.StatusOK, h.pipeline.GetStats())
}

func (h *handler) rules(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"rules": h.pipeline.ListRules()})
	case http.MethodPost:
		var rule models.AlertRule
		if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
			return
		}
		if err := h.pipeline.AddRule(rule); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "name": rule.Name})
	case http.MethodDelete:
		name := strings.TrimSpace(r.URL.Query().Get("name"))
		if name == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name required"})
			return
		}
		if !h.pipeline.RemoveRule(name) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": fmt.Sprintf("rule %q not found", name)})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "name": name})
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

func (h *handler) windows(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"windows": h.pipeline.ListActiveWindows()})
	case http.MethodPost:
		var window models.MaintenanceWindow
		if err := json.NewDecoder(r.Body).Decode(&window); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
			return
		}
		if err := h.pipeline.AddMaintenanceWindow(window); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "name": window.Name})
	case http.MethodDelete:
		name := strings.TrimSpace(r.URL.Query().Get("name"))
		if name == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name required"})
			return
		}
		if !h.pipeline.RemoveMaintenanceWindow(name) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": fmt.Sprintf("window %q not found", name)})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "name": name})
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

func (h *handler) anomalies(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	hours := queryInt(r, "hours", defaultAnomalyHours)
	events, err := h.store.RecentAnomalies(hours)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"hours":     hours,
		"count":     len(events),
		"anomalies": events,
	})
}

func (h *handler) flush(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	var req struct {
		Channels []string `json:"channels"`
	}
	// 请求体可省略 省略时按规则或默认渠道发送
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	sent := h.pipeline.FlushNow(r.Context(), req.Channels)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "sent": sent})
}

func (h *handler) report(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if h.reporter == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "report generator not configured"})
		return
	}
	days := queryInt(r, "days", defaultReportDays)
	summary, downloadURL, err := h.reporter.GenerateAndUpload(r.Context(), days)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	resp := map[string]any{"report": summary}
	if downloadURL != "" {
		resp["url"] = downloadURL
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) prometheusMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	_, _ = io.WriteString(w, metrics.MustGlobalPrometheus())
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}
