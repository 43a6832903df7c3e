// 本文件用于 API 鉴权与跨域中间件
package api

import (
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"

	"ci-alert/internal/models"
)

// withAPIAuth 校验 Bearer token
// token 为空或保留占位符视为未启用 环境变量可显式关闭
func withAPIAuth(cfg *models.Config, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || !authEnabled(cfg) {
			next.ServeHTTP(w, r)
			return
		}
		token := strings.TrimSpace(cfg.APIAuthToken)
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if header != "Bearer "+token {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func authEnabled(cfg *models.Config) bool {
	if cfg == nil {
		return false
	}
	token := strings.TrimSpace(cfg.APIAuthToken)
	if token == "" {
		return false
	}
	// 配置模板未渲染时按未启用处理 避免把服务锁死
	if strings.HasPrefix(token, "${") && strings.HasSuffix(token, "}") {
		return false
	}
	if strings.EqualFold(os.Getenv("API_AUTH_DISABLED"), "true") {
		return false
	}
	return true
}

// withCORS 按配置白名单处理跨域
// 未配置白名单时放行回环地址与同主机来源 其余拒绝
func withCORS(cfg *models.Config, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := strings.TrimSpace(r.Header.Get("Origin"))
		if origin == "" {
			next.ServeHTTP(w, r)
			return
		}
		if !originAllowed(cfg, origin, r.Host) {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "origin not allowed"})
			return
		}
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func originAllowed(cfg *models.Config, origin, requestHost string) bool {
	configured := ""
	if cfg != nil {
		configured = strings.TrimSpace(cfg.APICORSOrigins)
	}
	if configured == "*" {
		return true
	}
	if configured != "" {
		for _, item := range strings.Split(configured, ",") {
			if strings.TrimSpace(item) == origin {
				return true
			}
		}
		return false
	}

	originHost := hostOnly(origin)
	if originHost == "" {
		return false
	}
	if isLoopbackHost(originHost) {
		return true
	}
	return originHost == hostPart(requestHost)
}

func hostOnly(origin string) string {
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return ""
	}
	return hostPart(parsed.Host)
}

func hostPart(hostport string) string {
	if host, _, err := net.SplitHostPort(hostport); err == nil {
		return host
	}
	return hostport
}

func isLoopbackHost(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
