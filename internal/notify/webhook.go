// 本文件用于通用 webhook 通知发送
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ci-alert/internal/models"
)

// WebhookSender 把告警以 JSON 形式推送到自定义回调地址。
type WebhookSender struct {
	url string
}

// webhookPayload 通用回调的消息体
type webhookPayload struct {
	Title     string                 `json:"title"`
	Text      string                 `json:"text"`
	Severity  string                 `json:"severity"`
	Events    []*models.AnomalyEvent `json:"events"`
	Timestamp string                 `json:"timestamp"`
}

// NewWebhookSender 创建通用 webhook 发送器。
func NewWebhookSender(url string) *WebhookSender {
	return &WebhookSender{
		url: strings.TrimSpace(url),
	}
}

// Send 推送一次告警回调。
func (w *WebhookSender) Send(ctx context.Context, title, text, severity string, events []*models.AnomalyEvent) error {
	if w == nil || w.url == "" {
		return fmt.Errorf("webhook 地址为空")
	}

	payload := webhookPayload{
		Title:     title,
		Text:      text,
		Severity:  severity,
		Events:    events,
		Timestamp: time.Now().Format(time.RFC3339),
	}
	jsonReq, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化 webhook 消息失败: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, w.url, bytes.NewBuffer(jsonReq))
	if err != nil {
		return fmt.Errorf("创建 HTTP 请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if ctx != nil {
		req = req.WithContext(ctx)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("发送 HTTP 请求失败: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook HTTP 状态码异常: %d", resp.StatusCode)
	}
	return nil
}
