// 本文件用于 Slack 机器人消息发送
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"ci-alert/internal/logger"
)

// SlackRobot Slack incoming webhook 机器人。
type SlackRobot struct {
	webhook string
}

type slackMessage struct {
	Text        string            `json:"text,omitempty"`
	Attachments []slackAttachment `json:"attachments,omitempty"`
}

type slackAttachment struct {
	Color  string `json:"color,omitempty"`
	Title  string `json:"title"`
	Text   string `json:"text"`
	Footer string `json:"footer,omitempty"`
	TS     int64  `json:"ts,omitempty"`
}

// NewSlackRobot 创建 Slack 机器人实例。
func NewSlackRobot(webhook string) *SlackRobot {
	return &SlackRobot{
		webhook: strings.TrimSpace(webhook),
	}
}

// SendMessage 发送 Slack attachment 消息。
func (r *SlackRobot) SendMessage(ctx context.Context, title, text, color string) error {
	if r == nil || r.webhook == "" {
		return fmt.Errorf("slack webhook 为空")
	}

	msg := slackMessage{
		Attachments: []slackAttachment{{
			Color:  color,
			Title:  title,
			Text:   text,
			Footer: "ci-alert",
			TS:     time.Now().Unix(),
		}},
	}
	jsonReq, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("序列化 Slack 消息失败: %w", err)
	}

	if err := r.postMessage(ctx, jsonReq); err != nil {
		return err
	}

	logger.Info("Slack 机器人消息发送成功")
	return nil
}

func (r *SlackRobot) postMessage(ctx context.Context, payload []byte) error {
	req, err := http.NewRequest(http.MethodPost, r.webhook, bytes.NewBuffer(payload))
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

	// Slack 成功时返回纯文本 ok 只校验状态码即可
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack HTTP 状态码异常: %d", resp.StatusCode)
	}
	return nil
}
