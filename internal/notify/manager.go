// 本文件用于多渠道告警通知的统一调度
// 文件职责：实现当前模块的核心业务逻辑与数据流转
// 关键路径：入口参数先校验再执行业务处理 最后返回统一结果
// 边界与容错：异常场景显式返回错误 由上层决定重试或降级

package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ci-alert/internal/alert"
	"ci-alert/internal/email"
	"ci-alert/internal/logger"
	"ci-alert/internal/metrics"
	"ci-alert/internal/models"
)

// Manager 按渠道分发告警通知 实现管线的发送器接口
// 任一渠道送达成功即视为整体成功 各渠道失败只记日志
type Manager struct {
	slack   *SlackRobot
	webhook *WebhookSender
	email   *email.Sender
}

// NewManager 根据配置创建通知调度器 未配置的渠道留空
func NewManager(cfg *models.Config) *Manager {
	manager := &Manager{}
	if cfg == nil {
		return manager
	}
	if cfg.SlackWebhookURL != "" {
		manager.slack = NewSlackRobot(cfg.SlackWebhookURL)
	}
	if cfg.WebhookURL != "" {
		manager.webhook = NewWebhookSender(cfg.WebhookURL)
	}
	if cfg.EmailHost != "" {
		manager.email = email.NewSender(
			cfg.EmailHost,
			cfg.EmailPort,
			cfg.EmailUser,
			cfg.EmailPass,
			cfg.EmailFrom,
			splitRecipients(cfg.EmailTo),
			cfg.EmailUseTLS,
		)
	}
	return manager
}

// WithWebhook 返回覆盖了 Slack 目标的派生实例 原实例不受影响
func (m *Manager) WithWebhook(webhook string) alert.Notifier {
	trimmed := strings.TrimSpace(webhook)
	if m == nil || trimmed == "" {
		return m
	}
	clone := *m
	clone.slack = NewSlackRobot(trimmed)
	return &clone
}

// SendOne 发送单条告警
func (m *Manager) SendOne(ctx context.Context, event *models.AnomalyEvent, channels []string) bool {
	title, text := formatEvent(event)
	severity := alert.ClassifySeverity(event)
	return m.dispatch(ctx, channels, title, text, severity, []*models.AnomalyEvent{event})
}

// SendBatch 发送批量告警摘要
func (m *Manager) SendBatch(ctx context.Context, events []*models.AnomalyEvent, channels []string) bool {
	if len(events) == 0 {
		return true
	}
	title, text, severity := formatBatch(events)
	return m.dispatch(ctx, channels, title, text, severity, events)
}

// dispatch 逐渠道投递 统计每个渠道的结果与耗时
func (m *Manager) dispatch(ctx context.Context, channels []string, title, text string, severity alert.Severity, events []*models.AnomalyEvent) bool {
	if m == nil {
		return false
	}
	if len(channels) == 0 {
		channels = []string{"slack"}
	}

	anySuccess := false
	for _, channel := range channels {
		name := strings.ToLower(strings.TrimSpace(channel))
		if name == "" {
			continue
		}
		start := time.Now()
		err := m.sendVia(ctx, name, title, text, severity, events)
		metrics.Global().ObserveNotify(name, time.Since(start), err == nil)
		if err != nil {
			logger.Error("渠道 %s 投递失败: %v", name, err)
			continue
		}
		anySuccess = true
	}
	return anySuccess
}

func (m *Manager) sendVia(ctx context.Context, channel, title, text string, severity alert.Severity, events []*models.AnomalyEvent) error {
	switch channel {
	case "slack":
		if m.slack == nil {
			return fmt.Errorf("slack 渠道未配置")
		}
		return m.slack.SendMessage(ctx, title, text, severityColor(severity))
	case "webhook":
		if m.webhook == nil {
			return fmt.Errorf("webhook 渠道未配置")
		}
		return m.webhook.Send(ctx, title, text, string(severity), events)
	case "email":
		if m.email == nil {
			return fmt.Errorf("email 渠道未配置")
		}
		err := m.email.SendMessage(ctx, title, text)
		if email.IsQuitError(err) {
			// 邮件已提交 仅会话收尾失败
			logger.Warn("邮件发送成功但 QUIT 失败: %v", err)
			return nil
		}
		return err
	default:
		return fmt.Errorf("未知通知渠道: %s", channel)
	}
}

// splitRecipients 拆分逗号分隔的收件人列表
func splitRecipients(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}
