// 本文件用于邮件通知发送
package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"
)

const defaultTimeout = 10 * time.Second

// Sender 负责发送 SMTP 邮件
type Sender struct {
	host     string
	port     int
	user     string
	password string
	from     string
	to       []string
	useTLS   bool // 控制 TLS 与 STARTTLS 行为
}

// NewSender 创建邮件发送器
func NewSender(host string, port int, user, password, from string, to []string, useTLS bool) *Sender {
	return &Sender{
		host:     strings.TrimSpace(host),
		port:     port,
		user:     strings.TrimSpace(user),
		password: password,
		from:     strings.TrimSpace(from),
		to:       cleanRecipients(to),
		useTLS:   useTLS,
	}
}

// SendMessage 通过 SMTP 发送邮件
func (s *Sender) SendMessage(ctx context.Context, subject, body string) error {
	// 统一做入参校验与默认超时，避免连接长时间挂起
	if s == nil {
		return fmt.Errorf("email sender is nil")
	}
	if s.host == "" {
		return fmt.Errorf("smtp host is empty")
	}
	if s.port <= 0 {
		return fmt.Errorf("smtp port is invalid")
	}
	if s.from == "" {
		return fmt.Errorf("smtp from is empty")
	}
	if len(s.to) == 0 {
		return fmt.Errorf("smtp recipients are empty")
	}

	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultTimeout)
		defer cancel()
	}

	// 先建立 TCP 连接，再根据端口与配置决定是否走 TLS 或 STARTTLS
	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	dialer := net.Dialer{Timeout: defaultTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("smtp dial failed: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	var client *smtp.Client
	if s.useTLS && s.port == 465 {
		// 465 端口通常走 SMTPS 直连 TLS
		tlsConn := tls.Client(conn, &tls.Config{ServerName: s.host})
		if err := tlsConn.Handshake(); err != nil {
			_ = conn.Close()
			return fmt.Errorf("smtp tls handshake failed: %w", err)
		}
		client, err = smtp.NewClient(tlsConn, s.host)
	} else {
		client, err = smtp.NewClient(conn, s.host)
	}
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("smtp client init failed: %w", err)
	}
	defer client.Close()

	// 仅在非 465 端口时尝试 STARTTLS
	if s.useTLS && s.port != 465 {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(&tls.Config{ServerName: s.host}); err != nil {
				return fmt.Errorf("smtp starttls failed: %w", err)
			}
		} else {
			return fmt.Errorf("smtp server does not support STARTTLS")
		}
	}

	if s.user != "" {
		if ok, _ := client.Extension("AUTH"); !ok {
			return fmt.Errorf("smtp server does not support AUTH")
		}
		auth := smtp.PlainAuth("", s.user, s.password, s.host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth failed: %w", err)
		}
	}

	if err := client.Mail(s.from); err != nil {
		return fmt.Errorf("smtp mail from failed: %w", err)
	}
	for _, rcpt := range s.to {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp rcpt to %s failed: %w", rcpt, err)
		}
	}
	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data failed: %w", err)
	}
	if _, err := writer.Write([]byte(buildMessage(s.from, s.to, subject, body))); err != nil {
		_ = writer.Close()
		return fmt.Errorf("smtp write failed: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("smtp data close failed: %w", err)
	}
	if err := client.Quit(); err != nil {
		// QUIT 失败不影响邮件已发送成功的事实
		return &QuitError{Err: err}
	}
	return nil
}

// QuitError 表示邮件发送完成后 SMTP QUIT 失败
type QuitError struct {
	Err error
}

// Error 返回可读的 QUIT 失败描述
func (e *QuitError) Error() string {
	if e == nil || e.Err == nil {
		return "smtp quit failed"
	}
	return fmt.Sprintf("smtp quit failed: %v", e.Err)
}

// Unwrap 暴露底层错误，方便调用方用 errors.As 判断
func (e *QuitError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsQuitError 判断错误是否为退出失败
func IsQuitError(err error) bool {
	var quitErr *QuitError
	return errors.As(err, &quitErr)
}

// buildMessage 组装标准 SMTP 文本邮件内容
// 这里不引入复杂 MIME，保证告警通知稳定可用
func buildMessage(from string, to []string, subject, body string) string {
	// Subject 去除换行避免头注入
	cleanSubject := strings.NewReplacer("\r", "", "\n", "").Replace(subject)
	headers := []string{
		fmt.Sprintf("From: %s", from),
		fmt.Sprintf("To: %s", strings.Join(to, ", ")),
		fmt.Sprintf("Subject: %s", cleanSubject),
		fmt.Sprintf("Date: %s", time.Now().Format(time.RFC1123Z)),
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"UTF-8\"",
	}
	normalizedBody := normalizeLineEndings(body)
	return strings.Join(headers, "\r\n") + "\r\n\r\n" + normalizedBody + "\r\n"
}

// normalizeLineEndings 统一换行符为 CRLF，满足 SMTP 协议要求
func normalizeLineEndings(body string) string {
	body = strings.ReplaceAll(body, "\r\n", "\n")
	body = strings.ReplaceAll(body, "\r", "\n")
	return strings.ReplaceAll(body, "\n", "\r\n")
}

// cleanRecipients 清理收件人列表中的空项与多余空格
func cleanRecipients(list []string) []string {
	out := make([]string, 0, len(list))
	for _, item := range list {
		trimmed := strings.TrimSpace(item)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}
