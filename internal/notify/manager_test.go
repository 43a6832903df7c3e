// 本文件用于通知调度相关测试
package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"ci-alert/internal/alert"
	"ci-alert/internal/models"
)

type capturedRequest struct {
	path string
	body string
}

// newCaptureServer 返回记录全部请求体的测试服务
func newCaptureServer(t *testing.T, status int) (*httptest.Server, func() []capturedRequest) {
	t.Helper()
	var mu sync.Mutex
	var requests []capturedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		requests = append(requests, capturedRequest{path: r.URL.Path, body: string(body)})
		mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(server.Close)
	return server, func() []capturedRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]capturedRequest(nil), requests...)
	}
}

func TestSendOneDeliversToSlack(t *testing.T) {
	server, requests := newCaptureServer(t, http.StatusOK)
	manager := NewManager(&models.Config{SlackWebhookURL: server.URL})

	event := &models.AnomalyEvent{
		JobName:   "build-core",
		Source:    "jenkins",
		MaxZScore: 6.2,
		Features:  []models.AnomalyFeature{{Feature: "duration", Value: 900, Expected: 300, ZScore: 6.2}},
	}
	if !manager.SendOne(context.Background(), event, []string{"slack"}) {
		t.Fatalf("Slack 投递应成功")
	}

	got := requests()
	if len(got) != 1 {
		t.Fatalf("应有一次 Slack 请求, got %d", len(got))
	}
	if !strings.Contains(got[0].body, "build-core") || !strings.Contains(got[0].body, "CRITICAL") {
		t.Fatalf("Slack 消息内容异常: %s", got[0].body)
	}
	if !strings.Contains(got[0].body, "#ff0000") {
		t.Fatalf("critical 级别应使用红色: %s", got[0].body)
	}
}

func TestSendBatchWebhookPayload(t *testing.T) {
	server, requests := newCaptureServer(t, http.StatusOK)
	manager := NewManager(&models.Config{WebhookURL: server.URL})

	events := []*models.AnomalyEvent{
		{JobName: "build-core", MaxZScore: 3.0},
		{JobName: "build-core", MaxZScore: 4.5},
		{JobName: "deploy-app", MaxZScore: 2.8},
	}
	if !manager.SendBatch(context.Background(), events, []string{"webhook"}) {
		t.Fatalf("webhook 投递应成功")
	}

	got := requests()
	if len(got) != 1 {
		t.Fatalf("应有一次 webhook 请求, got %d", len(got))
	}
	var payload struct {
		Title    string                 `json:"title"`
		Severity string                 `json:"severity"`
		Events   []*models.AnomalyEvent `json:"events"`
	}
	if err := json.Unmarshal([]byte(got[0].body), &payload); err != nil {
		t.Fatalf("解析 webhook 消息失败: %v", err)
	}
	if len(payload.Events) != 3 {
		t.Fatalf("webhook 应携带全部事件, got %d", len(payload.Events))
	}
	if payload.Severity != "high" {
		t.Fatalf("批次级别应取最高级别, got %s", payload.Severity)
	}
	if !strings.Contains(payload.Title, "3 anomalies") {
		t.Fatalf("批次标题异常: %s", payload.Title)
	}
}

func TestDispatchAnySuccessWins(t *testing.T) {
	okServer, _ := newCaptureServer(t, http.StatusOK)
	badServer, _ := newCaptureServer(t, http.StatusInternalServerError)
	manager := NewManager(&models.Config{
		SlackWebhookURL: badServer.URL,
		WebhookURL:      okServer.URL,
	})

	event := &models.AnomalyEvent{JobName: "build-core", MaxZScore: 3.0}
	if !manager.SendOne(context.Background(), event, []string{"slack", "webhook"}) {
		t.Fatalf("任一渠道成功即应整体成功")
	}
}

func TestDispatchUnconfiguredChannelFails(t *testing.T) {
	manager := NewManager(&models.Config{})
	event := &models.AnomalyEvent{JobName: "build-core", MaxZScore: 3.0}
	if manager.SendOne(context.Background(), event, []string{"slack", "email", "nope"}) {
		t.Fatalf("全部渠道失败时应返回 false")
	}
}

func TestWithWebhookDoesNotMutateBase(t *testing.T) {
	baseServer, baseRequests := newCaptureServer(t, http.StatusOK)
	ruleServer, ruleRequests := newCaptureServer(t, http.StatusOK)
	manager := NewManager(&models.Config{SlackWebhookURL: baseServer.URL})

	derived := manager.WithWebhook(ruleServer.URL)
	event := &models.AnomalyEvent{JobName: "infra-deploy", MaxZScore: 6.0}
	if !derived.SendOne(context.Background(), event, []string{"slack"}) {
		t.Fatalf("派生实例投递应成功")
	}
	if !manager.SendOne(context.Background(), event, []string{"slack"}) {
		t.Fatalf("原实例投递应成功")
	}

	if len(ruleRequests()) != 1 {
		t.Fatalf("派生实例应发往规则 webhook")
	}
	if len(baseRequests()) != 1 {
		t.Fatalf("原实例配置不应被派生实例修改")
	}
}

func TestFormatBatchTopSeverity(t *testing.T) {
	_, _, severity := formatBatch([]*models.AnomalyEvent{
		{JobName: "a", MaxZScore: 1.0},
		{JobName: "b", MaxZScore: 5.5},
		{JobName: "c", MaxZScore: 3.0},
	})
	if severity != alert.SeverityCritical {
		t.Fatalf("批次级别应为 critical, got %s", severity)
	}
}

func TestSplitRecipients(t *testing.T) {
	got := splitRecipients(" a@x.com , ,b@y.com")
	if len(got) != 2 || got[0] != "a@x.com" || got[1] != "b@y.com" {
		t.Fatalf("收件人拆分异常: %v", got)
	}
}
