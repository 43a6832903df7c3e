// 本文件用于异常级别判定相关测试
package alert

import (
	"testing"

	"ci-alert/internal/models"
)

func TestClassifySeverityByScore(t *testing.T) {
	cases := []struct {
		name  string
		score float64
		want  Severity
	}{
		{name: "critical", score: 5.1, want: SeverityCritical},
		{name: "critical-boundary", score: 5.0, want: SeverityHigh},
		{name: "high", score: 4.2, want: SeverityHigh},
		{name: "high-boundary", score: 4.0, want: SeverityMedium},
		{name: "medium", score: 3.0, want: SeverityMedium},
		{name: "medium-boundary", score: 2.5, want: SeverityLow},
		{name: "low", score: 1.0, want: SeverityLow},
		{name: "zero", score: 0, want: SeverityLow},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			event := &models.AnomalyEvent{JobName: "build", MaxZScore: tc.score}
			if got := ClassifySeverity(event); got != tc.want {
				t.Fatalf("ClassifySeverity(score=%v) = %s, want %s", tc.score, got, tc.want)
			}
		})
	}
}

func TestClassifySeverityExplicitWins(t *testing.T) {
	event := &models.AnomalyEvent{JobName: "build", Severity: " Critical ", MaxZScore: 0.1}
	if got := ClassifySeverity(event); got != SeverityCritical {
		t.Fatalf("显式级别应原样采用, got %s", got)
	}

	// 非法显式级别回退到分值阶梯
	event = &models.AnomalyEvent{JobName: "build", Severity: "urgent", MaxZScore: 6}
	if got := ClassifySeverity(event); got != SeverityCritical {
		t.Fatalf("非法显式级别应按分值判定, got %s", got)
	}
}

func TestClassifySeverityNilEvent(t *testing.T) {
	if got := ClassifySeverity(nil); got != SeverityLow {
		t.Fatalf("空事件应判为最低级别, got %s", got)
	}
}

func TestJobNameOf(t *testing.T) {
	if got := jobNameOf(nil); got != "unknown" {
		t.Fatalf("空事件任务名应为 unknown, got %s", got)
	}
	if got := jobNameOf(&models.AnomalyEvent{JobName: "  "}); got != "unknown" {
		t.Fatalf("空白任务名应为 unknown, got %s", got)
	}
	if got := jobNameOf(&models.AnomalyEvent{JobName: "deploy-app"}); got != "deploy-app" {
		t.Fatalf("任务名提取异常, got %s", got)
	}
}

func TestRankOrdering(t *testing.T) {
	if rankOf(SeverityLow) >= rankOf(SeverityMedium) ||
		rankOf(SeverityMedium) >= rankOf(SeverityHigh) ||
		rankOf(SeverityHigh) >= rankOf(SeverityCritical) {
		t.Fatalf("级别次序应严格递增")
	}
	if rankOf(Severity("bogus")) != rankOf(SeverityLow) {
		t.Fatalf("未知级别应按最低处理")
	}
}
