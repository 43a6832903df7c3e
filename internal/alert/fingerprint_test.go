// 本文件用于事件指纹相关测试
package alert

import (
	"testing"

	"ci-alert/internal/models"
)

func featuresOf(names ...string) []models.AnomalyFeature {
	out := make([]models.AnomalyFeature, 0, len(names))
	for _, name := range names {
		out = append(out, models.AnomalyFeature{Feature: name, Value: 1, Expected: 0, ZScore: 3})
	}
	return out
}

func TestFingerprintStableAcrossFeatureOrder(t *testing.T) {
	a := &models.AnomalyEvent{JobName: "build-core", Features: featuresOf("duration", "failure_rate")}
	b := &models.AnomalyEvent{JobName: "build-core", Features: featuresOf("failure_rate", "duration")}
	if Fingerprint(a) != Fingerprint(b) {
		t.Fatalf("特征顺序不应影响指纹")
	}
}

func TestFingerprintIgnoresValues(t *testing.T) {
	a := &models.AnomalyEvent{JobName: "build-core", MaxZScore: 3.1, Features: featuresOf("duration")}
	b := &models.AnomalyEvent{JobName: "build-core", MaxZScore: 9.9, Features: featuresOf("duration")}
	b.Features[0].Value = 42
	if Fingerprint(a) != Fingerprint(b) {
		t.Fatalf("特征数值不应影响指纹")
	}
}

func TestFingerprintDistinguishesJobAndFeatures(t *testing.T) {
	base := &models.AnomalyEvent{JobName: "build-core", Features: featuresOf("duration")}
	otherJob := &models.AnomalyEvent{JobName: "build-web", Features: featuresOf("duration")}
	otherFeature := &models.AnomalyEvent{JobName: "build-core", Features: featuresOf("queue_time")}
	if Fingerprint(base) == Fingerprint(otherJob) {
		t.Fatalf("不同任务应产生不同指纹")
	}
	if Fingerprint(base) == Fingerprint(otherFeature) {
		t.Fatalf("不同特征集合应产生不同指纹")
	}
}

func TestFingerprintDedupesFeatureNames(t *testing.T) {
	a := &models.AnomalyEvent{JobName: "build-core", Features: featuresOf("duration", "duration", " duration ")}
	b := &models.AnomalyEvent{JobName: "build-core", Features: featuresOf("duration")}
	if Fingerprint(a) != Fingerprint(b) {
		t.Fatalf("重复与空白特征名应归一化")
	}
}

func TestFingerprintNilEvent(t *testing.T) {
	if got := Fingerprint(nil); len(got) != 32 {
		t.Fatalf("空事件也应产生 32 位十六进制指纹, got %q", got)
	}
}
