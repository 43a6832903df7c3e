// 本文件用于定义异常事件模型
package models

import (
	"time"
)

// AnomalyFeature 表示单个异常特征的偏离情况
type AnomalyFeature struct {
	Feature  string  `json:"feature"`
	Value    float64 `json:"value"`
	Expected float64 `json:"expected"`
	ZScore   float64 `json:"z_score"`
}

// AnomalyEvent 表示一次检测到的 CI/CD 异常
// 由检测器产出 经告警管线决策后对外通知
type AnomalyEvent struct {
	JobName    string           `json:"job_name"`
	Source     string           `json:"source,omitempty"`
	Severity   string           `json:"severity,omitempty"` // 显式级别 为空时按分值推导
	MaxZScore  float64          `json:"max_z_score"`
	Features   []AnomalyFeature `json:"anomaly_features"`
	DetectedAt time.Time        `json:"detected_at"`
	Detail     string           `json:"detail,omitempty"`
}
