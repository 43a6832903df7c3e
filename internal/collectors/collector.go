// 本文件用于定义构建指标采集器接口
package collectors

import (
	"context"

	"ci-alert/internal/models"
)

// Collector 表示一个构建指标来源
type Collector interface {
	// Name 返回来源标识 写入指标的 Source 字段
	Name() string
	// Collect 拉取一轮构建指标
	Collect(ctx context.Context) ([]models.BuildMetric, error)
}
