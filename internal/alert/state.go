// 本文件用于告警管线状态的快照持久化
// 文件职责：实现当前模块的核心业务逻辑与数据流转
// 关键路径：入口参数先校验再执行业务处理 最后返回统一结果
// 边界与容错：异常场景显式返回错误 由上层决定重试或降级

package alert

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Counters 表示管线累计计数 进程生命周期内单调递增
// 重启加载时做加法合并 不清零
type Counters struct {
	TotalReceived         uint64 `json:"total_received"`
	TotalSent             uint64 `json:"total_sent"`
	SuppressedDuplicate   uint64 `json:"suppressed_duplicate"`
	SuppressedMaintenance uint64 `json:"suppressed_maintenance"`
	SuppressedRateLimit   uint64 `json:"suppressed_rate_limit"`
	SuppressedSeverity    uint64 `json:"suppressed_severity"`
	Batched               uint64 `json:"batched"`
}

// merge 加法合并历史计数
func (c *Counters) merge(other Counters) {
	c.TotalReceived += other.TotalReceived
	c.TotalSent += other.TotalSent
	c.SuppressedDuplicate += other.SuppressedDuplicate
	c.SuppressedMaintenance += other.SuppressedMaintenance
	c.SuppressedRateLimit += other.SuppressedRateLimit
	c.SuppressedSeverity += other.SuppressedSeverity
	c.Batched += other.Batched
}

// suppressed 返回各类抑制的总数
func (c *Counters) suppressed() uint64 {
	return c.SuppressedDuplicate + c.SuppressedMaintenance + c.SuppressedRateLimit + c.SuppressedSeverity
}

// Snapshot 表示可持久化的管线状态
type Snapshot struct {
	Fingerprints    map[string]time.Time `json:"fingerprints"`
	AlertTimestamps []time.Time          `json:"alert_timestamps"`
	Counters        Counters             `json:"counters"`
	SavedAt         time.Time            `json:"saved_at"`
}

// Store 表示状态快照后端
// Load 无快照时返回 (nil, nil) 冷启动不是错误
type Store interface {
	Load() (*Snapshot, error)
	Save(snapshot *Snapshot) error
}

// FileStore 表示 JSON 文件快照后端
type FileStore struct {
	path string
}

// NewFileStore 创建文件快照后端
func NewFileStore(path string) (*FileStore, error) {
	cleaned := strings.TrimSpace(path)
	if cleaned == "" {
		return nil, fmt.Errorf("状态文件路径不能为空")
	}
	return &FileStore{path: cleaned}, nil
}

// Path 返回快照文件路径
func (s *FileStore) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// Load 加载快照 文件不存在返回空
func (s *FileStore) Load() (*Snapshot, error) {
	if s == nil {
		return nil, fmt.Errorf("状态后端未初始化")
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("读取状态快照失败: %w", err)
	}
	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("解析状态快照失败: %w", err)
	}
	if snapshot.Fingerprints == nil {
		snapshot.Fingerprints = make(map[string]time.Time)
	}
	return &snapshot, nil
}

// Save 原子写入快照 先写临时文件再重命名
func (s *FileStore) Save(snapshot *Snapshot) error {
	if s == nil {
		return fmt.Errorf("状态后端未初始化")
	}
	if snapshot == nil {
		return fmt.Errorf("快照不能为空")
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("序列化状态快照失败: %w", err)
	}

	dir := filepath.Dir(s.path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("创建状态目录失败: %w", err)
		}
	}
	tmp, err := os.CreateTemp(dir, "alert-state-*.tmp")
	if err != nil {
		return fmt.Errorf("创建状态临时文件失败: %w", err)
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("写入状态快照失败: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("关闭状态临时文件失败: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("替换状态快照失败: %w", err)
	}
	return nil
}
