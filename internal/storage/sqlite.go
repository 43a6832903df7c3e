// 本文件用于构建指标与异常记录的 SQLite 持久化存储。
// 文件职责：实现当前模块的核心业务逻辑与数据流转
// 关键路径：入口参数先校验再执行业务处理 最后返回统一结果
// 边界与容错：异常场景显式返回错误 由上层决定重试或降级

package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"ci-alert/internal/models"
)

const (
	defaultDataDir    = "data"
	storageTimeLayout = time.RFC3339Nano
)

// MetricsStore 保存构建指标与异常检出历史
type MetricsStore struct {
	mu     sync.Mutex
	db     *sql.DB
	dbPath string
}

// NewMetricsStore 初始化指标存储
func NewMetricsStore(dataDir string) (*MetricsStore, error) {
	root := strings.TrimSpace(dataDir)
	if root == "" {
		root = defaultDataDir
	}
	// 启动时确保目录存在，避免数据库文件无法创建导致采集链路不可用
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir failed: %w", err)
	}
	dbPath := filepath.Join(root, "ci_metrics.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open metrics sqlite failed: %w", err)
	}
	// WAL 兼顾写入吞吐与崩溃恢复，适合周期性批量写入场景
	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set metrics sqlite wal failed: %w", err)
	}
	if err := migrateMetricsStore(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &MetricsStore{db: db, dbPath: dbPath}, nil
}

func migrateMetricsStore(db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS build_metrics (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			source TEXT NOT NULL,
			job_name TEXT NOT NULL,
			build_number INTEGER NOT NULL,
			timestamp TEXT NOT NULL,
			duration REAL NOT NULL DEFAULT 0,
			result TEXT NOT NULL DEFAULT '',
			queue_time REAL NOT NULL DEFAULT 0,
			test_count INTEGER NOT NULL DEFAULT 0,
			failure_count INTEGER NOT NULL DEFAULT 0,
			failure_rate REAL NOT NULL DEFAULT 0,
			UNIQUE(source, job_name, build_number)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_build_metrics_ts ON build_metrics(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_build_metrics_job ON build_metrics(source, job_name)`,
		`CREATE TABLE IF NOT EXISTS anomalies (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			job_name TEXT NOT NULL,
			source TEXT NOT NULL DEFAULT '',
			severity TEXT NOT NULL DEFAULT '',
			max_zscore REAL NOT NULL DEFAULT 0,
			features_json TEXT NOT NULL DEFAULT '[]',
			detected_at TEXT NOT NULL,
			detail TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_anomalies_detected ON anomalies(detected_at)`,
	}
	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate metrics store failed: %w", err)
		}
	}
	return nil
}

// Close 关闭数据库连接
func (s *MetricsStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DBPath 返回数据库文件路径
func (s *MetricsStore) DBPath() string {
	if s == nil {
		return ""
	}
	return s.dbPath
}

// SaveMetrics 批量写入构建指标 重复构建幂等跳过
// 返回实际新增的行数
func (s *MetricsStore) SaveMetrics(metrics []models.BuildMetric) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("指标存储未初始化")
	}
	if len(metrics) == 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("开启事务失败: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO build_metrics (
			source, job_name, build_number, timestamp, duration, result,
			queue_time, test_count, failure_count, failure_rate
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("准备写入语句失败: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, metric := range metrics {
		result, err := stmt.Exec(
			metric.Source,
			metric.JobName,
			metric.BuildNumber,
			metric.Timestamp.UTC().Format(storageTimeLayout),
			metric.Duration,
			metric.Result,
			metric.QueueTime,
			metric.TestCount,
			metric.FailureCount,
			metric.FailureRate,
		)
		if err != nil {
			return 0, fmt.Errorf("写入构建指标失败: %w", err)
		}
		if affected, err := result.RowsAffected(); err == nil {
			inserted += int(affected)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("提交事务失败: %w", err)
	}
	return inserted, nil
}

// LoadMetrics 读取指定任务近 N 天的构建指标 按时间升序
// source 或 jobName 为空时不按该维度过滤
func (s *MetricsStore) LoadMetrics(source, jobName string, days int) ([]models.BuildMetric, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("指标存储未初始化")
	}
	if days <= 0 {
		days = 30
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().UTC().AddDate(0, 0, -days).Format(storageTimeLayout)
	query := `
		SELECT source, job_name, build_number, timestamp, duration, result,
			queue_time, test_count, failure_count, failure_rate
		FROM build_metrics
		WHERE timestamp >= ?`
	args := []interface{}{cutoff}
	if source != "" {
		query += " AND source = ?"
		args = append(args, source)
	}
	if jobName != "" {
		query += " AND job_name = ?"
		args = append(args, jobName)
	}
	query += " ORDER BY timestamp ASC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("查询构建指标失败: %w", err)
	}
	defer rows.Close()

	out := make([]models.BuildMetric, 0)
	for rows.Next() {
		var (
			metric models.BuildMetric
			ts     string
		)
		if err := rows.Scan(
			&metric.Source,
			&metric.JobName,
			&metric.BuildNumber,
			&ts,
			&metric.Duration,
			&metric.Result,
			&metric.QueueTime,
			&metric.TestCount,
			&metric.FailureCount,
			&metric.FailureRate,
		); err != nil {
			return nil, err
		}
		metric.Timestamp = parseStorageTime(ts)
		out = append(out, metric)
	}
	return out, rows.Err()
}

// JobNames 返回近 N 天出现过的任务列表
func (s *MetricsStore) JobNames(days int) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("指标存储未初始化")
	}
	if days <= 0 {
		days = 30
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().UTC().AddDate(0, 0, -days).Format(storageTimeLayout)
	rows, err := s.db.Query(`
		SELECT DISTINCT job_name FROM build_metrics
		WHERE timestamp >= ?
		ORDER BY job_name
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("查询任务列表失败: %w", err)
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// SaveAnomaly 记录一次异常检出 特征序列化为 JSON 保存
func (s *MetricsStore) SaveAnomaly(event *models.AnomalyEvent) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("指标存储未初始化")
	}
	if event == nil {
		return fmt.Errorf("异常事件为空")
	}
	featuresJSON, err := json.Marshal(event.Features)
	if err != nil {
		return fmt.Errorf("序列化异常特征失败: %w", err)
	}
	detectedAt := event.DetectedAt
	if detectedAt.IsZero() {
		detectedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.Exec(`
		INSERT INTO anomalies (job_name, source, severity, max_zscore, features_json, detected_at, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		event.JobName,
		event.Source,
		event.Severity,
		event.MaxZScore,
		string(featuresJSON),
		detectedAt.UTC().Format(storageTimeLayout),
		event.Detail,
	)
	if err != nil {
		return fmt.Errorf("写入异常记录失败: %w", err)
	}
	return nil
}

// RecentAnomalies 返回近 N 小时的异常检出 按时间倒序
func (s *MetricsStore) RecentAnomalies(hours int) ([]models.AnomalyEvent, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("指标存储未初始化")
	}
	if hours <= 0 {
		hours = 24
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().UTC().Add(-time.Duration(hours) * time.Hour).Format(storageTimeLayout)
	rows, err := s.db.Query(`
		SELECT job_name, source, severity, max_zscore, features_json, detected_at, detail
		FROM anomalies
		WHERE detected_at >= ?
		ORDER BY detected_at DESC
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("查询异常记录失败: %w", err)
	}
	defer rows.Close()

	out := make([]models.AnomalyEvent, 0)
	for rows.Next() {
		var (
			event        models.AnomalyEvent
			featuresJSON string
			detectedAt   string
		)
		if err := rows.Scan(
			&event.JobName,
			&event.Source,
			&event.Severity,
			&event.MaxZScore,
			&featuresJSON,
			&detectedAt,
			&event.Detail,
		); err != nil {
			return nil, err
		}
		// 历史数据中的坏 JSON 按空特征处理 不中断整页查询
		if err := json.Unmarshal([]byte(featuresJSON), &event.Features); err != nil {
			event.Features = nil
		}
		event.DetectedAt = parseStorageTime(detectedAt)
		out = append(out, event)
	}
	return out, rows.Err()
}

// SummaryReport 聚合近 N 天的构建与异常概况
func (s *MetricsStore) SummaryReport(days int) (*models.SummaryReport, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("指标存储未初始化")
	}
	if days <= 0 {
		days = 7
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().UTC().AddDate(0, 0, -days).Format(storageTimeLayout)
	report := &models.SummaryReport{
		GeneratedAt: time.Now(),
		PeriodDays:  days,
		BySeverity:  make(map[string]int),
		Jobs:        make([]models.JobSummary, 0),
	}

	row := s.db.QueryRow(`
		SELECT COUNT(*),
			COALESCE(AVG(duration), 0),
			COALESCE(SUM(CASE WHEN UPPER(result) = 'SUCCESS' THEN 1 ELSE 0 END), 0)
		FROM build_metrics WHERE timestamp >= ?
	`, cutoff)
	var successTotal int
	if err := row.Scan(&report.TotalBuilds, &report.AvgDuration, &successTotal); err != nil {
		return nil, fmt.Errorf("聚合构建概况失败: %w", err)
	}
	if report.TotalBuilds > 0 {
		report.SuccessRate = float64(successTotal) / float64(report.TotalBuilds)
	}

	jobRows, err := s.db.Query(`
		SELECT source, job_name, COUNT(*),
			COALESCE(AVG(duration), 0),
			COALESCE(SUM(CASE WHEN UPPER(result) = 'SUCCESS' THEN 1 ELSE 0 END), 0)
		FROM build_metrics
		WHERE timestamp >= ?
		GROUP BY source, job_name
		ORDER BY COUNT(*) DESC
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("聚合任务概况失败: %w", err)
	}
	defer jobRows.Close()
	for jobRows.Next() {
		var (
			job     models.JobSummary
			success int
		)
		if err := jobRows.Scan(&job.Source, &job.JobName, &job.Builds, &job.AvgDuration, &success); err != nil {
			return nil, err
		}
		if job.Builds > 0 {
			job.SuccessRate = float64(success) / float64(job.Builds)
		}
		report.Jobs = append(report.Jobs, job)
	}
	if err := jobRows.Err(); err != nil {
		return nil, err
	}

	anomalyCutoff := time.Now().UTC().AddDate(0, 0, -days).Format(storageTimeLayout)
	severityRows, err := s.db.Query(`
		SELECT severity, COUNT(*) FROM anomalies
		WHERE detected_at >= ?
		GROUP BY severity
	`, anomalyCutoff)
	if err != nil {
		return nil, fmt.Errorf("聚合异常概况失败: %w", err)
	}
	defer severityRows.Close()
	for severityRows.Next() {
		var (
			severity string
			count    int
		)
		if err := severityRows.Scan(&severity, &count); err != nil {
			return nil, err
		}
		if severity == "" {
			severity = "unknown"
		}
		report.BySeverity[severity] = count
		report.TotalAnomalies += count
	}
	if err := severityRows.Err(); err != nil {
		return nil, err
	}

	anomalyJobRows, err := s.db.Query(`
		SELECT job_name, COUNT(*) FROM anomalies
		WHERE detected_at >= ?
		GROUP BY job_name
	`, anomalyCutoff)
	if err != nil {
		return nil, fmt.Errorf("聚合任务异常数失败: %w", err)
	}
	defer anomalyJobRows.Close()
	anomalyByJob := make(map[string]int)
	for anomalyJobRows.Next() {
		var (
			job   string
			count int
		)
		if err := anomalyJobRows.Scan(&job, &count); err != nil {
			return nil, err
		}
		anomalyByJob[job] = count
	}
	if err := anomalyJobRows.Err(); err != nil {
		return nil, err
	}
	for i := range report.Jobs {
		report.Jobs[i].AnomalyCount = anomalyByJob[report.Jobs[i].JobName]
	}

	return report, nil
}

// parseStorageTime 解析落库时间 坏数据回退零值
func parseStorageTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	if ts, err := time.Parse(storageTimeLayout, raw); err == nil {
		return ts
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts
	}
	return time.Time{}
}
