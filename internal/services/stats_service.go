// internal/services/stats_service.go
package services

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ReaderStats 表示阅读器的使用统计
type ReaderStats struct {
	ScenesRead   int            `json:"scenes_read"`   // 打开过的场景次数
	ChoicesTaken int            `json:"choices_taken"` // 选择选项的次数
	DailyStats   map[string]int `json:"daily_stats"`   // 日期 -> 场景阅读数
	LastUpdated  time.Time      `json:"last_updated"`
}

// StatsService 提供阅读统计功能
// 简单计数器，批量落盘避免每次点击都写文件
type StatsService struct {
	BasePath  string
	statsFile string

	mutex       sync.Mutex
	cachedStats *ReaderStats

	// 批量保存控制
	isDirty      bool
	lastSaveTime time.Time
	saveInterval time.Duration
}

// ------------------------------------
// NewStatsService 创建统计服务
func NewStatsService(basePath string) *StatsService {
	if basePath == "" {
		basePath = "data/stats"
	}

	if err := os.MkdirAll(basePath, 0755); err != nil {
		fmt.Printf("警告: 创建统计目录失败: %v\n", err)
	}

	service := &StatsService{
		BasePath:     basePath,
		statsFile:    filepath.Join(basePath, "reader_stats.json"),
		saveInterval: 30 * time.Second,
	}

	service.startPeriodicSave()

	return service
}

// RecordSceneRead 记录一次场景阅读
func (s *StatsService) RecordSceneRead() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	stats := s.loadLocked()
	stats.ScenesRead++
	stats.DailyStats[time.Now().Format("2006-01-02")]++
	stats.LastUpdated = time.Now()
	s.isDirty = true
}

// RecordChoice 记录一次选项选择
func (s *StatsService) RecordChoice() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	stats := s.loadLocked()
	stats.ChoicesTaken++
	stats.LastUpdated = time.Now()
	s.isDirty = true
}

// GetStats 返回当前统计的副本
func (s *StatsService) GetStats() ReaderStats {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	stats := s.loadLocked()
	copied := *stats
	copied.DailyStats = make(map[string]int, len(stats.DailyStats))
	for day, count := range stats.DailyStats {
		copied.DailyStats[day] = count
	}
	return copied
}

// Flush 立即落盘（应用退出时调用）
func (s *StatsService) Flush() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.saveLocked()
}

// loadLocked 加载统计数据，不存在则初始化（调用方持锁）
func (s *StatsService) loadLocked() *ReaderStats {
	if s.cachedStats != nil {
		return s.cachedStats
	}

	stats := &ReaderStats{DailyStats: make(map[string]int)}

	data, err := os.ReadFile(s.statsFile)
	if err == nil {
		if json.Unmarshal(data, stats) != nil || stats.DailyStats == nil {
			stats.DailyStats = make(map[string]int)
		}
	}

	s.cachedStats = stats
	return stats
}

// saveLocked 序列化并写入统计文件（调用方持锁）
func (s *StatsService) saveLocked() error {
	if s.cachedStats == nil {
		return nil
	}

	data, err := json.MarshalIndent(s.cachedStats, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化统计数据失败: %w", err)
	}

	if err := os.WriteFile(s.statsFile, data, 0644); err != nil {
		return fmt.Errorf("保存统计数据失败: %w", err)
	}

	s.isDirty = false
	s.lastSaveTime = time.Now()
	return nil
}

// startPeriodicSave 启动周期性落盘
func (s *StatsService) startPeriodicSave() {
	go func() {
		ticker := time.NewTicker(s.saveInterval)
		defer ticker.Stop()

		for range ticker.C {
			s.mutex.Lock()
			if s.isDirty {
				if err := s.saveLocked(); err != nil {
					fmt.Printf("警告: 周期保存统计数据失败: %v\n", err)
				}
			}
			s.mutex.Unlock()
		}
	}()
}
