// internal/services/stats_service_test.go
package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatsRecordAndGet(t *testing.T) {
	svc := NewStatsService(t.TempDir())

	svc.RecordSceneRead()
	svc.RecordSceneRead()
	svc.RecordChoice()

	stats := svc.GetStats()
	assert.Equal(t, 2, stats.ScenesRead)
	assert.Equal(t, 1, stats.ChoicesTaken)
	assert.Equal(t, 2, stats.DailyStats[time.Now().Format("2006-01-02")])
}

// GetStats 返回副本，调用方的改动不影响内部状态
func TestStatsCopySemantics(t *testing.T) {
	svc := NewStatsService(t.TempDir())
	svc.RecordSceneRead()

	stats := svc.GetStats()
	stats.DailyStats["2000-01-01"] = 99
	stats.ScenesRead = 99

	fresh := svc.GetStats()
	assert.Equal(t, 1, fresh.ScenesRead)
	assert.NotContains(t, fresh.DailyStats, "2000-01-01")
}

func TestStatsFlushAndReload(t *testing.T) {
	dir := t.TempDir()

	svc := NewStatsService(dir)
	svc.RecordSceneRead()
	svc.RecordChoice()
	require.NoError(t, svc.Flush())

	// 新实例从落盘文件恢复
	reloaded := NewStatsService(dir)
	stats := reloaded.GetStats()
	assert.Equal(t, 1, stats.ScenesRead)
	assert.Equal(t, 1, stats.ChoicesTaken)
}

func TestStatsFlushWithoutData(t *testing.T) {
	svc := NewStatsService(t.TempDir())
	assert.NoError(t, svc.Flush())
}
