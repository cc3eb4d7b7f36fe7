package sanity

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, "localhost:6379", config.RedisAddr)
	assert.Empty(t, config.RedisPassword)
	assert.Equal(t, 0, config.RedisDB)
	assert.Equal(t, "mingus_cache.db", config.DBPath)
	assert.False(t, config.SkipRedis)
	assert.Equal(t, 10*time.Second, config.Timeout)
}

func TestNewChecker(t *testing.T) {
	checker := NewChecker(nil)

	assert.NotNil(t, checker)
	assert.NotNil(t, checker.config)
	assert.Equal(t, "localhost:6379", checker.config.RedisAddr)
	assert.Empty(t, checker.results)
}

func TestNewChecker_ClampsTimeout(t *testing.T) {
	checker := NewChecker(&Config{Timeout: -1})
	assert.Equal(t, 10*time.Second, checker.config.Timeout)
}

func TestCheckStatus_Constants(t *testing.T) {
	assert.Equal(t, CheckStatus("PASS"), StatusPassed)
	assert.Equal(t, CheckStatus("FAIL"), StatusFailed)
	assert.Equal(t, CheckStatus("WARN"), StatusWarning)
	assert.Equal(t, CheckStatus("SKIP"), StatusSkipped)
}

func TestChecker_AddResult_Concurrent(t *testing.T) {
	checker := NewChecker(nil)

	const numResults = 100
	done := make(chan struct{})

	for i := 0; i < numResults; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			checker.addResult(CheckResult{Name: "Test", Status: StatusPassed, Category: "Test"})
		}()
	}
	for i := 0; i < numResults; i++ {
		<-done
	}

	assert.Len(t, checker.results, numResults)
}

func TestChecker_GenerateReport(t *testing.T) {
	checker := NewChecker(nil)

	checker.addResult(CheckResult{Name: "Pass1", Status: StatusPassed})
	checker.addResult(CheckResult{Name: "Pass2", Status: StatusPassed})
	checker.addResult(CheckResult{Name: "Fail1", Status: StatusFailed, Critical: true})
	checker.addResult(CheckResult{Name: "Warn1", Status: StatusWarning})
	checker.addResult(CheckResult{Name: "Skip1", Status: StatusSkipped})

	report := checker.generateReport(time.Now())

	assert.Equal(t, 5, report.TotalChecks)
	assert.Equal(t, 2, report.PassedChecks)
	assert.Equal(t, 1, report.FailedChecks)
	assert.Equal(t, 1, report.WarningChecks)
	assert.Equal(t, 1, report.SkippedChecks)
	assert.True(t, report.CriticalFailure)
	assert.False(t, report.CacheReady)
}

func TestChecker_GenerateReport_NonCriticalFailure(t *testing.T) {
	checker := NewChecker(nil)

	checker.addResult(CheckResult{Name: "Pass1", Status: StatusPassed, Critical: true})
	checker.addResult(CheckResult{Name: "Fail1", Status: StatusFailed, Critical: false})

	report := checker.generateReport(time.Now())

	assert.Equal(t, 1, report.FailedChecks)
	assert.False(t, report.CriticalFailure)
	assert.True(t, report.CacheReady)
}

// The probe runs fully offline: SQLite is embedded and Redis is skippable.
func TestRunProbe_Offline(t *testing.T) {
	report := RunProbe(&Config{
		SkipRedis: true,
		DBPath:    filepath.Join(t.TempDir(), "probe.db"),
		Timeout:   5 * time.Second,
	})

	require.NotNil(t, report)
	assert.True(t, report.CacheReady)
	assert.False(t, report.CriticalFailure)
	assert.Equal(t, 6, report.TotalChecks)
	assert.Equal(t, 5, report.PassedChecks)
	assert.Equal(t, 0, report.FailedChecks)
	assert.Equal(t, 1, report.SkippedChecks)

	names := make(map[string]CheckStatus, len(report.Results))
	for _, result := range report.Results {
		names[result.Name] = result.Status
	}
	assert.Equal(t, StatusPassed, names["SQLite Durable Store"])
	assert.Equal(t, StatusSkipped, names["Redis Connection"])
	assert.Equal(t, StatusPassed, names["Cache Round Trip"])
	assert.Equal(t, StatusPassed, names["Invalidation"])
	assert.Equal(t, StatusPassed, names["Expiry Sweep"])
	assert.Equal(t, StatusPassed, names["Cache Stats"])
}

func TestRunProbe_RedisDown(t *testing.T) {
	report := RunProbe(&Config{
		RedisAddr: "localhost:1",
		DBPath:    filepath.Join(t.TempDir(), "probe.db"),
		Timeout:   2 * time.Second,
	})

	require.NotNil(t, report)
	// Redis going away degrades the cache, it does not fail the probe
	assert.True(t, report.CacheReady)
	assert.Equal(t, 1, report.WarningChecks)
	assert.Equal(t, 0, report.FailedChecks)
}

func TestRunProbe_UnwritableDatabase(t *testing.T) {
	report := RunProbe(&Config{
		SkipRedis: true,
		DBPath:    filepath.Join(t.TempDir(), "missing", "nested", "probe.db"),
		Timeout:   2 * time.Second,
	})

	require.NotNil(t, report)
	assert.False(t, report.CacheReady)
	assert.True(t, report.CriticalFailure)
}

func TestReport_JSON(t *testing.T) {
	report := RunProbe(&Config{
		SkipRedis: true,
		DBPath:    filepath.Join(t.TempDir(), "probe.db"),
		Timeout:   5 * time.Second,
	})

	raw, err := json.Marshal(report)
	require.NoError(t, err)

	var decoded Report
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, report.TotalChecks, decoded.TotalChecks)
	assert.Equal(t, report.CacheReady, decoded.CacheReady)
	assert.Len(t, decoded.Results, report.TotalChecks)
}
