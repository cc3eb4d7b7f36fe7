package main

import (
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dev.mingus.money/internal/sanity"
)

func TestProbeConfig(t *testing.T) {
	config := &sanity.Config{
		RedisAddr: "localhost:6379",
		RedisDB:   1,
		DBPath:    "probe.db",
		SkipRedis: true,
		Timeout:   5 * time.Second,
	}

	assert.Equal(t, "localhost:6379", config.RedisAddr)
	assert.Equal(t, 1, config.RedisDB)
	assert.Equal(t, "probe.db", config.DBPath)
	assert.True(t, config.SkipRedis)
	assert.Equal(t, 5*time.Second, config.Timeout)
}

func TestDefaultConfig(t *testing.T) {
	config := sanity.DefaultConfig()

	assert.Equal(t, "localhost:6379", config.RedisAddr)
	assert.Equal(t, "mingus_cache.db", config.DBPath)
	assert.Equal(t, 10*time.Second, config.Timeout)
}

func TestRunProbe(t *testing.T) {
	t.Run("offline with temp database", func(t *testing.T) {
		config := &sanity.Config{
			SkipRedis: true,
			DBPath:    filepath.Join(t.TempDir(), "probe.db"),
			Timeout:   5 * time.Second,
		}

		report := sanity.RunProbe(config)

		require.NotNil(t, report)
		assert.NotZero(t, report.Timestamp)
		assert.True(t, report.CacheReady)
	})
}

func TestReportSerialization(t *testing.T) {
	report := &sanity.Report{
		CacheReady:   true,
		Timestamp:    time.Now(),
		TotalChecks:  2,
		PassedChecks: 1,
		FailedChecks: 1,
		Duration:     2 * time.Second,
		Results: []sanity.CheckResult{
			{
				Name:     "SQLite Durable Store",
				Category: "Database",
				Status:   sanity.StatusPassed,
				Message:  "Durable store ready",
			},
			{
				Name:     "Redis Connection",
				Category: "Cache",
				Status:   sanity.StatusFailed,
				Message:  "Connection refused",
			},
		},
	}

	data, err := json.MarshalIndent(report, "", "  ")
	require.NoError(t, err)
	assert.Contains(t, string(data), "cache_ready")

	var decoded sanity.Report
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, decoded.CacheReady)
	assert.Len(t, decoded.Results, 2)
	assert.Equal(t, sanity.StatusPassed, decoded.Results[0].Status)
	assert.Equal(t, sanity.StatusFailed, decoded.Results[1].Status)
}

func TestCheckResult(t *testing.T) {
	result := sanity.CheckResult{
		Name:      "Cache Round Trip",
		Category:  "Cache",
		Status:    sanity.StatusPassed,
		Message:   "Write and read back succeeded",
		Details:   "memory=true redis=false durable=true",
		Duration:  50 * time.Millisecond,
		Critical:  true,
		Timestamp: time.Now(),
	}

	assert.Equal(t, "Cache Round Trip", result.Name)
	assert.Equal(t, sanity.StatusPassed, result.Status)
	assert.Equal(t, "memory=true redis=false durable=true", result.Details)
	assert.True(t, result.Critical)
}

func TestCheckStatus(t *testing.T) {
	assert.Equal(t, sanity.CheckStatus("PASS"), sanity.StatusPassed)
	assert.Equal(t, sanity.CheckStatus("FAIL"), sanity.StatusFailed)
	assert.Equal(t, sanity.CheckStatus("WARN"), sanity.StatusWarning)
	assert.Equal(t, sanity.CheckStatus("SKIP"), sanity.StatusSkipped)
}

func TestMainFlags(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	binary := filepath.Join(t.TempDir(), "cacheprobe-test")
	cmd := exec.Command("go", "build", "-o", binary, ".")
	cmd.Dir = "."
	if err := cmd.Run(); err != nil {
		t.Skipf("Failed to build binary: %v", err)
	}
	defer func() { _ = os.Remove(binary) }()

	t.Run("help flag", func(t *testing.T) {
		cmd := exec.Command(binary, "-h")
		output, _ := cmd.CombinedOutput()

		assert.Contains(t, string(output), "redis-addr")
		assert.Contains(t, string(output), "skip-redis")
		assert.Contains(t, string(output), "json")
	})
}
