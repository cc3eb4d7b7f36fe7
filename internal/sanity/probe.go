// Package sanity provides deployment sanity checks for the external data cache
package sanity

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"dev.mingus.money/internal/cache"
	"dev.mingus.money/internal/models"
)

// CheckResult represents the result of a single check
type CheckResult struct {
	Name      string        `json:"name"`
	Category  string        `json:"category"`
	Status    CheckStatus   `json:"status"`
	Message   string        `json:"message,omitempty"`
	Details   string        `json:"details,omitempty"`
	Duration  time.Duration `json:"duration"`
	Critical  bool          `json:"critical"`
	Timestamp time.Time     `json:"timestamp"`
}

// CheckStatus represents the status of a check
type CheckStatus string

const (
	StatusPassed  CheckStatus = "PASS"
	StatusFailed  CheckStatus = "FAIL"
	StatusWarning CheckStatus = "WARN"
	StatusSkipped CheckStatus = "SKIP"
)

// Report represents the full sanity check report
type Report struct {
	Timestamp       time.Time     `json:"timestamp"`
	Duration        time.Duration `json:"duration"`
	TotalChecks     int           `json:"total_checks"`
	PassedChecks    int           `json:"passed_checks"`
	FailedChecks    int           `json:"failed_checks"`
	WarningChecks   int           `json:"warning_checks"`
	SkippedChecks   int           `json:"skipped_checks"`
	CriticalFailure bool          `json:"critical_failure"`
	Results         []CheckResult `json:"results"`
	CacheReady      bool          `json:"cache_ready"`
}

// Config contains configuration for the sanity probe
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	DBPath        string
	SkipRedis     bool
	Timeout       time.Duration
}

// DefaultConfig returns default probe configuration
func DefaultConfig() *Config {
	return &Config{
		RedisAddr: "localhost:6379",
		DBPath:    "mingus_cache.db",
		Timeout:   10 * time.Second,
	}
}

// Checker exercises every cache tier against a live deployment
type Checker struct {
	config  *Config
	results []CheckResult
	probeID string
	mu      sync.Mutex

	db          *sql.DB
	redisClient *redis.Client
	manager     *cache.Manager
}

// NewChecker creates a new sanity checker
func NewChecker(config *Config) *Checker {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	return &Checker{
		config:  config,
		results: make([]CheckResult, 0),
	}
}

// RunAllChecks runs every check and returns a report. Backend checks run
// first; the cache checks then use whichever backends came up, the same way
// the manager degrades in production.
func (c *Checker) RunAllChecks(ctx context.Context) *Report {
	start := time.Now()
	logrus.Info("Starting cache sanity checks...")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); c.checkSQLite(ctx) }()
	go func() { defer wg.Done(); c.checkRedis(ctx) }()
	wg.Wait()

	c.buildManager()
	c.checkRoundTrip(ctx)
	c.checkInvalidation(ctx)
	c.checkSweep(ctx)
	c.checkStats()

	report := c.generateReport(start)
	c.printReport(report)

	return report
}

// Close releases the connections the checker opened
func (c *Checker) Close() {
	if c.manager != nil {
		if err := c.manager.Close(); err != nil {
			logrus.Warnf("Failed to close cache manager: %v", err)
		}
	}
	if c.redisClient != nil {
		if err := c.redisClient.Close(); err != nil {
			logrus.Warnf("Failed to close Redis client: %v", err)
		}
	}
	if c.db != nil {
		if err := c.db.Close(); err != nil {
			logrus.Warnf("Failed to close SQLite handle: %v", err)
		}
	}
}

// checkSQLite opens the durable store and runs the schema migration
func (c *Checker) checkSQLite(ctx context.Context) {
	start := time.Now()

	result := CheckResult{
		Name:      "SQLite Durable Store",
		Category:  "Database",
		Critical:  true,
		Timestamp: time.Now(),
	}

	db, err := cache.OpenDurable(c.config.DBPath)
	if err != nil {
		result.Status = StatusFailed
		result.Message = "SQLite not usable"
		result.Details = err.Error()
	} else {
		schemaCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
		if err := cache.NewDurableStore(db).EnsureSchema(schemaCtx); err != nil {
			db.Close()
			result.Status = StatusFailed
			result.Message = "Schema migration failed"
			result.Details = err.Error()
		} else {
			c.db = db
			result.Status = StatusPassed
			result.Message = fmt.Sprintf("Durable store ready at %s", c.config.DBPath)
		}
	}

	result.Duration = time.Since(start)
	c.addResult(result)
}

// checkRedis pings the shared Redis tier
func (c *Checker) checkRedis(ctx context.Context) {
	start := time.Now()

	result := CheckResult{
		Name:      "Redis Connection",
		Category:  "Cache",
		Critical:  false, // the cache degrades without Redis
		Timestamp: time.Now(),
	}

	if c.config.SkipRedis {
		result.Status = StatusSkipped
		result.Message = "Redis check skipped"
		result.Duration = time.Since(start)
		c.addResult(result)
		return
	}

	client := redis.NewClient(&redis.Options{
		Addr:        c.config.RedisAddr,
		Password:    c.config.RedisPassword,
		DB:          c.config.RedisDB,
		DialTimeout: c.config.Timeout,
		ReadTimeout: c.config.Timeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		result.Status = StatusWarning
		result.Message = "Redis not available (cache degrades to memory+durable)"
		result.Details = err.Error()
	} else {
		c.redisClient = client
		result.Status = StatusPassed
		result.Message = fmt.Sprintf("Redis is reachable at %s", c.config.RedisAddr)
	}

	result.Duration = time.Since(start)
	c.addResult(result)
}

// buildManager assembles a manager from whichever backends came up
func (c *Checker) buildManager() {
	manager, err := cache.New(cache.Options{
		Redis: c.redisClient,
		DB:    c.db,
	})
	if err != nil {
		logrus.Errorf("Failed to build cache manager: %v", err)
		return
	}
	c.manager = manager
}

// checkRoundTrip writes a probe entry and reads it back through the cache
func (c *Checker) checkRoundTrip(ctx context.Context) {
	start := time.Now()

	result := CheckResult{
		Name:      "Cache Round Trip",
		Category:  "Cache",
		Critical:  true,
		Timestamp: time.Now(),
	}

	if c.manager == nil {
		result.Status = StatusFailed
		result.Message = "Cache manager unavailable"
		result.Duration = time.Since(start)
		c.addResult(result)
		return
	}

	identifier := c.probeIdentifier()
	payload := models.EmployerFinancials{
		Company:    "Sanity Probe Inc",
		Revenue:    1000,
		Employees:  10,
		FiscalYear: 2025,
		Currency:   "USD",
	}

	receipt, err := c.manager.Set(ctx, cache.EmployerFinancial, identifier, payload,
		"sanity_probe", cache.TierEnterprise, cache.WithTTL(2*time.Minute))
	if err != nil {
		result.Status = StatusFailed
		result.Message = "Probe write failed"
		result.Details = err.Error()
	} else if !receipt.Stored() {
		result.Status = StatusFailed
		result.Message = "Probe entry was not stored"
	} else if entry, ok := c.manager.Get(ctx, cache.EmployerFinancial, identifier, cache.TierEnterprise); !ok {
		result.Status = StatusFailed
		result.Message = "Probe entry not readable after write"
	} else {
		decoded, derr := entry.DecodePayload()
		stored, _ := decoded.(*models.EmployerFinancials)
		switch {
		case derr != nil:
			result.Status = StatusFailed
			result.Message = "Probe payload failed to decode"
			result.Details = derr.Error()
		case stored == nil || stored.Revenue != payload.Revenue:
			result.Status = StatusFailed
			result.Message = "Probe payload came back altered"
		default:
			result.Status = StatusPassed
			result.Message = "Write, read and decode verified"
			result.Details = fmt.Sprintf("memory=%t redis=%t durable=%t",
				receipt.Memory, receipt.Redis, receipt.Durable)
		}
	}

	result.Duration = time.Since(start)
	c.addResult(result)
}

// checkInvalidation invalidates the probe entry and verifies the miss
func (c *Checker) checkInvalidation(ctx context.Context) {
	start := time.Now()

	result := CheckResult{
		Name:      "Invalidation",
		Category:  "Cache",
		Critical:  true,
		Timestamp: time.Now(),
	}

	if c.manager == nil {
		result.Status = StatusFailed
		result.Message = "Cache manager unavailable"
		result.Duration = time.Since(start)
		c.addResult(result)
		return
	}

	identifier := c.probeIdentifier()
	if err := c.manager.Invalidate(ctx, cache.EmployerFinancial, identifier, cache.TierEnterprise); err != nil {
		result.Status = StatusFailed
		result.Message = "Invalidation reported a backend fault"
		result.Details = err.Error()
	} else if _, ok := c.manager.Get(ctx, cache.EmployerFinancial, identifier, cache.TierEnterprise); ok {
		result.Status = StatusFailed
		result.Message = "Probe entry survived invalidation"
	} else {
		result.Status = StatusPassed
		result.Message = "Invalidation removed the probe entry from every tier"
	}

	result.Duration = time.Since(start)
	c.addResult(result)
}

// checkSweep runs one expiry sweep
func (c *Checker) checkSweep(ctx context.Context) {
	start := time.Now()

	result := CheckResult{
		Name:      "Expiry Sweep",
		Category:  "Cache",
		Critical:  false,
		Timestamp: time.Now(),
	}

	if c.manager == nil {
		result.Status = StatusSkipped
		result.Message = "Cache manager unavailable"
		result.Duration = time.Since(start)
		c.addResult(result)
		return
	}

	sweep := c.manager.Sweep(ctx)
	if sweep.Err != nil {
		result.Status = StatusWarning
		result.Message = "Sweep hit a backend fault"
		result.Details = sweep.Err.Error()
	} else {
		result.Status = StatusPassed
		result.Message = fmt.Sprintf("Sweep removed %d memory / %d durable entries",
			sweep.MemoryRemoved, sweep.DurableRemoved)
	}

	result.Duration = time.Since(start)
	c.addResult(result)
}

// checkStats verifies the counters observed the probe traffic
func (c *Checker) checkStats() {
	start := time.Now()

	result := CheckResult{
		Name:      "Cache Stats",
		Category:  "Cache",
		Critical:  false,
		Timestamp: time.Now(),
	}

	if c.manager == nil {
		result.Status = StatusSkipped
		result.Message = "Cache manager unavailable"
		result.Duration = time.Since(start)
		c.addResult(result)
		return
	}

	stats := c.manager.Stats()
	if stats.Requests == 0 {
		result.Status = StatusWarning
		result.Message = "Counters did not observe the probe traffic"
	} else {
		p := message.NewPrinter(language.English)
		result.Status = StatusPassed
		result.Message = p.Sprintf("%d requests, %d hits, %.1f%% hit rate",
			stats.Requests, stats.Hits, stats.HitRate)
		result.Details = p.Sprintf("memory: %d entries, %.2f MB", stats.Entries, stats.MemoryUsageMB)
	}

	result.Duration = time.Since(start)
	c.addResult(result)
}

// probeIdentifier keys probe entries under a stable per-run identifier
func (c *Checker) probeIdentifier() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.probeID == "" {
		c.probeID = "sanity:" + uuid.NewString()
	}
	return c.probeID
}

// addResult safely adds a result to the list
func (c *Checker) addResult(result CheckResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, result)
}

// generateReport generates the final report
func (c *Checker) generateReport(start time.Time) *Report {
	c.mu.Lock()
	defer c.mu.Unlock()

	report := &Report{
		Timestamp:   start,
		Duration:    time.Since(start),
		TotalChecks: len(c.results),
		Results:     c.results,
	}

	for _, result := range c.results {
		switch result.Status {
		case StatusPassed:
			report.PassedChecks++
		case StatusFailed:
			report.FailedChecks++
			if result.Critical {
				report.CriticalFailure = true
			}
		case StatusWarning:
			report.WarningChecks++
		case StatusSkipped:
			report.SkippedChecks++
		}
	}

	report.CacheReady = !report.CriticalFailure

	return report
}

// printReport prints the report to console
func (c *Checker) printReport(report *Report) {
	fmt.Println("\n" + strings.Repeat("=", 70))
	fmt.Println("               MINGUS EXTERNAL DATA CACHE SANITY REPORT")
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("\nTimestamp: %s\n", report.Timestamp.Format(time.RFC3339))
	fmt.Printf("Duration: %v\n", report.Duration)

	categories := make(map[string][]CheckResult)
	var order []string
	for _, result := range report.Results {
		if _, seen := categories[result.Category]; !seen {
			order = append(order, result.Category)
		}
		categories[result.Category] = append(categories[result.Category], result)
	}

	for _, category := range order {
		fmt.Printf("\n[%s]\n", category)
		fmt.Println(strings.Repeat("-", 50))
		for _, result := range categories[category] {
			var status string
			switch result.Status {
			case StatusPassed:
				status = color.GreenString("PASS")
			case StatusFailed:
				status = color.RedString("FAIL")
			case StatusWarning:
				status = color.YellowString("WARN")
			case StatusSkipped:
				status = color.CyanString("SKIP")
			}
			fmt.Printf("  [%s] %s: %s\n", status, result.Name, result.Message)
			if result.Details != "" && result.Status != StatusPassed {
				fmt.Printf("         Details: %s\n", result.Details)
			}
		}
	}

	fmt.Println("\n" + strings.Repeat("-", 70))
	fmt.Printf("SUMMARY: %d/%d passed, %d warnings, %d failed, %d skipped\n",
		report.PassedChecks, report.TotalChecks,
		report.WarningChecks, report.FailedChecks, report.SkippedChecks)

	if report.CacheReady {
		fmt.Println("\n" + strings.Repeat("=", 70))
		fmt.Println("                           CACHE READY")
		fmt.Println(strings.Repeat("=", 70))
	} else {
		fmt.Println("\n" + strings.Repeat("=", 70))
		fmt.Println("               CRITICAL FAILURE - CACHE NOT READY")
		fmt.Println(strings.Repeat("=", 70))
	}
	fmt.Println()
}

// RunProbe is a convenience function to run all checks
func RunProbe(config *Config) *Report {
	checker := NewChecker(config)
	defer checker.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	return checker.RunAllChecks(ctx)
}
