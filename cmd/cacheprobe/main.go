// MINGUS external data cache sanity probe.
//
// Exercises every cache tier against a live deployment and exits non-zero
// when a critical check fails, so it can gate releases from CI.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"dev.mingus.money/internal/config"
	"dev.mingus.money/internal/sanity"
)

func main() {
	var (
		redisAddr   = flag.String("redis-addr", "", "Redis address (host:port), overrides MINGUS_REDIS_HOST/PORT")
		dbPath      = flag.String("db", "", "SQLite cache file, overrides MINGUS_CACHE_DB_PATH")
		skipRedis   = flag.Bool("skip-redis", false, "Skip the Redis connectivity check")
		timeout     = flag.Duration("timeout", 10*time.Second, "Per-check timeout")
		jsonOut     = flag.Bool("json", false, "Print the report as JSON")
		enableTrace = flag.Bool("trace", false, "Emit OpenTelemetry spans to stdout")
		envFile     = flag.String("env", "", "Load environment from this file before reading config")
	)
	flag.Parse()

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			logrus.Warnf("Failed to load env file %s: %v", *envFile, err)
		}
	} else {
		_ = godotenv.Load()
	}

	cfg := config.Load()

	probeCfg := &sanity.Config{
		RedisAddr:     cfg.Redis.Addr(),
		RedisPassword: cfg.Redis.Password,
		RedisDB:       cfg.Redis.DB,
		DBPath:        cfg.Database.Path,
		SkipRedis:     *skipRedis,
		Timeout:       *timeout,
	}
	if *redisAddr != "" {
		probeCfg.RedisAddr = *redisAddr
	}
	if *dbPath != "" {
		probeCfg.DBPath = *dbPath
	}

	if *enableTrace {
		shutdown, err := setupTracing()
		if err != nil {
			logrus.Warnf("Tracing disabled: %v", err)
		} else {
			defer shutdown()
		}
	}

	report := sanity.RunProbe(probeCfg)

	if *jsonOut {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			logrus.Errorf("Failed to encode report: %v", err)
		} else {
			fmt.Println(string(data))
		}
	}

	if !report.CacheReady {
		color.Red("Cache probe failed")
		os.Exit(1)
	}
	color.Green("Cache probe passed")
}

// setupTracing routes probe spans to stdout for ad-hoc inspection
func setupTracing() (func(), error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logrus.Warnf("Tracer shutdown: %v", err)
		}
	}, nil
}
