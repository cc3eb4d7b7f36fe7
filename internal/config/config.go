// Package config loads cache settings from the environment and optional
// policy override files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"

	"dev.mingus.money/internal/cache"
)

type Config struct {
	Redis    RedisConfig
	Database DatabaseConfig
	Cache    CacheConfig
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	PoolSize int
	Timeout  time.Duration
}

// Addr returns the host:port dial address.
func (r RedisConfig) Addr() string {
	return r.Host + ":" + r.Port
}

// Options builds client options for the configured server.
func (r RedisConfig) Options() *redis.Options {
	return &redis.Options{
		Addr:         r.Addr(),
		Password:     r.Password,
		DB:           r.DB,
		PoolSize:     r.PoolSize,
		DialTimeout:  r.Timeout,
		ReadTimeout:  r.Timeout,
		WriteTimeout: r.Timeout,
	}
}

type DatabaseConfig struct {
	Path string
}

type CacheConfig struct {
	SweepInterval time.Duration
	PolicyFile    string
	Policies      map[string]PolicyConfig
}

// PolicyConfig overrides one tier's policy. Nil fields keep the default.
type PolicyConfig struct {
	MaxCacheSizeMB   *int64   `yaml:"max_cache_size_mb,omitempty"`
	RefreshThreshold *float64 `yaml:"refresh_threshold,omitempty"`
	RedisEnabled     *bool    `yaml:"redis_enabled,omitempty"`
	DBPersistence    *bool    `yaml:"db_persistence,omitempty"`
}

type policyFile struct {
	Policies map[string]PolicyConfig `yaml:"policies"`
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		Redis: RedisConfig{
			Host:     getEnv("MINGUS_REDIS_HOST", "localhost"),
			Port:     getEnv("MINGUS_REDIS_PORT", "6379"),
			Password: getEnv("MINGUS_REDIS_PASSWORD", ""),
			DB:       getIntEnv("MINGUS_REDIS_DB", 0),
			PoolSize: getIntEnv("MINGUS_REDIS_POOL_SIZE", 10),
			Timeout:  getDurationEnv("MINGUS_REDIS_TIMEOUT", 5*time.Second),
		},
		Database: DatabaseConfig{
			Path: getEnv("MINGUS_CACHE_DB_PATH", "mingus_cache.db"),
		},
		Cache: CacheConfig{
			SweepInterval: getDurationEnv("MINGUS_CACHE_SWEEP_INTERVAL", cache.DefaultSweepInterval),
			PolicyFile:    getEnv("MINGUS_CACHE_POLICY_FILE", ""),
		},
	}
}

// LoadPolicyFile parses tier policy overrides from a YAML file.
func LoadPolicyFile(path string) (map[string]PolicyConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	var doc policyFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse policy file %s: %w", path, err)
	}
	return doc.Policies, nil
}

// Registry builds the tier policy registry. Defaults come first, then the
// policy file, then in-memory overrides. Unknown tier names and invalid
// policy values fail rather than being skipped.
func (c *Config) Registry() (*cache.Registry, error) {
	defaults := cache.DefaultRegistry()
	policies := make(map[cache.Tier]cache.Policy)
	for _, tier := range defaults.Tiers() {
		p, err := defaults.Policy(tier)
		if err != nil {
			return nil, err
		}
		policies[tier] = p
	}

	apply := func(overrides map[string]PolicyConfig) error {
		for name, override := range overrides {
			tier, err := cache.ParseTier(name)
			if err != nil {
				return fmt.Errorf("policy override %q: %w", name, err)
			}
			policies[tier] = override.applyTo(policies[tier])
		}
		return nil
	}

	if c.Cache.PolicyFile != "" {
		fromFile, err := LoadPolicyFile(c.Cache.PolicyFile)
		if err != nil {
			return nil, err
		}
		if err := apply(fromFile); err != nil {
			return nil, err
		}
	}
	if err := apply(c.Cache.Policies); err != nil {
		return nil, err
	}

	return cache.NewRegistry(policies)
}

func (o PolicyConfig) applyTo(p cache.Policy) cache.Policy {
	if o.MaxCacheSizeMB != nil {
		p.MaxCacheSizeMB = *o.MaxCacheSizeMB
	}
	if o.RefreshThreshold != nil {
		p.RefreshThreshold = *o.RefreshThreshold
	}
	if o.RedisEnabled != nil {
		p.RedisEnabled = *o.RedisEnabled
	}
	if o.DBPersistence != nil {
		p.DBPersistence = *o.DBPersistence
	}
	return p
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
