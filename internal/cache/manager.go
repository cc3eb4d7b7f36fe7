package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const tracerName = "dev.mingus.money/internal/cache"

// Options configures a Manager. All backends are injected: a nil Redis
// client or database handle disables that tier regardless of policy, and
// injected handles stay owned by the caller.
type Options struct {
	// Policies maps subscription tiers to cache behavior; nil uses DefaultRegistry
	Policies *Registry
	// Redis backs the shared middle tier when a policy enables it
	Redis *redis.Client
	// DB backs the durable tier when a policy enables it
	DB *sql.DB
	// Logger defaults to a nop logger
	Logger *zap.Logger
	// Tracer defaults to the global tracer provider
	Tracer trace.Tracer
	// Observer receives per-operation timings
	Observer OperationObserver
	// SweepInterval is the background purge period; zero uses DefaultSweepInterval
	SweepInterval time.Duration
}

// Manager orchestrates the three storage tiers. Reads fall through
// memory -> Redis -> durable store and promote hits into memory; writes fan
// out to every tier the subscription policy enables. Backend faults degrade
// to misses, never errors: the cache must not become a point of failure for
// the callers it shields.
type Manager struct {
	policyMu sync.RWMutex
	policies *Registry

	memory  map[Tier]*MemoryCache
	redis   *RedisCache
	durable *DurableStore

	logger   *zap.Logger
	tracer   trace.Tracer
	observer OperationObserver
	counters counters
	group    singleflight.Group
	nowFn    func() time.Time

	sweepInterval time.Duration
	sweepCtx      context.Context
	sweepCancel   context.CancelFunc
	sweepWG       sync.WaitGroup

	mu        sync.Mutex
	started   bool
	closed    bool
	lastSweep SweepReport
}

// New builds a Manager from injected backends. It performs no I/O; call
// DurableStore.EnsureSchema during bootstrap if the SQLite file is fresh,
// and Start to run the background sweeper.
func New(opts Options) (*Manager, error) {
	policies := opts.Policies
	if policies == nil {
		policies = DefaultRegistry()
	}
	if len(policies.Tiers()) == 0 {
		return nil, fmt.Errorf("cache manager: no tier policies configured")
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	interval := opts.SweepInterval
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	m := &Manager{
		policies:      policies,
		memory:        make(map[Tier]*MemoryCache),
		logger:        logger,
		tracer:        tracer,
		observer:      opts.Observer,
		nowFn:         time.Now,
		sweepInterval: interval,
		sweepCtx:      sweepCtx,
		sweepCancel:   sweepCancel,
	}

	for _, tier := range policies.Tiers() {
		policy, err := policies.Policy(tier)
		if err != nil {
			sweepCancel()
			return nil, err
		}
		m.memory[tier] = NewMemoryCache(policy.MaxCacheBytes(), m.recordEviction)
	}

	if opts.Redis != nil {
		m.redis = NewRedisCache(opts.Redis)
	}
	if opts.DB != nil {
		m.durable = NewDurableStore(opts.DB)
	}
	return m, nil
}

// SetPolicies swaps the tier policy registry at runtime and resizes the
// memory tiers to the new budgets. The tier set is fixed at construction;
// a registry naming a different set is rejected.
func (m *Manager) SetPolicies(reg *Registry) error {
	if reg == nil || len(reg.Tiers()) == 0 {
		return fmt.Errorf("cache manager: no tier policies configured")
	}
	if len(reg.Tiers()) != len(m.memory) {
		return fmt.Errorf("cache manager: policy update must cover exactly the configured tiers")
	}
	for _, tier := range reg.Tiers() {
		if _, ok := m.memory[tier]; !ok {
			return fmt.Errorf("cache manager: policy update names unknown tier %q", tier)
		}
	}

	m.policyMu.Lock()
	m.policies = reg
	m.policyMu.Unlock()

	for _, tier := range reg.Tiers() {
		policy, err := reg.Policy(tier)
		if err != nil {
			return err
		}
		m.memory[tier].Resize(policy.MaxCacheBytes())
	}

	m.logger.Info("tier policies updated")
	return nil
}

// Get returns the cached payload entry for (dataType, identifier, tier),
// or a miss. The first tier holding a live entry serves it and the entry is
// promoted into memory. The manager never fetches from origin; a miss means
// the caller fetches and calls Set.
func (m *Manager) Get(ctx context.Context, dataType DataType, identifier string, tier Tier) (*Entry, bool) {
	start := m.now()
	ctx, span := m.tracer.Start(ctx, "cache.get", trace.WithAttributes(
		attribute.String("cache.data_type", dataType.String()),
		attribute.String("cache.tier", tier.String()),
	))
	defer span.End()
	defer m.observe("get", start)

	atomic.AddInt64(&m.counters.requests, 1)

	policy, err := m.registry().Policy(tier)
	if err != nil {
		atomic.AddInt64(&m.counters.errors, 1)
		atomic.AddInt64(&m.counters.misses, 1)
		m.logger.Warn("get rejected", zap.String("tier", tier.String()), zap.Error(err))
		return nil, false
	}
	if !dataType.Valid() {
		atomic.AddInt64(&m.counters.errors, 1)
		atomic.AddInt64(&m.counters.misses, 1)
		m.logger.Warn("get rejected", zap.String("data_type", dataType.String()), zap.Error(ErrUnknownDataType))
		return nil, false
	}

	key := DeriveKey(dataType, identifier, tier)

	if entry, ok := m.memory[tier].Get(key, m.now()); ok {
		atomic.AddInt64(&m.counters.hits, 1)
		span.SetAttributes(attribute.String("cache.hit_tier", "memory"))
		return entry, true
	}

	entry, servedBy := m.lookupBackends(ctx, dataType, key, tier, policy)
	if entry == nil {
		atomic.AddInt64(&m.counters.misses, 1)
		return nil, false
	}

	atomic.AddInt64(&m.counters.hits, 1)
	switch servedBy {
	case "redis":
		atomic.AddInt64(&m.counters.redisHits, 1)
	case "durable":
		atomic.AddInt64(&m.counters.dbHits, 1)
	}
	span.SetAttributes(attribute.String("cache.hit_tier", servedBy))
	return entry, true
}

type backendHit struct {
	entry    *Entry
	servedBy string
}

// lookupBackends consults Redis then the durable store, outside any memory
// lock. Concurrent lookups for the same key collapse into one backend read.
func (m *Manager) lookupBackends(ctx context.Context, dataType DataType, key string, tier Tier, policy Policy) (*Entry, string) {
	v, _, _ := m.group.Do(key, func() (interface{}, error) {
		now := m.now()

		// another request may have promoted the entry while this one waited
		if entry, ok := m.memory[tier].Get(key, now); ok {
			return &backendHit{entry: entry, servedBy: "memory"}, nil
		}

		if policy.RedisEnabled && m.redis != nil {
			entry, err := m.redis.Get(ctx, dataType, key)
			switch {
			case err == nil:
				if entry.Live(now) {
					entry.Touch(now)
					m.promote(entry)
					return &backendHit{entry: entry, servedBy: "redis"}, nil
				}
			case !errors.Is(err, ErrNotFound):
				m.backendFault("redis", key, err)
			}
		}

		if policy.DBPersistence && m.durable != nil {
			entry, err := m.durable.Get(ctx, key, now)
			switch {
			case err == nil:
				entry.Touch(now)
				if terr := m.durable.TouchAccess(ctx, key, now); terr != nil {
					m.logger.Debug("durable access bookkeeping failed", zap.String("key", key), zap.Error(terr))
				}
				m.promote(entry)
				return &backendHit{entry: entry, servedBy: "durable"}, nil
			case !errors.Is(err, ErrNotFound):
				m.backendFault("durable", key, err)
			}
		}

		return (*backendHit)(nil), nil
	})

	hit, _ := v.(*backendHit)
	if hit == nil || hit.entry == nil {
		return nil, ""
	}
	return hit.entry, hit.servedBy
}

// SetOption adjusts a single write.
type SetOption func(*setOptions)

type setOptions struct {
	ttl time.Duration
}

// WithTTL overrides the data type's default TTL for one write.
func WithTTL(ttl time.Duration) SetOption {
	return func(o *setOptions) { o.ttl = ttl }
}

// WriteReceipt reports which backends accepted a write. The memory tier
// defines overall success; the secondary flags let callers needing stronger
// guarantees detect partial failures.
type WriteReceipt struct {
	Memory  bool
	Redis   bool
	Durable bool
}

// Stored reports overall write success.
func (r WriteReceipt) Stored() bool {
	return r.Memory
}

// Set caches a payload under (dataType, identifier, tier). The payload is
// validated and canonicalized by the data type's codec, then fanned out to
// every tier the policy enables. Secondary-backend failures are best effort:
// they mark the receipt and the entry's error bookkeeping but do not fail
// the write. Serialization failures and unknown tiers are caller errors.
func (m *Manager) Set(ctx context.Context, dataType DataType, identifier string, payload interface{}, source string, tier Tier, opts ...SetOption) (WriteReceipt, error) {
	start := m.now()
	ctx, span := m.tracer.Start(ctx, "cache.set", trace.WithAttributes(
		attribute.String("cache.data_type", dataType.String()),
		attribute.String("cache.tier", tier.String()),
	))
	defer span.End()
	defer m.observe("set", start)

	var receipt WriteReceipt

	policy, err := m.registry().Policy(tier)
	if err != nil {
		atomic.AddInt64(&m.counters.errors, 1)
		return receipt, err
	}
	if !dataType.Valid() {
		atomic.AddInt64(&m.counters.errors, 1)
		return receipt, fmt.Errorf("%w: %q", ErrUnknownDataType, dataType)
	}

	var options setOptions
	for _, opt := range opts {
		opt(&options)
	}

	raw, err := dataType.Codec().Encode(payload)
	if err != nil {
		atomic.AddInt64(&m.counters.errors, 1)
		return receipt, err
	}

	ttl := dataType.DefaultTTL()
	if options.ttl > 0 {
		ttl = options.ttl
	}

	now := m.now()
	entry := &Entry{
		Key:              DeriveKey(dataType, identifier, tier),
		DataType:         dataType,
		Payload:          raw,
		ContentHash:      hashString(string(raw)),
		TTLSeconds:       int64(ttl / time.Second),
		CreatedAt:        now,
		ExpiresAt:        now.Add(ttl),
		LastAccessed:     now,
		Valid:            true,
		SubscriptionTier: tier,
		Source:           source,
		SizeBytes:        int64(len(raw)),
	}

	snapshot := *entry
	if err := m.memory[tier].Put(&snapshot); err != nil {
		atomic.AddInt64(&m.counters.errors, 1)
		m.logger.Warn("memory tier rejected entry",
			zap.String("key", entry.Key),
			zap.Int64("size_bytes", entry.SizeBytes),
			zap.Error(err))
	} else {
		receipt.Memory = true
	}

	if policy.RedisEnabled && m.redis != nil {
		if err := m.redis.Set(ctx, entry, now); err != nil {
			m.backendFault("redis", entry.Key, err)
			entry.RecordFailure("redis set: " + err.Error())
		} else {
			receipt.Redis = true
		}
	}

	if policy.DBPersistence && m.durable != nil {
		if err := m.durable.Upsert(ctx, entry); err != nil {
			m.backendFault("durable", entry.Key, err)
		} else {
			receipt.Durable = true
		}
	}

	span.SetAttributes(attribute.Bool("cache.stored", receipt.Stored()))
	return receipt, nil
}

// Invalidate removes the entry for (dataType, identifier, tier) from every
// tier: dropped from memory, deleted from Redis, soft-deleted in the
// durable store. Invalidating an absent key is a no-op. Backend faults do
// not stop the remaining tiers; the first one is returned after all tiers
// were attempted, with the sweeper as backstop for any row left behind.
func (m *Manager) Invalidate(ctx context.Context, dataType DataType, identifier string, tier Tier) error {
	ctx, span := m.tracer.Start(ctx, "cache.invalidate", trace.WithAttributes(
		attribute.String("cache.data_type", dataType.String()),
		attribute.String("cache.tier", tier.String()),
	))
	defer span.End()

	if _, err := m.registry().Policy(tier); err != nil {
		return err
	}
	if !dataType.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownDataType, dataType)
	}

	key := DeriveKey(dataType, identifier, tier)
	m.memory[tier].Remove(key)

	var firstErr error
	if m.redis != nil {
		if err := m.redis.Delete(ctx, dataType, key); err != nil {
			m.backendFault("redis", key, err)
			firstErr = err
		}
	}
	if m.durable != nil {
		if err := m.durable.Invalidate(ctx, key); err != nil {
			m.backendFault("durable", key, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// InvalidateUserJobSecurity drops a user's job-security score from every
// subscription tier, used when a check-in makes the score stale before its
// TTL.
func (m *Manager) InvalidateUserJobSecurity(ctx context.Context, userID int64) error {
	identifier := UserIdentifier(userID)
	var firstErr error
	for _, tier := range m.registry().Tiers() {
		if err := m.Invalidate(ctx, JobSecurityScore, identifier, tier); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Clear flushes every tier completely.
func (m *Manager) Clear(ctx context.Context) error {
	ctx, span := m.tracer.Start(ctx, "cache.clear")
	defer span.End()

	for _, mc := range m.memory {
		mc.Clear()
	}

	var firstErr error
	if m.redis != nil {
		if err := m.redis.DeleteAll(ctx); err != nil {
			m.backendFault("redis", "all", err)
			firstErr = err
		}
	}
	if m.durable != nil {
		if _, err := m.durable.DeleteAll(ctx); err != nil {
			m.backendFault("durable", "all", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// ClearDataType flushes one data type from every tier.
func (m *Manager) ClearDataType(ctx context.Context, dataType DataType) error {
	if !dataType.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownDataType, dataType)
	}
	ctx, span := m.tracer.Start(ctx, "cache.clear", trace.WithAttributes(
		attribute.String("cache.data_type", dataType.String()),
	))
	defer span.End()

	for _, mc := range m.memory {
		mc.RemoveFunc(func(e *Entry) bool { return e.DataType == dataType })
	}

	var firstErr error
	if m.redis != nil {
		if err := m.redis.DeleteDataType(ctx, dataType); err != nil {
			m.backendFault("redis", dataType.String(), err)
			firstErr = err
		}
	}
	if m.durable != nil {
		if _, err := m.durable.DeleteDataType(ctx, dataType); err != nil {
			m.backendFault("durable", dataType.String(), err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// promote copies an entry into its tier's memory cache. Rejections (entry
// over budget) are not errors; the entry is simply served without residency.
func (m *Manager) promote(entry *Entry) {
	mc, ok := m.memory[entry.SubscriptionTier]
	if !ok {
		return
	}
	snapshot := *entry
	if err := mc.Put(&snapshot); err != nil {
		m.logger.Debug("promotion skipped", zap.String("key", entry.Key), zap.Error(err))
	}
}

func (m *Manager) recordEviction(entry *Entry) {
	atomic.AddInt64(&m.counters.evictions, 1)
	m.logger.Debug("memory eviction",
		zap.String("key", entry.Key),
		zap.Int64("size_bytes", entry.SizeBytes))
}

func (m *Manager) backendFault(backend, scope string, err error) {
	atomic.AddInt64(&m.counters.errors, 1)
	m.logger.Warn("cache backend fault",
		zap.String("backend", backend),
		zap.String("scope", scope),
		zap.Error(err))
}

func (m *Manager) registry() *Registry {
	m.policyMu.RLock()
	defer m.policyMu.RUnlock()
	return m.policies
}

func (m *Manager) now() time.Time {
	return m.nowFn()
}
