// Package cache provides the tiered external-data cache for MINGUS.
//
// External artifacts (employer financials, WARN notices, labor statistics,
// job-security scores, labor-market snapshots) are expensive to fetch and
// rate-limited at their origins, so the application caches them across
// three storage tiers.
//
// # Cache Architecture
//
// Three tiers, queried fastest first:
//
//  1. Memory: per-subscription-tier LRU, byte-budgeted, volatile
//  2. Redis: shared across processes, expiry via native TTL
//  3. Durable: SQLite rows with explicit expiry and a validity flag
//
// A read falls through memory -> Redis -> durable store; the first live
// entry is returned and promoted into memory. A write fans out to every
// tier the subscription policy enables.
//
// # Manager
//
// The manager is constructed from injected backends; there is no global
// instance:
//
//	rdb := redis.NewClient(cfg.Redis.Options())
//	db, err := cache.OpenDurable("/var/lib/mingus/cache.db")
//
//	mgr, err := cache.New(cache.Options{
//	    Redis:  rdb,
//	    DB:     db,
//	    Logger: logger,
//	})
//	mgr.Start() // background sweeper
//	defer mgr.Close()
//
// Reads and writes are keyed by data type, identifier, and subscription
// tier:
//
//	receipt, err := mgr.Set(ctx, cache.EmployerFinancial, "Acme Corp",
//	    payload, "financial_api", cache.TierPremium)
//
//	entry, ok := mgr.Get(ctx, cache.EmployerFinancial, "Acme Corp",
//	    cache.TierPremium)
//
// # Policies
//
// Each subscription tier carries a policy: memory byte budget, whether the
// Redis and durable tiers apply, and a reserved refresh threshold. Unknown
// tiers fail fast rather than defaulting into another tier's budget.
//
// # Data Types
//
// The data type set is closed. Every variant declares its default TTL and a
// payload codec; writes are validated and canonicalized by the codec, so a
// payload that cannot serialize fails the Set instead of landing in a
// backend.
//
// # Eviction and Expiry
//
// The memory tier evicts least-recently-used entries synchronously inside
// the write that overflows the budget. Expiry is discovered lazily on read
// and reaped by a background sweeper that also bulk-deletes expired or
// invalidated durable rows. Redis expires its own keys.
//
// # Graceful Degradation
//
// Backend faults never propagate out of a read: a failing tier is logged,
// counted, and treated as a miss while the next tier is tried. Writes
// report per-backend success in a WriteReceipt; the memory tier defines
// overall success.
//
// # Key Files
//
//   - manager.go: read/write orchestration across tiers
//   - memory.go: LRU memory tier with byte budget
//   - redis.go: shared Redis tier
//   - durable.go: SQLite durable tier
//   - policy.go: per-subscription-tier policies
//   - datatype.go: closed data type set and payload codecs
//   - sweeper.go: background purge loop
package cache
