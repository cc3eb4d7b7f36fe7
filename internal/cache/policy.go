package cache

import (
	"fmt"
)

// Policy is the cache behavior granted to one subscription tier.
type Policy struct {
	// MaxCacheSizeMB bounds the tier's memory footprint
	MaxCacheSizeMB int64
	// RefreshThreshold is the fraction of TTL remaining at which a refresh
	// becomes due. Reserved: no scheduler consumes it yet, see Entry.RefreshDue.
	RefreshThreshold float64
	// RedisEnabled grants the shared Redis tier
	RedisEnabled bool
	// DBPersistence grants the durable store tier
	DBPersistence bool
}

// MaxCacheBytes returns the memory budget in bytes.
func (p Policy) MaxCacheBytes() int64 {
	return p.MaxCacheSizeMB * 1024 * 1024
}

func (p Policy) validate() error {
	if p.MaxCacheSizeMB <= 0 {
		return fmt.Errorf("max_cache_size_mb must be positive, got %d", p.MaxCacheSizeMB)
	}
	if p.RefreshThreshold <= 0 || p.RefreshThreshold >= 1 {
		return fmt.Errorf("refresh_threshold must be in (0,1), got %f", p.RefreshThreshold)
	}
	return nil
}

// Registry maps subscription tiers to their cache policies.
type Registry struct {
	policies map[Tier]Policy
}

// NewRegistry validates and copies the given policy table.
func NewRegistry(policies map[Tier]Policy) (*Registry, error) {
	if len(policies) == 0 {
		return nil, fmt.Errorf("policy registry: no tiers configured")
	}
	table := make(map[Tier]Policy, len(policies))
	for tier, policy := range policies {
		if !tier.Valid() {
			return nil, fmt.Errorf("policy registry: %w: %q", ErrUnknownTier, tier)
		}
		if err := policy.validate(); err != nil {
			return nil, fmt.Errorf("policy registry: tier %s: %w", tier, err)
		}
		table[tier] = policy
	}
	return &Registry{policies: table}, nil
}

// DefaultRegistry returns the product's standard per-tier policies: free
// rides the memory tier only, paid plans add Redis and durable persistence
// with growing budgets.
func DefaultRegistry() *Registry {
	return &Registry{policies: map[Tier]Policy{
		TierFree: {
			MaxCacheSizeMB:   10,
			RefreshThreshold: 0.20,
			RedisEnabled:     false,
			DBPersistence:    false,
		},
		TierPremium: {
			MaxCacheSizeMB:   50,
			RefreshThreshold: 0.20,
			RedisEnabled:     true,
			DBPersistence:    true,
		},
		TierEnterprise: {
			MaxCacheSizeMB:   200,
			RefreshThreshold: 0.10,
			RedisEnabled:     true,
			DBPersistence:    true,
		},
	}}
}

// Policy returns the policy for a tier, failing fast on unknown tiers.
func (r *Registry) Policy(tier Tier) (Policy, error) {
	policy, ok := r.policies[tier]
	if !ok {
		return Policy{}, fmt.Errorf("%w: %q", ErrUnknownTier, tier)
	}
	return policy, nil
}

// Tiers returns the configured tiers in stable order.
func (r *Registry) Tiers() []Tier {
	tiers := make([]Tier, 0, len(r.policies))
	for _, tier := range Tiers() {
		if _, ok := r.policies[tier]; ok {
			tiers = append(tiers, tier)
		}
	}
	return tiers
}
