package cache

import (
	"fmt"
	"strings"
)

// Tier is a subscription plan gating cache backends and size budgets.
type Tier string

const (
	TierFree       Tier = "free"
	TierPremium    Tier = "premium"
	TierEnterprise Tier = "enterprise"
)

// Tiers returns all subscription tiers in stable order.
func Tiers() []Tier {
	return []Tier{TierFree, TierPremium, TierEnterprise}
}

// ParseTier converts a plan name into a Tier. Unknown names are an error;
// silently defaulting could hand a caller another tier's resource budget.
func ParseTier(s string) (Tier, error) {
	switch t := Tier(strings.ToLower(strings.TrimSpace(s))); t {
	case TierFree, TierPremium, TierEnterprise:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownTier, s)
	}
}

func (t Tier) String() string {
	return string(t)
}

// Valid reports whether the tier is one of the supported plans.
func (t Tier) Valid() bool {
	switch t {
	case TierFree, TierPremium, TierEnterprise:
		return true
	}
	return false
}
