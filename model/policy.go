package model

import "time"

// Policy is the per-category caching behavior. Policies are registered once
// at process start and looked up by category on every store operation.
type Policy struct {
	// TTL is the hard expiry measured from the entry's creation.
	TTL time.Duration

	// MaxEntries bounds the number of live entries in the category.
	// Zero or negative means unbounded.
	MaxEntries int

	// StaleWindow is the grace period after hard expiry during which an old
	// value may still be served while a refresh is attempted.
	StaleWindow time.Duration

	// CompressionThresholdBytes routes payloads strictly larger than this
	// through compression before storage. Zero or negative disables
	// compression for the category.
	CompressionThresholdBytes int64

	// RefetchInterval enables periodic proactive refresh when positive.
	RefetchInterval time.Duration
}

// FallbackPolicy applies to categories without a registered policy:
// short TTL, no stale serving, no background refresh.
var FallbackPolicy = Policy{
	TTL:        30 * time.Second,
	MaxEntries: 256,
}

// PolicyRegistry maps categories to their policies. Immutable after construction.
type PolicyRegistry struct {
	byCategory map[Category]Policy
	fallback   Policy
}

func NewPolicyRegistry(policies map[Category]Policy) *PolicyRegistry {
	cp := make(map[Category]Policy, len(policies))
	for c, p := range policies {
		cp[c] = p
	}
	return &PolicyRegistry{byCategory: cp, fallback: FallbackPolicy}
}

// Lookup returns the category's policy, or the conservative fallback when
// the category has none registered.
func (r *PolicyRegistry) Lookup(c Category) Policy {
	if p, ok := r.byCategory[c]; ok {
		return p
	}
	return r.fallback
}

// Categories returns every category with an explicit policy.
func (r *PolicyRegistry) Categories() []Category {
	out := make([]Category, 0, len(r.byCategory))
	for c := range r.byCategory {
		out = append(out, c)
	}
	return out
}
