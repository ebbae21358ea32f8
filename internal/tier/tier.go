// Package tier holds the tier registry and the per-tier freshness policy
// the request path consults on every read.
package tier

import (
	"sync"
	"time"
)

// Label identifies a freshness class. The zero value is not a valid label;
// a pair with no explicit assignment resolves to Default.
type Label string

const (
	T1 Label = "T1"
	T2 Label = "T2"
	T3 Label = "T3"
	T4 Label = "T4"

	// Default is the tier applied to any pair with no explicit assignment.
	Default = T4
)

// Config describes one tier's freshness and refresh cadence.
type Config struct {
	TTL           time.Duration
	RefreshPeriod time.Duration // zero means on-demand only, no sweeper timer
}

// Policy bundles the tier configuration table and the global max-stale
// floor used by the freshness checks below.
type Policy struct {
	Configs     map[Label]Config
	MaxStaleAge time.Duration
}

// DefaultPolicy matches the tier table fixed by the cache's data model.
func DefaultPolicy() Policy {
	return Policy{
		Configs: map[Label]Config{
			T1: {TTL: 10 * time.Second, RefreshPeriod: 5 * time.Second},
			T2: {TTL: 60 * time.Second, RefreshPeriod: 30 * time.Second},
			T3: {TTL: 300 * time.Second, RefreshPeriod: 180 * time.Second},
			T4: {TTL: 600 * time.Second, RefreshPeriod: 0},
		},
		MaxStaleAge: 3600 * time.Second,
	}
}

// RefreshableTiers returns the tiers the sweeper must spawn a timer for:
// those with a non-zero refresh period, in ascending cadence order.
func (p Policy) RefreshableTiers() []Label {
	order := []Label{T1, T2, T3, T4}
	out := make([]Label, 0, len(order))
	for _, l := range order {
		if cfg, ok := p.Configs[l]; ok && cfg.RefreshPeriod > 0 {
			out = append(out, l)
		}
	}
	return out
}

// Entry is the freshness-relevant subset of a stored cache entry: the
// policy never needs the quote payload itself.
type Entry struct {
	InsertedAt time.Time
	Tier       Label
}

// IsFresh reports whether the entry is still within its tier's TTL at now.
func (p Policy) IsFresh(e Entry, now time.Time) bool {
	cfg, ok := p.Configs[e.Tier]
	if !ok {
		cfg = p.Configs[Default]
	}
	return now.Sub(e.InsertedAt) <= cfg.TTL
}

// IsServableStale reports whether the entry, though no longer fresh, is
// still within the global max-stale floor and can be served immediately
// while a background refresh runs.
func (p Policy) IsServableStale(e Entry, now time.Time) bool {
	return now.Sub(e.InsertedAt) <= p.MaxStaleAge
}

// IsTooStale is the complement of IsServableStale.
func (p Policy) IsTooStale(e Entry, now time.Time) bool {
	return !p.IsServableStale(e, now)
}

// Registry maps pair keys (chain:tokenIn:tokenOut) to a tier label. A pair
// with no explicit assignment resolves to Default. Reads dominate writes,
// so access is guarded with a RWMutex rather than anything lock-free.
type Registry struct {
	mu      sync.RWMutex
	members map[Label]map[string]struct{}
	assigned map[string]Label
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	r := &Registry{
		members:  make(map[Label]map[string]struct{}),
		assigned: make(map[string]Label),
	}
	for _, l := range []Label{T1, T2, T3, T4} {
		r.members[l] = make(map[string]struct{})
	}
	return r
}

// Assign sets pairKey's tier, removing it from any tier it previously
// belonged to so a pair is a member of at most one tier at a time.
func (r *Registry) Assign(pairKey string, tier Label) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.assigned[pairKey]; ok {
		delete(r.members[prev], pairKey)
	}
	r.assigned[pairKey] = tier
	if _, ok := r.members[tier]; !ok {
		r.members[tier] = make(map[string]struct{})
	}
	r.members[tier][pairKey] = struct{}{}
}

// Remove clears any tier assignment for pairKey; TierOf subsequently
// returns Default for it.
func (r *Registry) Remove(pairKey string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.assigned[pairKey]; ok {
		delete(r.members[prev], pairKey)
		delete(r.assigned, pairKey)
	}
}

// TierOf returns the assigned tier for pairKey, or Default if unassigned.
func (r *Registry) TierOf(pairKey string) Label {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if t, ok := r.assigned[pairKey]; ok {
		return t
	}
	return Default
}

// MembersOf returns a snapshot of the pair keys currently assigned to
// tier, safe for the caller to range over without holding the registry
// lock.
func (r *Registry) MembersOf(tier Label) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.members[tier]
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}

// Stats summarizes registry membership, mirroring the tiered counts a
// caller would want from an admin or health endpoint.
type Stats struct {
	Counts map[Label]int
}

// Stats returns a membership snapshot across all known tiers.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[Label]int, len(r.members))
	for l, set := range r.members {
		counts[l] = len(set)
	}
	return Stats{Counts: counts}
}
