// Package probe is a secondary, admin-facing breaker used only for
// ad-hoc upstream reachability checks — independent of the per-call
// circuit.Manager the request path trips through, and backed by
// gobreaker rather than the hand-rolled breaker so its trip/reset
// accounting can be compared against the primary breaker during an
// incident.
package probe

import (
	"context"
	"sync"
	"time"

	cb "github.com/sony/gobreaker"
)

// Breaker wraps a single gobreaker.CircuitBreaker for one chain's probe
// checks.
type Breaker struct {
	cb *cb.CircuitBreaker
}

// New builds a probe Breaker for name, tripping after 3 consecutive
// failures or a >5% failure rate once at least 20 requests have been
// seen, and waiting 60s before allowing a half-open trial.
func New(name string) *Breaker {
	settings := cb.Settings{Name: name}
	settings.Interval = 60 * time.Second
	settings.Timeout = 60 * time.Second
	settings.ReadyToTrip = func(counts cb.Counts) bool {
		if counts.ConsecutiveFailures >= 3 {
			return true
		}
		if counts.Requests < 20 {
			return false
		}
		return float64(counts.TotalFailures)/float64(counts.Requests) > 0.05
	}
	return &Breaker{cb: cb.NewCircuitBreaker(settings)}
}

// Probe runs fn through the breaker, passing ctx through to fn; gobreaker
// has no native context support, so cancellation is up to fn itself.
func (b *Breaker) Probe(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, fn(ctx)
	})
	return err
}

// State reports the breaker's current gobreaker state as a string.
func (b *Breaker) State() string {
	return b.cb.State().String()
}

// Manager shards one probe Breaker per chain, created lazily on first use.
type Manager struct {
	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewManager builds an empty probe Manager.
func NewManager() *Manager {
	return &Manager{breakers: make(map[string]*Breaker)}
}

// Probe runs fn through chain's probe breaker, creating it on first use.
func (m *Manager) Probe(ctx context.Context, chain string, fn func(ctx context.Context) error) error {
	return m.getOrCreate(chain).Probe(ctx, fn)
}

// States returns the current gobreaker state for every chain probed so far.
func (m *Manager) States() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]string, len(m.breakers))
	for chain, b := range m.breakers {
		out[chain] = b.State()
	}
	return out
}

func (m *Manager) getOrCreate(chain string) *Breaker {
	m.mu.Lock()
	defer m.mu.Unlock()

	if b, ok := m.breakers[chain]; ok {
		return b
	}
	b := New(chain)
	m.breakers[chain] = b
	return b
}
