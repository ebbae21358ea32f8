// Package circuit implements the Circuit Breaker: a per-chain
// Closed/Open/HalfOpen state machine guarding the upstream router. Unlike
// a single shared breaker, a Manager shards one Breaker per chain so a
// failing router on one chain never throttles requests to another, and
// the HalfOpen state admits at most one trial call at a time so a burst
// of concurrent request-path and refresh-worker calls against the same
// chain cannot all rush the recovering upstream together.
package circuit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrCircuitOpen is returned when the breaker is refusing calls.
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrRequestTimeout is returned when a call exceeds its RequestTimeout.
	ErrRequestTimeout = errors.New("request timeout")
)

// State is one point in the breaker's Closed -> Open -> HalfOpen cycle.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config tunes how eagerly a breaker trips and how it tests recovery.
type Config struct {
	FailureThreshold int           // consecutive failures that trip Closed -> Open
	SuccessThreshold int           // consecutive HalfOpen successes that close the circuit
	Timeout          time.Duration // Open cool-down before a probe is admitted
	RequestTimeout   time.Duration // per-call deadline enforced by the breaker itself
}

// Breaker guards a single upstream target. Zero value is not usable; build
// one with NewBreaker.
type Breaker struct {
	mu     sync.Mutex
	config Config

	state           State
	consecFailures  int
	consecSuccesses int
	probeInFlight   bool // true while a single HalfOpen trial call is outstanding
	openedAt        time.Time
	lastTransition  time.Time
	lastFailure     time.Time

	requests  int64
	successes int64
	failures  int64
	timeouts  int64
}

// NewBreaker builds a Breaker in the Closed state.
func NewBreaker(config Config) *Breaker {
	return &Breaker{config: config, state: StateClosed, lastTransition: time.Now()}
}

// Call runs fn under the breaker's admission rule and per-call timeout,
// classifying the outcome back into the state machine.
func (b *Breaker) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	if !b.admit() {
		return ErrCircuitOpen
	}

	callCtx, cancel := context.WithTimeout(ctx, b.config.RequestTimeout)
	defer cancel()

	b.mu.Lock()
	b.requests++
	b.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- fn(callCtx) }()

	select {
	case err := <-done:
		if err != nil {
			b.recordFailure(false)
			return err
		}
		b.recordSuccess()
		return nil
	case <-callCtx.Done():
		b.recordFailure(true)
		return ErrRequestTimeout
	}
}

// admit decides whether a call may proceed, and in the HalfOpen case
// reserves the single trial slot so concurrent callers queued up behind
// an Open breaker don't all get released onto the upstream at once when
// the cool-down expires.
func (b *Breaker) admit() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(b.openedAt) < b.config.Timeout {
			return false
		}
		b.transition(StateHalfOpen)
		b.probeInFlight = true
		return true
	case StateHalfOpen:
		if b.probeInFlight {
			return false
		}
		b.probeInFlight = true
		return true
	default:
		return false
	}
}

func (b *Breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.successes++

	switch b.state {
	case StateClosed:
		b.consecFailures = 0
	case StateHalfOpen:
		b.probeInFlight = false
		b.consecSuccesses++
		if b.consecSuccesses >= b.config.SuccessThreshold {
			b.transition(StateClosed)
		}
	}
}

// recordFailure handles both outright errors and timeouts; a timeout is
// always also a failure, so both paths feed the same trip logic and only
// the counters they bump differ.
func (b *Breaker) recordFailure(isTimeout bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	if isTimeout {
		b.timeouts++
	}
	b.lastFailure = time.Now()

	switch b.state {
	case StateClosed:
		b.consecFailures++
		if b.consecFailures >= b.config.FailureThreshold {
			b.transition(StateOpen)
		}
	case StateHalfOpen:
		b.probeInFlight = false
		b.transition(StateOpen)
	}
}

// transition moves to state, resetting the bookkeeping each state needs
// on entry. Caller must hold b.mu.
func (b *Breaker) transition(state State) {
	if b.state == state {
		return
	}
	b.state = state
	b.lastTransition = time.Now()

	switch state {
	case StateOpen:
		b.openedAt = b.lastTransition
	case StateHalfOpen:
		b.consecFailures = 0
		b.consecSuccesses = 0
	case StateClosed:
		b.consecFailures = 0
		b.consecSuccesses = 0
		b.probeInFlight = false
	}
}

// State returns the breaker's current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Stats is a point-in-time snapshot of a breaker's counters.
type Stats struct {
	State                State     `json:"state"`
	TotalRequests        int64     `json:"total_requests"`
	TotalSuccesses       int64     `json:"total_successes"`
	TotalFailures        int64     `json:"total_failures"`
	TotalTimeouts        int64     `json:"total_timeouts"`
	ConsecutiveFailures  int       `json:"consecutive_failures"`
	ConsecutiveSuccesses int       `json:"consecutive_successes"`
	LastStateChange      time.Time `json:"last_state_change"`
	LastFailureTime      time.Time `json:"last_failure_time,omitempty"`
	SuccessRate          float64   `json:"success_rate"`
	TimeoutRate          float64   `json:"timeout_rate"`
}

// IsHealthy reports whether a chain looks operationally sound: closed,
// and either untested or succeeding at least 90% of the time.
func (s *Stats) IsHealthy() bool {
	return s.State == StateClosed && (s.TotalRequests == 0 || s.SuccessRate >= 0.9)
}

// Stats snapshots the breaker's counters under lock.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	var successRate, timeoutRate float64
	if b.requests > 0 {
		successRate = float64(b.successes) / float64(b.requests)
		timeoutRate = float64(b.timeouts) / float64(b.requests)
	}

	return Stats{
		State:                b.state,
		TotalRequests:        b.requests,
		TotalSuccesses:       b.successes,
		TotalFailures:        b.failures,
		TotalTimeouts:        b.timeouts,
		ConsecutiveFailures:  b.consecFailures,
		ConsecutiveSuccesses: b.consecSuccesses,
		LastStateChange:      b.lastTransition,
		LastFailureTime:      b.lastFailure,
		SuccessRate:          successRate,
		TimeoutRate:          timeoutRate,
	}
}

// Reset clears a breaker back to its zero Closed state, counters included.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = StateClosed
	b.consecFailures = 0
	b.consecSuccesses = 0
	b.probeInFlight = false
	b.requests = 0
	b.successes = 0
	b.failures = 0
	b.timeouts = 0
	b.lastTransition = time.Now()
	b.lastFailure = time.Time{}
}

// ForceOpen trips the breaker regardless of its failure counters, for an
// operator pulling a chain out of rotation under investigation.
func (b *Breaker) ForceOpen() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transition(StateOpen)
}

// ForceHalfOpen moves the breaker straight to a recovery probe.
func (b *Breaker) ForceHalfOpen() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transition(StateHalfOpen)
}

// ForceClosed restores normal service immediately.
func (b *Breaker) ForceClosed() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transition(StateClosed)
}

// Manager shards one Breaker per chain so a failing router on one chain
// never trips the breaker guarding another; breakers are created lazily
// from a default Config the first time a chain is seen.
type Manager struct {
	mu            sync.RWMutex
	defaultConfig Config
	breakers      map[string]*Breaker
}

// NewManager builds a Manager that lazily creates breakers from defaultConfig.
func NewManager(defaultConfig Config) *Manager {
	return &Manager{defaultConfig: defaultConfig, breakers: make(map[string]*Breaker)}
}

// AddChain installs (or replaces) a chain's breaker with a non-default Config,
// for an operator who needs one chain's thresholds tuned apart from the rest.
func (m *Manager) AddChain(chain string, config Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.breakers[chain] = NewBreaker(config)
}

// GetBreaker returns chain's breaker if one has been created.
func (m *Manager) GetBreaker(chain string) (*Breaker, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.breakers[chain]
	return b, ok
}

func (m *Manager) getOrCreate(chain string) *Breaker {
	m.mu.RLock()
	b, ok := m.breakers[chain]
	m.mu.RUnlock()
	if ok {
		return b
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.breakers[chain]; ok {
		return b
	}
	b = NewBreaker(m.defaultConfig)
	m.breakers[chain] = b
	return b
}

// Call runs fn through chain's breaker, lazily creating it on first use.
func (m *Manager) Call(ctx context.Context, chain string, fn func(ctx context.Context) error) error {
	return m.getOrCreate(chain).Call(ctx, fn)
}

// Stats snapshots every chain that has a breaker.
func (m *Manager) Stats() map[string]Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]Stats, len(m.breakers))
	for chain, b := range m.breakers {
		out[chain] = b.Stats()
	}
	return out
}

// IsHealthy reports whether every known chain's breaker is healthy.
func (m *Manager) IsHealthy() bool {
	for _, stat := range m.Stats() {
		if !stat.IsHealthy() {
			return false
		}
	}
	return true
}

// Reset clears every chain's breaker.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.breakers {
		b.Reset()
	}
}

// UnhealthyChains describes every chain whose breaker is not currently
// healthy, for admin visibility.
func (m *Manager) UnhealthyChains() []string {
	var unhealthy []string
	for chain, stat := range m.Stats() {
		if !stat.IsHealthy() {
			unhealthy = append(unhealthy, fmt.Sprintf("%s (state: %s, success: %.1f%%)",
				chain, stat.State, stat.SuccessRate*100))
		}
	}
	return unhealthy
}

// ForceOpen trips chain's breaker open, lazily creating it first if the
// chain has never been called through the manager.
func (m *Manager) ForceOpen(chain string) {
	m.getOrCreate(chain).ForceOpen()
}

// ForceClose restores chain's breaker to normal service immediately.
func (m *Manager) ForceClose(chain string) {
	m.getOrCreate(chain).ForceClosed()
}
