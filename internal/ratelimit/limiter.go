// Package ratelimit paces outbound router calls per chain: each chain
// gets its own token bucket so a burst against one congested chain never
// steals budget from another.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter holds one token bucket per chain, all sharing the same RPS/burst
// configuration.
type Limiter struct {
	mu       sync.RWMutex
	buckets  map[string]*rate.Limiter
	rps      float64
	burst    int
}

// NewLimiter builds a Limiter; buckets are created lazily per chain.
func NewLimiter(rps float64, burst int) *Limiter {
	return &Limiter{
		buckets: make(map[string]*rate.Limiter),
		rps:     rps,
		burst:   burst,
	}
}

func (l *Limiter) bucketFor(chain string) *rate.Limiter {
	l.mu.RLock()
	b, ok := l.buckets[chain]
	l.mu.RUnlock()
	if ok {
		return b
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.buckets[chain]; ok {
		return b
	}
	b = rate.NewLimiter(rate.Limit(l.rps), l.burst)
	l.buckets[chain] = b
	return b
}

// Allow reports whether a request against chain may proceed right now,
// consuming a token if so.
func (l *Limiter) Allow(chain string) bool {
	return l.bucketFor(chain).Allow()
}

// Wait blocks until chain's bucket has a token or ctx is done.
func (l *Limiter) Wait(ctx context.Context, chain string) error {
	return l.bucketFor(chain).Wait(ctx)
}

// Reserve reserves a token against chain's bucket.
func (l *Limiter) Reserve(chain string) *rate.Reservation {
	return l.bucketFor(chain).Reserve()
}

// SetRPS updates the steady-state rate for every chain's bucket, e.g. when
// an operator raises or lowers the router's overall budget at runtime.
func (l *Limiter) SetRPS(rps float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.rps = rps
	for _, b := range l.buckets {
		b.SetLimit(rate.Limit(rps))
	}
}

// SetBurst updates the burst capacity for every chain's bucket.
func (l *Limiter) SetBurst(burst int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.burst = burst
	for _, b := range l.buckets {
		b.SetBurst(burst)
	}
}

// ChainStats is a point-in-time view of one chain's bucket.
type ChainStats struct {
	Chain           string        `json:"chain"`
	RPS             float64       `json:"rps"`
	Burst           int           `json:"burst"`
	TokensAvailable float64       `json:"tokensAvailable"`
	NextAllowedAt   time.Time     `json:"nextAllowedAt"`
	Delay           time.Duration `json:"delay"`
}

// IsThrottled reports whether the chain currently has no token available.
func (s *ChainStats) IsThrottled() bool {
	return s.Delay > 0
}

// Stats snapshots every chain that has been seen so far, for the admin
// health surface to report per-chain throttling.
func (l *Limiter) Stats() map[string]ChainStats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	now := time.Now()
	out := make(map[string]ChainStats, len(l.buckets))
	for chain, b := range l.buckets {
		reservation := b.Reserve()
		delay := reservation.Delay()
		reservation.Cancel()

		out[chain] = ChainStats{
			Chain:           chain,
			RPS:             float64(b.Limit()),
			Burst:           b.Burst(),
			TokensAvailable: b.Tokens(),
			NextAllowedAt:   now.Add(delay),
			Delay:           delay,
		}
	}
	return out
}

// Reset discards every chain's bucket; the next call lazily rebuilds it.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buckets = make(map[string]*rate.Limiter)
}
