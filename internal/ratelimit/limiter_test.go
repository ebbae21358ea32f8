package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLimiter_Allow(t *testing.T) {
	limiter := NewLimiter(2.0, 2) // 2 RPS, burst of 2

	if !limiter.Allow("ethereum") {
		t.Error("First request should be allowed")
	}
	if !limiter.Allow("ethereum") {
		t.Error("Second request should be allowed")
	}
	if limiter.Allow("ethereum") {
		t.Error("Third request should be blocked")
	}
}

func TestLimiter_MultipleChains(t *testing.T) {
	limiter := NewLimiter(1.0, 1) // 1 RPS, burst of 1

	// Each chain should have independent rate limiting.
	if !limiter.Allow("ethereum") {
		t.Error("First request to ethereum should be allowed")
	}
	if !limiter.Allow("polygon") {
		t.Error("First request to polygon should be allowed")
	}

	if limiter.Allow("ethereum") {
		t.Error("Second request to ethereum should be blocked")
	}
	if limiter.Allow("polygon") {
		t.Error("Second request to polygon should be blocked")
	}
}

func TestLimiter_Wait(t *testing.T) {
	limiter := NewLimiter(10.0, 1) // 10 RPS, burst of 1

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := limiter.Wait(ctx, "ethereum")
	elapsed := time.Since(start)

	if err != nil {
		t.Errorf("Wait should not error on first request: %v", err)
	}
	if elapsed > 10*time.Millisecond {
		t.Errorf("First request should be immediate, took %v", elapsed)
	}

	start = time.Now()
	err = limiter.Wait(ctx, "ethereum")
	elapsed = time.Since(start)

	if err != nil {
		t.Errorf("Wait should not error: %v", err)
	}
	if elapsed < 50*time.Millisecond || elapsed > 150*time.Millisecond {
		t.Errorf("Second request should wait ~100ms, took %v", elapsed)
	}
}

func TestLimiter_WaitTimeout(t *testing.T) {
	limiter := NewLimiter(0.1, 1) // very slow: 0.1 RPS

	limiter.Allow("ethereum")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := limiter.Wait(ctx, "ethereum")
	elapsed := time.Since(start)

	if err == nil {
		t.Error("Wait should timeout with short context")
	}
	if elapsed > 150*time.Millisecond {
		t.Errorf("Wait should timeout quickly, took %v", elapsed)
	}
}

func TestLimiter_ConcurrentAccess(t *testing.T) {
	limiter := NewLimiter(100.0, 10) // 100 RPS, burst of 10
	chain := "ethereum"

	const numGoroutines = 50
	const requestsPerGoroutine = 5

	var allowed, blocked int64
	var wg sync.WaitGroup

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < requestsPerGoroutine; j++ {
				if limiter.Allow(chain) {
					atomic.AddInt64(&allowed, 1)
				} else {
					atomic.AddInt64(&blocked, 1)
				}
			}
		}()
	}

	wg.Wait()

	totalRequests := allowed + blocked
	expectedTotal := int64(numGoroutines * requestsPerGoroutine)

	if totalRequests != expectedTotal {
		t.Errorf("Total requests %d != expected %d", totalRequests, expectedTotal)
	}
	if allowed < 10 {
		t.Errorf("Should allow at least burst amount, allowed %d", allowed)
	}
	if blocked == 0 {
		t.Errorf("Should block some requests with this load, blocked %d", blocked)
	}
}

func TestLimiter_Stats(t *testing.T) {
	limiter := NewLimiter(5.0, 10)
	chain := "ethereum"

	limiter.Allow(chain)
	limiter.Allow(chain)

	stats := limiter.Stats()
	chainStats, exists := stats[chain]

	if !exists {
		t.Error("Stats should include the chain")
	}
	if chainStats.Chain != chain {
		t.Errorf("Chain stats should be for %s, got %s", chain, chainStats.Chain)
	}
	if chainStats.RPS != 5.0 {
		t.Errorf("RPS should be 5.0, got %f", chainStats.RPS)
	}
	if chainStats.Burst != 10 {
		t.Errorf("Burst should be 10, got %d", chainStats.Burst)
	}
	if chainStats.TokensAvailable >= 10 {
		t.Errorf("Tokens available should be < 10 after usage, got %f", chainStats.TokensAvailable)
	}
}

func TestLimiter_SetRPS(t *testing.T) {
	limiter := NewLimiter(1.0, 2)
	chain := "ethereum"

	limiter.Allow(chain)
	limiter.Allow(chain)

	if limiter.Allow(chain) {
		t.Error("Should be throttled at 1 RPS")
	}

	limiter.SetRPS(10.0)
	time.Sleep(150 * time.Millisecond)

	if !limiter.Allow(chain) {
		t.Error("Should allow requests after increasing RPS")
	}
}

func TestLimiter_Reset(t *testing.T) {
	limiter := NewLimiter(1.0, 1)
	chain := "ethereum"

	limiter.Allow(chain)

	if limiter.Allow(chain) {
		t.Error("Should be throttled before reset")
	}

	limiter.Reset()

	if !limiter.Allow(chain) {
		t.Error("Should allow requests after reset")
	}
}
