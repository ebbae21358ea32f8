package engine

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/sawpanic/pricecache/internal/circuit"
	"github.com/sawpanic/pricecache/internal/fingerprint"
	"github.com/sawpanic/pricecache/internal/store"
	"github.com/sawpanic/pricecache/internal/tier"
	"github.com/sawpanic/pricecache/internal/upstream"
)

func testConfig() Config {
	policy := tier.DefaultPolicy()
	policy.Configs[tier.T1] = tier.Config{TTL: 20 * time.Millisecond, RefreshPeriod: 0}
	return Config{
		Policy:  policy,
		Workers: 2,
		BreakerConfig: circuit.Config{
			FailureThreshold: 3,
			SuccessThreshold: 1,
			Timeout:          50 * time.Millisecond,
			RequestTimeout:   time.Second,
		},
	}
}

func TestEngine_MissFetchesAndCaches(t *testing.T) {
	st := store.NewMemoryStore()
	router := upstream.NewStub()
	e := New(testConfig(), st, router, nil, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Start(ctx)
	defer e.Stop()

	req := Request{Chain: "ethereum", TokenIn: "usdc", TokenOut: "weth", Amount: "1000", Direction: fingerprint.ExactIn}
	res, err := e.GetQuote(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Cached {
		t.Fatalf("first fetch should not be marked cached")
	}
	if len(res.Quote) == 0 {
		t.Fatalf("expected a quote payload")
	}
	if router.Calls() != 1 {
		t.Fatalf("expected exactly one upstream call, got %d", router.Calls())
	}
}

func TestEngine_FreshHitServesWithoutUpstreamCall(t *testing.T) {
	st := store.NewMemoryStore()
	router := upstream.NewStub()
	e := New(testConfig(), st, router, nil, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Start(ctx)
	defer e.Stop()

	req := Request{Chain: "ethereum", TokenIn: "usdc", TokenOut: "weth", Amount: "1000", Direction: fingerprint.ExactIn}
	if _, err := e.GetQuote(context.Background(), req); err != nil {
		t.Fatalf("unexpected error on warm-up call: %v", err)
	}

	res, err := e.GetQuote(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Cached || res.Stale {
		t.Fatalf("expected a fresh cache hit, got %+v", res)
	}
	if router.Calls() != 1 {
		t.Fatalf("expected the second read to be served from cache, upstream calls=%d", router.Calls())
	}
}

func TestEngine_StaleHitEnqueuesBackgroundRefresh(t *testing.T) {
	st := store.NewMemoryStore()
	router := upstream.NewStub()
	e := New(testConfig(), st, router, nil, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Start(ctx)
	defer e.Stop()

	req := Request{Chain: "ethereum", TokenIn: "usdc", TokenOut: "weth", Amount: "1000", Direction: fingerprint.ExactIn}
	e.AssignTier(fingerprint.PairKey(req.Chain, req.TokenIn, req.TokenOut), tier.T1)
	if _, err := e.GetQuote(context.Background(), req); err != nil {
		t.Fatalf("unexpected error on warm-up call: %v", err)
	}

	time.Sleep(30 * time.Millisecond) // past the 20ms T1 TTL, within maxStaleAge

	res, err := e.GetQuote(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Cached || !res.Stale {
		t.Fatalf("expected a stale-but-servable hit, got %+v", res)
	}

	deadline := time.After(time.Second)
	for {
		if router.Calls() >= 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("expected background refresh to call upstream again, calls=%d", router.Calls())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestEngine_UpstreamFailureWithNoFallbackReturnsError(t *testing.T) {
	st := store.NewMemoryStore()
	router := upstream.NewStub()
	router.SetFailing(true)
	e := New(testConfig(), st, router, nil, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Start(ctx)
	defer e.Stop()

	req := Request{Chain: "ethereum", TokenIn: "usdc", TokenOut: "weth", Amount: "1000", Direction: fingerprint.ExactIn}
	_, err := e.GetQuote(context.Background(), req)
	if err == nil {
		t.Fatalf("expected an error when upstream fails with no cached fallback")
	}
}

func TestEngine_ForceRefreshNeverSilentlyDropped(t *testing.T) {
	st := store.NewMemoryStore()
	router := upstream.NewStub()
	e := New(testConfig(), st, router, nil, zerolog.Nop())

	req := Request{Chain: "ethereum", TokenIn: "usdc", TokenOut: "weth", Amount: "1000", Direction: fingerprint.ExactIn}
	if err := e.ForceRefresh(req); err != nil {
		t.Fatalf("unexpected error enqueuing force refresh: %v", err)
	}
}
