package upstream

import (
	"context"
	"time"

	"github.com/sawpanic/pricecache/internal/circuit"
	"github.com/sawpanic/pricecache/internal/fingerprint"
	"github.com/sawpanic/pricecache/internal/queue"
	"github.com/sawpanic/pricecache/internal/store"
	"github.com/sawpanic/pricecache/internal/tier"
)

// BreakerFetcher adapts a Router into a queue.Fetcher, routing every call
// through the per-chain circuit breaker Manager before it ever reaches
// the network. It also implements queue.Writer so a single value can
// drive the worker pool's fetch-then-store step.
type BreakerFetcher struct {
	router   Router
	breakers *circuit.Manager
	store    store.Store
	registry *tier.Registry
	policy   tier.Policy
}

// NewBreakerFetcher builds a BreakerFetcher.
func NewBreakerFetcher(router Router, breakers *circuit.Manager, st store.Store, registry *tier.Registry, policy tier.Policy) *BreakerFetcher {
	return &BreakerFetcher{router: router, breakers: breakers, store: st, registry: registry, policy: policy}
}

// Fetch satisfies queue.Fetcher: it calls the upstream router through the
// breaker for j.Chain, returning CircuitOpen or the upstream error as-is.
func (f *BreakerFetcher) Fetch(ctx context.Context, j queue.Job) ([]byte, error) {
	var quote []byte
	err := f.breakers.Call(ctx, j.Chain, func(ctx context.Context) error {
		q, err := f.router.FetchQuote(ctx, j.Chain, j.TokenIn, j.TokenOut, j.Amount, j.Direction)
		if err != nil {
			return err
		}
		quote = q
		return nil
	})
	return quote, err
}

// FetchDirect performs a single fetch for the synchronous request-path
// fallback (§4.5 step 5), bypassing the job queue entirely but still
// honoring the circuit breaker.
func (f *BreakerFetcher) FetchDirect(ctx context.Context, chain, tokenIn, tokenOut, amount string, direction fingerprint.Direction) ([]byte, error) {
	var quote []byte
	err := f.breakers.Call(ctx, chain, func(ctx context.Context) error {
		q, err := f.router.FetchQuote(ctx, chain, tokenIn, tokenOut, amount, direction)
		if err != nil {
			return err
		}
		quote = q
		return nil
	})
	return quote, err
}

// WriteResult satisfies queue.Writer: it resolves j's tier and writes the
// fetched quote to the store tagged with that tier. The store-side TTL is
// the global max-stale age, so the entry stays servable stale after its
// tier TTL has passed.
func (f *BreakerFetcher) WriteResult(ctx context.Context, j queue.Job, quote []byte) {
	t := f.registry.TierOf(j.PairKey)

	f.store.Set(ctx, j.Fingerprint, store.CacheEntry{
		Quote:      quote,
		InsertedAt: time.Now(),
		Tier:       t,
	}, f.policy.MaxStaleAge)
}
