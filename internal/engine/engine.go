// Package engine is the composition root: a single constructed Engine
// value owns the Quote Store, Tier Registry, Refresh Queue, Circuit
// Breaker Manager and Metrics Registry, and implements the read-through
// request path that composes them. No package-level mutable state.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/sawpanic/pricecache/internal/circuit"
	"github.com/sawpanic/pricecache/internal/enginerr"
	"github.com/sawpanic/pricecache/internal/fingerprint"
	"github.com/sawpanic/pricecache/internal/metrics"
	"github.com/sawpanic/pricecache/internal/probe"
	"github.com/sawpanic/pricecache/internal/queue"
	"github.com/sawpanic/pricecache/internal/ratelimit"
	"github.com/sawpanic/pricecache/internal/store"
	"github.com/sawpanic/pricecache/internal/sweeper"
	"github.com/sawpanic/pricecache/internal/tier"
	"github.com/sawpanic/pricecache/internal/upstream"
)

// Request identifies a single quote read.
type Request struct {
	Chain     string
	TokenIn   string
	TokenOut  string
	Amount    string
	Direction fingerprint.Direction
}

// Result is the request path's outcome, carrying the core's own envelope
// fields alongside the opaque quote payload.
type Result struct {
	Quote     []byte
	Cached    bool
	Stale     bool
	VeryStale bool
	Error     string
}

// Config bundles the tunables an operator sets at startup.
type Config struct {
	Policy         tier.Policy
	Workers        int
	BreakerConfig  circuit.Config
	WarmupPairs    []WarmupPair
}

// WarmupPair is one entry of the preconfigured hot-pair list assigned and
// refreshed before first client traffic.
type WarmupPair struct {
	Chain    string
	TokenIn  string
	TokenOut string
	Tier     tier.Label
}

// Engine owns every subsystem explicitly and is passed by reference to
// the HTTP layer; it holds no package-level state of its own.
type Engine struct {
	policy   tier.Policy
	store    store.Store
	registry *tier.Registry
	queue    *queue.Queue
	pool     *queue.Pool
	sweeper  *sweeper.Sweeper
	breakers *circuit.Manager
	probes   *probe.Manager
	router   upstream.Router
	fetcher  *upstream.BreakerFetcher
	metrics  *metrics.Registry
	logger   zerolog.Logger

	warmupPairs []WarmupPair

	cancel context.CancelFunc
}

// New wires every subsystem together. router is typically an
// upstream.HTTPRouter in production or an upstream.Stub in tests.
// promReg may be nil to skip Prometheus mirroring (tests).
func New(cfg Config, st store.Store, router upstream.Router, promReg *prometheus.Registry, logger zerolog.Logger) *Engine {
	registry := tier.NewRegistry()
	q := queue.New()
	breakers := circuit.NewManager(cfg.BreakerConfig)
	metricsReg := metrics.NewRegistry(promReg)

	fetcher := upstream.NewBreakerFetcher(router, breakers, st, registry, cfg.Policy)
	pool := queue.NewPool(q, fetcher, fetcher, metricsReg, cfg.Workers)
	sw := sweeper.New(registry, cfg.Policy, q)

	return &Engine{
		policy:   cfg.Policy,
		store:    st,
		registry: registry,
		queue:    q,
		pool:     pool,
		sweeper:  sw,
		breakers: breakers,
		probes:   probe.NewManager(),
		router:   router,
		fetcher:  fetcher,
		metrics:  metricsReg,
		logger:   logger,

		warmupPairs: cfg.WarmupPairs,
	}
}

// Start spawns the worker pool and tier sweeper. Background jobs run
// against the Engine's own context, independent of any single request's
// lifetime, and are not cancelled when their enqueuer goes away.
func (e *Engine) Start(ctx context.Context) {
	bgCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.pool.Start(bgCtx)
	e.sweeper.Start(bgCtx)
	e.warmup(bgCtx)
}

// Stop signals the worker pool and sweeper to drain and exit.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.pool.Stop()
	e.sweeper.Wait()
}

// Metrics exposes the Engine's metrics registry for the HTTP surface.
func (e *Engine) Metrics() *metrics.Registry { return e.metrics }

// Registry exposes the tier registry for admin endpoints.
func (e *Engine) Registry() *tier.Registry { return e.registry }

// Breakers exposes the circuit breaker manager for health/admin endpoints.
func (e *Engine) Breakers() *circuit.Manager { return e.breakers }

// QueueLengths reports the current per-band refresh queue backlog.
func (e *Engine) QueueLengths() (high, normal, background int) {
	return e.queue.Lengths()
}

// Probes exposes the gobreaker-backed probe manager for admin endpoints.
func (e *Engine) Probes() *probe.Manager { return e.probes }

// rateLimited is implemented by router backends that pace calls per
// chain; the Stub used in tests does not, so RateLimitStats degrades to
// an empty map rather than requiring every Router to implement it.
type rateLimited interface {
	RateLimitStats() map[string]ratelimit.ChainStats
}

// RateLimitStats reports per-chain rate-limit state for the health
// endpoint, when the configured router paces calls per chain.
func (e *Engine) RateLimitStats() map[string]ratelimit.ChainStats {
	if rl, ok := e.router.(rateLimited); ok {
		return rl.RateLimitStats()
	}
	return nil
}

// Probe runs a cheap canonical reachability check for chain through the
// gobreaker-backed probe manager, independent of the request path's own
// per-call breaker.
func (e *Engine) Probe(ctx context.Context, chain string) error {
	return e.probes.Probe(ctx, chain, func(ctx context.Context) error {
		_, err := e.router.FetchQuote(ctx, chain, "probe", "probe", "1000", fingerprint.ExactIn)
		return err
	})
}

// AssignTier assigns pairKey to tier, making it eligible for scheduled
// refresh from the next sweep.
func (e *Engine) AssignTier(pairKey string, t tier.Label) {
	e.registry.Assign(pairKey, t)
}

// ForceRefresh enqueues a High-priority refresh for req, returning
// queue.ErrQueueFull if the High band is saturated — a force-refresh
// must never be silently dropped.
func (e *Engine) ForceRefresh(req Request) error {
	j := queue.NewJob(req.Chain, req.TokenIn, req.TokenOut, req.Amount, req.Direction, queue.High)
	return e.queue.EnqueueStrict(j)
}

func (e *Engine) warmup(ctx context.Context) {
	for _, wp := range e.cfg().WarmupPairs {
		pairKey := fingerprint.PairKey(wp.Chain, wp.TokenIn, wp.TokenOut)
		e.registry.Assign(pairKey, wp.Tier)

		j := queue.NewJob(wp.Chain, wp.TokenIn, wp.TokenOut, "1000", fingerprint.ExactIn, queue.High)
		if err := e.queue.EnqueueStrict(j); err != nil {
			e.logger.Warn().Str("pairKey", pairKey).Err(err).Msg("warm-up refresh not enqueued, continuing")
		}
	}
}

// cfg reconstructs the view of configuration that warmup needs (policy and
// warm-up pairs); kept as a method so future config fields don't widen
// Engine's surface.
func (e *Engine) cfg() Config {
	return Config{Policy: e.policy, WarmupPairs: e.warmupPairs}
}

// GetQuote executes the read-through request path described by the
// core's Request Path component: lookup, freshness decision, and
// (serve | serve+refresh | fetch-now | error-with-fallback).
func (e *Engine) GetQuote(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	key := fingerprint.Of(req.Chain, req.TokenIn, req.TokenOut, req.Amount, req.Direction)
	pairKey := fingerprint.PairKey(req.Chain, req.TokenIn, req.TokenOut)

	entry, found := e.store.Get(ctx, key)
	now := time.Now()

	if found {
		fe := tier.Entry{InsertedAt: entry.InsertedAt, Tier: entry.Tier}

		if e.policy.IsFresh(fe, now) {
			e.metrics.RecordOutcome("fresh", time.Since(start))
			return Result{Quote: entry.Quote, Cached: true}, nil
		}

		if e.policy.IsServableStale(fe, now) {
			j := queue.NewJob(req.Chain, req.TokenIn, req.TokenOut, req.Amount, req.Direction, queue.Background)
			e.queue.Enqueue(j)
			e.metrics.RecordOutcome("stale", time.Since(start))
			return Result{Quote: entry.Quote, Cached: true, Stale: true}, nil
		}
	}

	quote, err := e.fetcher.FetchDirect(ctx, req.Chain, req.TokenIn, req.TokenOut, req.Amount, req.Direction)
	if err == nil {
		e.store.Set(ctx, key, store.CacheEntry{
			Quote:      quote,
			InsertedAt: time.Now(),
			Tier:       e.registry.TierOf(pairKey),
		}, e.ttlFor(pairKey))
		e.metrics.RecordOutcome("miss", time.Since(start))
		return Result{Quote: quote}, nil
	}

	e.metrics.RecordError()
	if errors.Is(err, circuit.ErrCircuitOpen) {
		e.metrics.RecordCircuitOpen(req.Chain)
	}

	// Fallback: re-read the store (second and final read this request
	// may perform) for a very-stale entry to serve instead of an error.
	fallback, ok := e.store.Get(ctx, key)
	if ok {
		e.metrics.RecordOutcome("fallback", time.Since(start))
		return Result{
			Quote:     fallback.Quote,
			Cached:    true,
			VeryStale: true,
			Error:     err.Error(),
		}, nil
	}

	e.metrics.RecordOutcome("error", time.Since(start))
	if errors.Is(err, circuit.ErrCircuitOpen) {
		return Result{}, enginerr.ErrCircuitOpen
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, circuit.ErrRequestTimeout) {
		return Result{}, enginerr.ErrTimeout
	}
	return Result{}, enginerr.ErrUpstreamFailure
}

// ttlFor is the store-side TTL for a write: the global max-stale age, not
// the tier TTL, so an entry that is past its tier TTL is still in the
// store to be served stale. Freshness is decided from InsertedAt alone.
func (e *Engine) ttlFor(pairKey string) time.Duration {
	return e.policy.MaxStaleAge
}
