// Package sweeper spawns one recurring timer per refreshable tier,
// enqueueing a Background refresh for every member pair on each tick.
package sweeper

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/pricecache/internal/fingerprint"
	"github.com/sawpanic/pricecache/internal/queue"
	"github.com/sawpanic/pricecache/internal/tier"
)

// canonicalAmount and canonicalDirection are the conventional standard
// trade used for proactive warmth across every swept pair, matching the
// amount common client requests use to maximize hit rate.
const (
	canonicalAmount    = "1000"
	canonicalDirection = fingerprint.ExactIn
)

// Sweeper owns one ticker per refreshable tier.
type Sweeper struct {
	registry *tier.Registry
	policy   tier.Policy
	queue    *queue.Queue

	wg sync.WaitGroup
}

// New builds a Sweeper; call Start to spawn its timers.
func New(registry *tier.Registry, policy tier.Policy, q *queue.Queue) *Sweeper {
	return &Sweeper{registry: registry, policy: policy, queue: q}
}

// Start spawns one goroutine per refreshable tier. Each tick is
// independent of the others: a slow tick never delays a subsequent tick
// of the same tier because the enqueue itself is non-blocking, nor does
// it delay other tiers' timers, which run on their own goroutines.
func (s *Sweeper) Start(ctx context.Context) {
	for _, label := range s.policy.RefreshableTiers() {
		cfg := s.policy.Configs[label]
		s.wg.Add(1)
		go s.run(ctx, label, cfg.RefreshPeriod)
	}
}

// Wait blocks until every tier timer has stopped (after ctx is done).
func (s *Sweeper) Wait() {
	s.wg.Wait()
}

func (s *Sweeper) run(ctx context.Context, label tier.Label, period time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(label)
		}
	}
}

func (s *Sweeper) tick(label tier.Label) {
	members := s.registry.MembersOf(label)
	for _, pairKey := range members {
		chain, tokenIn, tokenOut, ok := splitPairKey(pairKey)
		if !ok {
			log.Warn().Str("pairKey", pairKey).Msg("sweeper: malformed pair key, skipping")
			continue
		}
		j := queue.NewJob(chain, tokenIn, tokenOut, canonicalAmount, canonicalDirection, queue.Background)
		j.PairKey = pairKey
		s.queue.Enqueue(j)
	}
}

func splitPairKey(pairKey string) (chain, tokenIn, tokenOut string, ok bool) {
	parts := make([]string, 0, 3)
	start := 0
	for i := 0; i < len(pairKey); i++ {
		if pairKey[i] == ':' {
			parts = append(parts, pairKey[start:i])
			start = i + 1
		}
	}
	parts = append(parts, pairKey[start:])
	if len(parts) != 3 {
		return "", "", "", false
	}
	return parts[0], parts[1], parts[2], true
}
