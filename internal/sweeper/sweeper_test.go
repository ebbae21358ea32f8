package sweeper

import (
	"context"
	"testing"
	"time"

	"github.com/sawpanic/pricecache/internal/queue"
	"github.com/sawpanic/pricecache/internal/tier"
)

func TestSweeper_DispatchesWithinTwoPeriods(t *testing.T) {
	registry := tier.NewRegistry()
	registry.Assign("ethereum:usdc:weth", tier.T1)

	policy := tier.DefaultPolicy()
	policy.Configs[tier.T1] = tier.Config{TTL: 10 * time.Millisecond, RefreshPeriod: 20 * time.Millisecond}

	q := queue.New()
	s := New(registry, policy, q)

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)

	stop := make(chan struct{})
	jobCh := make(chan queue.Job, 1)
	go func() {
		if j, ok := q.Dequeue(stop); ok {
			jobCh <- j
		}
	}()

	select {
	case j := <-jobCh:
		if j.Priority != queue.Background {
			t.Fatalf("expected Background priority, got %s", j.Priority)
		}
		if j.PairKey != "ethereum:usdc:weth" {
			t.Fatalf("expected pair key ethereum:usdc:weth, got %s", j.PairKey)
		}
	// Two sweep periods, times 3 as slack for goroutine scheduling.
	case <-time.After(2 * policy.Configs[tier.T1].RefreshPeriod * 3):
		t.Fatalf("expected at least one background job within two sweep periods (with 3x scheduling slack)")
	}

	close(stop)
	cancel()
	s.Wait()
}
