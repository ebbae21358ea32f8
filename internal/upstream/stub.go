package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sawpanic/pricecache/internal/fingerprint"
)

// Stub is a deterministic, in-memory Router used by tests that need
// predictable fetch behavior; the CLI always builds an HTTPRouter.
type Stub struct {
	mu      sync.Mutex
	failing bool
	calls   int64
}

// NewStub builds a Stub that succeeds by default.
func NewStub() *Stub {
	return &Stub{}
}

// SetFailing toggles whether subsequent calls return an error.
func (s *Stub) SetFailing(failing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing = failing
}

// Calls returns the number of FetchQuote invocations observed so far.
func (s *Stub) Calls() int64 {
	return atomic.LoadInt64(&s.calls)
}

func (s *Stub) FetchQuote(_ context.Context, chain, tokenIn, tokenOut, amount string, direction fingerprint.Direction) ([]byte, error) {
	atomic.AddInt64(&s.calls, 1)

	s.mu.Lock()
	failing := s.failing
	s.mu.Unlock()

	if failing {
		return nil, fmt.Errorf("stub upstream: simulated failure for %s", fingerprint.Of(chain, tokenIn, tokenOut, amount, direction))
	}

	payload := map[string]interface{}{
		"chain":     chain,
		"tokenIn":   tokenIn,
		"tokenOut":  tokenOut,
		"amount":    amount,
		"direction": direction,
	}
	return json.Marshal(payload)
}
