// Package upstream implements the router client the engine fetches
// quotes through: an opaque FetchQuote(chain, tokenIn, tokenOut, amount,
// direction) -> quote bytes | error with 2-5s latency and a bounded
// failure rate, wrapped in a circuit breaker before it ever reaches the
// refresh queue or the request path's synchronous fallback.
package upstream

import (
	"context"

	"github.com/sawpanic/pricecache/internal/fingerprint"
)

// Router is the upstream quote source contract. The returned bytes are
// treated as an opaque JSON payload; the engine never inspects them.
type Router interface {
	FetchQuote(ctx context.Context, chain, tokenIn, tokenOut, amount string, direction fingerprint.Direction) ([]byte, error)
}
