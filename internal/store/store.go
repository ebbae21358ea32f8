// Package store implements the Quote Store contract: a volatile,
// fingerprint-keyed KV the engine treats as an external fast cache. Both
// shipped backends fail soft — a Get error is a miss, a Set error is a
// dropped best-effort write — the caller never sees a store error.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sawpanic/pricecache/internal/tier"
)

// CacheEntry is the unit of storage: an opaque quote payload plus the
// bookkeeping the freshness policy needs. InsertedAt is carried inside the
// entry so freshness is independent of the store's own TTL eviction.
type CacheEntry struct {
	Quote      json.RawMessage `json:"quote"`
	InsertedAt time.Time       `json:"insertedAt"`
	Tier       tier.Label      `json:"tier"`
}

// Store is the interface the engine depends on. Implementations must
// never return an error that should abort the request path: Get reports
// absence via the bool, and Set failures are logged internally.
type Store interface {
	Get(ctx context.Context, key string) (CacheEntry, bool)
	Set(ctx context.Context, key string, entry CacheEntry, ttl time.Duration)
	Close() error
}
