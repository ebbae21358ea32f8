package httpapi

import (
	"encoding/json"
	"time"
)

// QuoteResponse is the envelope returned by GET /price/{chain}/{tokenIn}/{tokenOut}.
type QuoteResponse struct {
	Success  bool            `json:"success"`
	Data     json.RawMessage `json:"data,omitempty"`
	Metadata QuoteMetadata   `json:"metadata"`
}

// QuoteMetadata carries the freshness envelope the request path computed.
type QuoteMetadata struct {
	Cached    bool   `json:"cached"`
	Stale     bool   `json:"stale"`
	VeryStale bool   `json:"veryStale"`
	Error     string `json:"error,omitempty"`
}

// ErrorResponse is returned for any non-2xx response.
type ErrorResponse struct {
	Error     string    `json:"error"`
	Code      string    `json:"code,omitempty"`
	Message   string    `json:"message"`
	RequestID string    `json:"requestId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status     string                      `json:"status"`
	Timestamp  time.Time                   `json:"timestamp"`
	Circuits   map[string]CircuitHealth    `json:"circuits"`
	Queue      QueueHealth                 `json:"queue"`
	Cache      CacheHealth                 `json:"cache"`
	RateLimits map[string]RateLimitHealth  `json:"rateLimits,omitempty"`
}

// RateLimitHealth reports one chain's token-bucket state.
type RateLimitHealth struct {
	TokensAvailable float64       `json:"tokensAvailable"`
	Delay           time.Duration `json:"delay"`
	Throttled       bool          `json:"throttled"`
}

// CircuitHealth summarizes one chain's breaker state.
type CircuitHealth struct {
	State       string  `json:"state"`
	Requests    int64   `json:"requests"`
	Failures    int64   `json:"failures"`
	SuccessRate float64 `json:"successRate"`
}

// QueueHealth reports the refresh queue's per-band backlog.
type QueueHealth struct {
	High       int `json:"high"`
	Normal     int `json:"normal"`
	Background int `json:"background"`
}

// CacheHealth reports the cache hit ratio and tier membership counts.
type CacheHealth struct {
	HitRate    float64         `json:"hitRate"`
	TierCounts map[string]int  `json:"tierCounts"`
}

// AdminRefreshRequest is the body of POST /admin/refresh.
type AdminRefreshRequest struct {
	Chain     string `json:"chainName"`
	TokenIn   string `json:"tokenIn"`
	TokenOut  string `json:"tokenOut"`
	Amount    string `json:"amount"`
	Direction string `json:"tradeType"`
}

// AdminTierRequest is the body of POST /admin/tiers/{tier}/pairs.
type AdminTierRequest struct {
	Chain    string `json:"chainName"`
	TokenIn  string `json:"tokenIn"`
	TokenOut string `json:"tokenOut"`
}

// AdminBreakerRequest is the body of POST /admin/breakers/{chain}.
type AdminBreakerRequest struct {
	Action string `json:"action"` // "open", "close", or "reset"
}
