package upstream

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/pricecache/internal/fingerprint"
	"github.com/sawpanic/pricecache/internal/ratelimit"
)

// HTTPConfig tunes the bounded-concurrency router client.
type HTTPConfig struct {
	BaseURL        string
	MaxConcurrency int
	RequestTimeout time.Duration
	MaxRetries     int
	BackoffBase    time.Duration
	BackoffMax     time.Duration
	JitterMaxMS    int
	UserAgent      string
	RPS            float64
	Burst          int
}

// DefaultHTTPConfig matches the upstream's documented 2-5s latency
// envelope with a conservative retry budget.
func DefaultHTTPConfig(baseURL string) HTTPConfig {
	return HTTPConfig{
		BaseURL:        baseURL,
		MaxConcurrency: 32,
		RequestTimeout: 5 * time.Second,
		MaxRetries:     2,
		BackoffBase:    200 * time.Millisecond,
		BackoffMax:     2 * time.Second,
		JitterMaxMS:    50,
		UserAgent:      "pricecache/1.0",
		RPS:            20,
		Burst:          10,
	}
}

// HTTPRouter is a bounded-concurrency, rate-limited, retrying Router
// implementation backed by a real *http.Client.
type HTTPRouter struct {
	config    HTTPConfig
	client    *http.Client
	semaphore chan struct{}
	limiter   *ratelimit.Limiter
}

// NewHTTPRouter builds an HTTPRouter from config.
func NewHTTPRouter(config HTTPConfig) *HTTPRouter {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 32
	}
	return &HTTPRouter{
		config:    config,
		client:    &http.Client{Timeout: config.RequestTimeout},
		semaphore: make(chan struct{}, config.MaxConcurrency),
		limiter:   ratelimit.NewLimiter(config.RPS, config.Burst),
	}
}

// RateLimitStats reports the current token-bucket state for every chain
// that has made at least one call, for admin/health visibility into
// which chains are being throttled.
func (h *HTTPRouter) RateLimitStats() map[string]ratelimit.ChainStats {
	return h.limiter.Stats()
}

func (h *HTTPRouter) FetchQuote(ctx context.Context, chain, tokenIn, tokenOut, amount string, direction fingerprint.Direction) ([]byte, error) {
	select {
	case h.semaphore <- struct{}{}:
		defer func() { <-h.semaphore }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if err := h.limiter.Wait(ctx, chain); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := h.buildRequest(ctx, chain, tokenIn, tokenOut, amount, direction)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= h.config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := h.backoff(attempt)
			log.Debug().Int("attempt", attempt).Dur("backoff", delay).Str("chain", chain).Msg("retrying upstream fetch")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		body, retryable, err := h.do(req.Clone(ctx))
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable {
			break
		}
	}
	return nil, lastErr
}

func (h *HTTPRouter) buildRequest(ctx context.Context, chain, tokenIn, tokenOut, amount string, direction fingerprint.Direction) (*http.Request, error) {
	u, err := url.Parse(strings.TrimRight(h.config.BaseURL, "/") + "/quote")
	if err != nil {
		return nil, fmt.Errorf("invalid upstream base url: %w", err)
	}
	q := u.Query()
	q.Set("chain", chain)
	q.Set("tokenIn", tokenIn)
	q.Set("tokenOut", tokenOut)
	q.Set("amount", amount)
	q.Set("direction", string(direction))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", h.config.UserAgent)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (h *HTTPRouter) do(req *http.Request) (body []byte, retryable bool, err error) {
	if h.config.JitterMaxMS > 0 {
		time.Sleep(time.Duration(rand.Intn(h.config.JitterMaxMS)) * time.Millisecond)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("upstream request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("read upstream response: %w", err)
	}

	if isRetryableStatus(resp.StatusCode) {
		return nil, true, fmt.Errorf("upstream status %d: %s", resp.StatusCode, string(data))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("upstream status %d: %s", resp.StatusCode, string(data))
	}
	return data, false, nil
}

func (h *HTTPRouter) backoff(attempt int) time.Duration {
	d := h.config.BackoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	if d > h.config.BackoffMax {
		d = h.config.BackoffMax
	}
	jitter := time.Duration(rand.Float64() * 0.1 * float64(d))
	return d + jitter
}

func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
