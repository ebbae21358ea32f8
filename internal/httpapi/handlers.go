package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/sawpanic/pricecache/internal/enginerr"
	"github.com/sawpanic/pricecache/internal/engine"
	"github.com/sawpanic/pricecache/internal/fingerprint"
	"github.com/sawpanic/pricecache/internal/tier"
)

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, `{"error":"json_encoding_failed"}`, http.StatusInternalServerError)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	requestID, _ := r.Context().Value(requestIDKey).(string)
	s.writeJSON(w, status, ErrorResponse{
		Error:     http.StatusText(status),
		Code:      code,
		Message:   message,
		RequestID: requestID,
		Timestamp: time.Now().UTC(),
	})
}

// GetPrice handles GET /price/{chain}/{tokenIn}/{tokenOut}.
func (s *Server) GetPrice(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	q := r.URL.Query()

	amount := q.Get("amount")
	if amount == "" {
		amount = "1000"
	}
	direction, err := fingerprint.ParseDirection(q.Get("tradeType"))
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, "bad_direction", err.Error())
		return
	}

	req := engine.Request{
		Chain:     vars["chain"],
		TokenIn:   vars["tokenIn"],
		TokenOut:  vars["tokenOut"],
		Amount:    amount,
		Direction: direction,
	}

	res, err := s.engine.GetQuote(r.Context(), req)
	if err != nil {
		s.writeErrFromEngine(w, r, err)
		return
	}

	cacheControl := "max-age=30"
	switch {
	case res.VeryStale:
		cacheControl = "max-age=1"
	case res.Stale:
		cacheControl = "max-age=5"
	}
	w.Header().Set("Cache-Control", cacheControl)

	s.writeJSON(w, http.StatusOK, QuoteResponse{
		Success: true,
		Data:    res.Quote,
		Metadata: QuoteMetadata{
			Cached:    res.Cached,
			Stale:     res.Stale,
			VeryStale: res.VeryStale,
			Error:     res.Error,
		},
	})
}

func (s *Server) writeErrFromEngine(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, enginerr.ErrCircuitOpen):
		s.writeError(w, r, http.StatusServiceUnavailable, "circuit_open", err.Error())
	case errors.Is(err, enginerr.ErrTimeout):
		s.writeError(w, r, http.StatusGatewayTimeout, "upstream_timeout", err.Error())
	case errors.Is(err, enginerr.ErrBadRequest):
		s.writeError(w, r, http.StatusBadRequest, "bad_request", err.Error())
	default:
		s.writeError(w, r, http.StatusBadGateway, "upstream_failure", err.Error())
	}
}

// Health handles GET /health.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	breakerStats := s.engine.Breakers().Stats()
	circuits := make(map[string]CircuitHealth, len(breakerStats))
	for chain, stat := range breakerStats {
		circuits[chain] = CircuitHealth{
			State:       stat.State.String(),
			Requests:    stat.TotalRequests,
			Failures:    stat.TotalFailures,
			SuccessRate: stat.SuccessRate,
		}
	}

	high, normal, background := s.engine.QueueLengths()
	registryStats := s.engine.Registry().Stats()
	tierCounts := make(map[string]int, len(registryStats.Counts))
	for label, count := range registryStats.Counts {
		tierCounts[string(label)] = count
	}

	snap := s.engine.Metrics().Snapshot()

	status := "healthy"
	if !s.engine.Breakers().IsHealthy() {
		status = "degraded"
	}

	var rateLimits map[string]RateLimitHealth
	if stats := s.engine.RateLimitStats(); len(stats) > 0 {
		rateLimits = make(map[string]RateLimitHealth, len(stats))
		for chain, stat := range stats {
			rateLimits[chain] = RateLimitHealth{
				TokensAvailable: stat.TokensAvailable,
				Delay:           stat.Delay,
				Throttled:       stat.IsThrottled(),
			}
		}
	}

	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:     status,
		Timestamp:  time.Now().UTC(),
		Circuits:   circuits,
		Queue:      QueueHealth{High: high, Normal: normal, Background: background},
		Cache:      CacheHealth{HitRate: snap.HitRate, TierCounts: tierCounts},
		RateLimits: rateLimits,
	})
}

// MetricsJSON handles GET /metrics.json, a plain JSON snapshot for
// dashboards that don't speak Prometheus exposition format.
func (s *Server) MetricsJSON(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.Metrics().Snapshot())
}

// AdminRefresh handles POST /admin/refresh: force a High-priority refresh.
func (s *Server) AdminRefresh(w http.ResponseWriter, r *http.Request) {
	var body AdminRefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	direction, err := fingerprint.ParseDirection(body.Direction)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, "bad_direction", err.Error())
		return
	}
	amount := body.Amount
	if amount == "" {
		amount = "1000"
	}

	req := engine.Request{
		Chain:     body.Chain,
		TokenIn:   body.TokenIn,
		TokenOut:  body.TokenOut,
		Amount:    amount,
		Direction: direction,
	}
	if err := s.engine.ForceRefresh(req); err != nil {
		s.writeError(w, r, http.StatusServiceUnavailable, "queue_full", err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]bool{"enqueued": true})
}

// AdminAssignTier handles POST /admin/tiers/{tier}/pairs.
func (s *Server) AdminAssignTier(w http.ResponseWriter, r *http.Request) {
	label := tier.Label(mux.Vars(r)["tier"])
	if !validTierLabel(label) {
		s.writeError(w, r, http.StatusBadRequest, "bad_tier", "unknown tier label")
		return
	}

	var body AdminTierRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	pairKey := fingerprint.PairKey(body.Chain, body.TokenIn, body.TokenOut)
	s.engine.AssignTier(pairKey, label)
	s.writeJSON(w, http.StatusOK, map[string]string{"pairKey": pairKey, "tier": string(label)})
}

func validTierLabel(l tier.Label) bool {
	switch l {
	case tier.T1, tier.T2, tier.T3, tier.T4:
		return true
	default:
		return false
	}
}

// AdminProbe handles POST /admin/probe/{chain}: a one-off reachability
// check through the secondary gobreaker-backed probe, independent of the
// request path's own circuit breaker.
func (s *Server) AdminProbe(w http.ResponseWriter, r *http.Request) {
	chain := mux.Vars(r)["chain"]
	err := s.engine.Probe(r.Context(), chain)
	resp := map[string]string{"chain": chain, "state": s.engine.Probes().States()[chain]}
	if err != nil {
		resp["error"] = err.Error()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// AdminBreaker handles POST /admin/breakers/{chain}: lets an operator pull
// a misbehaving chain's breaker open, force it closed, or reset its
// counters, independent of the failure thresholds that would otherwise
// decide it.
func (s *Server) AdminBreaker(w http.ResponseWriter, r *http.Request) {
	chain := mux.Vars(r)["chain"]

	var body AdminBreakerRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	switch body.Action {
	case "open":
		s.engine.Breakers().ForceOpen(chain)
	case "close":
		s.engine.Breakers().ForceClose(chain)
	case "reset":
		if b, ok := s.engine.Breakers().GetBreaker(chain); ok {
			b.Reset()
		}
	default:
		s.writeError(w, r, http.StatusBadRequest, "bad_action", "action must be open, close, or reset")
		return
	}

	b, _ := s.engine.Breakers().GetBreaker(chain)
	state := "unknown"
	if b != nil {
		state = b.State().String()
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"chain": chain, "state": state})
}

// NotFound handles unmatched routes.
func (s *Server) NotFound(w http.ResponseWriter, r *http.Request) {
	s.writeError(w, r, http.StatusNotFound, "endpoint_not_found", "the requested endpoint does not exist")
}

