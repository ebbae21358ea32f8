// Package enginerr defines the error kinds the request path classifies
// responses by, so handlers can map them to the documented HTTP status
// without string-matching.
package enginerr

import "errors"

var (
	// ErrUpstreamFailure wraps a FetchQuote error with no fallback entry
	// available.
	ErrUpstreamFailure = errors.New("upstream fetch failed")
	// ErrCircuitOpen is surfaced when the breaker is open and no fallback
	// entry is servable.
	ErrCircuitOpen = errors.New("circuit breaker open")
	// ErrBadRequest marks a malformed request parameter.
	ErrBadRequest = errors.New("bad request")
	// ErrTimeout marks a deadline exceeded while waiting on upstream.
	ErrTimeout = errors.New("request deadline exceeded")
)
