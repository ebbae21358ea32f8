package queue

import (
	"time"

	"github.com/sawpanic/pricecache/internal/fingerprint"
)

// Priority orders jobs within the refresh queue: High strictly precedes
// Normal, which strictly precedes Background, whenever a worker is free
// to choose among them.
type Priority int

const (
	Background Priority = iota
	Normal
	High
)

func (p Priority) String() string {
	switch p {
	case High:
		return "high"
	case Normal:
		return "normal"
	default:
		return "background"
	}
}

// Job is one unit of refresh work: fetch the quote for a pair at a given
// amount/direction and write it back to the store.
type Job struct {
	Fingerprint       string
	Chain             string
	TokenIn           string
	TokenOut          string
	PairKey           string
	Amount            string
	Direction         fingerprint.Direction
	Priority          Priority
	AttemptsRemaining int
	SubmittedAt       time.Time
}

const defaultMaxAttempts = 3

// NewJob builds a Job with the default retry budget.
func NewJob(chain, tokenIn, tokenOut, amount string, direction fingerprint.Direction, priority Priority) Job {
	return Job{
		Fingerprint:       fingerprint.Of(chain, tokenIn, tokenOut, amount, direction),
		Chain:             chain,
		TokenIn:           tokenIn,
		TokenOut:          tokenOut,
		PairKey:           fingerprint.PairKey(chain, tokenIn, tokenOut),
		Amount:            amount,
		Direction:         direction,
		Priority:          priority,
		AttemptsRemaining: defaultMaxAttempts,
		SubmittedAt:       time.Now(),
	}
}

// coalesceKey identifies jobs that refresh the same (fingerprint, priority)
// pair — at most one such job needs to be pending at a time.
func (j Job) coalesceKey() string {
	return j.Priority.String() + "|" + j.Fingerprint
}
