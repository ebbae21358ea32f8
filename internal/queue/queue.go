package queue

import (
	"errors"
	"sync"
)

// ErrQueueFull is returned by EnqueueStrict when the target band's buffer
// is saturated; callers that must never be silently dropped (admin
// force-refresh) should surface this to their caller instead of retrying
// forever.
var ErrQueueFull = errors.New("refresh queue is full")

const bandCapacity = 4096

// Queue is a three-band priority queue of refresh Jobs. Each band is a
// buffered channel; Dequeue always drains High before Normal before
// Background. An in-flight set coalesces duplicate (fingerprint,
// priority) submissions so the common stale-while-revalidate fan-out
// produces at most one pending job per key per band.
type Queue struct {
	high       chan Job
	normal     chan Job
	background chan Job

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// New builds an empty Queue with the default per-band capacity.
func New() *Queue {
	return &Queue{
		high:       make(chan Job, bandCapacity),
		normal:     make(chan Job, bandCapacity),
		background: make(chan Job, bandCapacity),
		inFlight:   make(map[string]struct{}),
	}
}

func (q *Queue) bandFor(p Priority) chan Job {
	switch p {
	case High:
		return q.high
	case Normal:
		return q.normal
	default:
		return q.background
	}
}

// tryMarkPending reserves job's coalesce key; returns false if an
// equivalent job is already pending, in which case the caller should
// drop this submission rather than enqueue a duplicate.
func (q *Queue) tryMarkPending(j Job) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	key := j.coalesceKey()
	if _, exists := q.inFlight[key]; exists {
		return false
	}
	q.inFlight[key] = struct{}{}
	return true
}

func (q *Queue) clearPending(j Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.inFlight, j.coalesceKey())
}

// Enqueue submits a Background or Normal priority job on a best-effort
// basis: a duplicate pending job, or a full band, is silently dropped
// (background refreshes are retried on the next sweep regardless).
func (q *Queue) Enqueue(j Job) {
	if !q.tryMarkPending(j) {
		return
	}
	select {
	case q.bandFor(j.Priority) <- j:
	default:
		q.clearPending(j)
	}
}

// EnqueueStrict submits a job that must never be silently dropped (admin
// force-refresh). It still coalesces against an identical pending job —
// that is not loss, since the pending job will perform the same fetch —
// but returns ErrQueueFull if the band itself has no room.
func (q *Queue) EnqueueStrict(j Job) error {
	if !q.tryMarkPending(j) {
		return nil
	}
	select {
	case q.bandFor(j.Priority) <- j:
		return nil
	default:
		q.clearPending(j)
		return ErrQueueFull
	}
}

// Requeue resubmits a job that failed but has attempts remaining. It goes
// through the same coalescing check as Enqueue; the job's own pending
// marker was cleared when it was dequeued, so it is only dropped if an
// identical job has been submitted since.
func (q *Queue) Requeue(j Job) {
	q.Enqueue(j)
}

// Dequeue blocks until a job is available, strictly preferring High, then
// Normal, then Background, or until done is closed.
//
// A single blocking select across all three bands is not enough to
// guarantee that ordering: if a High job lands in the same instant a
// Background job is already sitting ready, Go picks among the ready
// cases at random, so Background could win even though a worker is
// free and High has a job waiting. To keep the ordering strict, every
// time the blocking select resolves to Normal or Background, High is
// re-checked before that job is actually handed out; if a High job has
// shown up in the meantime, the lower-priority job is pushed back onto
// its own band and the loop restarts from the fast path.
func (q *Queue) Dequeue(done <-chan struct{}) (Job, bool) {
	for {
		if j, ok := q.tryHigh(); ok {
			return j, true
		}

		select {
		case j := <-q.high:
			q.clearPending(j)
			return j, true
		case j := <-q.normal:
			if q.yieldToHigh(j, q.normal) {
				continue
			}
			q.clearPending(j)
			return j, true
		case j := <-q.background:
			if q.yieldToHigh(j, q.background) {
				continue
			}
			q.clearPending(j)
			return j, true
		case <-done:
			return Job{}, false
		}
	}
}

// tryHigh performs a non-blocking check of the High band only.
func (q *Queue) tryHigh() (Job, bool) {
	select {
	case j := <-q.high:
		q.clearPending(j)
		return j, true
	default:
		return Job{}, false
	}
}

// yieldToHigh re-checks the High band immediately after a lower-priority
// job j was selected from ownBand. If a High job is now available, it
// reclaims strict precedence: j is pushed back onto ownBand (there is
// always room, since j was just drained from it) so the caller's next
// loop iteration dispatches High first, and true is returned so the
// caller does not hand j out this round.
func (q *Queue) yieldToHigh(j Job, ownBand chan Job) bool {
	select {
	case hj := <-q.high:
		select {
		case q.high <- hj:
		default:
		}
		select {
		case ownBand <- j:
		default:
			// Band is momentarily over capacity; treat like any other
			// full-band drop for a best-effort job, and clear its
			// coalescing marker so a future submission isn't wedged out.
			q.clearPending(j)
		}
		return true
	default:
		return false
	}
}

// Lengths reports the current backlog per band, for metrics/health.
func (q *Queue) Lengths() (high, normal, background int) {
	return len(q.high), len(q.normal), len(q.background)
}
