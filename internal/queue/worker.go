package queue

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Fetcher performs the actual upstream call for a job, typically routed
// through a circuit breaker by the caller's implementation.
type Fetcher interface {
	Fetch(ctx context.Context, j Job) ([]byte, error)
}

// Writer resolves a job's tier and persists a successfully fetched quote.
type Writer interface {
	WriteResult(ctx context.Context, j Job, quote []byte)
}

// Recorder observes worker-pool outcomes for metrics; all methods must be
// cheap and non-blocking.
type Recorder interface {
	JobStarted()
	JobCompleted()
	JobFailed()
}

const (
	backoffBase   = 2 * time.Second
	backoffFactor = 2
)

// Pool is a fixed-size worker pool draining a Queue. Workers run
// independently of request-path load: a worker blocked on a slow upstream
// call never prevents the others from continuing to drain the queue.
type Pool struct {
	queue    *Queue
	fetcher  Fetcher
	writer   Writer
	recorder Recorder
	workers  int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPool builds a Pool with the given fixed worker concurrency.
func NewPool(q *Queue, fetcher Fetcher, writer Writer, recorder Recorder, workers int) *Pool {
	if workers <= 0 {
		workers = 10
	}
	return &Pool{
		queue:    q,
		fetcher:  fetcher,
		writer:   writer,
		recorder: recorder,
		workers:  workers,
	}
}

// Start spawns the worker goroutines. Safe to call once per Pool.
func (p *Pool) Start(ctx context.Context) {
	p.ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(i)
	}
}

// Stop signals all workers to exit and waits for them to drain their
// current job.
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

func (p *Pool) run(id int) {
	defer p.wg.Done()

	for {
		j, ok := p.queue.Dequeue(p.ctx.Done())
		if !ok {
			return
		}
		p.process(j)
	}
}

func (p *Pool) process(j Job) {
	p.recorder.JobStarted()

	quote, err := p.fetcher.Fetch(p.ctx, j)
	if err != nil {
		p.onFailure(j, err)
		return
	}

	p.writer.WriteResult(p.ctx, j, quote)
	p.recorder.JobCompleted()
}

func (p *Pool) onFailure(j Job, err error) {
	j.AttemptsRemaining--
	if j.AttemptsRemaining <= 0 {
		p.recorder.JobFailed()
		log.Warn().
			Str("fingerprint", j.Fingerprint).
			Str("priority", j.Priority.String()).
			Err(err).
			Msg("refresh job exhausted retries")
		return
	}

	attempt := defaultMaxAttempts - j.AttemptsRemaining
	delay := backoffBase
	for i := 1; i < attempt; i++ {
		delay *= backoffFactor
	}

	log.Debug().
		Str("fingerprint", j.Fingerprint).
		Int("attemptsRemaining", j.AttemptsRemaining).
		Dur("backoff", delay).
		Err(err).
		Msg("refresh job failed, retrying")

	go func(j Job, delay time.Duration) {
		select {
		case <-time.After(delay):
			p.queue.Requeue(j)
		case <-p.ctx.Done():
		}
	}(j, delay)
}
