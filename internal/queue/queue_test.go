package queue

import (
	"testing"
	"time"
)

func TestQueue_PriorityOrder(t *testing.T) {
	q := New()

	bg := NewJob("ethereum", "usdc", "weth", "1000", "exactin", Background)
	high := NewJob("polygon", "usdc", "weth", "1000", "exactin", High)

	q.Enqueue(bg)
	q.Enqueue(high)

	done := make(chan struct{})
	first, ok := q.Dequeue(done)
	if !ok {
		t.Fatalf("expected a job")
	}
	if first.Priority != High {
		t.Fatalf("expected High job dispatched first, got %s", first.Priority)
	}

	second, ok := q.Dequeue(done)
	if !ok {
		t.Fatalf("expected a second job")
	}
	if second.Priority != Background {
		t.Fatalf("expected Background job dispatched second, got %s", second.Priority)
	}
}

func TestQueue_HighPreemptsPendingBackgroundUnderRace(t *testing.T) {
	// Regression coverage for the window Dequeue's fast path alone cannot
	// see: a Background job is already sitting in its band (ready) at the
	// same moment a High job becomes ready too, so the blocking select
	// could otherwise pick either at random. yieldToHigh re-checks High
	// immediately after any Normal/Background pick is made, so High must
	// still win every time a true race lands both in the same instant.
	for i := 0; i < 200; i++ {
		q := New()
		bg := NewJob("ethereum", "usdc", "weth", "1000", "exactin", Background)
		q.Enqueue(bg)

		highEnqueued := make(chan struct{})
		high := NewJob("polygon", "usdc", "weth", "1000", "exactin", High)
		go func() {
			q.Enqueue(high)
			close(highEnqueued)
		}()
		<-highEnqueued // High is guaranteed to be sitting in its band now

		done := make(chan struct{})
		first, ok := q.Dequeue(done)
		if !ok {
			t.Fatalf("iteration %d: expected a job", i)
		}
		if first.Priority != High {
			t.Fatalf("iteration %d: expected High job dispatched first, got %s", i, first.Priority)
		}

		second, ok := q.Dequeue(done)
		if !ok || second.Priority != Background {
			t.Fatalf("iteration %d: expected Background job dispatched second", i)
		}
	}
}

func TestQueue_CoalescesDuplicates(t *testing.T) {
	q := New()

	j := NewJob("ethereum", "usdc", "weth", "1000", "exactin", Background)
	q.Enqueue(j)
	q.Enqueue(j) // duplicate, same fingerprint+priority, should be dropped

	done := make(chan struct{})
	_, ok := q.Dequeue(done)
	if !ok {
		t.Fatalf("expected one job")
	}

	select {
	case <-q.background:
		t.Fatalf("expected no second job pending after coalescing")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestQueue_EnqueueStrictNeverDropsSilently(t *testing.T) {
	q := New()
	// Fill the high band to capacity.
	for i := 0; i < bandCapacity; i++ {
		j := NewJob("ethereum", "usdc", "weth", "amt", "exactin", High)
		j.Fingerprint = j.Fingerprint + string(rune(i))
		if err := q.EnqueueStrict(j); err != nil {
			t.Fatalf("unexpected error filling queue at %d: %v", i, err)
		}
	}

	overflow := NewJob("ethereum", "dai", "weth", "amt", "exactin", High)
	if err := q.EnqueueStrict(overflow); err != ErrQueueFull {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
}
