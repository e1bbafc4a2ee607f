// Package ratelimit gates all outbound requests behind a sliding-window
// limiter with a priority queue and exponential backoff on throttling.
package ratelimit

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"
)

// Priority controls queue placement. High-priority entries are inserted at
// the front of the queue; normal entries append.
type Priority int

const (
	Normal Priority = iota
	High
)

// Task is a unit of work executed under the limiter.
type Task func(ctx context.Context) (any, error)

// ErrQueueFull is returned when the pending queue is already at capacity.
// Overflow fails fast rather than growing without bound.
var ErrQueueFull = errors.New("ratelimit: queue full")

// ErrRateLimited marks a task failure as a throttling signal (HTTP 429 or
// equivalent). Tasks wrap it so the limiter knows to requeue and back off.
var ErrRateLimited = errors.New("rate limited")

// IsRateLimited reports whether err carries the throttling marker.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

type outcome struct {
	value any
	err   error
}

type entry struct {
	ctx      context.Context
	task     Task
	done     chan outcome
	priority Priority
	enqueued time.Time
}

// Limiter allows at most `limit` task starts per sliding `window` across the
// whole process. A single drain loop serializes execution; queue mutations
// all happen under mu.
type Limiter struct {
	limit    int
	window   time.Duration
	maxQueue int
	spacing  time.Duration // fixed pause between consecutive task starts
	backoff  time.Duration // cap for the 429 backoff

	mu       sync.Mutex
	queue    []*entry
	starts   []time.Time
	attempts uint
	draining bool
}

// New creates a limiter allowing `limit` starts per `window`.
func New(limit int, window time.Duration) *Limiter {
	return &Limiter{
		limit:    limit,
		window:   window,
		maxQueue: 100,
		spacing:  100 * time.Millisecond,
		backoff:  60 * time.Second,
	}
}

// Execute enqueues task and blocks until it has run or ctx expires. Failures
// other than throttling propagate directly to the caller; a throttled task is
// requeued at the front and retried after backoff.
func (l *Limiter) Execute(ctx context.Context, task Task, priority Priority) (any, error) {
	e := &entry{
		ctx:      ctx,
		task:     task,
		done:     make(chan outcome, 1),
		priority: priority,
		enqueued: time.Now(),
	}

	l.mu.Lock()
	if len(l.queue) > l.maxQueue {
		l.mu.Unlock()
		return nil, ErrQueueFull
	}
	if priority == High {
		l.queue = append([]*entry{e}, l.queue...)
	} else {
		l.queue = append(l.queue, e)
	}
	if !l.draining {
		l.draining = true
		go l.drain()
	}
	l.mu.Unlock()

	select {
	case out := <-e.done:
		return out.value, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// drain is the single-flight processing loop. It prunes window-expired start
// timestamps, sleeps out the window when saturated (plus jitter so concurrent
// retries don't synchronize), then runs the head of the queue.
func (l *Limiter) drain() {
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			l.draining = false
			l.mu.Unlock()
			return
		}

		now := time.Now()
		l.prune(now)
		if len(l.starts) >= l.limit {
			wait := l.starts[0].Add(l.window).Sub(now) + l.jitter()
			l.mu.Unlock()
			time.Sleep(wait)
			continue
		}

		e := l.queue[0]
		l.queue = l.queue[1:]
		if e.ctx.Err() != nil {
			// Abandoned entries must not consume window budget.
			l.mu.Unlock()
			e.done <- outcome{err: e.ctx.Err()}
			continue
		}
		l.starts = append(l.starts, now)
		l.mu.Unlock()

		value, err := e.task(e.ctx)
		if IsRateLimited(err) {
			l.mu.Lock()
			l.queue = append([]*entry{e}, l.queue...)
			l.attempts++
			delay := l.window << l.attempts
			if delay > l.backoff {
				delay = l.backoff
			}
			l.mu.Unlock()
			time.Sleep(delay)
			continue
		}

		l.mu.Lock()
		l.attempts = 0
		l.mu.Unlock()

		e.done <- outcome{value: value, err: err}
		time.Sleep(l.spacing)
	}
}

// prune drops start timestamps that have left the sliding window. Callers
// hold mu.
func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.starts) && l.starts[i].Before(cutoff) {
		i++
	}
	l.starts = l.starts[i:]
}

func (l *Limiter) jitter() time.Duration {
	return time.Duration(rand.Int63n(int64(500 * time.Millisecond)))
}
