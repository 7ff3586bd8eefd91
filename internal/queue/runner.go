package queue

import (
	"context"
	"sync"
	"time"
)

// Runner binds a queue to its deliverer and attempt budget so the cron
// scheduler, the asynq task, the HTTP trigger and the CLI all drain the same
// way. Drains started through one Runner never overlap.
type Runner struct {
	mu        sync.Mutex
	queue     *Queue
	deliverer Deliverer
	budget    int
	timeout   time.Duration
}

// NewRunner returns a Runner. A zero timeout leaves the caller's deadline alone.
func NewRunner(q *Queue, d Deliverer, budget int, timeout time.Duration) *Runner {
	return &Runner{queue: q, deliverer: d, budget: budget, timeout: timeout}
}

// Run drains the queue once, waiting for a drain already in progress.
func (r *Runner) Run(ctx context.Context) (DrainResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	result, err := r.queue.DrainAndRetry(ctx, r.deliverer, r.budget)
	if err != nil {
		return result, log.Error("drain failed after %s: %v", time.Since(start).Round(time.Millisecond), err)
	}
	if result.Total > 0 {
		log.Success("drain done in %s: %d delivered, %d kept (%d unknown) after %d attempt(s)",
			time.Since(start).Round(time.Millisecond), result.Delivered, result.Kept, result.Unknown, result.Attempts)
	}
	return result, nil
}

func (r *Runner) Queue() *Queue {
	return r.queue
}
