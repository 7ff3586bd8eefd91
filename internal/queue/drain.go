package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"contactrelay/internal/mail"
	"contactrelay/internal/metrics"
	"contactrelay/internal/store"
)

// DrainResult summarises one drain cycle.
type DrainResult struct {
	Total     int
	Delivered int
	// Kept counts every job written back, unknown ones included.
	Kept     int
	Unknown  int
	Attempts int
	Stale    int
}

// DrainAndRetry tries every known job up to attemptBudget times back to back
// and writes back the jobs that exhausted their budget together with any
// unknown items. Jobs enqueued while the drain was running are preserved.
// Per-job failures never abort the drain.
func (q *Queue) DrainAndRetry(ctx context.Context, d Deliverer, attemptBudget int) (DrainResult, error) {
	if attemptBudget <= 0 {
		attemptBudget = DefaultAttemptBudget
	}

	result, err := q.drain(ctx, d, attemptBudget)
	metrics.DrainCycles.WithLabelValues(metrics.Result(err)).Inc()
	return result, err
}

func (q *Queue) drain(ctx context.Context, d Deliverer, attemptBudget int) (DrainResult, error) {
	var result DrainResult

	snapshot, version, err := q.load(ctx)
	if err != nil {
		return result, err
	}
	result.Total = len(snapshot)
	if len(snapshot) == 0 {
		log.Debug("queue %q is empty, nothing to drain", q.key)
		return result, nil
	}

	log.Info("draining %d queued job(s) with budget %d", len(snapshot), attemptBudget)

	var survivors []json.RawMessage
	var stale []mail.Job
	now := q.now()

	for i, raw := range snapshot {
		job := mail.DecodeJob(raw)

		switch j := job.(type) {
		case mail.UnknownJob:
			result.Unknown++
			survivors = append(survivors, raw)
			log.Warn("UnknownJobShape at index %d kept in queue: %s", i, preview(j.Raw))
			metrics.JobsKept.WithLabelValues("unknown").Inc()
			continue
		case mail.NotificationJob, mail.AutoReplyJob:
		default:
			survivors = append(survivors, raw)
			continue
		}

		attempts, err := q.attempt(ctx, d, job, attemptBudget)
		result.Attempts += attempts
		if err == nil {
			result.Delivered++
			metrics.JobsDelivered.WithLabelValues(job.Type()).Inc()
			log.Success("%s for %s delivered on attempt %d", job.Type(), mail.Recipient(job), attempts)
			continue
		}

		log.Warn("giving up on %s for %s after %d attempt(s): %v", job.Type(), mail.Recipient(job), attempts, err)
		survivors = append(survivors, raw)
		metrics.JobsKept.WithLabelValues(job.Type()).Inc()

		if queuedAt, ok := mail.QueuedAt(job); ok && q.staleAfter > 0 && now.Sub(queuedAt) > q.staleAfter {
			stale = append(stale, job)
		}
	}
	result.Kept = len(survivors)
	result.Stale = len(stale)

	if result.Delivered == 0 {
		// Nothing left the queue, so the stored list is already correct.
		q.alertStale(ctx, stale)
		return result, nil
	}

	if err := q.writeBack(ctx, version, snapshot, survivors); err != nil {
		return result, err
	}

	log.Info("drain finished: %d delivered, %d kept, %d unknown", result.Delivered, result.Kept, result.Unknown)
	q.alertStale(ctx, stale)
	return result, nil
}

func (q *Queue) attempt(ctx context.Context, d Deliverer, job mail.Job, budget int) (int, error) {
	var err error
	for n := 1; n <= budget; n++ {
		if err = d.Deliver(ctx, job); err == nil {
			return n, nil
		}
		log.Debug("attempt %d/%d for %s failed: %v", n, budget, job.Type(), err)
		if ctx.Err() != nil {
			return n, err
		}
	}
	return budget, err
}

// writeBack stores survivors. On a version conflict the fresh list is read
// again and any item that was not part of the drained snapshot is appended
// to the survivors, so concurrent enqueues are kept.
func (q *Queue) writeBack(ctx context.Context, version store.Version, snapshot, survivors []json.RawMessage) error {
	next := survivors
	for attempt := 1; attempt <= q.maxConflicts; attempt++ {
		err := q.write(ctx, version, next)
		if err == nil {
			return nil
		}
		if !errors.Is(err, store.ErrConflict) {
			return fmt.Errorf("failed to write back queue: %w", err)
		}

		log.Debug("drain write-back conflict on attempt %d, merging", attempt)
		fresh, freshVersion, err := q.load(ctx)
		if err != nil {
			return err
		}
		next = merge(survivors, snapshot, fresh)
		version = freshVersion
	}
	return fmt.Errorf("drain write-back gave up after %d attempts: %w", q.maxConflicts, store.ErrConflict)
}

// merge returns survivors followed by the items of fresh that are not
// accounted for by snapshot, matching raw items as a multiset.
func merge(survivors, snapshot, fresh []json.RawMessage) []json.RawMessage {
	seen := make(map[string]int, len(snapshot))
	for _, raw := range snapshot {
		seen[string(raw)]++
	}

	out := make([]json.RawMessage, 0, len(survivors)+len(fresh))
	out = append(out, survivors...)
	for _, raw := range fresh {
		if seen[string(raw)] > 0 {
			seen[string(raw)]--
			continue
		}
		out = append(out, raw)
	}
	return out
}

func (q *Queue) alertStale(ctx context.Context, stale []mail.Job) {
	if len(stale) == 0 {
		return
	}

	oldest := time.Time{}
	for _, job := range stale {
		if t, ok := mail.QueuedAt(job); ok && (oldest.IsZero() || t.Before(oldest)) {
			oldest = t
		}
	}

	msg := fmt.Sprintf("[MAIL-QUEUE] %d job(s) in %q still undelivered after %s (oldest queued %s)",
		len(stale), q.key, q.staleAfter, oldest.UTC().Format(time.RFC3339))
	if err := q.alerts.Notify(ctx, msg); err != nil {
		log.Warn("stale queue alert failed: %v", err)
	}
}

func preview(raw json.RawMessage) string {
	const limit = 120
	if len(raw) <= limit {
		return string(raw)
	}
	return string(raw[:limit]) + "..."
}
