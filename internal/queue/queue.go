// Package queue keeps pending mail jobs as a single JSON array in a
// versioned store and replays them with a bounded per-cycle attempt budget.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"contactrelay/internal/alert"
	"contactrelay/internal/mail"
	"contactrelay/internal/metrics"
	"contactrelay/internal/store"
	"contactrelay/internal/utils/logger"
)

var log = logger.New("queue")

const (
	DefaultKey           = "queue"
	DefaultMaxConflicts  = 5
	DefaultAttemptBudget = 3
)

// ErrMalformedQueue marks a stored blob that is not a JSON array. It is
// logged and the queue is read as empty.
var ErrMalformedQueue = errors.New("malformed mail queue")

// Deliverer makes one delivery attempt for a job.
type Deliverer interface {
	Deliver(ctx context.Context, job mail.Job) error
}

type Options struct {
	Key          string
	MaxConflicts int
	// StaleAfter enables a summary alert when a drain keeps jobs queued for
	// longer than this. Zero disables it.
	StaleAfter time.Duration
	Alerts     alert.Sink
}

type Queue struct {
	store        store.Store
	key          string
	maxConflicts int
	staleAfter   time.Duration
	alerts       alert.Sink
	now          func() time.Time
}

func New(s store.Store, opts Options) *Queue {
	if opts.Key == "" {
		opts.Key = DefaultKey
	}
	if opts.MaxConflicts <= 0 {
		opts.MaxConflicts = DefaultMaxConflicts
	}
	if opts.Alerts == nil {
		opts.Alerts = alert.Nop{}
	}
	return &Queue{
		store:        s,
		key:          opts.Key,
		maxConflicts: opts.MaxConflicts,
		staleAfter:   opts.StaleAfter,
		alerts:       opts.Alerts,
		now:          time.Now,
	}
}

// Key returns the store key holding the queue.
func (q *Queue) Key() string {
	return q.key
}

// load reads the raw items and the version they were read at. A missing key
// is an empty queue at the empty version; a malformed blob is an empty queue
// at the blob's version, so the next write replaces it.
func (q *Queue) load(ctx context.Context) ([]json.RawMessage, store.Version, error) {
	data, version, err := q.store.Get(ctx, q.key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to read queue: %w", err)
	}

	items, err := mail.SplitQueue(data)
	if err != nil {
		log.Error("%v under key %q, treating as empty: %v", ErrMalformedQueue, q.key, err)
		return nil, version, nil
	}
	return items, version, nil
}

func (q *Queue) write(ctx context.Context, expected store.Version, items []json.RawMessage) error {
	data, err := mail.JoinQueue(items)
	if err != nil {
		return fmt.Errorf("failed to encode queue: %w", err)
	}
	if err := q.store.CompareAndSwap(ctx, q.key, expected, data); err != nil {
		return err
	}
	metrics.QueueDepth.Set(float64(len(items)))
	return nil
}

// Enqueue appends jobs to the stored queue in a single write, retrying the
// read-append-write cycle when another writer got there first.
func (q *Queue) Enqueue(ctx context.Context, jobs ...mail.Job) error {
	if len(jobs) == 0 {
		return nil
	}

	now := q.now()
	encoded := make([]json.RawMessage, 0, len(jobs))
	for _, job := range jobs {
		raw, err := mail.EncodeJob(stamp(job, now))
		if err != nil {
			return fmt.Errorf("failed to encode %T: %w", job, err)
		}
		encoded = append(encoded, raw)
	}

	for attempt := 1; attempt <= q.maxConflicts; attempt++ {
		items, version, err := q.load(ctx)
		if err != nil {
			return err
		}

		err = q.write(ctx, version, append(items, encoded...))
		if errors.Is(err, store.ErrConflict) {
			metrics.EnqueueConflicts.Inc()
			log.Debug("enqueue conflict on attempt %d, retrying", attempt)
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to write queue: %w", err)
		}

		for _, job := range jobs {
			metrics.JobsEnqueued.WithLabelValues(jobLabel(job)).Inc()
		}
		log.Info("queued %d job(s), queue length %d", len(jobs), len(items)+len(encoded))
		return nil
	}

	return fmt.Errorf("enqueue gave up after %d attempts: %w", q.maxConflicts, store.ErrConflict)
}

// List returns the queued jobs in order.
func (q *Queue) List(ctx context.Context) ([]mail.Job, error) {
	items, _, err := q.load(ctx)
	if err != nil {
		return nil, err
	}
	jobs := make([]mail.Job, 0, len(items))
	for _, raw := range items {
		jobs = append(jobs, mail.DecodeJob(raw))
	}
	return jobs, nil
}

// stamp sets QueuedAt on jobs that have never been queued.
func stamp(job mail.Job, now time.Time) mail.Job {
	switch j := job.(type) {
	case mail.NotificationJob:
		if j.QueuedAt.IsZero() {
			j.QueuedAt = now
		}
		return j
	case mail.AutoReplyJob:
		if j.QueuedAt.IsZero() {
			j.QueuedAt = now
		}
		return j
	default:
		return job
	}
}

func jobLabel(job mail.Job) string {
	if t := job.Type(); t != "" {
		return t
	}
	return "unknown"
}
