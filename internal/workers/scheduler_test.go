package workers

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"contactrelay/internal/queue"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingDrainer struct {
	runs  int32
	delay time.Duration
}

func (d *countingDrainer) Run(ctx context.Context) (queue.DrainResult, error) {
	atomic.AddInt32(&d.runs, 1)
	select {
	case <-time.After(d.delay):
	case <-ctx.Done():
	}
	return queue.DrainResult{}, nil
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	s := NewScheduler(&countingDrainer{}, "every now and then")
	err := s.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid drain schedule")
}

func TestSchedulerRunsDrain(t *testing.T) {
	d := &countingDrainer{}
	s := NewScheduler(d, "@every 1s")
	require.NoError(t, s.Start())
	defer s.Stop()

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&d.runs) >= 1 }, 3*time.Second, 50*time.Millisecond)
}

func TestSchedulerSkipsOverlappingRuns(t *testing.T) {
	d := &countingDrainer{delay: time.Hour}
	s := NewScheduler(d, "@every 1s")
	require.NoError(t, s.Start())

	time.Sleep(3500 * time.Millisecond)
	s.Stop()

	assert.Equal(t, int32(1), atomic.LoadInt32(&d.runs))
}

func TestRunOnceAfterStopDoesNothing(t *testing.T) {
	d := &countingDrainer{}
	s := NewScheduler(d, "@every 1h")
	require.NoError(t, s.Start())
	s.Stop()

	s.RunOnce()
	assert.Zero(t, atomic.LoadInt32(&d.runs))
}
