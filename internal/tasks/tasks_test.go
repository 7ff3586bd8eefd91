package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"contactrelay/internal/config"
	"contactrelay/internal/queue"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeDrainer struct {
	runs   int
	result queue.DrainResult
	err    error
}

func (f *fakeDrainer) Run(context.Context) (queue.DrainResult, error) {
	f.runs++
	return f.result, f.err
}

func observed() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.InfoLevel)
	return zap.New(core), logs
}

func TestHandleMailDrainPeriodic(t *testing.T) {
	drainer := &fakeDrainer{result: queue.DrainResult{Total: 3, Delivered: 2, Kept: 1, Attempts: 5}}
	logger, logs := observed()
	h := NewTaskHandler(drainer, logger)

	require.NoError(t, h.HandleMailDrain(context.Background(), asynq.NewTask(TaskTypeMailDrain, nil)))
	assert.Equal(t, 1, drainer.runs)

	finished := logs.FilterMessage("mail drain finished").All()
	require.Len(t, finished, 1)
	assert.Equal(t, int64(2), finished[0].ContextMap()["delivered"])

	started := logs.FilterMessage("processing mail drain").All()
	require.Len(t, started, 1)
	assert.Equal(t, "schedule", started[0].ContextMap()["reason"])
}

func TestHandleMailDrainFailure(t *testing.T) {
	drainer := &fakeDrainer{err: errors.New("store unavailable")}
	h := NewTaskHandler(drainer, zap.NewNop())

	err := h.HandleMailDrain(context.Background(), asynq.NewTask(TaskTypeMailDrain, nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store unavailable")
	assert.False(t, errors.Is(err, asynq.SkipRetry))
}

func TestHandleMailDrainBadPayload(t *testing.T) {
	drainer := &fakeDrainer{}
	h := NewTaskHandler(drainer, zap.NewNop())

	err := h.HandleMailDrain(context.Background(), asynq.NewTask(TaskTypeMailDrain, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Zero(t, drainer.runs)
}

func TestNewDrainTask(t *testing.T) {
	requested := time.Date(2025, 10, 5, 9, 0, 0, 0, time.UTC)
	task, err := NewDrainTask(DrainTask{Reason: "cli", RequestedAt: requested}, 0)
	require.NoError(t, err)
	assert.Equal(t, TaskTypeMailDrain, task.Type())

	var payload DrainTask
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, "cli", payload.Reason)
	assert.True(t, requested.Equal(payload.RequestedAt))
}

func TestOneOffDrainsUseDefaultQueue(t *testing.T) {
	found := map[asynq.OptionType]interface{}{}
	for _, opt := range oneOffOptions(0) {
		found[opt.Type()] = opt.Value()
	}
	assert.Equal(t, QueueDefault, found[asynq.QueueOpt])
	assert.Equal(t, TimeoutMedium, found[asynq.TimeoutOpt])
	assert.Equal(t, 0, found[asynq.MaxRetryOpt])

	assert.Equal(t, map[string]int{QueueCritical: 6, QueueDefault: 3}, queues)
}

func TestServerMuxRoutesDrain(t *testing.T) {
	drainer := &fakeDrainer{}
	srv := NewServer(RedisClientOpt(config.RedisConfig{Addr: "127.0.0.1:0"}), NewTaskHandler(drainer, zap.NewNop()), zap.NewNop())

	task, err := NewDrainTask(DrainTask{Reason: "test"}, time.Minute)
	require.NoError(t, err)
	require.NoError(t, srv.Mux().ProcessTask(context.Background(), task))
	assert.Equal(t, 1, drainer.runs)
}

func TestRedisClientOpt(t *testing.T) {
	opt := RedisClientOpt(config.RedisConfig{Addr: "cache:6379", Username: "u", Password: "p", DB: 3})
	assert.Equal(t, asynq.RedisClientOpt{Addr: "cache:6379", Username: "u", Password: "p", DB: 3}, opt)
}
