package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"contactrelay/internal/utils/logger"

	"github.com/hibiken/asynq"
)

// TaskClient enqueues one-off drains for a running asynq server.
type TaskClient struct {
	client *asynq.Client
	logger *logger.Logger
}

func NewTaskClient(opt asynq.RedisClientOpt) *TaskClient {
	return &TaskClient{
		client: asynq.NewClient(opt),
		logger: logger.New("TASKS"),
	}
}

func (c *TaskClient) Close() error {
	return c.client.Close()
}

// NewDrainTask builds a one-off mail:drain task. Requests within the same
// minute collapse into one.
func NewDrainTask(task DrainTask, timeout time.Duration) (*asynq.Task, error) {
	payload, err := json.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal drain task: %w", err)
	}
	return asynq.NewTask(TaskTypeMailDrain, payload, oneOffOptions(timeout)...), nil
}

func oneOffOptions(timeout time.Duration) []asynq.Option {
	if timeout <= 0 {
		timeout = TimeoutMedium
	}
	return []asynq.Option{
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(RetryDefault),
		asynq.Timeout(timeout),
		asynq.Unique(time.Minute),
	}
}

// EnqueueDrain asks the task server to drain the mail queue soon. A drain
// already pending is not an error.
func (c *TaskClient) EnqueueDrain(ctx context.Context, reason string, timeout time.Duration) error {
	task, err := NewDrainTask(DrainTask{Reason: reason, RequestedAt: time.Now().UTC()}, timeout)
	if err != nil {
		return err
	}

	info, err := c.client.EnqueueContext(ctx, task)
	if errors.Is(err, asynq.ErrDuplicateTask) {
		c.logger.Info("a drain is already pending, skipping")
		return nil
	}
	if err != nil {
		return c.logger.Error("failed to enqueue drain task", err)
	}

	c.logger.Success("enqueued drain task %s on queue %s", info.ID, info.Queue)
	return nil
}
