package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"contactrelay/internal/queue"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Drainer runs one drain cycle.
type Drainer interface {
	Run(ctx context.Context) (queue.DrainResult, error)
}

// TaskHandler handles task processing
type TaskHandler struct {
	drainer Drainer
	logger  *zap.Logger
}

func NewTaskHandler(drainer Drainer, logger *zap.Logger) *TaskHandler {
	return &TaskHandler{
		drainer: drainer,
		logger:  logger,
	}
}

// HandleMailDrain processes a scheduled or requested queue drain
func (h *TaskHandler) HandleMailDrain(ctx context.Context, t *asynq.Task) error {
	var task DrainTask
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &task); err != nil {
			return fmt.Errorf("failed to unmarshal drain task: %w", asynq.SkipRetry)
		}
	}
	if task.Reason == "" {
		task.Reason = "schedule"
	}

	h.logger.Info("processing mail drain", zap.String("reason", task.Reason))

	result, err := h.drainer.Run(ctx)
	if err != nil {
		h.logger.Error("mail drain failed", zap.String("reason", task.Reason), zap.Error(err))
		return fmt.Errorf("failed to drain mail queue: %w", err)
	}

	h.logger.Info("mail drain finished",
		zap.Int("total", result.Total),
		zap.Int("delivered", result.Delivered),
		zap.Int("kept", result.Kept),
		zap.Int("unknown", result.Unknown),
		zap.Int("attempts", result.Attempts),
	)
	return nil
}
