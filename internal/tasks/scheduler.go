package tasks

import (
	"fmt"
	"time"

	"contactrelay/internal/utils/logger"

	"github.com/hibiken/asynq"
)

// Scheduler handles periodic task scheduling
type Scheduler struct {
	scheduler *asynq.Scheduler
	logger    *logger.Logger
	spec      string
	timeout   time.Duration
}

// NewScheduler creates a scheduler that enqueues mail:drain on spec.
func NewScheduler(opt asynq.RedisClientOpt, spec string, timeout time.Duration, logger *logger.Logger) *Scheduler {
	scheduler := asynq.NewScheduler(opt, &asynq.SchedulerOpts{
		Location: time.UTC,
	})

	return &Scheduler{
		scheduler: scheduler,
		logger:    logger,
		spec:      spec,
		timeout:   timeout,
	}
}

// Start registers the periodic tasks and blocks until Stop.
func (s *Scheduler) Start() error {
	if err := s.registerTasks(); err != nil {
		return fmt.Errorf("failed to register tasks: %w", err)
	}

	s.logger.Info("starting task scheduler")
	return s.scheduler.Run()
}

func (s *Scheduler) Stop() {
	s.scheduler.Shutdown()
	s.logger.Info("task scheduler stopped")
}

func (s *Scheduler) registerTasks() error {
	timeout := s.timeout
	if timeout <= 0 {
		timeout = TimeoutMedium
	}

	entryID, err := s.scheduler.Register(s.spec, asynq.NewTask(
		TaskTypeMailDrain,
		nil,
		asynq.Queue(QueueCritical),
		asynq.MaxRetry(RetryDefault),
		asynq.Timeout(timeout),
		asynq.Unique(timeout),
	))
	if err != nil {
		return fmt.Errorf("failed to register mail drain scheduler: %w", err)
	}
	s.logger.Debug("registered mail drain scheduler %s (%s)", entryID, s.spec)

	s.logger.Info("registered all periodic tasks")
	return nil
}
