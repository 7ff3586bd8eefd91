package tasks

import (
	"time"

	"contactrelay/internal/config"

	"github.com/hibiken/asynq"
)

// Task Types
const (
	TaskTypeMailDrain = "mail:drain"
)

// Task Queues. Scheduled drains go to QueueCritical, one-off requests to
// QueueDefault.
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
)

const TimeoutMedium = 5 * time.Minute

// Task Retry Settings. A failed drain is not retried by asynq: the next
// scheduled run picks the queue up again.
const (
	RetryDefault = 0
)

// DrainTask is the optional payload of a mail:drain task. Periodic runs carry
// no payload.
type DrainTask struct {
	Reason      string    `json:"reason,omitempty"`
	RequestedAt time.Time `json:"requested_at,omitempty"`
}

// RedisClientOpt maps the Redis settings onto asynq's connection options.
func RedisClientOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}
