package services

import (
	"context"
	"fmt"

	"contactrelay/internal/alert"
	"contactrelay/internal/mail"
	"contactrelay/internal/metrics"
)

// State is a step of the delivery state machine.
type State string

const (
	StateValidated          State = "validated"
	StateNotifyAttempted    State = "notify_attempted"
	StateNotifySucceeded    State = "notify_succeeded"
	StateNotifyFailed       State = "notify_failed"
	StateAutoReplyAttempted State = "auto_reply_attempted"
	StateAutoReplyFailed    State = "auto_reply_failed"
	StateDone               State = "done"
)

// Outcome is what the submitter is told plus what happened behind the scenes.
// Queued is only set when the notification itself had to be queued; a
// queued auto-reply shows up in Enqueued alone.
type Outcome struct {
	Accepted bool
	Queued   bool
	Enqueued int
	State    State
}

type Deliverer interface {
	Deliver(ctx context.Context, job mail.Job) error
}

type Enqueuer interface {
	Enqueue(ctx context.Context, jobs ...mail.Job) error
}

// DeliveryService sends a submission's notification inline and falls back to
// the alert sink and durable queue when sends fail.
type DeliveryService struct {
	mailer Deliverer
	queue  Enqueuer
	alerts alert.Sink
	mode   string
}

func NewDeliveryService(mailer Deliverer, queue Enqueuer, alerts alert.Sink, production bool) *DeliveryService {
	if alerts == nil {
		alerts = alert.Nop{}
	}
	mode := "DEV"
	if production {
		mode = "PROD"
	}
	return &DeliveryService{mailer: mailer, queue: queue, alerts: alerts, mode: mode}
}

// Deliver runs the state machine for one validated submission. alertContext
// is appended to alert messages. It never fails: alert and queue errors are
// logged and leave the outcome unchanged.
func (s *DeliveryService) Deliver(ctx context.Context, notif mail.NotificationJob, reply mail.AutoReplyJob, alertContext string) Outcome {
	out := Outcome{Accepted: true, State: StateValidated}

	out.State = StateNotifyAttempted
	if err := s.mailer.Deliver(ctx, notif); err != nil {
		out.State = StateNotifyFailed
		log.Error("%s notification failed: %v", s.mode, err)
		s.alert(ctx, "notif", err, alertContext)

		if s.enqueue(ctx, notif, reply) {
			out.Enqueued = 2
		}
		out.Queued = true
		metrics.Submissions.WithLabelValues("queued").Inc()
		return out
	}
	out.State = StateNotifySucceeded

	out.State = StateAutoReplyAttempted
	if err := s.mailer.Deliver(ctx, reply); err != nil {
		out.State = StateAutoReplyFailed
		log.Warn("%s autoresponder failed: %v", s.mode, err)
		s.alert(ctx, "autoresponder", err, alertContext)

		if s.enqueue(ctx, reply) {
			out.Enqueued = 1
		}
		metrics.Submissions.WithLabelValues("sent").Inc()
		return out
	}

	out.State = StateDone
	metrics.Submissions.WithLabelValues("sent").Inc()
	return out
}

func (s *DeliveryService) alert(ctx context.Context, what string, cause error, alertContext string) {
	msg := fmt.Sprintf("[MAIL-FAIL][%s] %s: %v", s.mode, what, cause)
	if alertContext != "" {
		msg += "\n" + alertContext
	}
	if err := s.alerts.Notify(ctx, msg); err != nil {
		log.Warn("alert delivery failed: %v", err)
	}
}

func (s *DeliveryService) enqueue(ctx context.Context, jobs ...mail.Job) bool {
	if err := s.queue.Enqueue(ctx, jobs...); err != nil {
		log.Error("failed to queue %d job(s): %v", len(jobs), err)
		return false
	}
	return true
}
