package workers

import (
	"context"
	"fmt"
	"time"

	"contactrelay/internal/queue"
	"contactrelay/internal/utils/logger"

	"github.com/robfig/cron/v3"
)

var log = logger.New("worker")

// Drainer runs one drain cycle.
type Drainer interface {
	Run(ctx context.Context) (queue.DrainResult, error)
}

// Scheduler drains the mail queue in process on a cron schedule. A run that
// is still going when the next one is due makes the next one skip.
type Scheduler struct {
	cron    *cron.Cron
	drainer Drainer
	spec    string
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewScheduler(drainer Drainer, spec string) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	cl := cronLogger{}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		drainer: drainer,
		spec:    spec,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start registers the drain and starts the cron loop in the background.
func (s *Scheduler) Start() error {
	id, err := s.cron.AddFunc(s.spec, s.RunOnce)
	if err != nil {
		return fmt.Errorf("invalid drain schedule %q: %w", s.spec, err)
	}
	s.cron.Start()
	log.Info("mail queue drain scheduled (%s), next run %s", s.spec, s.cron.Entry(id).Next.Format(time.RFC3339))
	return nil
}

// Stop cancels a running drain and waits for it to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	log.Info("scheduler stopped")
}

// RunOnce drains the queue once. Errors are logged by the drainer.
func (s *Scheduler) RunOnce() {
	if s.ctx.Err() != nil {
		return
	}
	_, _ = s.drainer.Run(s.ctx)
}

// cronLogger routes cron's own messages into the console logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Debug("cron: %s %v", msg, keysAndValues)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.Warn("cron: %s: %v %v", msg, err, keysAndValues)
}
