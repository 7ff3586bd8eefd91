package tasks

import (
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Server handles task processing
type Server struct {
	server  *asynq.Server
	handler *TaskHandler
	logger  *zap.Logger
}

// queues are weighted but processed in strict priority order.
var queues = map[string]int{
	QueueCritical: 6,
	QueueDefault:  3,
}

func NewServer(opt asynq.RedisClientOpt, handler *TaskHandler, logger *zap.Logger) *Server {
	server := asynq.NewServer(opt, asynq.Config{
		// One drain at a time.
		Concurrency:    1,
		Queues:         queues,
		StrictPriority: true,
		Logger:         logger.Sugar(),
	})

	return &Server{
		server:  server,
		handler: handler,
		logger:  logger,
	}
}

// Mux routes task types to their handlers.
func (s *Server) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypeMailDrain, s.handler.HandleMailDrain)
	return mux
}

// Start starts processing in the background.
func (s *Server) Start() error {
	s.logger.Info("starting task processing server",
		zap.Int("concurrency", 1),
		zap.Any("queues", queues),
	)

	if err := s.server.Start(s.Mux()); err != nil {
		return fmt.Errorf("failed to start task server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the task processing server
func (s *Server) Shutdown() {
	s.logger.Info("shutting down task processing server")
	s.server.Shutdown()
}
