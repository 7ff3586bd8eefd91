package handlers

import (
	"net/http"
	"time"

	"contactrelay/internal/mail"
	"contactrelay/internal/queue"

	"github.com/labstack/echo/v4"
)

type QueueHandler struct {
	runner *queue.Runner
}

func NewQueueHandler(runner *queue.Runner) *QueueHandler {
	return &QueueHandler{runner: runner}
}

// Drain runs one drain cycle on demand
// @Summary Drain the mail queue
// @Tags Mail queue
// @Produce plain
// @Security BearerAuth
// @Success 200 {string} string
// @Failure 500 {string} string
// @Router /api/v1/mail-queue/drain [post]
func (h *QueueHandler) Drain(c echo.Context) error {
	if _, err := h.runner.Run(c.Request().Context()); err != nil {
		return c.String(http.StatusInternalServerError, "Error processing mail queue: "+err.Error())
	}
	return c.String(http.StatusOK, "Mail queue processed successfully.")
}

type QueuedJob struct {
	Type      string `json:"type"`
	QueuedAt  string `json:"queuedAt,omitempty"`
	Recipient string `json:"recipient,omitempty"`
}

type QueueListing struct {
	Key   string      `json:"key"`
	Count int         `json:"count"`
	Jobs  []QueuedJob `json:"jobs"`
}

// List shows what is waiting in the queue
// @Summary List queued mail jobs
// @Tags Mail queue
// @Produce json
// @Security BearerAuth
// @Success 200 {object} QueueListing
// @Router /api/v1/mail-queue [get]
func (h *QueueHandler) List(c echo.Context) error {
	q := h.runner.Queue()
	jobs, err := q.List(c.Request().Context())
	if err != nil {
		log.Error("failed to list queue: %v", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to read mail queue")
	}

	listing := QueueListing{Key: q.Key(), Count: len(jobs), Jobs: make([]QueuedJob, 0, len(jobs))}
	for _, job := range jobs {
		item := QueuedJob{Type: job.Type(), Recipient: mail.Recipient(job)}
		if item.Type == "" {
			item.Type = "unknown"
		}
		if at, ok := mail.QueuedAt(job); ok {
			item.QueuedAt = at.UTC().Format(time.RFC3339)
		}
		listing.Jobs = append(listing.Jobs, item)
	}
	return c.JSON(http.StatusOK, listing)
}
