package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RelaySends counts outbound mail sends by smtp account and result (ok, error).
	RelaySends = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "contactrelay_relay_sends_total",
		Help: "Total number of mail sends attempted through the relay",
	}, []string{"account", "result"})
	AlertsSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "contactrelay_alerts_total",
		Help: "Total number of operational alerts posted to the webhook",
	}, []string{"result"})
	JobsEnqueued = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "contactrelay_jobs_enqueued_total",
		Help: "Total number of mail jobs written to the durable queue",
	}, []string{"type"})
	EnqueueConflicts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "contactrelay_enqueue_conflicts_total",
		Help: "Total number of compare-and-swap conflicts seen while enqueueing",
	})
	DrainCycles = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "contactrelay_drain_cycles_total",
		Help: "Total number of queue drain cycles by result",
	}, []string{"result"})
	JobsDelivered = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "contactrelay_jobs_delivered_total",
		Help: "Total number of queued jobs delivered by a drain",
	}, []string{"type"})
	JobsKept = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "contactrelay_jobs_kept_total",
		Help: "Total number of queued jobs kept after a drain",
	}, []string{"type"})
	QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "contactrelay_queue_depth",
		Help: "Number of jobs in the durable queue after the last write",
	})
	Submissions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "contactrelay_submissions_total",
		Help: "Contact form submissions by outcome (sent, queued, invalid, rejected, rate_limited)",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(RelaySends)
	prometheus.MustRegister(AlertsSent)
	prometheus.MustRegister(JobsEnqueued)
	prometheus.MustRegister(EnqueueConflicts)
	prometheus.MustRegister(DrainCycles)
	prometheus.MustRegister(JobsDelivered)
	prometheus.MustRegister(JobsKept)
	prometheus.MustRegister(QueueDepth)
	prometheus.MustRegister(Submissions)
}

// Result maps an error to the "ok"/"error" label value.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
