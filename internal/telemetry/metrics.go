package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	JobsSubmitted    = prometheus.NewCounter(prometheus.CounterOpts{Name: "zipjobs_submitted_total", Help: "Zip jobs accepted and enqueued"})
	SubmitFailures   = prometheus.NewCounter(prometheus.CounterOpts{Name: "zipjobs_submit_failures_total", Help: "Zip jobs whose status write or enqueue failed"})
	RateLimitRejects = prometheus.NewCounter(prometheus.CounterOpts{Name: "zipjobs_rate_limit_rejects_total", Help: "Submissions rejected by rate limiter"})
	JobsCompleted    = prometheus.NewCounter(prometheus.CounterOpts{Name: "zipjobs_completed_total", Help: "Zip jobs completed successfully"})
	JobsFailed       = prometheus.NewCounter(prometheus.CounterOpts{Name: "zipjobs_failed_total", Help: "Zip job attempts that failed and were released for retry"})
	MessagesPoisoned = prometheus.NewCounter(prometheus.CounterOpts{Name: "zipjobs_poisoned_total", Help: "Messages moved to the poison queue"})
	QueueDepthGauge  = prometheus.NewGauge(prometheus.GaugeOpts{Name: "zipjobs_queue_depth", Help: "Messages waiting in the ready queue"})
	InFlightGauge    = prometheus.NewGauge(prometheus.GaugeOpts{Name: "zipjobs_inflight", Help: "Messages currently leased"})
	ArchiveBytes     = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "zipjobs_archive_bytes",
		Help:    "Size of uploaded result archives",
		Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
	})
	JobDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "zipjobs_processing_seconds",
		Help:    "Time spent processing one zip job attempt",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
)

// Handler exposes /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			JobsSubmitted,
			SubmitFailures,
			RateLimitRejects,
			JobsCompleted,
			JobsFailed,
			MessagesPoisoned,
			QueueDepthGauge,
			InFlightGauge,
			ArchiveBytes,
			JobDuration,
		)
	})
	return promhttp.Handler()
}
