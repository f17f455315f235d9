package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	IngestRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "threads_insights_ingest_runs_total",
		Help: "Finished ingestion runs by terminal status",
	}, []string{"status"})
	IngestMediaSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "threads_insights_ingest_media_skipped_total",
		Help: "Media items skipped because their insights could not be collected",
	})
	IngestDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "threads_insights_ingest_duration_seconds",
		Help:    "Ingestion run duration in seconds",
		Buckets: prometheus.DefBuckets,
	})
	APICalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "threads_insights_api_calls_total",
		Help: "Threads API calls by endpoint and outcome",
	}, []string{"endpoint", "outcome"})
)

func init() {
	prometheus.MustRegister(IngestRuns, IngestMediaSkipped, IngestDuration, APICalls)
}

// ObserveRun records a finished run.
func ObserveRun(status string, start time.Time) {
	IngestRuns.WithLabelValues(status).Inc()
	IngestDuration.Observe(time.Since(start).Seconds())
}

// IncAPICall counts one outbound call. outcome is ok, auth_error or upstream_error.
func IncAPICall(endpoint, outcome string) {
	APICalls.WithLabelValues(endpoint, outcome).Inc()
}
