package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce             sync.Once
	stageDurationSeconds     *prometheus.HistogramVec
	submissionsFinishedTotal *prometheus.CounterVec
	scoringFailuresTotal     *prometheus.CounterVec
	requestsTotal            *prometheus.CounterVec
	requestLatencySeconds    *prometheus.HistogramVec
)

// RegisterMetrics initialises the Prometheus collectors used by the grading
// pipeline and the HTTP surface.
func RegisterMetrics() {
	registerOnce.Do(func() {
		stageDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "grader_stage_duration_seconds",
			Help:    "Duration of each grading pipeline stage.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0},
		}, []string{"stage"})

		submissionsFinishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grader_submissions_finished_total",
			Help: "Submissions that reached a terminal state, by status and reason.",
		}, []string{"status", "reason"})

		scoringFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grader_scoring_failures_total",
			Help: "Per-question scoring failures after retry exhaustion.",
		}, []string{"error"})

		requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grader_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		requestLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "grader_request_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		prometheus.MustRegister(
			stageDurationSeconds,
			submissionsFinishedTotal,
			scoringFailuresTotal,
			requestsTotal,
			requestLatencySeconds,
		)
	})
}

// StageDuration exposes the pipeline stage duration histogram.
func StageDuration() *prometheus.HistogramVec {
	RegisterMetrics()
	return stageDurationSeconds
}

// SubmissionsFinished exposes the terminal-state counter.
func SubmissionsFinished() *prometheus.CounterVec {
	RegisterMetrics()
	return submissionsFinishedTotal
}

// ScoringFailures exposes the per-question scoring failure counter.
func ScoringFailures() *prometheus.CounterVec {
	RegisterMetrics()
	return scoringFailuresTotal
}

// Requests exposes the API request counter.
func Requests() *prometheus.CounterVec {
	RegisterMetrics()
	return requestsTotal
}

// RequestLatency exposes the API latency histogram.
func RequestLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return requestLatencySeconds
}
