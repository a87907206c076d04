package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	QueriesSubmitted = prometheus.NewCounter(prometheus.CounterOpts{Name: "queries_submitted_total", Help: "Statements accepted by the query service"})
	SubmissionErrors = prometheus.NewCounter(prometheus.CounterOpts{Name: "queries_submission_errors_total", Help: "Statements rejected at submission"})
	QueryStates      = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "queries_terminal_total", Help: "Queries by terminal state"}, []string{"state"})
	PollAttempts     = prometheus.NewCounter(prometheus.CounterOpts{Name: "queries_poll_attempts_total", Help: "Status polls issued"})
	ThrottleWaits    = prometheus.NewCounter(prometheus.CounterOpts{Name: "queries_throttled_total", Help: "Submissions delayed by the rate limiter"})
	QueryDuration    = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "query_duration_seconds", Help: "Submit to terminal state", Buckets: prometheus.ExponentialBuckets(0.5, 2, 10)})
	InFlightGauge    = prometheus.NewGauge(prometheus.GaugeOpts{Name: "queries_inflight", Help: "Queries currently being polled"})
	TaskSuccess      = prometheus.NewCounter(prometheus.CounterOpts{Name: "tasks_succeeded_total", Help: "Scheduled tasks that produced a table"})
	TaskFailures     = prometheus.NewCounter(prometheus.CounterOpts{Name: "tasks_failed_total", Help: "Scheduled tasks that failed"})
	ChainSteps       = prometheus.NewCounter(prometheus.CounterOpts{Name: "chain_steps_total", Help: "Chain steps executed"})
	RateLimitRejects = prometheus.NewCounter(prometheus.CounterOpts{Name: "api_rate_limit_rejects_total", Help: "Run requests rejected by rate limiter"})
)

// Handler exposes /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			QueriesSubmitted,
			SubmissionErrors,
			QueryStates,
			PollAttempts,
			ThrottleWaits,
			QueryDuration,
			InFlightGauge,
			TaskSuccess,
			TaskFailures,
			ChainSteps,
			RateLimitRejects,
		)
	})
	return promhttp.Handler()
}
