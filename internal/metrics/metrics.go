package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricewise_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pricewise_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	RunsStartedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pricewise_runs_started_total",
			Help: "Total number of pricing pipeline runs started.",
		},
	)

	RunsFinishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricewise_runs_finished_total",
			Help: "Total number of pricing pipeline runs finished, by terminal status.",
		},
		[]string{"status"},
	)

	PhaseDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pricewise_phase_duration_seconds",
			Help:    "Duration of each pipeline phase in seconds.",
			Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"phase"},
	)

	RunsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pricewise_runs_active",
			Help: "Number of pipeline runs currently in flight.",
		},
	)

	LLMRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricewise_llm_requests_total",
			Help: "Total number of completion requests, by outcome.",
		},
		[]string{"outcome"},
	)

	LLMTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricewise_llm_tokens_total",
			Help: "Total completion tokens consumed, by direction.",
		},
		[]string{"direction"},
	)

	RecommendationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pricewise_recommendations_total",
			Help: "Total number of pricing recommendations produced.",
		},
	)

	AnomaliesDetectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricewise_anomalies_detected_total",
			Help: "Total number of performance anomalies detected, by severity.",
		},
		[]string{"severity"},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		RunsStartedTotal,
		RunsFinishedTotal,
		PhaseDuration,
		RunsActive,
		LLMRequestsTotal,
		LLMTokensTotal,
		RecommendationsTotal,
		AnomaliesDetectedTotal,
	)
}
