package metrics

import (
	"encoding/json"
	"net/http"

	"github.com/fundacion-cms/content-scheduler/internal/health"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Executor metrics

	ExecutionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "content_scheduler",
		Name:      "executions_total",
		Help:      "Schedule executions, by content type, action and outcome.",
	}, []string{"content_type", "action", "outcome"})

	ExecutionLag = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "content_scheduler",
		Name:      "execution_lag_seconds",
		Help:      "Time from a schedule's scheduled date to its execution.",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 900, 3600, 86400},
	})

	ExecutionsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "content_scheduler",
		Name:      "executions_in_flight",
		Help:      "Schedules currently being executed.",
	})

	// Poller metrics

	PollerCycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "content_scheduler",
		Name:      "poller_cycle_duration_seconds",
		Help:      "Time taken for one ProcessPending pass.",
		Buckets:   prometheus.DefBuckets,
	})

	PollerDueBatch = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "content_scheduler",
		Name:      "poller_due_batch_size",
		Help:      "Number of due schedules picked up per pass.",
		Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250, 500, 1000},
	})

	PollerLastRun = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "content_scheduler",
		Name:      "poller_last_run_timestamp_seconds",
		Help:      "Unix timestamp of the last completed poller pass.",
	})

	// Usecase metrics

	SchedulesCreatedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "content_scheduler",
		Name:      "schedules_created_total",
		Help:      "Schedule records created, by kind (single, batch, recurring).",
	}, []string{"kind"})

	// HTTP metrics

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "content_scheduler",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "content_scheduler",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests.",
	}, []string{"method", "path", "status"})
)

func Register() {
	prometheus.MustRegister(
		ExecutionsTotal,
		ExecutionLag,
		ExecutionsInFlight,
		PollerCycleDuration,
		PollerDueBatch,
		PollerLastRun,
		SchedulesCreatedTotal,
		HTTPRequestDuration,
		HTTPRequestsTotal,
	)
}

// NewServer serves /metrics plus liveness and readiness probes.
func NewServer(addr string, checker *health.Checker) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		writeHealth(w, checker.Liveness(r.Context()))
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		writeHealth(w, checker.Readiness(r.Context()))
	})
	return &http.Server{Addr: addr, Handler: mux}
}

func writeHealth(w http.ResponseWriter, result health.HealthResult) {
	w.Header().Set("Content-Type", "application/json")
	if result.Status != "up" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(result)
}
