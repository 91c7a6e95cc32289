// Package metrics defines the Prometheus series the core emits: claim
// latency and outcome counts from the worker pool, HTTP request metrics from
// API ingress, and the watchdog/quota/notifier transition counters §2 lists
// against C2/C9/C10/C11. Grounded on the teacher's internal/metrics package
// (same Namespace/histogram-bucket conventions), generalized from "jobs" to
// the task/execution/monitor domain.
package metrics

import (
	"encoding/json"
	"net/http"

	"github.com/ErlanBelekov/taskrelay/internal/health"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ClaimLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "scheduler",
		Name:      "claim_latency_seconds",
		Help:      "Time from an execution's scheduled_for to the moment a worker claims it.",
		Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	})

	ExecutionDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "scheduler",
		Name:      "execution_duration_seconds",
		Help:      "Duration of an execution's outbound HTTP dispatch.",
		Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	}, []string{"status"})

	ExecutionsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "scheduler",
		Name:      "worker_executions_in_flight",
		Help:      "Number of executions currently being dispatched across the worker pool.",
	})

	ExecutionsCompletedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scheduler",
		Name:      "executions_completed_total",
		Help:      "Total executions finalized, by outcome.",
	}, []string{"outcome"})

	RetriesScheduledTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "scheduler",
		Name:      "retries_scheduled_total",
		Help:      "Total retry executions inserted after a failed/timeout attempt.",
	})

	JanitorReapedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "scheduler",
		Name:      "janitor_reaped_total",
		Help:      "Total executions reclaimed from stuck running state.",
	})

	QueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "scheduler",
		Name:      "queue_pending_depth",
		Help:      "Pending executions observed per (org, queue) at last sample.",
	}, []string{"organization_id", "queue"})

	QuotaThresholdTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scheduler",
		Name:      "quota_threshold_total",
		Help:      "Monthly quota threshold crossings, by kind (warning|reached).",
	}, []string{"kind"})

	WatchdogTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scheduler",
		Name:      "monitor_transitions_total",
		Help:      "Monitor status transitions driven by the watchdog or a ping.",
	}, []string{"to"})

	NotifierThrottledTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scheduler",
		Name:      "notifier_throttled_total",
		Help:      "Notifications suppressed because a delivery already occurred within the throttle window.",
	}, []string{"email_type"})

	SchedulerStartTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "scheduler",
		Name:      "process_start_time_seconds",
		Help:      "Unix timestamp when this process started.",
	})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "scheduler",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scheduler",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests.",
	}, []string{"method", "path", "status"})
)

func Register() {
	prometheus.MustRegister(
		ClaimLatency,
		ExecutionDuration,
		ExecutionsInFlight,
		ExecutionsCompletedTotal,
		RetriesScheduledTotal,
		JanitorReapedTotal,
		QueueDepth,
		QuotaThresholdTotal,
		WatchdogTransitionsTotal,
		NotifierThrottledTotal,
		SchedulerStartTime,
		HTTPRequestDuration,
		HTTPRequestsTotal,
	)
}

// NewServer exposes /metrics plus the liveness/readiness endpoints on a
// separate port from the public API, the same split the teacher uses so a
// load balancer health check never contends with application traffic.
func NewServer(addr string, checker *health.Checker) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeHealth(w, checker.Liveness(r.Context()))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
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
