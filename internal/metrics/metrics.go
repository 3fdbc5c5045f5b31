// Package metrics provides Prometheus metrics for DataMantri.
package metrics

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "datamantri"
)

// HTTP metrics
var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration tracks HTTP request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	// HTTPRequestsInFlight tracks concurrent HTTP requests.
	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "Number of HTTP requests currently being processed",
		},
	)
)

// Evaluation metrics
var (
	// EvaluationsTotal counts alert evaluations by condition type and result.
	EvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Total alert evaluations",
		},
		[]string{"condition_type", "result"}, // triggered, ok, skipped
	)

	// EvaluationDuration tracks how long one alert evaluation takes, including notification.
	EvaluationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "evaluation_duration_seconds",
			Help:      "Alert evaluation latency in seconds",
			Buckets:   []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	// HistoryWriteErrors counts failures persisting alert history or trigger counts.
	HistoryWriteErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_write_errors_total",
			Help:      "Total alert history persistence errors",
		},
	)
)

// Notification metrics
var (
	// NotificationsTotal counts per-channel notification attempts.
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Total notification attempts by channel",
		},
		[]string{"channel", "success"},
	)

	// NotificationsRateLimited counts notifications dropped by the rate limiter.
	NotificationsRateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_rate_limited_total",
			Help:      "Total notifications dropped by the rate limiter",
		},
	)
)

// Info metric
var (
	// BuildInfo exposes build information.
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build information",
		},
		[]string{"version", "commit", "build_time"},
	)
)

// SetBuildInfo sets the build info metric.
func SetBuildInfo(version, commit, buildTime string) {
	BuildInfo.WithLabelValues(version, commit, buildTime).Set(1)
}

// RecordNotification counts one channel send.
func RecordNotification(channel string, success bool) {
	NotificationsTotal.WithLabelValues(channel, strconv.FormatBool(success)).Inc()
}

// RecordEvaluation counts one alert evaluation and its latency.
func RecordEvaluation(conditionType, result string, seconds float64) {
	EvaluationsTotal.WithLabelValues(conditionType, result).Inc()
	EvaluationDuration.Observe(seconds)
}

// EvaluatorCounters reads the evaluator's running totals.
type EvaluatorCounters struct {
	Evaluated func() int64
	Triggered func() int64
	Skipped   func() int64
	Failed    func() int64
}

// RegisterEvaluatorStats exposes the evaluator's counters on reg as
// datamantri_evaluator_*_total. Registering the same names twice is not an error.
func RegisterEvaluatorStats(reg prometheus.Registerer, c EvaluatorCounters) error {
	counters := []struct {
		name, help string
		read       func() int64
	}{
		{"evaluated_total", "Alerts evaluated by the evaluator", c.Evaluated},
		{"triggered_total", "Evaluations whose condition held", c.Triggered},
		{"skipped_total", "Inactive or nil alerts skipped", c.Skipped},
		{"failed_total", "Evaluations that failed closed on an error or panic", c.Failed},
	}

	var errs []error
	for _, counter := range counters {
		if counter.read == nil {
			continue
		}
		read := counter.read
		err := reg.Register(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evaluator",
			Name:      counter.name,
			Help:      counter.help,
		}, func() float64 { return float64(read()) }))

		var already prometheus.AlreadyRegisteredError
		if err != nil && !errors.As(err, &already) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
