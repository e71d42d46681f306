// Package metrics exposes Prometheus collectors for report production.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "quoteoracle"

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	reportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reports",
			Name:      "total",
			Help:      "Price reports produced, by status.",
		},
		[]string{"status"},
	)

	evaluationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "evaluation_duration_seconds",
			Help:      "Duration of a single selection and aggregation.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		},
		[]string{"mode"},
	)

	evaluationErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "evaluation_errors_total",
			Help:      "Failed aggregations, by mode.",
		},
		[]string{"mode"},
	)

	selectedQuotes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "selected_quotes",
			Help:      "Quotes admitted by the window in the latest report.",
		},
	)

	lastReportBlock = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "reports",
			Name:      "last_block",
			Help:      "Block height of the latest report.",
		},
	)

	alertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "total",
			Help:      "Spread alerts dispatched, by direction.",
		},
		[]string{"direction"},
	)
)

func init() {
	Registry.MustRegister(
		reportsTotal,
		evaluationDuration,
		evaluationErrors,
		selectedQuotes,
		lastReportBlock,
		alertsTotal,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordEvaluation records one aggregation attempt.
func RecordEvaluation(mode string, d time.Duration, err error) {
	evaluationDuration.WithLabelValues(mode).Observe(d.Seconds())
	if err != nil {
		evaluationErrors.WithLabelValues(mode).Inc()
	}
}

// RecordReport records a persisted report.
func RecordReport(status string, block uint64, selected int) {
	reportsTotal.WithLabelValues(status).Inc()
	lastReportBlock.Set(float64(block))
	selectedQuotes.Set(float64(selected))
}

// RecordAlert records a dispatched alert.
func RecordAlert(direction string) {
	alertsTotal.WithLabelValues(direction).Inc()
}
