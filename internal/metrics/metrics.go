// Package metrics exposes Prometheus collectors for the indexer service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	jobsTotal             *prometheus.CounterVec
	searchPagesTotal      prometheus.Counter
	searchItemsTotal      *prometheus.CounterVec
	rawFetchTotal         *prometheus.CounterVec
	notebooksUpsertsTotal prometheus.Counter
	activeWorkers         prometheus.Gauge
	httpRequestsTotal     *prometheus.CounterVec
	httpRequestDuration   *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		jobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "indexer_jobs_total",
				Help: "Total number of sync jobs processed, labeled by kind and outcome.",
			},
			[]string{"kind", "outcome"},
		)

		searchPagesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "indexer_search_pages_total",
				Help: "Total number of search pages fetched.",
			},
		)

		searchItemsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "indexer_search_items_total",
				Help: "Total number of search items seen, labeled by mapping result.",
			},
			[]string{"result"},
		)

		rawFetchTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "indexer_raw_fetch_total",
				Help: "Total number of raw-content fetches, labeled by status code.",
			},
			[]string{"status"},
		)

		notebooksUpsertsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "indexer_notebook_upserts_total",
				Help: "Total number of notebook candidate upserts.",
			},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "indexer_active_workers",
				Help: "Number of workers currently processing a job.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveJob increments the job counter for the given kind and outcome.
func ObserveJob(kind, outcome string) {
	jobsTotal.WithLabelValues(kind, outcome).Inc()
}

// ObserveSearchPage records one search page and its item mapping results.
func ObserveSearchPage(mapped, skipped int) {
	searchPagesTotal.Inc()
	searchItemsTotal.WithLabelValues("mapped").Add(float64(mapped))
	if skipped > 0 {
		searchItemsTotal.WithLabelValues("skipped").Add(float64(skipped))
	}
}

// ObserveRawFetch increments the raw fetch counter for a status code.
func ObserveRawFetch(status int) {
	rawFetchTotal.WithLabelValues(strconv.Itoa(status)).Inc()
}

// ObserveNotebookUpsert increments the upsert counter.
func ObserveNotebookUpsert() {
	notebooksUpsertsTotal.Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	activeWorkers.Dec()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
