// Package metrics exposes Prometheus collectors for the upload pipeline,
// the metadata dispatcher, review transitions and the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JonMunkholm/datasets/internal/core"
)

const namespace = "datasets"

// Collector implements core.Recorder. Collectors are registered on the
// Registerer given to New so tests can use a private registry.
type Collector struct {
	ingests        *prometheus.CounterVec
	ingestDuration *prometheus.HistogramVec
	ingestRows     prometheus.Histogram

	generations        *prometheus.CounterVec
	generationAttempts prometheus.Histogram
	generationDuration prometheus.Histogram
	queueDepth         prometheus.Gauge

	reviews  *prometheus.CounterVec
	versions prometheus.Counter

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

var _ core.Recorder = (*Collector)(nil)

// New creates and registers all collectors on reg.
func New(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		ingests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "files_total",
			Help:      "Uploaded files by type and outcome",
		}, []string{"file_type", "outcome"}),
		ingestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "duration_seconds",
			Help:      "Time to store and profile an uploaded file",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"file_type"}),
		ingestRows: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "rows",
			Help:      "Data rows per successfully profiled file",
			Buckets:   prometheus.ExponentialBuckets(10, 10, 6),
		}),

		generations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "metadata",
			Name:      "generations_total",
			Help:      "Metadata generation jobs by outcome",
		}, []string{"outcome"}),
		generationAttempts: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "metadata",
			Name:      "generation_attempts",
			Help:      "Generator calls per finished job",
			Buckets:   []float64{1, 2, 3, 4, 5},
		}),
		generationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "metadata",
			Name:      "generation_duration_seconds",
			Help:      "Wall time of a metadata job including retries",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}),
		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "metadata",
			Name:      "queue_depth",
			Help:      "Jobs waiting for a dispatcher worker",
		}),

		reviews: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "review",
			Name:      "transitions_total",
			Help:      "Accepted metadata submissions by trigger",
		}, []string{"trigger"}),
		versions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "review",
			Name:      "versions_created_total",
			Help:      "New data versions attached to approved datasets",
		}),

		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status",
		}, []string{"method", "route", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		}, []string{"method", "route"}),
	}
}

func (c *Collector) IngestCompleted(fileType, outcome string, rows int, d time.Duration) {
	c.ingests.WithLabelValues(fileType, outcome).Inc()
	c.ingestDuration.WithLabelValues(fileType).Observe(d.Seconds())
	if outcome == "ok" {
		c.ingestRows.Observe(float64(rows))
	}
}

func (c *Collector) MetadataGenerated(outcome string, attempts int, d time.Duration) {
	c.generations.WithLabelValues(outcome).Inc()
	if attempts > 0 {
		c.generationAttempts.Observe(float64(attempts))
		c.generationDuration.Observe(d.Seconds())
	}
}

func (c *Collector) QueueDepth(n int) {
	c.queueDepth.Set(float64(n))
}

func (c *Collector) ReviewTransition(trigger core.Trigger) {
	c.reviews.WithLabelValues(string(trigger)).Inc()
}

func (c *Collector) VersionCreated() {
	c.versions.Inc()
}

// Middleware records request counts and latency per chi route pattern.
// Unmatched requests share the "unmatched" route label.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		c.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		c.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
