package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "assistgate"

var (
	upstreamReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Total ask upstream requests by assistant context and result",
		},
		[]string{"context", "result"},
	)

	upstreamLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "Duration of ask upstream requests, retries included",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"context"},
	)

	conversions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversions_total",
			Help:      "Resume conversions by result (markdown, fallback, rejected)",
		},
		[]string{"result"},
	)

	artifacts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifacts_rendered_total",
			Help:      "Rendered artifacts by kind (cover_letter_pdf, quote_html)",
		},
		[]string{"kind"},
	)

	rateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests refused by a limiter, by scope (local, upstream, inflight)",
		},
		[]string{"scope"},
	)

	archiveJobs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_jobs_total",
			Help:      "Archive jobs by result (stored, retry, dlq)",
		},
		[]string{"result"},
	)

	queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Archive queue depth for stream and dlq",
		},
		[]string{"type"},
	)
)

// Init registers collectors.
func Init() {
	prometheus.MustRegister(upstreamReqs, upstreamLatency, conversions, artifacts, rateLimited, archiveJobs, queueDepth)
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func ObserveUpstream(context, result string, dur time.Duration) {
	if context == "" {
		context = "none"
	}
	upstreamReqs.WithLabelValues(context, result).Inc()
	upstreamLatency.WithLabelValues(context).Observe(dur.Seconds())
}

func IncConversion(result string) { conversions.WithLabelValues(result).Inc() }
func IncArtifact(kind string)     { artifacts.WithLabelValues(kind).Inc() }
func IncRateLimited(scope string) { rateLimited.WithLabelValues(scope).Inc() }
func IncArchive(result string)    { archiveJobs.WithLabelValues(result).Inc() }

func SetQueueDepth(kind string, v int64) { queueDepth.WithLabelValues(kind).Set(float64(v)) }
