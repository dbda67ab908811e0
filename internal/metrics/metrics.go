// Package metrics exposes Prometheus collectors for pipeline runs, the
// scheduler and the dedup cache.
package metrics

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	articlesTotal              *prometheus.CounterVec
	fetchBytesTotal            *prometheus.CounterVec
	extractionDurationSeconds  *prometheus.HistogramVec
	activeWorkers              prometheus.Gauge
	sourceInFlight             *prometheus.GaugeVec
	rateLimitDelaySeconds      *prometheus.HistogramVec
	dedupFilteredTotal         *prometheus.CounterVec
	dedupOverflowTotal         *prometheus.CounterVec
	schedulerRunDurationSecond prometheus.Histogram

	once sync.Once
)

// Init registers the collectors with the default registry. It is safe to
// call more than once, and every Observe function calls it.
func Init() {
	once.Do(func() {
		articlesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "article_pipeline_articles_total",
				Help: "Articles that reached a terminal stage, labeled by site and stage.",
			},
			[]string{"site", "stage"},
		)

		fetchBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "article_pipeline_fetch_bytes_total",
				Help: "Bytes of page content fetched, labeled by site.",
			},
			[]string{"site"},
		)

		extractionDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "article_pipeline_stage_duration_seconds",
				Help:    "Time spent in each pipeline stage.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"stage"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "article_pipeline_active_workers",
				Help: "Workers currently running a pipeline.",
			},
		)

		sourceInFlight = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "article_pipeline_source_in_flight",
				Help: "Pipelines currently running per source.",
			},
			[]string{"source"},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "article_pipeline_rate_limit_delay_seconds",
				Help:    "Time spent waiting for a per-host rate limit token.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		dedupFilteredTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "article_pipeline_dedup_filtered_total",
				Help: "Candidate URLs dropped because they were already memoized.",
			},
			[]string{"source"},
		)

		dedupOverflowTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "article_pipeline_dedup_overflow_total",
				Help: "Dedup entries discarded for exceeding the size limit.",
			},
			[]string{"source"},
		)

		schedulerRunDurationSecond = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "article_pipeline_scheduler_run_duration_seconds",
				Help:    "Wall time of one scheduler run, submission to join.",
				Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
			},
		)
	})
}

// SanitizeSite reduces a URL or host to a lowercase hostname, or "unknown".
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") && !strings.HasPrefix(rawURL, "file:") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "unknown"
	}
	if u.Scheme == "file" {
		return "file"
	}
	if u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveArticle counts an article reaching its terminal stage.
func ObserveArticle(site, stage string) {
	Init()
	articlesTotal.WithLabelValues(SanitizeSite(site), stage).Inc()
}

// ObserveFetch adds fetched bytes for site.
func ObserveFetch(site string, bytesFetched int) {
	Init()
	if bytesFetched > 0 {
		fetchBytesTotal.WithLabelValues(SanitizeSite(site)).Add(float64(bytesFetched))
	}
}

// ObserveStage records how long a pipeline stage took.
func ObserveStage(stage string, d time.Duration) {
	Init()
	extractionDurationSeconds.WithLabelValues(stage).Observe(d.Seconds())
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	activeWorkers.Dec()
}

// SourceStarted and SourceFinished track per-source concurrency.
func SourceStarted(source string) {
	Init()
	sourceInFlight.WithLabelValues(source).Inc()
}

// SourceFinished is the counterpart of SourceStarted.
func SourceFinished(source string) {
	Init()
	sourceInFlight.WithLabelValues(source).Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, d time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(domain).Observe(d.Seconds())
}

// ObserveDedup records how many candidates a source filter dropped.
func ObserveDedup(source string, filtered int) {
	Init()
	if filtered > 0 {
		dedupFilteredTotal.WithLabelValues(source).Add(float64(filtered))
	}
}

// ObserveDedupOverflow counts a discarded dedup entry.
func ObserveDedupOverflow(source string) {
	Init()
	dedupOverflowTotal.WithLabelValues(source).Inc()
}

// ObserveRun records a scheduler run's wall time.
func ObserveRun(d time.Duration) {
	Init()
	schedulerRunDurationSecond.Observe(d.Seconds())
}
