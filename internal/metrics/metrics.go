// Package metrics exposes Prometheus collectors for harvest runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder owns a private registry so that several recorders (one per test,
// for instance) never collide on the default one. A nil *Recorder is a no-op.
type Recorder struct {
	registry *prometheus.Registry

	requests       *prometheus.CounterVec
	fetchAttempts  prometheus.Counter
	dropped        *prometheus.CounterVec
	emitted        prometheus.Counter
	linksFound     prometheus.Counter
	linkDuplicates prometheus.Counter
	previouslySeen prometheus.Counter
	runDuration    prometheus.Histogram
	lastRun        prometheus.Gauge
}

// NewRecorder registers every collector on a fresh registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "harvester_requests_total",
			Help: "Requests pulled from the frontier, labeled by kind.",
		}, []string{"kind"}),
		fetchAttempts: factory.NewCounter(prometheus.CounterOpts{
			Name: "harvester_fetch_attempts_total",
			Help: "HTTP attempts made, retries included.",
		}),
		dropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "harvester_dropped_total",
			Help: "Requests abandoned, labeled by reason.",
		}, []string{"reason"}),
		emitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "harvester_records_emitted_total",
			Help: "Article records accepted by at least one sink.",
		}),
		linksFound: factory.NewCounter(prometheus.CounterOpts{
			Name: "harvester_links_discovered_total",
			Help: "Article links found on listing pages.",
		}),
		linkDuplicates: factory.NewCounter(prometheus.CounterOpts{
			Name: "harvester_links_duplicate_total",
			Help: "Article links rejected by the frontier as already seen.",
		}),
		previouslySeen: factory.NewCounter(prometheus.CounterOpts{
			Name: "harvester_links_previously_harvested_total",
			Help: "Article links skipped because an earlier run emitted them.",
		}),
		runDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "harvester_run_duration_seconds",
			Help:    "Wall time of complete harvest runs.",
			Buckets: []float64{30, 60, 300, 600, 1800, 3600, 7200},
		}),
		lastRun: factory.NewGauge(prometheus.GaugeOpts{
			Name: "harvester_last_run_timestamp_seconds",
			Help: "Unix time at which the last harvest run finished.",
		}),
	}
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler serves the recorder's registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

func (r *Recorder) ObserveRequest(kind string) {
	if r == nil {
		return
	}
	r.requests.WithLabelValues(kind).Inc()
}

func (r *Recorder) ObserveAttempts(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.fetchAttempts.Add(float64(n))
}

func (r *Recorder) ObserveDrop(reason string) {
	if r == nil {
		return
	}
	r.dropped.WithLabelValues(reason).Inc()
}

func (r *Recorder) ObserveEmitted() {
	if r == nil {
		return
	}
	r.emitted.Inc()
}

// ObserveLinks records one listing page's link outcome.
func (r *Recorder) ObserveLinks(discovered, duplicates, previouslyHarvested int) {
	if r == nil {
		return
	}
	r.linksFound.Add(float64(discovered))
	r.linkDuplicates.Add(float64(duplicates))
	r.previouslySeen.Add(float64(previouslyHarvested))
}

// ObserveRun records the completion of a harvest run.
func (r *Recorder) ObserveRun(elapsed time.Duration, finished time.Time) {
	if r == nil {
		return
	}
	r.runDuration.Observe(elapsed.Seconds())
	r.lastRun.Set(float64(finished.Unix()))
}
