// Package metrics exposes run outcomes as Prometheus metrics.
//
// A Recorder owns its registry instead of using the global default, so
// several Apps (and tests) can live in one process. A nil *Recorder is valid
// and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "modgrid"

// Recorder records run metrics.
type Recorder struct {
	registry *prometheus.Registry

	runs           *prometheus.CounterVec
	invokeDuration *prometheus.HistogramVec
	sinkFailures   *prometheus.CounterVec
}

// NewRecorder creates a Recorder with every metric registered, plus the Go
// runtime and process collectors.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Count of finished runs by outcome and the stage that decided it.",
			},
			[]string{"outcome", "stage"},
		),
		invokeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "invocation_duration_seconds",
				Help:      "Time spent inside module functions.",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"module_id"},
		),
		sinkFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sink_failures_total",
				Help:      "Count of terminal events that could not be written.",
			},
			[]string{"stream"},
		),
	}

	r.registry.MustRegister(
		r.runs,
		r.invokeDuration,
		r.sinkFailures,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// RecordRun counts one finished run. outcome is "success" or a failure kind.
func (r *Recorder) RecordRun(outcome, stage string) {
	if r == nil {
		return
	}
	r.runs.WithLabelValues(outcome, stage).Inc()
}

// ObserveInvocation records how long a module function ran.
func (r *Recorder) ObserveInvocation(moduleID string, d time.Duration) {
	if r == nil {
		return
	}
	r.invokeDuration.WithLabelValues(moduleID).Observe(d.Seconds())
}

// RecordSinkFailure counts one event lost by the sink.
func (r *Recorder) RecordSinkFailure(stream string) {
	if r == nil {
		return
	}
	r.sinkFailures.WithLabelValues(stream).Inc()
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler serves the metrics in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
