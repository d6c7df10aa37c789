// Package metrics exposes benchmark laps and frame counts as Prometheus
// metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/weiihann/offloadbench/frame"
	"github.com/weiihann/offloadbench/task"
)

const namespace = "offloadbench"

// Recorder owns a private registry with the benchmark's collectors.
type Recorder struct {
	registry *prometheus.Registry

	laps     *prometheus.HistogramVec
	frames   *prometheus.CounterVec
	failures *prometheus.CounterVec
}

// New creates a Recorder with process and Go runtime collectors
// registered alongside the benchmark metrics.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		laps: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "lap_seconds",
			Help:      "Duration of each timed benchmark step.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 16),
		}, []string{"task", "step"}),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_written_total",
			Help:      "Frames written to the peer, by kind.",
		}, []string{"kind"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "repetition_failures_total",
			Help:      "Repetitions that did not produce a result, by failed step.",
		}, []string{"task", "step"}),
	}

	r.registry.MustRegister(
		r.laps,
		r.frames,
		r.failures,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return r
}

// FrameWritten counts one frame of the given kind.
func (r *Recorder) FrameWritten(kind frame.Kind) {
	r.frames.WithLabelValues(kind.String()).Inc()
}

// ObserveResult records every lap and failure of a finished run.
func (r *Recorder) ObserveResult(res *task.Result) {
	if res == nil {
		return
	}

	for step, rec := range res.Laps {
		h := r.laps.WithLabelValues(res.Task, step)
		for _, d := range rec.Laps {
			h.Observe(d.Seconds())
		}
	}

	for _, f := range res.Failures {
		r.failures.WithLabelValues(res.Task, f.Step).Inc()
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}
