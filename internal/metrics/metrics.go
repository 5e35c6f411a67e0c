package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/battwatch/battwatch/internal/diagnose"
	"github.com/battwatch/battwatch/internal/scheduler"
)

const namespace = "battwatch"

// LatestReader returns the current diagnostic record.
type LatestReader interface {
	Latest() *diagnose.Record
}

// Metrics holds the registry and the tick instruments.
type Metrics struct {
	reg *prometheus.Registry

	datasetLen int
	ticks      prometheus.Counter
	derive     prometheus.Histogram
	samples    prometheus.Gauge
	cursor     prometheus.Gauge
}

// New registers all battwatch collectors, plus the Go runtime and process
// collectors, on a fresh registry. datasetLen is the number of samples the
// scheduler cycles through.
func New(src LatestReader, datasetLen int) *Metrics {
	m := &Metrics{
		reg:        prometheus.NewRegistry(),
		datasetLen: datasetLen,
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Scheduler ticks completed since start.",
		}),
		derive: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "derive_duration_seconds",
			Help:      "Time spent deriving one diagnostic record.",
			Buckets:   prometheus.ExponentialBuckets(0.000001, 4, 10),
		}),
		samples: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dataset_samples",
			Help:      "Number of samples in the loaded dataset.",
		}),
		cursor: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cursor",
			Help:      "Dataset index the next tick will derive.",
		}),
	}
	m.samples.Set(float64(datasetLen))

	m.reg.MustRegister(
		m.ticks,
		m.derive,
		m.samples,
		m.cursor,
		newLatestCollector(src),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Observe records one scheduler tick.
func (m *Metrics) Observe(ev scheduler.Event) {
	m.ticks.Inc()
	m.derive.Observe(ev.Duration.Seconds())
	if m.datasetLen > 0 {
		m.cursor.Set(float64((ev.Index + 1) % m.datasetLen))
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}
