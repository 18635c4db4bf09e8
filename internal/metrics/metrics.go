// Package metrics exposes generation counters over Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the kbpress collectors on an isolated registry so tests
// can each build their own.
type Metrics struct {
	Registry *prometheus.Registry

	DocumentsTotal     *prometheus.CounterVec
	ImagesTotal        *prometheus.CounterVec
	GenerationSeconds  *prometheus.HistogramVec
	RegenerationsTotal *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()

	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,

		DocumentsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kbpress_documents_total",
				Help: "Documents processed, by namespace and outcome.",
			},
			[]string{"namespace", "status"},
		),
		ImagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kbpress_images_total",
				Help: "Remote images handled, by kind (svg, raster, error).",
			},
			[]string{"kind"},
		),
		GenerationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kbpress_generation_seconds",
				Help:    "Time to generate one namespace.",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~50s
			},
			[]string{"namespace"},
		),
		RegenerationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kbpress_regenerations_total",
				Help: "Webhook and manual regenerations, by result.",
			},
			[]string{"result"},
		),
	}

	reg.MustRegister(
		m.DocumentsTotal,
		m.ImagesTotal,
		m.GenerationSeconds,
		m.RegenerationsTotal,
	)

	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Document counts one document outcome. Safe on a nil receiver.
func (m *Metrics) Document(namespace, status string) {
	if m == nil {
		return
	}
	m.DocumentsTotal.WithLabelValues(namespace, status).Inc()
}

// Image counts one image by kind. Safe on a nil receiver.
func (m *Metrics) Image(kind string) {
	if m == nil {
		return
	}
	m.ImagesTotal.WithLabelValues(kind).Inc()
}

// Generation records how long a namespace took. Safe on a nil receiver.
func (m *Metrics) Generation(namespace string, seconds float64) {
	if m == nil {
		return
	}
	m.GenerationSeconds.WithLabelValues(namespace).Observe(seconds)
}

// Regeneration counts one regeneration result. Safe on a nil receiver.
func (m *Metrics) Regeneration(result string) {
	if m == nil {
		return
	}
	m.RegenerationsTotal.WithLabelValues(result).Inc()
}
