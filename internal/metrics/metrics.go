// Package metrics exposes Prometheus collectors for the upload flow.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "heimdex_edit"

// Drop results.
const (
	ResultAccepted       = "accepted"
	ResultWrongMediaType = "wrong_media_type"
	ResultTooLarge       = "too_large"
	ResultEmpty          = "empty"
	ResultFailed         = "failed"
)

type Metrics struct {
	registry *prometheus.Registry

	Drops         *prometheus.CounterVec
	Resets        prometheus.Counter
	AcceptedBytes prometheus.Counter
}

// Gauges are sampled on scrape.
type Gauges struct {
	ActivePreviews func() int
	ActiveSessions func() int
}

func New(g Gauges) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Drops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drops_total",
			Help:      "Drop and picker attempts by result",
		}, []string{"result"}),
		Resets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resets_total",
			Help:      "New Upload requests",
		}),
		AcceptedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "accepted_bytes_total",
			Help:      "Bytes of accepted video files",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Drops,
		m.Resets,
		m.AcceptedBytes,
	)

	if g.ActivePreviews != nil {
		m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_previews",
			Help:      "Preview handles not yet released",
		}, func() float64 { return float64(g.ActivePreviews()) }))
	}
	if g.ActiveSessions != nil {
		m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Open widget sessions",
		}, func() float64 { return float64(g.ActiveSessions()) }))
	}

	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveDrop(result string) {
	m.Drops.WithLabelValues(result).Inc()
}
