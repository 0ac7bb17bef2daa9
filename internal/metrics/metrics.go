// Package metrics holds the Prometheus collectors for the download queue and
// the login flow. Collectors are registered on a private registry so tests
// and multiple app instances never collide on the default one.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cilicili"

// Metrics groups all collectors of the application
type Metrics struct {
	Registry *prometheus.Registry

	DownloadsStarted   prometheus.Counter
	DownloadsFinished  *prometheus.CounterVec // label: status
	ActiveDownloads    prometheus.Gauge
	RejectedTransition prometheus.Counter

	LoginPolls    *prometheus.CounterVec // label: code
	LoginAttempts prometheus.Counter
}

// New creates and registers all collectors on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		DownloadsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "download",
			Name:      "started_total",
			Help:      "Downloads handed to the fetcher.",
		}),
		DownloadsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "download",
			Name:      "finished_total",
			Help:      "Downloads that reached a terminal status.",
		}, []string{"status"}),
		ActiveDownloads: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "download",
			Name:      "active",
			Help:      "Downloads currently in flight.",
		}),
		RejectedTransition: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "download",
			Name:      "rejected_transitions_total",
			Help:      "Illegal status transitions that were refused.",
		}),
		LoginPolls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "login",
			Name:      "polls_total",
			Help:      "Login status polls by outcome.",
		}, []string{"code"}),
		LoginAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "login",
			Name:      "attempts_total",
			Help:      "QR login attempts started.",
		}),
	}

	reg.MustRegister(
		m.DownloadsStarted,
		m.DownloadsFinished,
		m.ActiveDownloads,
		m.RejectedTransition,
		m.LoginPolls,
		m.LoginAttempts,
	)
	return m
}

// Handler exposes the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
