// Package metrics exposes the bridge's Prometheus counters and gauges:
// connections, commands by name, authentication failures, and commits.
// Each Server holds one Metrics registered against its own registry, so a
// process serving multiple test servers in the same binary never collides
// on a global default registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every counter/gauge the session package updates.
type Metrics struct {
	registry *prometheus.Registry

	ConnectionsTotal  prometheus.Counter
	ConnectionsActive prometheus.Gauge
	AuthFailuresTotal prometheus.Counter
	CommitsTotal      prometheus.Counter
	CommandsTotal     *prometheus.CounterVec
}

// New builds a Metrics registered against a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		ConnectionsTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "gitsvnbridge",
			Name:      "connections_total",
			Help:      "Total TCP connections accepted.",
		}),
		ConnectionsActive: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: "gitsvnbridge",
			Name:      "connections_active",
			Help:      "Connections currently in their command loop.",
		}),
		AuthFailuresTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "gitsvnbridge",
			Name:      "auth_failures_total",
			Help:      "Authentication attempts rejected or exhausted.",
		}),
		CommitsTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "gitsvnbridge",
			Name:      "commits_total",
			Help:      "Commits recorded through the commit editor.",
		}),
		CommandsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "gitsvnbridge",
			Name:      "commands_total",
			Help:      "Commands dispatched, by command word.",
		}, []string{"command"}),
	}
	return m
}

// Handler serves the registered metrics in the Prometheus text exposition
// format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
