// Package metrics exposes presence scanning as Prometheus metrics.
//
// Metrics implements presence.ScanObserver, so it is wired by passing it in
// presence.Options.Observers. Handler serves the registry for /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/gray-logic-presence/internal/presence"
)

const namespace = "presence"

// Scan result label values.
const (
	resultOK    = "ok"
	resultError = "error"
)

// Metrics holds the service's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	scans        *prometheus.CounterVec
	scanDuration *prometheus.HistogramVec
	devices      *prometheus.GaugeVec
	connected    *prometheus.GaugeVec
	routerUp     *prometheus.GaugeVec
}

// New creates and registers all collectors, including the Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_total",
			Help:      "Router scans by result.",
		}, []string{"router", "result"}),
		scanDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_duration_seconds",
			Help:      "Time taken to fetch and reconcile a router host table.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"router"}),
		devices: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "devices",
			Help:      "Devices tracked in the registry.",
		}, []string{"router"}),
		connected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "devices_connected",
			Help:      "Tracked devices currently connected.",
		}, []string{"router"}),
		routerUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "router_up",
			Help:      "1 if the last scan of the router succeeded.",
		}, []string{"router"}),
	}

	m.registry.MustRegister(
		m.scans,
		m.scanDuration,
		m.devices,
		m.connected,
		m.routerUp,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveScan records one scan. It implements presence.ScanObserver.
func (m *Metrics) ObserveScan(routerID string, r presence.ScanResult) {
	if r.Disabled {
		return
	}

	m.scanDuration.WithLabelValues(routerID).Observe(r.Duration.Seconds())
	m.devices.WithLabelValues(routerID).Set(float64(r.Devices))
	m.connected.WithLabelValues(routerID).Set(float64(r.Connected))

	if r.Err != nil {
		m.scans.WithLabelValues(routerID, resultError).Inc()
		m.routerUp.WithLabelValues(routerID).Set(0)
		return
	}
	m.scans.WithLabelValues(routerID, resultOK).Inc()
	m.routerUp.WithLabelValues(routerID).Set(1)
}

// SetRouterUp records router reachability outside of scans, e.g. a failed setup.
func (m *Metrics) SetRouterUp(routerID string, up bool) {
	v := 0.0
	if up {
		v = 1
	}
	m.routerUp.WithLabelValues(routerID).Set(v)
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
