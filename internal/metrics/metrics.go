// Package metrics exposes Prometheus instruments for a check-in station.
//
// A nil *Metrics is valid and records nothing, so callers never need to
// check whether metrics are enabled.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "eventguard"

// Message directions for SyncMessage.
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// Metrics holds the station's instruments.
type Metrics struct {
	registry *prometheus.Registry

	scans    *prometheus.CounterVec
	messages *prometheus.CounterVec
	peers    prometheus.Gauge
	guests   prometheus.Gauge
	alerts   *prometheus.CounterVec
}

// New registers every instrument on a fresh registry, together with the
// Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg)
}

// NewWithRegistry registers the instruments on reg. Tests pass a fresh
// registry per case.
func NewWithRegistry(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		scans: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_total",
			Help:      "Scan attempts recorded at this station, by outcome and day.",
		}, []string{"status", "day"}),
		messages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_messages_total",
			Help:      "Sync protocol messages, by type and direction.",
		}, []string{"type", "direction"}),
		peers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sync_peers",
			Help:      "Open links in the current sync session.",
		}),
		guests: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "guests",
			Help:      "Guests in the local registry.",
		}),
		alerts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Operator alerts raised, by level.",
		}, []string{"level"}),
	}
}

// Registry returns the registry the instruments live on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ScanRecorded counts a locally recorded scan.
func (m *Metrics) ScanRecorded(status string, day int) {
	if m == nil {
		return
	}
	m.scans.WithLabelValues(status, strconv.Itoa(day)).Inc()
}

// SyncMessage counts a protocol message sent or received.
func (m *Metrics) SyncMessage(msgType, direction string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(msgType, direction).Inc()
}

// SyncMessages counts n identical outbound messages, as produced by a
// broadcast.
func (m *Metrics) SyncMessages(msgType string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.messages.WithLabelValues(msgType, DirectionOut).Add(float64(n))
}

// SetPeers records the number of open links.
func (m *Metrics) SetPeers(n int) {
	if m == nil {
		return
	}
	m.peers.Set(float64(n))
}

// SetGuests records the registry size.
func (m *Metrics) SetGuests(n int) {
	if m == nil {
		return
	}
	m.guests.Set(float64(n))
}

// Alert counts an operator alert.
func (m *Metrics) Alert(level string) {
	if m == nil {
		return
	}
	m.alerts.WithLabelValues(level).Inc()
}
