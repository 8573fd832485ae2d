package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sethfduke/ipclink/messages"
)

// Metrics holds the IPC server's prometheus collectors.
type Metrics struct {
	receivedCounter *prometheus.CounterVec
	sentCounter     *prometheus.CounterVec
	failureCounter  *prometheus.CounterVec
	peersGauge      prometheus.Gauge
}

// New registers the collectors with reg. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	m := new(Metrics)

	m.receivedCounter = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "ipclink_payload_received_count",
		Help: "The number of payloads received per kind",
	}, []string{"kind"})

	m.sentCounter = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "ipclink_payload_sent_count",
		Help: "The number of payloads sent per kind",
	}, []string{"kind"})

	m.failureCounter = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "ipclink_route_failure_count",
		Help: "The number of route invocations that produced an error payload",
	}, []string{"route"})

	m.peersGauge = factory.NewGauge(prometheus.GaugeOpts{
		Name: "ipclink_connected_peers",
		Help: "The number of connected peers",
	})

	return m
}

// Received counts an inbound payload under its classifier label.
func (m *Metrics) Received(p *messages.MessagePayload) {
	if m == nil {
		return
	}
	m.receivedCounter.WithLabelValues(p.Classify().Label()).Inc()
}

// Sent counts an outbound payload under its classifier label.
func (m *Metrics) Sent(p *messages.MessagePayload) {
	if m == nil {
		return
	}
	m.sentCounter.WithLabelValues(p.Classify().Label()).Inc()
}

// RouteFailed counts a failed route invocation.
func (m *Metrics) RouteFailed(route string) {
	if m == nil {
		return
	}
	m.failureCounter.WithLabelValues(route).Inc()
}

// SetPeers records the number of connected peers.
func (m *Metrics) SetPeers(n int) {
	if m == nil {
		return
	}
	m.peersGauge.Set(float64(n))
}
