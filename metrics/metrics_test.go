package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/sethfduke/ipclink/messages"
)

func TestMetrics(t *testing.T) {
	t.Run("received by kind", func(t *testing.T) {
		m := New(prometheus.NewRegistry())

		m.Received(messages.NewRequest("ping", nil))
		m.Received(messages.NewRequest("ping", nil))
		m.Received(messages.NewMessagePayload(messages.WithType(99)))
		m.Received(messages.NewMessagePayload())

		if got := testutil.ToFloat64(m.receivedCounter.WithLabelValues("request")); got != 2 {
			t.Errorf("expected 2 requests, got %v", got)
		}
		if got := testutil.ToFloat64(m.receivedCounter.WithLabelValues("unknown")); got != 2 {
			t.Errorf("expected 2 unknown payloads, got %v", got)
		}
	})

	t.Run("sent, failures and peers", func(t *testing.T) {
		m := New(prometheus.NewRegistry())

		m.Sent(messages.NewSuccess("peer", nil))
		m.RouteFailed("ping")
		m.SetPeers(3)

		if got := testutil.ToFloat64(m.sentCounter.WithLabelValues("success")); got != 1 {
			t.Errorf("expected 1 success, got %v", got)
		}
		if got := testutil.ToFloat64(m.failureCounter.WithLabelValues("ping")); got != 1 {
			t.Errorf("expected 1 failure, got %v", got)
		}
		if got := testutil.ToFloat64(m.peersGauge); got != 3 {
			t.Errorf("expected 3 peers, got %v", got)
		}
	})

	t.Run("nil metrics are a no-op", func(t *testing.T) {
		var m *Metrics
		m.Received(messages.NewMessagePayload())
		m.Sent(messages.NewMessagePayload())
		m.RouteFailed("x")
		m.SetPeers(1)
	})
}
