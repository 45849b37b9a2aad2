// Package metrics holds the server's Prometheus instruments.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "liveboard"
)

var (
	// Sessions tracks live websocket sessions by role
	Sessions = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions",
			Help:      "Number of connected sessions",
		},
		[]string{"role"}, // owner/guest
	)

	// MessagesTotal counts inbound frames by type and outcome
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Total number of inbound messages handled",
		},
		[]string{"type", "status"}, // status: ok/invalid/rejected/storage_error
	)

	// MessageDuration measures handling latency including the storage round trip
	MessageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "message_duration_seconds",
			Help:      "Inbound message handling latency in seconds",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
		},
		[]string{"type"},
	)

	// BroadcastDeliveries counts per-recipient sends
	BroadcastDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_deliveries_total",
			Help:      "Total number of per-recipient broadcast sends",
		},
		[]string{"status"}, // ok/error
	)

	// HandshakeFailures counts rejected websocket handshakes
	HandshakeFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handshake_failures_total",
			Help:      "Total number of handshakes closed for bad credentials",
		},
	)
)

// Message status labels.
const (
	StatusOK           = "ok"
	StatusInvalid      = "invalid"
	StatusRejected     = "rejected"
	StatusStorageError = "storage_error"
)

// RecordMessage records one handled inbound frame
func RecordMessage(typ, status string, duration time.Duration) {
	MessagesTotal.WithLabelValues(typ, status).Inc()
	MessageDuration.WithLabelValues(typ).Observe(duration.Seconds())
}

// RecordDelivery records one broadcast send
func RecordDelivery(err error) {
	status := StatusOK
	if err != nil {
		status = "error"
	}
	BroadcastDeliveries.WithLabelValues(status).Inc()
}

// RecordSession records a session joining (+1) or leaving (-1)
func RecordSession(role string, delta int) {
	Sessions.WithLabelValues(role).Add(float64(delta))
}

func RecordHandshakeFailure() {
	HandshakeFailures.Inc()
}

// Handler serves the default registry.
func Handler() http.Handler { return promhttp.Handler() }
