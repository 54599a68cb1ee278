// Copyright (c) 2025 Harbornet and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package harbor

import "github.com/prometheus/client_golang/prometheus"

type serverMetrics struct {
	accepted          prometheus.Counter
	active            prometheus.Gauge
	handshakeFailures prometheus.Counter
}

func newServerMetrics() *serverMetrics {
	return &serverMetrics{
		accepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "harbor",
			Name:      "accepted_connections_total",
			Help:      "Connections accepted over the lifetime of the server.",
		}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "harbor",
			Name:      "active_connections",
			Help:      "Connections currently being served.",
		}),
		handshakeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "harbor",
			Name:      "tls_handshake_failures_total",
			Help:      "TLS handshakes which failed after accept.",
		}),
	}
}

func (m *serverMetrics) register(reg prometheus.Registerer) {
	reg.MustRegister(m.accepted, m.active, m.handshakeFailures)
}
