// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package router

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Session outcomes recorded in peerdocs_sessions_total.
const (
	outcomeDispatched = "dispatched"
	outcomeRejected   = "rejected"
	outcomeFailed     = "failed"
)

// Metrics holds the router's session instruments on a private
// registry.
type Metrics struct {
	Registry *prometheus.Registry

	sessions *prometheus.CounterVec
	inFlight *prometheus.GaugeVec
	duration *prometheus.HistogramVec
}

// NewMetrics creates the instruments and registers them.
func NewMetrics() *Metrics {
	metrics := &Metrics{
		Registry: prometheus.NewRegistry(),
		sessions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "peerdocs",
				Name:      "sessions_total",
				Help:      "Inbound sessions by ALPN and outcome.",
			},
			[]string{"alpn", "outcome"},
		),
		inFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "peerdocs",
				Name:      "sessions_in_flight",
				Help:      "Sessions currently being served.",
			},
			[]string{"alpn"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "peerdocs",
				Name:      "session_duration_seconds",
				Help:      "Time from dispatch until the handler returned.",
				// 1ms .. ~4s
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 13),
			},
			[]string{"alpn"},
		),
	}
	metrics.Registry.MustRegister(metrics.sessions, metrics.inFlight, metrics.duration)
	return metrics
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// SessionsCounter returns the counter for one (alpn, outcome) pair.
func (m *Metrics) SessionsCounter(alpn, outcome string) prometheus.Counter {
	return m.sessions.WithLabelValues(alpn, outcome)
}
