// Copyright 2024-2026 The proxybridge Authors, all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package proxybridge

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type tunnelMetrics struct {
	relaysTotal  prometheus.Counter
	relaysActive prometheus.Gauge
	errors       *prometheus.CounterVec
	bytes        *prometheus.CounterVec
}

func newTunnelMetrics(r prometheus.Registerer, namespace string) *tunnelMetrics {
	if r == nil {
		r = prometheus.NewRegistry() // This registry will be discarded.
	}
	f := promauto.With(r)

	return &tunnelMetrics{
		relaysTotal: f.NewCounter(prometheus.CounterOpts{
			Name:      "tunnel_relays_total",
			Namespace: namespace,
			Help:      "Number of tunneled connections",
		}),
		relaysActive: f.NewGauge(prometheus.GaugeOpts{
			Name:      "tunnel_relays_active",
			Namespace: namespace,
			Help:      "Number of currently tunneled connections",
		}),
		errors: f.NewCounterVec(prometheus.CounterOpts{
			Name:      "tunnel_relay_errors_total",
			Namespace: namespace,
			Help:      "Number of relay errors",
		}, []string{"reason"}),
		bytes: f.NewCounterVec(prometheus.CounterOpts{
			Name:      "tunnel_transferred_bytes_total",
			Namespace: namespace,
			Help:      "Number of bytes relayed between client and upstream",
		}, []string{"direction"}),
	}
}

func (m *tunnelMetrics) relayOpened() {
	m.relaysTotal.Inc()
	m.relaysActive.Inc()
}

func (m *tunnelMetrics) relayClosed() {
	m.relaysActive.Dec()
}

func (m *tunnelMetrics) relayError(reason string) {
	m.errors.WithLabelValues(reason).Inc()
}

func (m *tunnelMetrics) transferred(direction string, n int64) {
	m.bytes.WithLabelValues(direction).Add(float64(n))
}
