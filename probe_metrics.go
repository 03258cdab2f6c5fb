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

const promNamespace = "proxybridge"

type probeMetrics struct {
	attempts *prometheus.CounterVec
}

func newProbeMetrics(r prometheus.Registerer, namespace string) *probeMetrics {
	if r == nil {
		r = prometheus.NewRegistry() // This registry will be discarded.
	}
	f := promauto.With(r)

	return &probeMetrics{
		attempts: f.NewCounterVec(prometheus.CounterOpts{
			Name:      "probe_attempts_total",
			Namespace: namespace,
			Help:      "Number of proxy connectivity check attempts",
		}, []string{"result"}),
	}
}

func (m *probeMetrics) attempt(ok bool) {
	if ok {
		m.attempts.WithLabelValues("success").Inc()
	} else {
		m.attempts.WithLabelValues("failure").Inc()
	}
}
