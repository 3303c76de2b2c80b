// Copyright 2024 The Crunch Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package scheduler

import "github.com/prometheus/client_golang/prometheus"

// Metrics exposes the meta-scheduler's internal state as prometheus
// gauges, grounded on the retrieval pack's own prometheus/client_golang
// usage (the teacher's go.mod already vendors it for its gcm/ metrics
// bridging). Not wired to any particular registry by default — call
// Metrics.MustRegister(reg) once a *MetaScheduler is constructed if its
// owner wants these exported.
type Metrics struct {
	IdleMetaThreads   prometheus.Gauge
	ActiveContexts    prometheus.Gauge
	PollingSchedulers prometheus.Gauge
}

// NewMetrics constructs a fresh, unregistered set of gauges.
func NewMetrics() *Metrics {
	return &Metrics{
		IdleMetaThreads: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "crunch",
			Subsystem: "scheduler",
			Name:      "idle_meta_threads",
			Help:      "Number of meta-threads currently sitting in the idle pool.",
		}),
		ActiveContexts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "crunch",
			Subsystem: "scheduler",
			Name:      "active_contexts",
			Help:      "Number of scheduler.Context handles currently acquired (AcquireContext calls not yet matched by Release), not meta-threads actively running.",
		}),
		PollingSchedulers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "crunch",
			Subsystem: "scheduler",
			Name:      "polling",
			Help:      "Number of schedulers in StatePolling, as last set by a running Context (each Context sets it to its own count).",
		}),
	}
}

// MustRegister registers every gauge in m with reg.
func (m *Metrics) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(m.IdleMetaThreads, m.ActiveContexts, m.PollingSchedulers)
}
