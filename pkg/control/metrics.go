// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package control

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the controller's Prometheus counters.
//
// The CLI is short-lived, so counters are exported with
// prometheus.WriteToTextfile into a node-exporter textfile directory when
// one is configured, rather than served over HTTP.
type Metrics struct {
	registry *prometheus.Registry

	Applies        *prometheus.CounterVec
	Rollbacks      prometheus.Counter
	Regressions    prometheus.Counter
	PolicyDenials  prometheus.Counter
	DomainBusyHits prometheus.Counter
}

// NewMetrics builds and registers the controller counters on a private
// registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Applies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ghostctl",
			Name:      "applies_total",
			Help:      "Apply requests by terminal status.",
		}, []string{"status", "domain"}),
		Rollbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ghostctl",
			Name:      "rollbacks_total",
			Help:      "Rollbacks performed (apply failure or regression).",
		}),
		Regressions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ghostctl",
			Name:      "regressions_total",
			Help:      "Verification windows that detected a regression.",
		}),
		PolicyDenials: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ghostctl",
			Name:      "policy_denials_total",
			Help:      "Apply-capable intents denied by the policy gate.",
		}),
		DomainBusyHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ghostctl",
			Name:      "domain_busy_total",
			Help:      "Apply requests rejected because the domain was locked.",
		}),
	}
	m.registry.MustRegister(m.Applies, m.Rollbacks, m.Regressions, m.PolicyDenials, m.DomainBusyHits)
	return m
}

// WriteTextfile exports the counters for the node-exporter textfile
// collector. No-op when path is empty.
func (m *Metrics) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
