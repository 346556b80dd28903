// Copyright (C) 2025 Estuda AI (eng@estuda.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package classifier

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Prometheus Metrics for Classification
// =============================================================================

// Decision outcome labels. Fallback outcomes are split so dashboards can
// distinguish "nothing matched" from "a scorer broke".
const (
	OutcomeFused            = "fused"
	OutcomeFallbackLowScore = "fallback_low_score"
	OutcomeFallbackError    = "fallback_error"
)

var (
	// decisionsTotal counts fusion decisions by chosen module and outcome.
	decisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gateway",
		Subsystem: "classifier",
		Name:      "decisions_total",
		Help:      "Total fusion decisions by module and outcome",
	}, []string{"module", "outcome"})

	// decisionLatency measures end-to-end decision latency including both
	// signals and fusion.
	decisionLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "gateway",
		Subsystem: "classifier",
		Name:      "decision_latency_seconds",
		Help:      "Fusion decision latency",
		Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
	})
)

// RecordDecision records one fusion decision.
//
// Inputs:
//   - module: The chosen module id (the fallback id on degraded paths).
//   - outcome: One of the Outcome* labels.
//   - duration: Decision latency.
func RecordDecision(module, outcome string, duration time.Duration) {
	decisionsTotal.WithLabelValues(module, outcome).Inc()
	decisionLatency.Observe(duration.Seconds())
}
