// Copyright (C) 2025 Estuda AI (eng@estuda.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package quota

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Check status label values.
const (
	StatusAllowed    = "allowed"
	StatusDenied     = "denied"
	StatusFailedOpen = "failed_open"
)

// Denial dimension label values.
const (
	DimensionMonthly   = "monthly_tokens"
	DimensionDaily     = "daily_tokens"
	DimensionHourly    = "hourly_tokens"
	DimensionCost      = "cost"
	DimensionSuspended = "suspended"
)

// =============================================================================
// Prometheus Metrics
// =============================================================================

var (
	checksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gateway",
		Subsystem: "quota",
		Name:      "checks_total",
		Help:      "Admission checks by outcome status.",
	}, []string{"status"})

	denialsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gateway",
		Subsystem: "quota",
		Name:      "denials_total",
		Help:      "Denied checks by violated budget dimension. A single denial can count in several dimensions.",
	}, []string{"dimension"})

	tokensCommitted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gateway",
		Subsystem: "quota",
		Name:      "tokens_committed_total",
		Help:      "Total tokens charged to quota records from successful usage rows.",
	})

	costCommittedUSD = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gateway",
		Subsystem: "quota",
		Name:      "cost_committed_usd_total",
		Help:      "Total cost in USD charged to quota records from successful usage rows.",
	})

	usageRowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gateway",
		Subsystem: "quota",
		Name:      "usage_rows_total",
		Help:      "Usage-log rows appended, by downstream call success.",
	}, []string{"success"})

	reconcileFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gateway",
		Subsystem: "quota",
		Name:      "reconcile_failures_total",
		Help:      "Async usage recordings that failed after exhausting retries.",
	})
)

// RecordCheck updates the check counters from a completed decision.
func RecordCheck(d Decision) {
	status := StatusAllowed
	if !d.Allowed {
		status = StatusDenied
	}
	checksTotal.WithLabelValues(status).Inc()

	if d.Allowed {
		return
	}
	if d.QuotaExceeded {
		denialsTotal.WithLabelValues(DimensionMonthly).Inc()
	}
	if d.DailyLimitExceeded {
		denialsTotal.WithLabelValues(DimensionDaily).Inc()
	}
	if d.HourlyLimitExceeded {
		denialsTotal.WithLabelValues(DimensionHourly).Inc()
	}
	if d.CostLimitExceeded {
		denialsTotal.WithLabelValues(DimensionCost).Inc()
	}
	if d.Suspended {
		denialsTotal.WithLabelValues(DimensionSuspended).Inc()
	}
}

// RecordFailedOpen counts a check that was skipped because the store was
// unavailable and the request was admitted anyway.
func RecordFailedOpen() {
	checksTotal.WithLabelValues(StatusFailedOpen).Inc()
}

// RecordUsageCommitted updates the usage counters from a committed log row.
// Failed rows count as rows but never charge tokens or cost.
func RecordUsageCommitted(entry *UsageLogEntry) {
	if entry.Success {
		usageRowsTotal.WithLabelValues("true").Inc()
		tokensCommitted.Add(float64(entry.TotalTokens))
		costCommittedUSD.Add(entry.CostUSD)
		return
	}
	usageRowsTotal.WithLabelValues("false").Inc()
}

// RecordReconcileFailure counts a usage row dropped by the async recorder
// after its retries were exhausted.
func RecordReconcileFailure() {
	reconcileFailures.Inc()
}
