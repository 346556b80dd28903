// Copyright (C) 2025 Estuda AI (eng@estuda.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package classifier decides which catalog module should handle an inbound
// message. Two independent signals — a regex/keyword rule scorer and an
// intent scorer — are fused into one ranked decision with a fixed fallback.
//
// The decision path never fails: a panic in either signal is recovered and
// resolved to the fallback module, because a classification failure must not
// block a request that would otherwise be admitted.
//
// Thread Safety:
//
//	All exported types are safe for concurrent use after construction.
package classifier

// Rationale strings attached to every decision. These are stable API: they
// appear in responses and logs and are matched by telemetry dashboards.
const (
	// RationaleFusion marks a decision that cleared the fusion threshold.
	RationaleFusion = "keyword+intent fusion"

	// RationaleLowScore marks a fallback decision where no module cleared
	// the threshold. The losing best score is preserved as the confidence.
	RationaleLowScore = "low score, fallback"

	// RationaleError marks a fallback decision caused by a scorer failure.
	RationaleError = "error, fallback"
)

// ClassificationResult is the per-request output of the decision engine.
//
// Description:
//
//	Ephemeral: produced per request, never persisted beyond request-scoped
//	logging. ModuleID is always either a catalog module id or the catalog's
//	fixed fallback id — never an arbitrary string.
//
// Thread Safety: ClassificationResult is a value type. Safe to copy.
type ClassificationResult struct {
	// ModuleID is the chosen routable module.
	ModuleID string `json:"module_id"`

	// Intent is the coarse intent label (default "general").
	Intent string `json:"intent"`

	// Entities are the matched entity terms in match order.
	Entities []string `json:"entities"`

	// Confidence is in [0,1]. On a low-score fallback it preserves the
	// losing fused score for telemetry rather than being zeroed.
	Confidence float64 `json:"confidence"`

	// Rationale is one of the Rationale* constants.
	Rationale string `json:"rationale"`

	// TraceID correlates this decision with usage-log rows and spans.
	// Unique per request.
	TraceID string `json:"trace_id"`
}

// DefaultIntent is the intent label when no intent rule fires.
const DefaultIntent = "general"
