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
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/EstudaAI/EstudaGateway/services/gateway/catalog"
)

// =============================================================================
// Fusion Weights
// =============================================================================

const (
	// intentWeight is the fusion weight of the intent scorer's confidence.
	intentWeight = 0.6

	// ruleWeight is the fusion weight of the normalized rule score.
	ruleWeight = 0.4

	// fusionThreshold is the minimum fused score for a non-fallback decision.
	fusionThreshold = 0.5

	// errorFallbackConfidence is the confidence reported when a sub-scorer
	// fails and the decision degrades to the fallback module.
	errorFallbackConfidence = 0.1
)

var fusionTracer = otel.Tracer("estuda.gateway.classifier")

// =============================================================================
// Signal Interfaces
// =============================================================================

// RuleSignal is the rule scorer's contract as seen by the fusion engine.
type RuleSignal interface {
	// Score returns a normalized score per catalog module id.
	Score(text string) map[string]float64
}

// IntentSignal is the intent scorer's contract as seen by the fusion engine.
type IntentSignal interface {
	// Classify returns the scorer's independent module vote.
	Classify(text, context string) ClassificationResult
}

// =============================================================================
// Engine
// =============================================================================

// Engine combines the rule and intent signals into one ranked decision.
//
// Description:
//
//	For every catalog module m:
//
//	    fused(m) = 0.6 * (vote == m ? vote.confidence : 0) + 0.4 * rule(m)
//
//	The best module wins if fused(best) ≥ 0.5; ties resolve to the first
//	module in catalog iteration order (a documented, testable tie-break).
//	Below threshold the fixed fallback module is returned with the losing
//	score preserved as the confidence.
//
//	Decide never returns an error and never panics to its caller: a failure
//	in either signal degrades to the fallback module with confidence 0.1.
//
// Thread Safety: Safe for concurrent use.
type Engine struct {
	cat    *catalog.Catalog
	rules  RuleSignal
	intent IntentSignal
	logger *slog.Logger
}

// NewEngine wires the default rule and intent scorers over the catalog.
//
// Inputs:
//   - cat: The loaded module catalog. Must not be nil.
//   - logger: Logger for decision diagnostics. May be nil.
//
// Outputs:
//   - *Engine: Ready-to-use decision engine.
func NewEngine(cat *catalog.Catalog, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cat:    cat,
		rules:  NewRuleScorer(cat, logger),
		intent: NewIntentScorer(cat),
		logger: logger,
	}
}

// NewEngineWithSignals wires an engine over externally supplied signals.
// Used by tests and by deployments that swap the intent stand-in for a
// learned classifier.
func NewEngineWithSignals(cat *catalog.Catalog, rules RuleSignal, intent IntentSignal, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{cat: cat, rules: rules, intent: intent, logger: logger}
}

// Decide classifies the text into exactly one catalog module.
//
// Description:
//
//	Runs both signals in parallel, fuses their scores, and resolves to a
//	module id that is always present in the catalog (the fallback included).
//	A panic in either signal is recovered here — the hard contract is that
//	classification can never block an otherwise-admissible request.
//
// Inputs:
//   - ctx: Context for tracing. May be nil.
//   - text: The inbound message. Empty text resolves to the fallback.
//   - convContext: Optional conversational context for the intent signal.
//
// Outputs:
//   - ClassificationResult: The decision. Never zero-valued; TraceID is
//     always set.
func (e *Engine) Decide(ctx context.Context, text, convContext string) ClassificationResult {
	if ctx == nil {
		ctx = context.Background()
	}

	start := time.Now()
	traceID := newTraceID()

	ctx, span := fusionTracer.Start(ctx, "classifier.Engine.Decide")
	defer span.End()

	var (
		ruleScores map[string]float64
		vote       ClassificationResult
	)

	// Both signals run in parallel; panics become errors so the decision
	// path can degrade instead of unwinding into the handler.
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("rule scorer: panic: %v", r)
			}
		}()
		ruleScores = e.rules.Score(text)
		return nil
	})
	g.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("intent scorer: panic: %v", r)
			}
		}()
		vote = e.intent.Classify(text, convContext)
		return nil
	})

	if err := g.Wait(); err != nil {
		e.logger.Error("classification failed, degrading to fallback",
			slog.String("trace_id", traceID),
			slog.String("error", err.Error()),
		)
		RecordDecision(e.cat.FallbackID(), OutcomeFallbackError, time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, "scorer failure")

		return ClassificationResult{
			ModuleID:   e.cat.FallbackID(),
			Intent:     DefaultIntent,
			Confidence: errorFallbackConfidence,
			Rationale:  RationaleError,
			TraceID:    traceID,
		}
	}

	bestID := ""
	bestScore := math.Inf(-1)
	for _, m := range e.cat.Modules() {
		voteConfidence := 0.0
		if vote.ModuleID == m.ID {
			voteConfidence = vote.Confidence
		}
		fused := intentWeight*voteConfidence + ruleWeight*ruleScores[m.ID]

		// Strictly greater: the first module in catalog order wins ties.
		if fused > bestScore {
			bestScore = fused
			bestID = m.ID
		}
	}

	result := ClassificationResult{
		ModuleID:   bestID,
		Intent:     vote.Intent,
		Entities:   vote.Entities,
		Confidence: bestScore,
		Rationale:  RationaleFusion,
		TraceID:    traceID,
	}
	outcome := OutcomeFused

	if bestScore < fusionThreshold {
		// Preserve the losing score for telemetry; do not zero it.
		result.ModuleID = e.cat.FallbackID()
		result.Rationale = RationaleLowScore
		outcome = OutcomeFallbackLowScore
	}

	RecordDecision(result.ModuleID, outcome, time.Since(start))
	span.SetAttributes(
		attribute.String("module_id", result.ModuleID),
		attribute.String("intent", result.Intent),
		attribute.Float64("confidence", result.Confidence),
		attribute.String("rationale", result.Rationale),
		attribute.String("gateway_trace_id", traceID),
	)
	span.SetStatus(codes.Ok, "")

	e.logger.Debug("classification decision",
		slog.String("trace_id", traceID),
		slog.String("module_id", result.ModuleID),
		slog.String("intent", result.Intent),
		slog.Float64("confidence", result.Confidence),
		slog.String("rationale", result.Rationale),
	)

	return result
}

// newTraceID builds a per-request correlation id from the monotonic-ordered
// wall clock plus a random component. Uniqueness per request is what log
// correlation depends on; the timestamp prefix keeps ids sortable.
func newTraceID() string {
	return fmt.Sprintf("%d-%s", time.Now().UnixNano(), uuid.NewString()[:8])
}
