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
	"regexp"
	"strings"

	"github.com/EstudaAI/EstudaGateway/services/gateway/catalog"
)

// =============================================================================
// Intent Scoring Weights
// =============================================================================

const (
	// entityWeight is added per matching entity term (literal substring).
	entityWeight = 0.5

	// intentKeywordWeight is added per matching keyword regex.
	intentKeywordWeight = 0.3

	// maxIntentConfidence caps the scorer's confidence. This scorer is a
	// stand-in for a learned classifier; it never claims certainty.
	maxIntentConfidence = 0.9

	// baseIntentConfidence is the confidence floor for a module that won the
	// vote with any positive score.
	baseIntentConfidence = 0.5
)

// intentRule infers a coarse intent label from a text pattern, scoped to a
// specific module. Rules fire only when their module won the vote.
type intentRule struct {
	moduleID string
	pattern  *regexp.Regexp
	intent   string
}

// intentRules is the fixed rule table. First match wins.
var intentRules = []intentRule{
	{"enem", regexp.MustCompile(`(?i)(quest(ão|ões|oes)|\?)`), "fetch-questions"},
	{"enem", regexp.MustCompile(`(?i)(simulado|prova completa)`), "start-mock-exam"},
	{"redacao", regexp.MustCompile(`(?i)(corrig|avalia|nota)`), "grade-essay"},
	{"redacao", regexp.MustCompile(`(?i)tema`), "suggest-topic"},
	{"aulas", regexp.MustCompile(`(?i)(resumo|resumir)`), "summarize-lesson"},
	{"aulas", regexp.MustCompile(`(?i)(aula|videoaula)`), "fetch-lessons"},
	{"secretaria", regexp.MustCompile(`(?i)(matr(í|i)cula|cadastro)`), "enrollment-info"},
	{"secretaria", regexp.MustCompile(`(?i)(boleto|mensalidade|pagamento|fatura)`), "billing-info"},
}

// =============================================================================
// IntentScorer
// =============================================================================

// moduleVocabulary holds one module's pre-lowered entity terms and compiled
// keyword regexes for intent scoring.
type moduleVocabulary struct {
	id       string
	entities []string // lowercase literals
	keywords []*regexp.Regexp
	vocab    int // |keywords| + |entities|, the confidence divisor
}

// IntentScorer is the second, independently-scored classification signal.
//
// Description:
//
//	A deterministic stand-in for a learned classifier. Accumulates +0.5 per
//	entity term found as a case-insensitive literal substring and +0.3 per
//	keyword regex match, votes for the highest-scoring module, and derives
//	a confidence from the score relative to the module's vocabulary size:
//
//	    confidence = min(0.9, 0.5 + score / max(1, |keywords|+|entities|))
//
//	The contract (inputs, outputs, confidence semantics) is what downstream
//	fusion depends on; the internal scoring is replaceable.
//
// Thread Safety: Safe for concurrent use (read-only after construction).
type IntentScorer struct {
	modules    []moduleVocabulary
	fallbackID string
}

// NewIntentScorer builds an intent scorer over the catalog vocabulary.
//
// Inputs:
//   - cat: The loaded module catalog. Must not be nil.
//
// Outputs:
//   - *IntentScorer: Ready-to-use scorer.
func NewIntentScorer(cat *catalog.Catalog) *IntentScorer {
	modules := make([]moduleVocabulary, 0, cat.Len())
	for _, m := range cat.Modules() {
		mv := moduleVocabulary{
			id:       m.ID,
			keywords: compileTerms(m.Keywords),
			vocab:    len(m.Keywords) + len(m.Entities),
		}
		for _, e := range m.Entities {
			if e != "" {
				mv.entities = append(mv.entities, strings.ToLower(e))
			}
		}
		modules = append(modules, mv)
	}
	return &IntentScorer{
		modules:    modules,
		fallbackID: cat.FallbackID(),
	}
}

// Classify produces this scorer's independent best guess for the text.
//
// Description:
//
//	The returned ModuleID is this scorer's vote, not a fused decision. The
//	optional context string participates in matching with half relevance:
//	it is appended after the text, so entity and keyword matches inside it
//	still count (regex and substring matching are position-independent).
//
//	Pure function of its inputs: identical text and context always yield
//	an identical result (TraceID excepted — it is assigned by the fusion
//	engine, not here).
//
// Inputs:
//   - text: The inbound message.
//   - context: Optional conversational context. May be empty.
//
// Outputs:
//   - ClassificationResult: Vote, intent, matched entities, and confidence.
func (s *IntentScorer) Classify(text, context string) ClassificationResult {
	haystack := strings.ToLower(text)
	if context != "" {
		haystack += "\n" + strings.ToLower(context)
	}

	bestID := s.fallbackID
	bestScore := 0.0
	bestVocab := 0
	var bestEntities []string

	for _, mv := range s.modules {
		score := 0.0
		var matched []string
		for _, e := range mv.entities {
			if strings.Contains(haystack, e) {
				score += entityWeight
				matched = append(matched, e)
			}
		}
		for _, re := range mv.keywords {
			if re.MatchString(haystack) {
				score += intentKeywordWeight
			}
		}

		// Strictly greater: earlier catalog order wins ties.
		if score > bestScore {
			bestScore = score
			bestID = mv.id
			bestVocab = mv.vocab
			bestEntities = matched
		}
	}

	confidence := 0.0
	if bestScore > 0 {
		divisor := bestVocab
		if divisor < 1 {
			divisor = 1
		}
		confidence = baseIntentConfidence + bestScore/float64(divisor)
		if confidence > maxIntentConfidence {
			confidence = maxIntentConfidence
		}
	}

	return ClassificationResult{
		ModuleID:   bestID,
		Intent:     s.inferIntent(bestID, haystack),
		Entities:   bestEntities,
		Confidence: confidence,
	}
}

// inferIntent returns the first matching intent rule for the voted module,
// or DefaultIntent when none fires.
func (s *IntentScorer) inferIntent(moduleID, haystack string) string {
	for _, rule := range intentRules {
		if rule.moduleID != moduleID {
			continue
		}
		if rule.pattern.MatchString(haystack) {
			return rule.intent
		}
	}
	return DefaultIntent
}
