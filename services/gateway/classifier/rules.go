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
	"log/slog"
	"regexp"

	"github.com/EstudaAI/EstudaGateway/services/gateway/catalog"
)

// =============================================================================
// Scoring Weights
// =============================================================================

const (
	// keywordWeight is added per catalog keyword whose regex matches the text.
	keywordWeight = 0.3

	// topicWeight is added per hand-authored topic pattern match.
	topicWeight = 0.3

	// blocklistWeight is subtracted per blocklist term match. Negative totals
	// are legal and signify strong rejection.
	blocklistWeight = 0.4
)

// topicPatterns is a small fixed table of hand-authored patterns, one per
// module, independent of the catalog vocabulary. Modules without an entry
// simply receive no topic boost.
var topicPatterns = map[string]string{
	"enem":       `(?i)(quest(ão|ões|oes)|simulado|enem|vestibular|gabarito)`,
	"redacao":    `(?i)(reda(ç|c)(ão|ao|ões|oes)|dissertativ|corrig|competência)`,
	"aulas":      `(?i)(aula|videoaula|resumo|revis(ão|ao))`,
	"secretaria": `(?i)(matr(í|i)cula|mensalidade|boleto|pagamento|assinatura)`,
	"tutor":      `(?i)(d(ú|u)vida|me ajuda|explica)`,
}

// =============================================================================
// RuleScorer
// =============================================================================

// moduleRules holds the pre-compiled patterns for one catalog module.
type moduleRules struct {
	id        string
	keywords  []*regexp.Regexp
	blocklist []*regexp.Regexp
	topic     *regexp.Regexp // nil when no hand-authored pattern exists
}

// RuleScorer produces a per-module score from regex/keyword matching.
//
// Description:
//
//	Scoring per module starts at 0.0: +0.3 per catalog keyword match, +0.3
//	per hand-authored topic pattern match, −0.4 per blocklist term match.
//	Scores are normalized by the maximum score across all modules so the
//	fused score space stays comparable across requests of different lengths.
//	When every score is ≤ 0 the normalization divisor is 1.0, never the max
//	(which could be 0 or negative).
//
//	Score is a pure function of the input text: the same text against the
//	same catalog always yields identical scores.
//
// Thread Safety: Safe for concurrent use (all state is read-only after
// construction).
type RuleScorer struct {
	rules []moduleRules
}

// NewRuleScorer compiles the catalog vocabulary and topic pattern table.
//
// Description:
//
//	Keyword and blocklist terms are compiled as case-insensitive quoted
//	regexes. Invalid hand-authored topic patterns are logged and skipped
//	rather than failing construction; the term simply stops contributing.
//
// Inputs:
//   - cat: The loaded module catalog. Must not be nil.
//   - logger: Logger for compile diagnostics. May be nil.
//
// Outputs:
//   - *RuleScorer: Ready-to-use scorer.
func NewRuleScorer(cat *catalog.Catalog, logger *slog.Logger) *RuleScorer {
	if logger == nil {
		logger = slog.Default()
	}

	rules := make([]moduleRules, 0, cat.Len())
	for _, m := range cat.Modules() {
		mr := moduleRules{
			id:        m.ID,
			keywords:  compileTerms(m.Keywords),
			blocklist: compileTerms(m.Blocklist),
		}
		if pattern, ok := topicPatterns[m.ID]; ok {
			re, err := regexp.Compile(pattern)
			if err != nil {
				logger.Warn("rule scorer: invalid topic pattern, skipping",
					slog.String("module", m.ID),
					slog.String("pattern", pattern),
					slog.String("error", err.Error()),
				)
			} else {
				mr.topic = re
			}
		}
		rules = append(rules, mr)
	}

	return &RuleScorer{rules: rules}
}

// compileTerms compiles catalog terms as case-insensitive literal regexes.
func compileTerms(terms []string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, 0, len(terms))
	for _, term := range terms {
		if term == "" {
			continue
		}
		// QuoteMeta cannot produce an invalid pattern, so Compile never fails here.
		re := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(term))
		compiled = append(compiled, re)
	}
	return compiled
}

// Score computes the normalized per-module rule score for the text.
//
// Inputs:
//   - text: The inbound message. Empty text scores every module 0.
//
// Outputs:
//   - map[string]float64: Normalized score per module id. Contains an entry
//     for every catalog module.
func (s *RuleScorer) Score(text string) map[string]float64 {
	raw := s.scoreRaw(text)
	return normalizeScores(raw)
}

// scoreRaw computes the unnormalized scores. Negative totals are legal.
func (s *RuleScorer) scoreRaw(text string) map[string]float64 {
	scores := make(map[string]float64, len(s.rules))
	for _, mr := range s.rules {
		score := 0.0
		if text != "" {
			for _, re := range mr.keywords {
				if re.MatchString(text) {
					score += keywordWeight
				}
			}
			if mr.topic != nil && mr.topic.MatchString(text) {
				score += topicWeight
			}
			for _, re := range mr.blocklist {
				if re.MatchString(text) {
					score -= blocklistWeight
				}
			}
		}
		scores[mr.id] = score
	}
	return scores
}

// normalizeScores divides every score by the maximum positive score. When all
// scores are ≤ 0 the divisor is 1.0 — the guard that keeps an empty or
// unmatchable text from producing a division by zero.
func normalizeScores(raw map[string]float64) map[string]float64 {
	maxScore := 0.0
	for _, v := range raw {
		if v > maxScore {
			maxScore = v
		}
	}

	divisor := maxScore
	if divisor <= 0 {
		divisor = 1.0
	}

	normalized := make(map[string]float64, len(raw))
	for k, v := range raw {
		normalized[k] = v / divisor
	}
	return normalized
}
