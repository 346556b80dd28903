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
	"testing"
)

func TestIntentScorer_Vote(t *testing.T) {
	s := NewIntentScorer(testCatalog(t))

	result := s.Classify("quero ver uma questão de matemática", "")

	if result.ModuleID != "enem" {
		t.Errorf("vote = %q, want enem", result.ModuleID)
	}
	if result.Confidence <= 0 || result.Confidence > 0.9 {
		t.Errorf("confidence out of range (0, 0.9]: %f", result.Confidence)
	}
	if len(result.Entities) != 1 || result.Entities[0] != "matemática" {
		t.Errorf("entities = %v, want [matemática]", result.Entities)
	}
}

func TestIntentScorer_ConfidenceCap(t *testing.T) {
	s := NewIntentScorer(testCatalog(t))

	// Entity + keyword: score 0.8 over a vocabulary of 2 would give
	// 0.5 + 0.4 = 0.9, exactly at the cap.
	result := s.Classify("questão de matemática", "")
	if result.Confidence > 0.9 {
		t.Errorf("confidence must be capped at 0.9, got %f", result.Confidence)
	}
}

func TestIntentScorer_IntentRules(t *testing.T) {
	s := NewIntentScorer(testCatalog(t))

	cases := []struct {
		name   string
		text   string
		module string
		intent string
	}{
		{"question marker on exam module", "tem alguma questão de matemática?", "enem", "fetch-questions"},
		{"enrollment", "preciso fazer minha matrícula", "secretaria", "enrollment-info"},
		{"no rule fires", "", "tutor", DefaultIntent},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := s.Classify(tc.text, "")
			if result.ModuleID != tc.module {
				t.Errorf("module = %q, want %q", result.ModuleID, tc.module)
			}
			if result.Intent != tc.intent {
				t.Errorf("intent = %q, want %q", result.Intent, tc.intent)
			}
		})
	}
}

func TestIntentScorer_EmptyTextVotesFallback(t *testing.T) {
	s := NewIntentScorer(testCatalog(t))

	result := s.Classify("", "")
	if result.ModuleID != "tutor" {
		t.Errorf("empty text should vote the fallback, got %q", result.ModuleID)
	}
	if result.Confidence != 0 {
		t.Errorf("empty text confidence should be 0, got %f", result.Confidence)
	}
}

func TestIntentScorer_ContextParticipates(t *testing.T) {
	s := NewIntentScorer(testCatalog(t))

	bare := s.Classify("me ajuda com isso", "")
	withCtx := s.Classify("me ajuda com isso", "estávamos falando da questão de matemática")

	if bare.ModuleID == "enem" {
		t.Fatal("bare text should not already vote enem")
	}
	if withCtx.ModuleID != "enem" {
		t.Errorf("context should swing the vote to enem, got %q", withCtx.ModuleID)
	}
}

func TestIntentScorer_Idempotent(t *testing.T) {
	s := NewIntentScorer(testCatalog(t))

	first := s.Classify("questão de matemática", "contexto")
	second := s.Classify("questão de matemática", "contexto")

	if first.ModuleID != second.ModuleID ||
		first.Intent != second.Intent ||
		first.Confidence != second.Confidence ||
		len(first.Entities) != len(second.Entities) {
		t.Errorf("classification must be deterministic: %+v vs %+v", first, second)
	}
}
