// Copyright (C) 2025 Estuda AI (eng@estuda.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package gateway

import (
	"strings"
	"testing"
)

func TestSafeLogString(t *testing.T) {
	cases := []struct {
		name     string
		input    string
		contains string
		excludes string
	}{
		{
			name:     "formatted cpf",
			input:    "meu cpf é 123.456.789-01, pode verificar a matrícula?",
			contains: "[REDACTED:cpf]",
			excludes: "123.456.789-01",
		},
		{
			name:     "bare cpf",
			input:    "cpf 12345678901 sem pontuação",
			contains: "[REDACTED:cpf]",
			excludes: "12345678901",
		},
		{
			name:     "email",
			input:    "manda o boleto para aluno@example.com.br por favor",
			contains: "[REDACTED:email]",
			excludes: "aluno@example.com.br",
		},
		{
			name:     "phone",
			input:    "me liga no +55 (11) 91234-5678",
			contains: "[REDACTED:phone]",
			excludes: "91234-5678",
		},
		{
			name:     "bearer token",
			input:    "downstream said: Bearer abcDEF123456789xyz_token rejected",
			contains: "[REDACTED:bearer_token]",
			excludes: "abcDEF123456789xyz_token",
		},
		{
			name:     "api key",
			input:    "auth failed for sk-abcdefghijklmnopqrstuv123456",
			contains: "[REDACTED:api_key]",
			excludes: "sk-abcdefghijklmnopqrstuv123456",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := SafeLogString(tc.input)
			if !strings.Contains(got, tc.contains) {
				t.Errorf("SafeLogString(%q) = %q, want it to contain %q", tc.input, got, tc.contains)
			}
			if strings.Contains(got, tc.excludes) {
				t.Errorf("SafeLogString(%q) = %q, still contains %q", tc.input, got, tc.excludes)
			}
		})
	}
}

func TestSafeLogStringLeavesCleanTextAlone(t *testing.T) {
	input := "quero ver uma questão de matemática do ENEM 2023"
	if got := SafeLogString(input); got != input {
		t.Errorf("SafeLogString(%q) = %q, want unchanged", input, got)
	}
}

func TestSafeLogStringEmpty(t *testing.T) {
	if got := SafeLogString(""); got != "" {
		t.Errorf("SafeLogString(\"\") = %q, want empty", got)
	}
}

func TestSafeLogStringDoesNotClipLongDigitRuns(t *testing.T) {
	// Timestamps and order ids are longer than a CPF and must survive.
	input := "order 1234567890123456 at 1750000000000"
	if got := SafeLogString(input); got != input {
		t.Errorf("SafeLogString(%q) = %q, want unchanged", input, got)
	}
}
