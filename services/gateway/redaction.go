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

import "regexp"

// redactionPattern pairs a compiled regex with a labeled replacement so the
// log reader knows what class of value was removed without seeing it.
type redactionPattern struct {
	pattern     *regexp.Regexp
	replacement string
}

// redactionPatterns lists what gets scrubbed from student text before it is
// logged. Student messages routinely contain enrollment data (CPF, email,
// phone) that must never land in log storage.
//
// Order matters: formatted CPF must come before the bare 11-digit form so a
// formatted number is not half-matched.
var redactionPatterns = []redactionPattern{
	// CPF with separators: 000.000.000-00
	{
		pattern:     regexp.MustCompile(`\d{3}\.\d{3}\.\d{3}-\d{2}`),
		replacement: "[REDACTED:cpf]",
	},
	// Bare 11-digit CPF. Boundaries keep longer digit runs (order ids,
	// timestamps) from being clipped.
	{
		pattern:     regexp.MustCompile(`\b\d{11}\b`),
		replacement: "[REDACTED:cpf]",
	},
	// Email addresses.
	{
		pattern:     regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`),
		replacement: "[REDACTED:email]",
	},
	// Brazilian phone numbers: +55 (11) 91234-5678 and common variants.
	{
		pattern:     regexp.MustCompile(`(\+55\s?)?\(?\d{2}\)?\s?9?\d{4}-\d{4}`),
		replacement: "[REDACTED:phone]",
	},
	// Bearer tokens forwarded in error messages.
	{
		pattern:     regexp.MustCompile(`Bearer\s+[A-Za-z0-9._-]{10,}`),
		replacement: "[REDACTED:bearer_token]",
	},
	// Provider API keys that leak through downstream error strings.
	{
		pattern:     regexp.MustCompile(`sk-[A-Za-z0-9_-]{20,}`),
		replacement: "[REDACTED:api_key]",
	},
}

// SafeLogString scrubs student PII and credential material from a string
// before it is logged.
//
// Description:
//
//	Pattern-based only: it catches the common formats (CPF, email, phone,
//	tokens), not every conceivable secret. Callers must still avoid
//	logging whole message bodies where a truncated excerpt will do.
//
// Inputs:
//   - s: The string to scrub. Empty input returns empty output.
//
// Outputs:
//   - string: The input with matched values replaced by labeled
//     placeholders, unchanged when nothing matches.
//
// Thread Safety: Safe for concurrent use.
func SafeLogString(s string) string {
	if s == "" {
		return s
	}
	for _, p := range redactionPatterns {
		s = p.pattern.ReplaceAllString(s, p.replacement)
	}
	return s
}
