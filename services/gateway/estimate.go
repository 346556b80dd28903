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

// Token estimation constants. The heuristic is deliberately cheap and
// approximate: real tokenization happens downstream, and the admission check
// only needs a conservative upper-ish bound.
const (
	// bytesPerToken approximates tokenizer density. 4 bytes/token is the
	// usual rule of thumb for Latin-script text; Portuguese runs slightly
	// denser, which errs on the conservative side.
	bytesPerToken = 4

	// responseAllowanceTokens is the fixed allowance added for the model's
	// reply, which the inbound payload says nothing about.
	responseAllowanceTokens = 500

	// minEstimateTokens floors the estimate so trivially short messages
	// still charge a meaningful admission check.
	minEstimateTokens = 100
)

// EstimateTokens estimates the token cost of an inbound payload.
//
// Description:
//
//	bytes/4 over the message plus conversation context, plus a fixed
//	response-size allowance, floored at minEstimateTokens. Deterministic
//	and intentionally approximate; actual figures reconcile the counters
//	after the call completes.
//
// Inputs:
//   - message: The student message.
//   - convContext: Prior conversation text sent along to the model.
//
// Outputs:
//   - int64: Estimated total tokens for the upcoming call.
func EstimateTokens(message, convContext string) int64 {
	est := int64((len(message)+len(convContext))/bytesPerToken) + responseAllowanceTokens
	if est < minEstimateTokens {
		est = minEstimateTokens
	}
	return est
}
