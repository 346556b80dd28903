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
	"os"
	"strconv"
	"strings"
)

// ModelPricing holds per-model token pricing in dollars per million tokens.
//
// Thread Safety: ModelPricing is a value type, safe to copy.
type ModelPricing struct {
	// InputCostPerMillion is the cost in USD per million prompt tokens.
	InputCostPerMillion float64

	// OutputCostPerMillion is the cost in USD per million completion tokens.
	OutputCostPerMillion float64
}

// defaultPricing contains pricing for known models.
// Prices are approximate and based on published rates as of 2025.
var defaultPricing = map[string]ModelPricing{
	// OpenAI
	"gpt-4o":      {InputCostPerMillion: 2.50, OutputCostPerMillion: 10.0},
	"gpt-4o-mini": {InputCostPerMillion: 0.15, OutputCostPerMillion: 0.60},

	// Anthropic
	"claude-sonnet-4-20250514":  {InputCostPerMillion: 3.0, OutputCostPerMillion: 15.0},
	"claude-haiku-4-5-20251001": {InputCostPerMillion: 1.0, OutputCostPerMillion: 5.0},

	// Gemini
	"gemini-1.5-flash": {InputCostPerMillion: 0.075, OutputCostPerMillion: 0.30},
	"gemini-2.0-flash": {InputCostPerMillion: 0.10, OutputCostPerMillion: 0.40},
}

// unknownModelPricing is the conservative default applied when a model has
// no pricing entry. Overestimating cost denies sooner, never later.
var unknownModelPricing = ModelPricing{
	InputCostPerMillion:  5.0,
	OutputCostPerMillion: 15.0,
}

// defaultFXRateBRL is the USD→BRL conversion applied when GATEWAY_FX_BRL is
// unset. The rate is a billing display figure, not an enforcement input.
const defaultFXRateBRL = 5.0

// EstimateCostUSD estimates the cost of a call in US dollars from the
// pricing table.
//
// Description:
//
//	Exact model match first, then prefix matching for versioned model names
//	(e.g. "gpt-4o-2024-11-20" matches "gpt-4o"), then the conservative
//	unknown-model default.
//
// Inputs:
//   - model: The model name.
//   - promptTokens: Prompt token count (estimated or actual).
//   - completionTokens: Completion token count (estimated or actual).
//
// Outputs:
//   - float64: Cost in US dollars.
func EstimateCostUSD(model string, promptTokens, completionTokens int64) float64 {
	pricing := lookupPricing(model)
	inputCost := float64(promptTokens) * pricing.InputCostPerMillion / 1_000_000
	outputCost := float64(completionTokens) * pricing.OutputCostPerMillion / 1_000_000
	return inputCost + outputCost
}

// lookupPricing finds pricing for a model, falling back to prefix matching
// for versioned model names.
func lookupPricing(model string) ModelPricing {
	if p, ok := defaultPricing[model]; ok {
		return p
	}
	for name, p := range defaultPricing {
		if strings.HasPrefix(model, name) || strings.HasPrefix(name, model) {
			return p
		}
	}
	return unknownModelPricing
}

// FXRateBRL returns the USD→BRL conversion rate.
//
// Env: GATEWAY_FX_BRL (default: 5.0). Invalid or non-positive values fall
// back to the default.
func FXRateBRL() float64 {
	val := os.Getenv("GATEWAY_FX_BRL")
	if val == "" {
		return defaultFXRateBRL
	}
	rate, err := strconv.ParseFloat(val, 64)
	if err != nil || rate <= 0 {
		return defaultFXRateBRL
	}
	return rate
}
