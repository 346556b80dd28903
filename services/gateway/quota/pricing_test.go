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
	"math"
	"testing"
)

func TestEstimateCostUSD(t *testing.T) {
	// gpt-4o: $2.50/M input, $10/M output.
	got := EstimateCostUSD("gpt-4o", 1_000_000, 100_000)
	want := 2.50 + 1.0
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("EstimateCostUSD(gpt-4o) = %f, want %f", got, want)
	}
}

func TestEstimateCostUSDVersionedModelPrefix(t *testing.T) {
	exact := EstimateCostUSD("gpt-4o", 10_000, 1_000)
	versioned := EstimateCostUSD("gpt-4o-2024-11-20", 10_000, 1_000)
	if math.Abs(exact-versioned) > 1e-9 {
		t.Errorf("versioned model cost = %f, want same as base model %f", versioned, exact)
	}
}

func TestEstimateCostUSDUnknownModelIsConservative(t *testing.T) {
	unknown := EstimateCostUSD("mystery-model-9000", 1_000_000, 0)
	if unknown != unknownModelPricing.InputCostPerMillion {
		t.Errorf("unknown model input cost = %f, want %f", unknown, unknownModelPricing.InputCostPerMillion)
	}

	// The conservative default must not undercut any known model.
	for name, p := range defaultPricing {
		if p.InputCostPerMillion > unknownModelPricing.InputCostPerMillion {
			t.Errorf("known model %q input price %f exceeds unknown-model default %f",
				name, p.InputCostPerMillion, unknownModelPricing.InputCostPerMillion)
		}
	}
}

func TestEstimateCostUSDZeroTokens(t *testing.T) {
	if got := EstimateCostUSD("gpt-4o", 0, 0); got != 0 {
		t.Errorf("EstimateCostUSD(0, 0) = %f, want 0", got)
	}
}

func TestFXRateBRL(t *testing.T) {
	t.Run("default when unset", func(t *testing.T) {
		t.Setenv("GATEWAY_FX_BRL", "")
		if got := FXRateBRL(); got != defaultFXRateBRL {
			t.Errorf("FXRateBRL() = %f, want %f", got, defaultFXRateBRL)
		}
	})

	t.Run("override", func(t *testing.T) {
		t.Setenv("GATEWAY_FX_BRL", "5.45")
		if got := FXRateBRL(); got != 5.45 {
			t.Errorf("FXRateBRL() = %f, want 5.45", got)
		}
	})

	t.Run("invalid value falls back", func(t *testing.T) {
		t.Setenv("GATEWAY_FX_BRL", "not-a-rate")
		if got := FXRateBRL(); got != defaultFXRateBRL {
			t.Errorf("FXRateBRL() = %f, want %f", got, defaultFXRateBRL)
		}
	})

	t.Run("non-positive value falls back", func(t *testing.T) {
		t.Setenv("GATEWAY_FX_BRL", "-1")
		if got := FXRateBRL(); got != defaultFXRateBRL {
			t.Errorf("FXRateBRL() = %f, want %f", got, defaultFXRateBRL)
		}
	})
}
