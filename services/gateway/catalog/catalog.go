// Copyright (C) 2025 Estuda AI (eng@estuda.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package catalog holds the static registry of routable modules. The catalog
// is loaded once at process start from a JSON document and is read-only for
// the lifetime of the process, so it may be shared across request goroutines
// without locking.
package catalog

import (
	_ "embed"
	"encoding/json"
	"fmt"
)

// =============================================================================
// Embedded Default Catalog
// =============================================================================

//go:embed default_catalog.json
var defaultCatalogJSON []byte

// =============================================================================
// Types
// =============================================================================

// Module is a routable logical destination for a classified request.
//
// Description:
//
//	Each module carries the keyword/entity vocabulary the scorers match
//	against and a blocklist of terms that count against it. Modules are
//	immutable after catalog load.
//
// Thread Safety: Module is a value type. Safe to copy and share.
type Module struct {
	// ID is the unique module key (e.g., "enem", "secretaria").
	ID string `json:"module_id"`

	// Name is the human-readable module name.
	Name string `json:"name"`

	// Keywords are regex-matched terms that vote for this module.
	Keywords []string `json:"keywords"`

	// Entities are literal terms extracted and scored by the intent scorer.
	Entities []string `json:"entities"`

	// Blocklist terms score against this module when present in the text.
	Blocklist []string `json:"blocklist"`
}

// Catalog is the loaded, validated set of routable modules.
//
// Description:
//
//	Iteration order is the document order of the source JSON. That order is
//	load-bearing: the fusion engine's tie-break is "first module in catalog
//	iteration order", so two loads of the same document always produce the
//	same decisions.
//
// Thread Safety: Immutable after Load. Safe for concurrent use without locking.
type Catalog struct {
	modules    []Module
	index      map[string]int
	fallbackID string
}

// document is the on-disk shape of the catalog JSON.
type document struct {
	FallbackModule string   `json:"fallback_module"`
	Modules        []Module `json:"modules"`
}

// =============================================================================
// Loading
// =============================================================================

// Load parses and validates a catalog JSON document.
//
// Description:
//
//	Validates that at least one module exists, that module ids are unique
//	and non-empty, and that the declared fallback module is present in the
//	module list. An unknown fallback reference fails here, at load time,
//	rather than on the request path.
//
// Inputs:
//   - data: Raw JSON catalog document.
//
// Outputs:
//   - *Catalog: The validated catalog.
//   - error: Non-nil on parse or validation failure.
func Load(data []byte) (*Catalog, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("catalog: parse: %w", err)
	}

	if len(doc.Modules) == 0 {
		return nil, fmt.Errorf("catalog: document contains no modules")
	}
	if doc.FallbackModule == "" {
		return nil, fmt.Errorf("catalog: fallback_module is required")
	}

	index := make(map[string]int, len(doc.Modules))
	for i, m := range doc.Modules {
		if m.ID == "" {
			return nil, fmt.Errorf("catalog: module at position %d has empty module_id", i)
		}
		if _, dup := index[m.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate module_id %q", m.ID)
		}
		index[m.ID] = i
	}

	if _, ok := index[doc.FallbackModule]; !ok {
		return nil, fmt.Errorf("catalog: fallback_module %q is not in the module list", doc.FallbackModule)
	}

	return &Catalog{
		modules:    doc.Modules,
		index:      index,
		fallbackID: doc.FallbackModule,
	}, nil
}

// Default loads the embedded default catalog.
//
// Outputs:
//   - *Catalog: The embedded catalog. Never nil on success.
//   - error: Non-nil if the embedded document fails validation (a build
//     defect, not a runtime condition).
func Default() (*Catalog, error) {
	return Load(defaultCatalogJSON)
}

// =============================================================================
// Accessors
// =============================================================================

// Modules returns the modules in stable catalog order.
//
// The returned slice is the catalog's internal storage. Callers must treat
// it as read-only.
func (c *Catalog) Modules() []Module {
	return c.modules
}

// ByID looks up a module by its id.
//
// Outputs:
//   - Module: The module, zero-valued if absent.
//   - bool: True if the module exists.
func (c *Catalog) ByID(id string) (Module, bool) {
	i, ok := c.index[id]
	if !ok {
		return Module{}, false
	}
	return c.modules[i], true
}

// FallbackID returns the id of the fixed fallback module. The fallback is
// guaranteed to exist in the catalog (validated at load).
func (c *Catalog) FallbackID() string {
	return c.fallbackID
}

// Len returns the number of modules in the catalog.
func (c *Catalog) Len() int {
	return len(c.modules)
}
