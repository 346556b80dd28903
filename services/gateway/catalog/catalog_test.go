// Copyright (C) 2025 Estuda AI (eng@estuda.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package catalog

import (
	"testing"
)

func TestLoad_Valid(t *testing.T) {
	data := []byte(`{
		"fallback_module": "b",
		"modules": [
			{"module_id": "a", "name": "A", "keywords": ["x"], "entities": [], "blocklist": []},
			{"module_id": "b", "name": "B", "keywords": [], "entities": [], "blocklist": []}
		]
	}`)

	c, err := Load(data)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
	if c.FallbackID() != "b" {
		t.Errorf("FallbackID() = %q, want %q", c.FallbackID(), "b")
	}

	m, ok := c.ByID("a")
	if !ok {
		t.Fatal("ByID(a) not found")
	}
	if m.Name != "A" {
		t.Errorf("module name = %q, want %q", m.Name, "A")
	}

	if _, ok := c.ByID("nope"); ok {
		t.Error("ByID(nope) should not be found")
	}
}

func TestLoad_StableOrder(t *testing.T) {
	data := []byte(`{
		"fallback_module": "c",
		"modules": [
			{"module_id": "c"},
			{"module_id": "a"},
			{"module_id": "b"}
		]
	}`)

	c, err := Load(data)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	// Document order, not sorted order — the fusion tie-break depends on it.
	want := []string{"c", "a", "b"}
	for i, m := range c.Modules() {
		if m.ID != want[i] {
			t.Errorf("Modules()[%d].ID = %q, want %q", i, m.ID, want[i])
		}
	}
}

func TestLoad_Invalid(t *testing.T) {
	cases := []struct {
		name string
		data string
	}{
		{"malformed json", `{`},
		{"no modules", `{"fallback_module": "a", "modules": []}`},
		{"missing fallback", `{"modules": [{"module_id": "a"}]}`},
		{"unknown fallback", `{"fallback_module": "z", "modules": [{"module_id": "a"}]}`},
		{"empty module id", `{"fallback_module": "a", "modules": [{"module_id": "a"}, {"module_id": ""}]}`},
		{"duplicate module id", `{"fallback_module": "a", "modules": [{"module_id": "a"}, {"module_id": "a"}]}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load([]byte(tc.data)); err == nil {
				t.Errorf("Load should fail for %s", tc.name)
			}
		})
	}
}

func TestDefault(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("Default returned error: %v", err)
	}
	if c.Len() == 0 {
		t.Fatal("default catalog is empty")
	}

	if _, ok := c.ByID(c.FallbackID()); !ok {
		t.Errorf("fallback %q not present in default catalog", c.FallbackID())
	}

	// The exam and front-desk modules are the routing workhorses.
	for _, id := range []string{"enem", "secretaria"} {
		if _, ok := c.ByID(id); !ok {
			t.Errorf("default catalog missing module %q", id)
		}
	}
}
