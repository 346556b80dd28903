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
	_ "embed"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// Embedded Default Role Limits
// =============================================================================

//go:embed role_limits.yaml
var defaultRoleLimitsYAML []byte

// =============================================================================
// Role-Limit Configuration
// =============================================================================

// RoleLimits are the default budget limits applied when a quota record is
// lazily created for a user of the given role. A limit of 0 means unlimited.
type RoleLimits struct {
	// MonthlyTokenLimit is the calendar-month token budget.
	MonthlyTokenLimit int64 `yaml:"monthly_token_limit"`

	// DailyTokenLimit caps tokens over the trailing 24 hours.
	DailyTokenLimit int64 `yaml:"daily_token_limit"`

	// HourlyTokenLimit caps tokens over the trailing hour.
	HourlyTokenLimit int64 `yaml:"hourly_token_limit"`

	// CostLimitUSD is the monthly cost ceiling in US dollars.
	CostLimitUSD float64 `yaml:"cost_limit_usd"`

	// CostLimitBRL is the informational ceiling in Brazilian reais.
	// Enforcement is in USD; the BRL figure feeds billing displays.
	CostLimitBRL float64 `yaml:"cost_limit_brl"`
}

// RoleLimitTable maps user roles to their default limits.
//
// Description:
//
//	Loaded once at startup from an embedded YAML document (overridable with
//	a deployment-provided document). Unknown roles resolve to the declared
//	default role, so a misconfigured session never escapes budgeting.
//
// Thread Safety: Immutable after load. Safe for concurrent use.
type RoleLimitTable struct {
	defaultRole string
	roles       map[string]RoleLimits
}

// roleLimitDocument is the on-disk YAML shape.
type roleLimitDocument struct {
	DefaultRole string                `yaml:"default_role"`
	Roles       map[string]RoleLimits `yaml:"roles"`
}

// LoadRoleLimits parses and validates a role-limit YAML document.
//
// Inputs:
//   - data: Raw YAML document.
//
// Outputs:
//   - *RoleLimitTable: The validated table.
//   - error: Non-nil on parse failure, empty table, or a default role that
//     is not in the table.
func LoadRoleLimits(data []byte) (*RoleLimitTable, error) {
	var doc roleLimitDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("role limits: parse: %w", err)
	}
	if len(doc.Roles) == 0 {
		return nil, fmt.Errorf("role limits: document contains no roles")
	}
	if doc.DefaultRole == "" {
		return nil, fmt.Errorf("role limits: default_role is required")
	}
	if _, ok := doc.Roles[doc.DefaultRole]; !ok {
		return nil, fmt.Errorf("role limits: default_role %q is not in the table", doc.DefaultRole)
	}
	return &RoleLimitTable{
		defaultRole: doc.DefaultRole,
		roles:       doc.Roles,
	}, nil
}

// DefaultRoleLimits loads the embedded role-limit table.
func DefaultRoleLimits() (*RoleLimitTable, error) {
	return LoadRoleLimits(defaultRoleLimitsYAML)
}

// ForRole returns the limits for a role, falling back to the default role
// for unknown (or empty) role names.
func (t *RoleLimitTable) ForRole(role string) RoleLimits {
	if limits, ok := t.roles[role]; ok {
		return limits
	}
	return t.roles[t.defaultRole]
}

// DefaultRole returns the declared default role name.
func (t *RoleLimitTable) DefaultRole() string {
	return t.defaultRole
}

// NewRecord builds a fresh quota record for the (user, month) pair from the
// role's default limits. The record starts active with zero usage.
func (t *RoleLimitTable) NewRecord(userID, role, month string, now time.Time) *QuotaRecord {
	effectiveRole := role
	if _, ok := t.roles[effectiveRole]; !ok {
		effectiveRole = t.defaultRole
	}
	limits := t.roles[effectiveRole]

	return &QuotaRecord{
		ID:           RecordID(userID, month),
		UserID:       userID,
		Month:        month,
		Role:         effectiveRole,
		TokenLimit:   limits.MonthlyTokenLimit,
		DailyLimit:   limits.DailyTokenLimit,
		HourlyLimit:  limits.HourlyTokenLimit,
		CostLimitUSD: limits.CostLimitUSD,
		IsActive:     true,
		CreatedAt:    now.UnixMilli(),
	}
}
