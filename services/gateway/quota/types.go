// Copyright (C) 2025 Estuda AI (eng@estuda.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package quota provides token-budget admission control for AI-backed
// endpoints: per-user monthly quota records with derived rolling daily and
// hourly windows, a check-then-commit admission service, and an append-only
// usage log that the running counters are reconciled from.
//
// The usage log is the source of truth; QuotaRecord counters are a derived
// aggregate and must be reconstructible from the log.
//
// Thread Safety:
//
//	All exported types are safe for concurrent use unless documented otherwise.
package quota

import (
	"errors"
	"time"
)

// =============================================================================
// Sentinel Errors
// =============================================================================

var (
	// ErrRecordNotFound is returned by Store lookups when no quota record
	// exists for the (user, month) key.
	ErrRecordNotFound = errors.New("quota: record not found")

	// ErrStoreUnavailable wraps infrastructure failures from the backing
	// store. Callers on the request path treat it as a fail-open signal,
	// never as a user-visible error.
	ErrStoreUnavailable = errors.New("quota: store unavailable")
)

// =============================================================================
// QuotaRecord
// =============================================================================

// QuotaRecord is the per-(user, calendar month) budget record.
//
// Description:
//
//	Created lazily on the user's first request in a new month, from the
//	role's default limits. Never deleted — retained for audit and billing
//	history. TokenUsed and CostUsedUSD increase monotonically within the
//	month and are only mutated through the store's atomic AddUsage.
//
//	A limit of 0 means unlimited (no enforcement) for that dimension.
//
// Thread Safety: Value snapshots are safe to copy; mutation goes through
// the Store.
type QuotaRecord struct {
	// ID is "<user_id>/<month>"; see RecordID.
	ID string `json:"id"`

	// UserID is the owning user.
	UserID string `json:"user_id"`

	// Month is the calendar month key, "2006-01" in UTC.
	Month string `json:"month"`

	// Role is the user role the default limits were taken from.
	Role string `json:"role"`

	// TokenLimit is the monthly token budget. 0 means unlimited.
	TokenLimit int64 `json:"token_limit"`

	// TokenUsed is the sum of TotalTokens over successful usage-log rows
	// for this record. Monotonically increasing within the month.
	TokenUsed int64 `json:"token_used"`

	// DailyLimit caps tokens over the trailing 24 hours. 0 means unlimited.
	DailyLimit int64 `json:"daily_limit"`

	// HourlyLimit caps tokens over the trailing hour. 0 means unlimited.
	HourlyLimit int64 `json:"hourly_limit"`

	// CostLimitUSD is the monthly cost ceiling in US dollars. 0 means unlimited.
	CostLimitUSD float64 `json:"cost_limit_usd"`

	// CostUsedUSD is the accumulated actual cost in US dollars.
	CostUsedUSD float64 `json:"cost_used_usd"`

	// IsActive is set to false by an external collaborator (billing) to
	// suspend the user. The gateway only reads this flag.
	IsActive bool `json:"is_active"`

	// CreatedAt is when the record was created (Unix milliseconds UTC).
	CreatedAt int64 `json:"created_at"`
}

// RecordID builds the canonical store key for a (user, month) pair.
func RecordID(userID, month string) string {
	return userID + "/" + month
}

// MonthKey returns the calendar month key for t, in UTC ("2006-01").
func MonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// =============================================================================
// UsageLogEntry
// =============================================================================

// UsageLogEntry is one append-only row per completed (or attempted) AI call.
//
// Description:
//
//	Write-once. The quota counters are derived from these rows: TokenUsed
//	for a record equals the sum of TotalTokens over its success=true rows
//	(plus any in-flight requests past their check). Failed calls are logged
//	with Success=false and whatever partial figures the provider reported;
//	they do not charge quota.
//
// Thread Safety: UsageLogEntry is a value type. Safe to copy.
type UsageLogEntry struct {
	// ID is a unique row id assigned at append time.
	ID string `json:"id"`

	// QuotaRecordID back-references the (user, month) record. Not an
	// ownership relation — the log outlives any counter reset.
	QuotaRecordID string `json:"quota_record_id"`

	// UserID is the calling user.
	UserID string `json:"user_id"`

	// Provider is the downstream AI provider ("openai", "anthropic", ...).
	Provider string `json:"provider"`

	// Model is the specific model that served the call.
	Model string `json:"model"`

	// PromptTokens is the actual prompt token count reported downstream.
	PromptTokens int64 `json:"prompt_tokens"`

	// CompletionTokens is the actual completion token count.
	CompletionTokens int64 `json:"completion_tokens"`

	// TotalTokens is prompt + completion.
	TotalTokens int64 `json:"total_tokens"`

	// CostUSD is the actual (or pricing-table derived) cost in US dollars.
	CostUSD float64 `json:"cost_usd"`

	// CostBRL is CostUSD converted at the configured FX rate.
	CostBRL float64 `json:"cost_brl"`

	// Module is the classified module that handled the call.
	Module string `json:"module"`

	// APIEndpoint is the gateway endpoint that admitted the call.
	APIEndpoint string `json:"api_endpoint"`

	// Success is false for failed, canceled, or timed-out downstream calls.
	Success bool `json:"success"`

	// CreatedAt is when the row was appended (Unix milliseconds UTC).
	CreatedAt int64 `json:"created_at"`
}

// =============================================================================
// Decision
// =============================================================================

// Decision is the outcome of a CheckQuota call.
//
// Description:
//
//	All four budget dimensions are evaluated — never short-circuited — so
//	a denial reports every violated dimension at once. RemainingTokens is
//	-1 when the monthly token budget is unlimited.
//
// Thread Safety: Decision is a value type. Safe to copy.
type Decision struct {
	// Allowed is true when no dimension is violated and the record is active.
	Allowed bool `json:"allowed"`

	// RemainingTokens is the monthly budget remaining before this request.
	RemainingTokens int64 `json:"remainingTokens"`

	// QuotaExceeded is set when the estimate exceeds the remaining monthly tokens.
	QuotaExceeded bool `json:"quotaExceeded"`

	// DailyLimitExceeded is set when the trailing-24h window would overflow.
	DailyLimitExceeded bool `json:"dailyLimitExceeded"`

	// HourlyLimitExceeded is set when the trailing-1h window would overflow.
	HourlyLimitExceeded bool `json:"hourlyLimitExceeded"`

	// CostLimitExceeded is set when the estimated cost would overflow the ceiling.
	CostLimitExceeded bool `json:"costLimitExceeded"`

	// Suspended is set when the record's IsActive flag is false.
	Suspended bool `json:"suspended,omitempty"`

	// Message is a human-readable summary of the decision.
	Message string `json:"message,omitempty"`
}
