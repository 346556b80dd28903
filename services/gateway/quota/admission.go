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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Rolling window sizes for the daily and hourly checks. The windows are
// strictly rolling (trailing 24h/1h over usage-log rows), not
// calendar-aligned.
const (
	dailyWindow  = 24 * time.Hour
	hourlyWindow = time.Hour
)

// Service performs the check-then-commit sequence around quota windows.
//
// Description:
//
//	CheckQuota is a pure check: it evaluates all four budget dimensions
//	(monthly tokens, rolling daily, rolling hourly, monthly cost) without
//	reserving anything. RecordUsage commits actual post-call figures: the
//	append-only log row first, then the atomic counter increment.
//
//	Because the check does not reserve, two concurrent requests from the
//	same user can both pass and jointly overshoot the monthly limit by up
//	to one request's estimate. That is the documented soft-limit tolerance
//	of this design, not a bug.
//
// Thread Safety: Safe for concurrent use; all mutable state lives in the
// injected Store.
type Service struct {
	store  Store
	limits *RoleLimitTable
	logger *slog.Logger

	// now is the clock source. Overridden in tests to pin window edges.
	now func() time.Time
}

// NewService creates an admission service over the given store and
// role-limit table.
//
// Inputs:
//   - store: The backing quota store. Must not be nil.
//   - limits: Role-limit table for lazy record creation. Must not be nil.
//   - logger: Logger for budget diagnostics. May be nil.
//
// Outputs:
//   - *Service: Ready-to-use service.
func NewService(store Store, limits *RoleLimitTable, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		limits: limits,
		logger: logger,
		now:    time.Now,
	}
}

// CheckQuota evaluates whether an estimated spend fits the user's budgets.
//
// Description:
//
//	Lazily creates the current month's record from the role's default
//	limits on the user's first request. All four dimensions are evaluated
//	— never short-circuited — so the decision reports every violated
//	dimension at once. This call mutates nothing.
//
// Inputs:
//   - ctx: Context for cancellation.
//   - userID: The authenticated user.
//   - role: The user's role, consulted only when creating a new record.
//   - estimatedTokens: Conservative token estimate for the upcoming call.
//   - estimatedCostUSD: Estimated cost in US dollars.
//
// Outputs:
//   - Decision: The admission decision with per-dimension flags.
//   - error: Non-nil only on store infrastructure failure (wraps
//     ErrStoreUnavailable). Callers on the request path fail open.
func (s *Service) CheckQuota(ctx context.Context, userID, role string, estimatedTokens int64, estimatedCostUSD float64) (Decision, error) {
	now := s.now()
	month := MonthKey(now)

	rec, err := s.store.GetRecord(ctx, userID, month)
	if errors.Is(err, ErrRecordNotFound) {
		rec, err = s.store.EnsureRecord(ctx, s.limits.NewRecord(userID, role, month, now))
	}
	if err != nil {
		return Decision{}, fmt.Errorf("%w: get record: %v", ErrStoreUnavailable, err)
	}

	var d Decision

	// Monthly token budget.
	if rec.TokenLimit == 0 {
		d.RemainingTokens = -1 // unlimited
	} else {
		d.RemainingTokens = rec.TokenLimit - rec.TokenUsed
		d.QuotaExceeded = estimatedTokens > d.RemainingTokens
	}

	// Rolling daily window.
	if rec.DailyLimit > 0 {
		used, err := s.store.TokensSince(ctx, userID, now.Add(-dailyWindow))
		if err != nil {
			return Decision{}, fmt.Errorf("%w: daily window: %v", ErrStoreUnavailable, err)
		}
		d.DailyLimitExceeded = used+estimatedTokens > rec.DailyLimit
	}

	// Rolling hourly window.
	if rec.HourlyLimit > 0 {
		used, err := s.store.TokensSince(ctx, userID, now.Add(-hourlyWindow))
		if err != nil {
			return Decision{}, fmt.Errorf("%w: hourly window: %v", ErrStoreUnavailable, err)
		}
		d.HourlyLimitExceeded = used+estimatedTokens > rec.HourlyLimit
	}

	// Monthly cost ceiling.
	if rec.CostLimitUSD > 0 {
		d.CostLimitExceeded = rec.CostUsedUSD+estimatedCostUSD > rec.CostLimitUSD
	}

	d.Suspended = !rec.IsActive
	d.Allowed = !d.QuotaExceeded && !d.DailyLimitExceeded && !d.HourlyLimitExceeded &&
		!d.CostLimitExceeded && !d.Suspended
	d.Message = decisionMessage(d)

	RecordCheck(d)

	if !d.Allowed {
		s.logger.Info("quota denied",
			slog.String("user_id", userID),
			slog.String("month", month),
			slog.Int64("estimated_tokens", estimatedTokens),
			slog.Int64("remaining_tokens", d.RemainingTokens),
			slog.String("message", d.Message),
		)
	}

	return d, nil
}

// RecordUsage appends the usage-log row and reconciles the running counters
// from actual figures.
//
// Description:
//
//	The log row is appended first — it is the source of truth — then
//	TokenUsed/CostUsedUSD are incremented atomically, but only for
//	Success=true rows: failed calls are logged without charging quota.
//
//	Callers are expected to invoke this at most once per completed
//	request. The service does not dedupe by request id; duplicate delivery
//	double-counts (a documented limitation of the design).
//
// Inputs:
//   - ctx: Context for cancellation.
//   - entry: The usage row. ID, CreatedAt, TotalTokens, CostBRL, and
//     QuotaRecordID are filled in when zero-valued.
//
// Outputs:
//   - error: Non-nil on store failure (wraps ErrStoreUnavailable).
func (s *Service) RecordUsage(ctx context.Context, entry *UsageLogEntry) error {
	if entry == nil {
		return fmt.Errorf("quota: usage entry must not be nil")
	}

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt == 0 {
		entry.CreatedAt = s.now().UnixMilli()
	}
	if entry.TotalTokens == 0 {
		entry.TotalTokens = entry.PromptTokens + entry.CompletionTokens
	}
	if entry.CostBRL == 0 && entry.CostUSD > 0 {
		entry.CostBRL = entry.CostUSD * FXRateBRL()
	}
	month := MonthKey(time.UnixMilli(entry.CreatedAt))
	if entry.QuotaRecordID == "" {
		entry.QuotaRecordID = RecordID(entry.UserID, month)
	}

	if err := s.store.AppendLog(ctx, entry); err != nil {
		return fmt.Errorf("%w: append log: %v", ErrStoreUnavailable, err)
	}

	if !entry.Success {
		RecordUsageCommitted(entry)
		return nil
	}

	err := s.store.AddUsage(ctx, entry.UserID, month, entry.TotalTokens, entry.CostUSD)
	if errors.Is(err, ErrRecordNotFound) {
		// A call can complete just after a month boundary, before any check
		// has created the new month's record.
		if _, ensureErr := s.store.EnsureRecord(ctx, s.limits.NewRecord(entry.UserID, "", month, s.now())); ensureErr != nil {
			return fmt.Errorf("%w: ensure record: %v", ErrStoreUnavailable, ensureErr)
		}
		err = s.store.AddUsage(ctx, entry.UserID, month, entry.TotalTokens, entry.CostUSD)
	}
	if err != nil {
		return fmt.Errorf("%w: add usage: %v", ErrStoreUnavailable, err)
	}

	RecordUsageCommitted(entry)
	return nil
}

// CurrentRecord returns the caller's record for the current month, creating
// it lazily like CheckQuota does. Backs the quota status endpoint.
func (s *Service) CurrentRecord(ctx context.Context, userID, role string) (*QuotaRecord, error) {
	now := s.now()
	month := MonthKey(now)

	rec, err := s.store.GetRecord(ctx, userID, month)
	if errors.Is(err, ErrRecordNotFound) {
		rec, err = s.store.EnsureRecord(ctx, s.limits.NewRecord(userID, role, month, now))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get record: %v", ErrStoreUnavailable, err)
	}
	return rec, nil
}

// ProbeStore verifies the backing store answers lookups. A not-found answer
// counts as healthy. Used by readiness probes.
func (s *Service) ProbeStore(ctx context.Context) error {
	_, err := s.store.GetRecord(ctx, "readiness-probe", MonthKey(s.now()))
	if err != nil && !errors.Is(err, ErrRecordNotFound) {
		return fmt.Errorf("%w: probe: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// decisionMessage summarizes the decision for the HTTP response body.
func decisionMessage(d Decision) string {
	if d.Allowed {
		return "within budget"
	}

	var dims []string
	if d.Suspended {
		dims = append(dims, "account suspended")
	}
	if d.QuotaExceeded {
		dims = append(dims, "monthly token limit")
	}
	if d.DailyLimitExceeded {
		dims = append(dims, "daily token limit")
	}
	if d.HourlyLimitExceeded {
		dims = append(dims, "hourly token limit")
	}
	if d.CostLimitExceeded {
		dims = append(dims, "cost limit")
	}
	return "quota exceeded: " + strings.Join(dims, ", ")
}
