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
	"time"
)

// Store is the persistence capability the admission service needs: point
// lookup by (user, month) key, atomic increment of the usage counters, and
// append-only insert of usage-log rows. No relational joins.
//
// Description:
//
//	The same admission logic runs unchanged against the in-memory store
//	(tests, degraded mode) and the BadgerDB store (production). Records are
//	independent per (user, month) key; implementations need no cross-user
//	coordination.
//
// Thread Safety: Implementations must be safe for concurrent use. AddUsage
// in particular must be a true atomic increment — two concurrent calls must
// never lose an update.
type Store interface {
	// GetRecord returns the record for the (user, month) key, or
	// ErrRecordNotFound.
	GetRecord(ctx context.Context, userID, month string) (*QuotaRecord, error)

	// EnsureRecord creates the record if absent and returns the stored
	// record either way. Concurrent callers racing on first creation must
	// all observe the same stored record.
	EnsureRecord(ctx context.Context, record *QuotaRecord) (*QuotaRecord, error)

	// AddUsage atomically increments TokenUsed and CostUsedUSD on the
	// (user, month) record. Returns ErrRecordNotFound when no record exists.
	AddUsage(ctx context.Context, userID, month string, tokens int64, costUSD float64) error

	// AppendLog appends one write-once usage-log row.
	AppendLog(ctx context.Context, entry *UsageLogEntry) error

	// TokensSince sums TotalTokens over the user's successful usage-log
	// rows created at or after since. Backs the rolling daily and hourly
	// windows.
	TokensSince(ctx context.Context, userID string, since time.Time) (int64, error)
}
