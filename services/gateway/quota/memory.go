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
	"sync"
	"time"
)

// MemoryStore is an in-memory Store.
//
// Description:
//
//	The default backend for tests and for degraded deployments where the
//	BadgerDB directory is unavailable. Counters and the usage log live only
//	as long as the process; the admission logic on top is identical to the
//	persistent store.
//
// Thread Safety: Safe for concurrent use via sync.RWMutex. AddUsage holds
// the write lock for the whole read-modify-write, which makes the increment
// atomic with respect to all other store operations.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*QuotaRecord
	logs    map[string][]UsageLogEntry // keyed by user id, append order
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*QuotaRecord),
		logs:    make(map[string][]UsageLogEntry),
	}
}

// GetRecord returns a copy of the record for the (user, month) key.
func (s *MemoryStore) GetRecord(_ context.Context, userID, month string) (*QuotaRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[RecordID(userID, month)]
	if !ok {
		return nil, ErrRecordNotFound
	}
	snapshot := *rec
	return &snapshot, nil
}

// EnsureRecord creates the record if absent and returns the stored record.
func (s *MemoryStore) EnsureRecord(_ context.Context, record *QuotaRecord) (*QuotaRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.records[record.ID]; ok {
		snapshot := *existing
		return &snapshot, nil
	}

	stored := *record
	s.records[record.ID] = &stored
	snapshot := stored
	return &snapshot, nil
}

// AddUsage atomically increments the usage counters on the record.
func (s *MemoryStore) AddUsage(_ context.Context, userID, month string, tokens int64, costUSD float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[RecordID(userID, month)]
	if !ok {
		return ErrRecordNotFound
	}
	rec.TokenUsed += tokens
	rec.CostUsedUSD += costUSD
	return nil
}

// AppendLog appends one usage-log row.
func (s *MemoryStore) AppendLog(_ context.Context, entry *UsageLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logs[entry.UserID] = append(s.logs[entry.UserID], *entry)
	return nil
}

// TokensSince sums TotalTokens over the user's successful rows at or after
// since.
func (s *MemoryStore) TokensSince(_ context.Context, userID string, since time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := since.UnixMilli()
	var total int64
	for _, entry := range s.logs[userID] {
		if entry.Success && entry.CreatedAt >= cutoff {
			total += entry.TotalTokens
		}
	}
	return total, nil
}

// Logs returns a copy of the user's usage-log rows in append order.
// Test and debug helper; not part of the Store interface.
func (s *MemoryStore) Logs(userID string) []UsageLogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]UsageLogEntry, len(s.logs[userID]))
	copy(out, s.logs[userID])
	return out
}
