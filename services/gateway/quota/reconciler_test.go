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
	"testing"
)

func TestRecorderCommitsSubmittedRows(t *testing.T) {
	store := NewMemoryStore()
	svc := newTestService(t, store)
	rec := NewRecorder(svc, nil)

	for i := 0; i < 5; i++ {
		rec.Submit(&UsageLogEntry{UserID: "user-1", TotalTokens: 100, Success: true})
	}
	rec.Wait()

	stored, err := store.GetRecord(context.Background(), "user-1", "2025-06")
	if err != nil {
		t.Fatalf("GetRecord() error = %v", err)
	}
	if stored.TokenUsed != 500 {
		t.Errorf("TokenUsed = %d, want 500", stored.TokenUsed)
	}
	if got := len(store.Logs("user-1")); got != 5 {
		t.Errorf("log rows = %d, want 5", got)
	}
}

func TestRecorderIgnoresNil(t *testing.T) {
	store := NewMemoryStore()
	rec := NewRecorder(newTestService(t, store), nil)

	rec.Submit(nil)
	rec.Wait()

	if got := len(store.Logs("user-1")); got != 0 {
		t.Errorf("log rows = %d, want 0", got)
	}
}

func TestRecorderRetriesTransientFailures(t *testing.T) {
	store := &flakyStore{MemoryStore: NewMemoryStore(), failures: 2}
	svc := newTestService(t, store)
	rec := NewRecorder(svc, nil)

	rec.Submit(&UsageLogEntry{UserID: "user-1", TotalTokens: 100, Success: true})
	rec.Wait()

	if got := len(store.Logs("user-1")); got != 1 {
		t.Errorf("log rows = %d, want 1 after retries", got)
	}
}

func TestRecorderDropsAfterExhaustedRetries(t *testing.T) {
	svc := newTestService(t, failingStore{})
	rec := NewRecorder(svc, nil)

	// Must not hang or panic; the row is dropped with a warning.
	rec.Submit(&UsageLogEntry{UserID: "user-1", TotalTokens: 100, Success: true})
	rec.Wait()
}

// flakyStore fails AppendLog a fixed number of times, then delegates.
type flakyStore struct {
	*MemoryStore
	mu       sync.Mutex
	failures int
}

func (s *flakyStore) AppendLog(ctx context.Context, entry *UsageLogEntry) error {
	s.mu.Lock()
	if s.failures > 0 {
		s.failures--
		s.mu.Unlock()
		return errDiskFellOver
	}
	s.mu.Unlock()
	return s.MemoryStore.AppendLog(ctx, entry)
}
