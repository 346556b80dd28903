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
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	badgerstore "github.com/EstudaAI/EstudaGateway/services/gateway/storage/badger"
)

// openTestStore opens a BadgerStore over an in-memory BadgerDB.
func openTestStore(t *testing.T) *BadgerStore {
	t.Helper()
	db, err := badgerstore.OpenDB(badgerstore.InMemoryConfig())
	if err != nil {
		t.Fatalf("openTestStore: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewBadgerStore(db, nil)
}

func TestBadgerStoreGetRecordNotFound(t *testing.T) {
	store := openTestStore(t)
	_, err := store.GetRecord(context.Background(), "user-1", "2025-06")
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestBadgerStoreRecordRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	in := &QuotaRecord{
		ID: "user-1/2025-06", UserID: "user-1", Month: "2025-06", Role: "student",
		TokenLimit: 100000, DailyLimit: 10000, HourlyLimit: 2000,
		CostLimitUSD: 5.0, IsActive: true, CreatedAt: 1750000000000,
	}
	stored, err := store.EnsureRecord(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, in, stored)

	got, err := store.GetRecord(ctx, "user-1", "2025-06")
	require.NoError(t, err)
	assert.Equal(t, in, got)
}

func TestBadgerStoreEnsureRecordIsIdempotent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_, err := store.EnsureRecord(ctx, &QuotaRecord{ID: "user-1/2025-06", UserID: "user-1", Month: "2025-06", TokenLimit: 1000, IsActive: true})
	require.NoError(t, err)

	stored, err := store.EnsureRecord(ctx, &QuotaRecord{ID: "user-1/2025-06", UserID: "user-1", Month: "2025-06", TokenLimit: 9999, IsActive: true})
	require.NoError(t, err)
	assert.Equal(t, int64(1000), stored.TokenLimit, "EnsureRecord overwrote an existing record")
}

func TestBadgerStoreEnsureRecordConcurrentCreation(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	const racers = 10
	results := make([]*QuotaRecord, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec, err := store.EnsureRecord(ctx, &QuotaRecord{
				ID: "user-1/2025-06", UserID: "user-1", Month: "2025-06",
				TokenLimit: 1000, IsActive: true,
			})
			if err != nil {
				t.Errorf("EnsureRecord() error = %v", err)
				return
			}
			results[i] = rec
		}(i)
	}
	wg.Wait()

	for i, rec := range results {
		require.NotNil(t, rec, "racer %d got nil record", i)
		assert.Equal(t, int64(1000), rec.TokenLimit)
	}
}

func TestBadgerStoreAddUsage(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	err := store.AddUsage(ctx, "user-1", "2025-06", 100, 0.5)
	assert.ErrorIs(t, err, ErrRecordNotFound)

	_, err = store.EnsureRecord(ctx, &QuotaRecord{ID: "user-1/2025-06", UserID: "user-1", Month: "2025-06", IsActive: true})
	require.NoError(t, err)

	require.NoError(t, store.AddUsage(ctx, "user-1", "2025-06", 100, 0.5))
	require.NoError(t, store.AddUsage(ctx, "user-1", "2025-06", 50, 0.25))

	rec, err := store.GetRecord(ctx, "user-1", "2025-06")
	require.NoError(t, err)
	assert.Equal(t, int64(150), rec.TokenUsed)
	assert.InDelta(t, 0.75, rec.CostUsedUSD, 1e-9)
}

func TestBadgerStoreAddUsageConcurrent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_, err := store.EnsureRecord(ctx, &QuotaRecord{ID: "user-1/2025-06", UserID: "user-1", Month: "2025-06", IsActive: true})
	require.NoError(t, err)

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := store.AddUsage(ctx, "user-1", "2025-06", 10, 0.01); err != nil {
				t.Errorf("AddUsage() error = %v", err)
			}
		}()
	}
	wg.Wait()

	rec, err := store.GetRecord(ctx, "user-1", "2025-06")
	require.NoError(t, err)
	assert.Equal(t, int64(workers*10), rec.TokenUsed, "concurrent increments lost an update")
}

func TestBadgerStoreTokensSince(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	addRow := func(user string, age time.Duration, tokens int64, success bool) {
		require.NoError(t, store.AppendLog(ctx, &UsageLogEntry{
			ID:          uuid.New().String(),
			UserID:      user,
			TotalTokens: tokens,
			Success:     success,
			CreatedAt:   now.Add(-age).UnixMilli(),
		}))
	}

	addRow("user-1", 30*time.Minute, 100, true)
	addRow("user-1", 2*time.Hour, 200, true)
	addRow("user-1", 30*time.Hour, 400, true)
	addRow("user-1", 10*time.Minute, 800, false) // failed, never counted
	addRow("user-2", 5*time.Minute, 1600, true)  // other user

	hourly, err := store.TokensSince(ctx, "user-1", now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(100), hourly)

	daily, err := store.TokensSince(ctx, "user-1", now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(300), daily)

	all, err := store.TokensSince(ctx, "user-1", now.Add(-48*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(700), all)
}

func TestBadgerStoreTokensSinceCutoffIsInclusive(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	at := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.AppendLog(ctx, &UsageLogEntry{
		ID: uuid.New().String(), UserID: "user-1", TotalTokens: 100, Success: true,
		CreatedAt: at.UnixMilli(),
	}))

	total, err := store.TokensSince(ctx, "user-1", at)
	require.NoError(t, err)
	assert.Equal(t, int64(100), total, "row created exactly at the cutoff must count")
}

func TestBadgerStoreServiceIntegration(t *testing.T) {
	// The admission service must behave identically over the persistent store.
	store := openTestStore(t)
	svc := newTestService(t, store)

	d, err := svc.CheckQuota(context.Background(), "user-1", "student", 100, 0.01)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	require.NoError(t, svc.RecordUsage(context.Background(), &UsageLogEntry{
		UserID: "user-1", TotalTokens: 99_960, Success: true,
	}))

	d, err = svc.CheckQuota(context.Background(), "user-1", "student", 100, 0.01)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.True(t, d.QuotaExceeded)
	assert.Equal(t, int64(40), d.RemainingTokens)
}
