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
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	dgbadger "github.com/dgraph-io/badger/v4"

	badgerstore "github.com/EstudaAI/EstudaGateway/services/gateway/storage/badger"
)

// Key layout. Versioned (v1) to allow future format changes without
// collision. Log keys embed a zero-padded Unix-millisecond timestamp so a
// prefix scan over one user yields rows in time order.
const (
	recordKeyPrefix = "quota/rec/v1/"
	logKeyPrefix    = "quota/log/v1/"
)

// =============================================================================
// BadgerStore
// =============================================================================

// BadgerStore implements Store backed by a BadgerDB instance.
//
// Description:
//
//	Records and log rows are JSON-encoded. AddUsage is a read-modify-write
//	inside one transaction; the wrapper's conflict retry makes concurrent
//	increments on the same record lose no updates. TokensSince is a
//	forward scan over the user's log keys starting at the window cutoff,
//	which the timestamp-ordered key layout makes cheap.
//
//	The DB is expected to be opened by the caller (typically in main) with
//	its own path. The caller owns the DB lifecycle — this store does not
//	close it.
//
// Thread Safety: Safe for concurrent use. BadgerDB transactions are
// per-goroutine.
type BadgerStore struct {
	db     *badgerstore.DB
	logger *slog.Logger
}

var _ Store = (*BadgerStore)(nil)

// NewBadgerStore creates a BadgerStore over an opened DB.
//
// Inputs:
//   - db: Opened BadgerDB wrapper. Must not be nil.
//   - logger: Logger for storage diagnostics. May be nil.
//
// Outputs:
//   - *BadgerStore: Ready-to-use store. Never nil.
func NewBadgerStore(db *badgerstore.DB, logger *slog.Logger) *BadgerStore {
	if db == nil {
		panic("NewBadgerStore: db must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BadgerStore{db: db, logger: logger}
}

// GetRecord returns the record for the (user, month) key, or
// ErrRecordNotFound.
func (s *BadgerStore) GetRecord(ctx context.Context, userID, month string) (*QuotaRecord, error) {
	key := recordKey(userID, month)

	var rec QuotaRecord
	err := s.db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, dgbadger.ErrKeyNotFound) {
			return ErrRecordNotFound
		}
		if err != nil {
			return fmt.Errorf("get record key: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("quota badger get: %w", err)
	}
	return &rec, nil
}

// EnsureRecord creates the record if absent and returns the stored record.
// The conflict retry in WithTxn guarantees racing first-request creators all
// observe a single stored record.
func (s *BadgerStore) EnsureRecord(ctx context.Context, record *QuotaRecord) (*QuotaRecord, error) {
	key := recordKey(record.UserID, record.Month)

	var stored QuotaRecord
	err := s.db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		item, err := txn.Get(key)
		if err == nil {
			return item.Value(func(val []byte) error {
				return json.Unmarshal(val, &stored)
			})
		}
		if !errors.Is(err, dgbadger.ErrKeyNotFound) {
			return fmt.Errorf("get record key: %w", err)
		}

		raw, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("encode record: %w", err)
		}
		if err := txn.Set(key, raw); err != nil {
			return fmt.Errorf("set record: %w", err)
		}
		stored = *record
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("quota badger ensure: %w", err)
	}
	return &stored, nil
}

// AddUsage atomically increments the usage counters on the (user, month)
// record.
func (s *BadgerStore) AddUsage(ctx context.Context, userID, month string, tokens int64, costUSD float64) error {
	key := recordKey(userID, month)

	err := s.db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, dgbadger.ErrKeyNotFound) {
			return ErrRecordNotFound
		}
		if err != nil {
			return fmt.Errorf("get record key: %w", err)
		}

		var rec QuotaRecord
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		}); err != nil {
			return fmt.Errorf("decode record: %w", err)
		}

		rec.TokenUsed += tokens
		rec.CostUsedUSD += costUSD

		raw, err := json.Marshal(&rec)
		if err != nil {
			return fmt.Errorf("encode record: %w", err)
		}
		return txn.Set(key, raw)
	})
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return ErrRecordNotFound
		}
		return fmt.Errorf("quota badger add usage: %w", err)
	}
	return nil
}

// AppendLog appends one write-once usage-log row.
func (s *BadgerStore) AppendLog(ctx context.Context, entry *UsageLogEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("quota badger encode log row: %w", err)
	}
	key := logKey(entry.UserID, entry.CreatedAt, entry.ID)

	err = s.db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		return txn.Set(key, raw)
	})
	if err != nil {
		return fmt.Errorf("quota badger append log: %w", err)
	}
	return nil
}

// TokensSince sums TotalTokens over the user's successful rows created at or
// after since.
func (s *BadgerStore) TokensSince(ctx context.Context, userID string, since time.Time) (int64, error) {
	prefix := []byte(logKeyPrefix + userID + "/")
	seek := logKeySeek(userID, since.UnixMilli())

	var total int64
	err := s.db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		opts := dgbadger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var entry UsageLogEntry
				if err := json.Unmarshal(val, &entry); err != nil {
					return fmt.Errorf("decode log row: %w", err)
				}
				if entry.Success {
					total += entry.TotalTokens
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("quota badger tokens since: %w", err)
	}
	return total, nil
}

// =============================================================================
// Key Helpers
// =============================================================================

// recordKey builds the record key for a (user, month) pair.
func recordKey(userID, month string) []byte {
	return []byte(recordKeyPrefix + RecordID(userID, month))
}

// logKey builds a log-row key. The 13-digit zero-padded millisecond
// timestamp keeps one user's rows lexicographically time-ordered.
func logKey(userID string, createdAt int64, id string) []byte {
	return []byte(fmt.Sprintf("%s%s/%013d/%s", logKeyPrefix, userID, createdAt, id))
}

// logKeySeek builds the iterator seek position for a window cutoff.
func logKeySeek(userID string, cutoff int64) []byte {
	return []byte(fmt.Sprintf("%s%s/%013d/", logKeyPrefix, userID, cutoff))
}
