// Copyright (C) 2025 Estuda AI (eng@estuda.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package badgerstore wraps BadgerDB with context-aware transaction helpers.
//
// The wrapper owns the open/close lifecycle and conflict retry; callers write
// plain transaction closures against *badger.Txn and never deal with
// ErrConflict themselves.
package badgerstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

// txnConflictRetries bounds how many times a write transaction is re-run
// after an SSI conflict before the error is surfaced.
const txnConflictRetries = 5

// txnConflictBackoff is the pause between conflict retries.
const txnConflictBackoff = 5 * time.Millisecond

// =============================================================================
// Configuration
// =============================================================================

// Config describes how to open a BadgerDB instance.
type Config struct {
	// Path is the on-disk directory. Ignored when InMemory is set.
	Path string

	// InMemory opens a non-persistent instance. Used by tests.
	InMemory bool

	// SyncWrites forces fsync on every commit. Slower, but a crash never
	// loses an acknowledged write.
	SyncWrites bool
}

// DefaultConfig returns the production configuration: on-disk, synchronous
// writes. The caller fills in Path.
func DefaultConfig() Config {
	return Config{SyncWrites: true}
}

// InMemoryConfig returns a configuration for tests: in-memory, no path.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// =============================================================================
// DB Wrapper
// =============================================================================

// DB is a thin wrapper around *badger.DB.
//
// Thread Safety: Safe for concurrent use. BadgerDB transactions are
// per-goroutine; never share a *badger.Txn across goroutines.
type DB struct {
	db *badger.DB
}

// OpenDB opens a BadgerDB instance per the config.
//
// Inputs:
//   - cfg: Open configuration. Path is required unless InMemory is set.
//
// Outputs:
//   - *DB: The opened wrapper. The caller must Close it.
//   - error: Non-nil when the directory cannot be opened or is locked by
//     another process.
func OpenDB(cfg Config) (*DB, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, fmt.Errorf("badgerstore: config requires a path or InMemory")
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badgerstore: open: %w", err)
	}
	return &DB{db: db}, nil
}

// Close flushes and closes the underlying instance.
func (d *DB) Close() error {
	return d.db.Close()
}

// WithTxn runs fn inside a read-write transaction.
//
// Description:
//
//	The transaction is committed when fn returns nil and discarded
//	otherwise. SSI conflicts (two transactions racing on the same keys)
//	re-run fn up to txnConflictRetries times, which makes
//	read-modify-write closures atomic under concurrency. fn must
//	therefore be idempotent and re-runnable.
//
// Inputs:
//   - ctx: Context checked before each attempt.
//   - fn: Transaction body. Must not retain the *badger.Txn.
//
// Outputs:
//   - error: fn's error, a conflict error after exhausted retries, or the
//     context error.
func (d *DB) WithTxn(ctx context.Context, fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt <= txnConflictRetries; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = d.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		time.Sleep(txnConflictBackoff)
	}
	return fmt.Errorf("badgerstore: txn conflict persisted after %d retries: %w", txnConflictRetries, err)
}

// WithReadTxn runs fn inside a read-only transaction.
func (d *DB) WithReadTxn(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return d.db.View(fn)
}
