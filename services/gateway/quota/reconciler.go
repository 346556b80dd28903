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
	"log/slog"
	"sync"
	"time"
)

// Async recording bounds. Each submission gets its own deadline detached
// from the originating request, so a slow store never stalls a response.
const (
	recordTimeout   = 5 * time.Second
	recordAttempts  = 3
	recordBackoff   = 100 * time.Millisecond
	backoffMultiple = 4
)

// Recorder commits usage rows off the request path.
//
// Description:
//
//	Handlers must not block a user's response on quota bookkeeping.
//	Submit spawns a goroutine that calls Service.RecordUsage with its own
//	timeout, retrying transient store failures with exponential backoff.
//	A row that still fails after the last attempt is dropped with a
//	warning and a metric; the gateway prefers losing one charge over
//	losing a response.
//
// Thread Safety: Safe for concurrent use.
type Recorder struct {
	svc    *Service
	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewRecorder creates an async usage recorder over the admission service.
func NewRecorder(svc *Service, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{svc: svc, logger: logger}
}

// Submit schedules a usage row for background commit and returns immediately.
//
// Inputs:
//   - entry: The usage row. Ownership passes to the recorder; the caller
//     must not mutate it after Submit returns.
func (r *Recorder) Submit(entry *UsageLogEntry) {
	if entry == nil {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.record(entry)
	}()
}

// Wait blocks until all submitted rows have been committed or dropped.
// Called during graceful shutdown and from tests.
func (r *Recorder) Wait() {
	r.wg.Wait()
}

// record runs the bounded retry loop for one row.
func (r *Recorder) record(entry *UsageLogEntry) {
	backoff := recordBackoff

	var err error
	for attempt := 1; attempt <= recordAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		err = r.svc.RecordUsage(ctx, entry)
		cancel()
		if err == nil {
			return
		}
		if attempt < recordAttempts {
			time.Sleep(backoff)
			backoff *= backoffMultiple
		}
	}

	RecordReconcileFailure()
	r.logger.Warn("dropping usage row after retries",
		slog.String("user_id", entry.UserID),
		slog.String("entry_id", entry.ID),
		slog.Int64("total_tokens", entry.TotalTokens),
		slog.Int("attempts", recordAttempts),
		slog.String("error", err.Error()),
	)
}
