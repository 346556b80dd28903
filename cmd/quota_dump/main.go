// Copyright (C) 2025 Estuda AI (eng@estuda.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// quota_dump inspects the gateway's quota BadgerDB.
//
// The gateway persists per-(user, month) quota records and the append-only
// usage log in BadgerDB. This tool opens the database read-only and prints
// human-readable summaries: record counters versus limits, and per-user
// usage-log rows for auditing the counters against their source of truth.
//
// Usage:
//
//	quota_dump records [--path /path/to/quota/db]
//	quota_dump logs --user user-1 [--path /path/to/quota/db]
//
// If --path is not given, reads GATEWAY_DATA_DIR from the environment,
// falling back to ~/.estuda/gateway/quota.
//
// Exit codes:
//
//	0 — success (including "empty store", which prints a message)
//	1 — error opening or reading the database
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	dgbadger "github.com/dgraph-io/badger/v4"
	"github.com/spf13/cobra"

	"github.com/EstudaAI/EstudaGateway/services/gateway/quota"
)

// Key prefixes must match badger_store.go exactly.
const (
	recordKeyPrefix = "quota/rec/v1/"
	logKeyPrefix    = "quota/log/v1/"
)

var dbPath string

func main() {
	root := &cobra.Command{
		Use:   "quota_dump",
		Short: "Inspect the gateway's quota BadgerDB (read-only)",
	}
	root.PersistentFlags().StringVar(&dbPath, "path", "",
		"Path to the quota BadgerDB directory (overrides GATEWAY_DATA_DIR)")

	recordsCmd := &cobra.Command{
		Use:   "records",
		Short: "List quota records with usage versus limits",
		Run:   runRecords,
	}

	var logsUser string
	logsCmd := &cobra.Command{
		Use:   "logs",
		Short: "List a user's usage-log rows in time order",
		Run: func(cmd *cobra.Command, args []string) {
			runLogs(logsUser)
		},
	}
	logsCmd.Flags().StringVar(&logsUser, "user", "", "User id to dump rows for (required)")
	_ = logsCmd.MarkFlagRequired("user")

	root.AddCommand(recordsCmd, logsCmd)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// openDB opens the quota database read-only.
func openDB() *dgbadger.DB {
	path := dbPath
	if path == "" {
		path = os.Getenv("GATEWAY_DATA_DIR")
	}
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			fatalf("cannot resolve home directory: %v", err)
		}
		path = filepath.Join(home, ".estuda", "gateway", "quota")
	}

	fmt.Printf("Quota store path: %s\n", path)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Println("Store directory does not exist. The gateway has not yet persisted any records.")
		os.Exit(0)
	}

	opts := dgbadger.DefaultOptions(path).
		WithLogger(nil).
		WithReadOnly(true)
	db, err := dgbadger.Open(opts)
	if err != nil {
		fatalf("open BadgerDB at %s: %v", path, err)
	}
	return db
}

func runRecords(_ *cobra.Command, _ []string) {
	db := openDB()
	defer func() { _ = db.Close() }()

	var records []quota.QuotaRecord
	err := db.View(func(txn *dgbadger.Txn) error {
		opts := dgbadger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(recordKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var rec quota.QuotaRecord
				if err := json.Unmarshal(val, &rec); err != nil {
					return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
				}
				records = append(records, rec)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		fatalf("read records: %v", err)
	}

	if len(records) == 0 {
		fmt.Println("\nNo quota records found.")
		return
	}

	fmt.Printf("\nFound %d quota record(s):\n", len(records))
	fmt.Println(strings.Repeat("─", 80))
	for _, rec := range records {
		status := "active"
		if !rec.IsActive {
			status = "SUSPENDED"
		}
		fmt.Printf("\n%s  [%s, %s]\n", rec.ID, rec.Role, status)
		fmt.Printf("    Tokens:  %s\n", usageLine(rec.TokenUsed, rec.TokenLimit))
		fmt.Printf("    Cost:    %s\n", costLine(rec.CostUsedUSD, rec.CostLimitUSD))
		fmt.Printf("    Windows: daily %s, hourly %s\n", limitLabel(rec.DailyLimit), limitLabel(rec.HourlyLimit))
		fmt.Printf("    Created: %s\n", time.UnixMilli(rec.CreatedAt).UTC().Format("2006-01-02 15:04:05 MST"))
	}
	fmt.Printf("\n%s\nSummary: %d record(s)\n", strings.Repeat("─", 80), len(records))
}

func runLogs(userID string) {
	db := openDB()
	defer func() { _ = db.Close() }()

	var rows []quota.UsageLogEntry
	err := db.View(func(txn *dgbadger.Txn) error {
		opts := dgbadger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(logKeyPrefix + userID + "/")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var entry quota.UsageLogEntry
				if err := json.Unmarshal(val, &entry); err != nil {
					return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
				}
				rows = append(rows, entry)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		fatalf("read usage log: %v", err)
	}

	if len(rows) == 0 {
		fmt.Printf("\nNo usage-log rows for user %s.\n", userID)
		return
	}

	fmt.Printf("\nFound %d usage-log row(s) for %s:\n", len(rows), userID)
	fmt.Println(strings.Repeat("─", 100))
	fmt.Printf("%-24s  %-10s  %-26s  %8s  %8s  %10s  %s\n",
		"Created", "Module", "Model", "Prompt", "Compl", "Cost USD", "OK")
	var totalTokens int64
	var totalCost float64
	for _, row := range rows {
		ok := "yes"
		if !row.Success {
			ok = "NO"
		} else {
			totalTokens += row.TotalTokens
			totalCost += row.CostUSD
		}
		fmt.Printf("%-24s  %-10s  %-26s  %8d  %8d  %10.4f  %s\n",
			time.UnixMilli(row.CreatedAt).UTC().Format("2006-01-02 15:04:05"),
			row.Module, row.Model, row.PromptTokens, row.CompletionTokens, row.CostUSD, ok)
	}
	fmt.Printf("\nSuccessful totals: %d tokens, $%.4f\n", totalTokens, totalCost)
}

// usageLine renders used/limit with a percentage, handling unlimited.
func usageLine(used, limit int64) string {
	if limit == 0 {
		return fmt.Sprintf("%d used (unlimited)", used)
	}
	return fmt.Sprintf("%d / %d (%.1f%%)", used, limit, 100*float64(used)/float64(limit))
}

// costLine renders cost used/limit, handling unlimited.
func costLine(used, limit float64) string {
	if limit == 0 {
		return fmt.Sprintf("$%.4f used (unlimited)", used)
	}
	return fmt.Sprintf("$%.4f / $%.2f (%.1f%%)", used, limit, 100*used/limit)
}

// limitLabel renders a token limit, handling unlimited.
func limitLabel(limit int64) string {
	if limit == 0 {
		return "unlimited"
	}
	return fmt.Sprintf("%d", limit)
}

// fatalf prints to stderr and exits 1.
func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "quota_dump: "+format+"\n", args...)
	os.Exit(1)
}
