// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package control

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

// History is the embedded store for apply results and host snapshots.
//
// # Description
//
// Backed by BadgerDB for low-latency local persistence. Keys are
// time-prefixed ("apply/<ts>", "snapshot/<ts>") so reverse iteration
// yields most-recent-first without an index. This is warm storage only:
// the audit log remains the durable record of outcomes.
//
// # Thread Safety
//
// Safe for concurrent use; BadgerDB transactions provide isolation.
type History struct {
	db *badger.DB
}

// HistoryConfig configures the history store.
type HistoryConfig struct {
	// Path is the BadgerDB directory. Ignored when InMemory is set.
	Path string

	// InMemory runs without disk persistence. Used by tests.
	InMemory bool

	// Logger receives BadgerDB's internal messages. Nil disables them.
	Logger *slog.Logger
}

// OpenHistory opens (or creates) the history store.
func OpenHistory(cfg HistoryConfig) (*History, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(cfg.Path).WithSyncWrites(true)
	}
	opts = opts.WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(badgerSlogAdapter{log: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open history store: %w", err)
	}
	return &History{db: db}, nil
}

// Close releases the store.
func (h *History) Close() error { return h.db.Close() }

const (
	keyPrefixApply    = "apply/"
	keyPrefixSnapshot = "snapshot/"
)

func historyKey(prefix string, ts time.Time) []byte {
	return []byte(prefix + ts.UTC().Format(time.RFC3339Nano))
}

// RecordApply persists one terminal apply result.
func (h *History) RecordApply(result ApplyResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode apply result: %w", err)
	}
	return h.db.Update(func(txn *badger.Txn) error {
		return txn.Set(historyKey(keyPrefixApply, result.Timestamp), data)
	})
}

// RecordSnapshot persists one host telemetry snapshot.
func (h *History) RecordSnapshot(snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return h.db.Update(func(txn *badger.Txn) error {
		return txn.Set(historyKey(keyPrefixSnapshot, snap.TakenAt), data)
	})
}

// RecentSnapshots returns up to n snapshots, most recent first.
func (h *History) RecentSnapshots(n int) ([]Snapshot, error) {
	var out []Snapshot
	err := h.recent(keyPrefixSnapshot, n, func(val []byte) error {
		var s Snapshot
		if err := json.Unmarshal(val, &s); err != nil {
			return err
		}
		out = append(out, s)
		return nil
	})
	return out, err
}

// RecentApplies returns up to n apply results, most recent first.
func (h *History) RecentApplies(n int) ([]ApplyResult, error) {
	var out []ApplyResult
	err := h.recent(keyPrefixApply, n, func(val []byte) error {
		var r ApplyResult
		if err := json.Unmarshal(val, &r); err != nil {
			return err
		}
		out = append(out, r)
		return nil
	})
	return out, err
}

func (h *History) recent(prefix string, n int, collect func([]byte) error) error {
	return h.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration needs a seek key past the prefix range.
		seek := append([]byte(prefix), 0xFF)
		count := 0
		for it.Seek(seek); it.ValidForPrefix([]byte(prefix)) && count < n; it.Next() {
			err := it.Item().Value(func(val []byte) error { return collect(val) })
			if err != nil {
				return err
			}
			count++
		}
		return nil
	})
}

// badgerSlogAdapter routes BadgerDB's logger onto slog.
type badgerSlogAdapter struct {
	log *slog.Logger
}

func (a badgerSlogAdapter) Errorf(f string, args ...interface{}) {
	a.log.Error(fmt.Sprintf(f, args...))
}
func (a badgerSlogAdapter) Warningf(f string, args ...interface{}) {
	a.log.Warn(fmt.Sprintf(f, args...))
}
func (a badgerSlogAdapter) Infof(f string, args ...interface{}) {
	a.log.Info(fmt.Sprintf(f, args...))
}
func (a badgerSlogAdapter) Debugf(f string, args ...interface{}) {
	a.log.Debug(fmt.Sprintf(f, args...))
}
