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
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
)

// AuditEntry is one append-only record of an action and its outcome.
type AuditEntry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"ts"`
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	Domain    string    `json:"domain,omitempty"`
	Profile   string    `json:"profile,omitempty"`
	Result    string    `json:"result"`
	Detail    string    `json:"detail,omitempty"`
}

// AuditLog appends structured entries to a local JSONL file.
//
// # Description
//
// Appends are serialized by a mutex and flushed with fsync, so a crash
// never leaves a reader observing a torn record beyond the final partial
// line, which readers skip. The log is never rewritten or truncated by
// this package.
//
// # Thread Safety
//
// Safe for concurrent use within one process; the per-domain apply lock
// serializes writers across processes in practice.
type AuditLog struct {
	mu   sync.Mutex
	path string
}

// NewAuditLog returns an audit log backed by path, creating the parent
// directory if needed.
func NewAuditLog(path string) (*AuditLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create audit log dir: %w", err)
	}
	return &AuditLog{path: path}, nil
}

// Path returns the on-disk location of the log.
func (a *AuditLog) Path() string { return a.path }

// Append writes one entry. A zero ID or Timestamp is filled in.
func (a *AuditLog) Append(e AuditEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode audit entry: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	f, err := os.OpenFile(a.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return f.Sync()
}

// Read returns up to lastN entries from the tail of the log (0 means all).
// Undecodable lines are skipped.
func (a *AuditLog) Read(lastN int) ([]AuditEntry, error) {
	f, err := os.Open(a.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	var entries []AuditEntry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		var e AuditEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return entries, fmt.Errorf("scan audit log: %w", err)
	}
	if lastN > 0 && len(entries) > lastN {
		entries = entries[len(entries)-lastN:]
	}
	return entries, nil
}

// Follow streams entries appended after the call, invoking fn for each one
// until ctx is done. Uses fsnotify on the log's directory so rotation via
// rename is picked up as a fresh file.
func (a *AuditLog) Follow(ctx context.Context, fn func(AuditEntry)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(filepath.Dir(a.path)); err != nil {
		return fmt.Errorf("watch audit dir: %w", err)
	}

	// Start at the current end of file.
	var offset int64
	if fi, err := os.Stat(a.path); err == nil {
		offset = fi.Size()
	}

	drain := func() {
		f, err := os.Open(a.path)
		if err != nil {
			return
		}
		defer f.Close()
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			return
		}
		sc := bufio.NewScanner(f)
		for sc.Scan() {
			line := sc.Bytes()
			offset += int64(len(line)) + 1
			var e AuditEntry
			if err := json.Unmarshal(line, &e); err != nil {
				continue
			}
			fn(e)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Name != a.path {
				continue
			}
			if ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Rename) {
				offset = 0
			}
			if ev.Op.Has(fsnotify.Write) || ev.Op.Has(fsnotify.Create) {
				drain()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch audit log: %w", err)
		}
	}
}
