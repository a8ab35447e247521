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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CheckpointSource records how a checkpoint came to exist.
type CheckpointSource string

const (
	// SourceManual marks an operator-requested checkpoint.
	SourceManual CheckpointSource = "manual"

	// SourceAutoPreApply marks a checkpoint taken automatically before a
	// non-dry-run apply.
	SourceAutoPreApply CheckpointSource = "auto-pre-apply"
)

var (
	// ErrCheckpointNotFound is returned when no stored checkpoint matches
	// the given id or filename.
	ErrCheckpointNotFound = errors.New("checkpoint not found")

	// ErrCheckpointCorrupt is returned when a stored checkpoint cannot be
	// decoded. The restore of that checkpoint is aborted.
	ErrCheckpointCorrupt = errors.New("checkpoint corrupt")
)

// Checkpoint is an immutable point-in-time bundle of captured prior values,
// one per domain. It is created before any non-dry-run apply and is the
// only thing a rollback needs.
type Checkpoint struct {
	ID        string            `json:"id"`
	CreatedAt time.Time         `json:"created_at"`
	Label     string            `json:"label"`
	Source    CheckpointSource  `json:"source"`
	Values    map[string]string `json:"values"`
}

// RestoreOutcome describes what happened to one domain during a restore.
type RestoreOutcome struct {
	Domain string `json:"domain"`
	// Status is one of "restored", "skipped", "failed".
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// CheckpointStore persists checkpoints as JSON files in a state directory.
//
// # Description
//
// Files are named <YYYYMMDD-HHMMSS>-<label>-<id prefix>.json and written
// with a write-then-rename so a concurrent reader never observes a torn
// record.
// Restore is idempotent: restoring the same checkpoint twice yields an
// identical end state because effector Restore operations are themselves
// idempotent.
//
// # Thread Safety
//
// Safe for concurrent use; the filesystem rename is the commit point.
type CheckpointStore struct {
	dir      string
	registry *Registry
	log      *slog.Logger
}

// NewCheckpointStore returns a store rooted at dir, creating it if needed.
func NewCheckpointStore(dir string, registry *Registry, log *slog.Logger) (*CheckpointStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint dir: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &CheckpointStore{dir: dir, registry: registry, log: log}, nil
}

// Dir returns the state directory backing the store.
func (s *CheckpointStore) Dir() string { return s.dir }

// Create captures the current value of every registered domain and persists
// the bundle. Domains whose effector is unavailable are skipped, not
// failed; a checkpoint with zero captured values is still valid (it simply
// restores nothing).
func (s *CheckpointStore) Create(ctx context.Context, label string, source CheckpointSource) (Checkpoint, error) {
	cp := Checkpoint{
		ID:        uuid.NewString(),
		CreatedAt: time.Now(),
		Label:     sanitizeLabel(label),
		Source:    source,
		Values:    make(map[string]string),
	}
	for _, domain := range s.registry.Domains() {
		eff, err := s.registry.Lookup(domain)
		if err != nil {
			return Checkpoint{}, err
		}
		value, err := eff.Read(ctx)
		if err != nil {
			if errors.Is(err, ErrEffectorUnavailable) {
				s.log.Debug("checkpoint capture skipped", "domain", domain, "reason", err)
				continue
			}
			s.log.Warn("checkpoint capture failed", "domain", domain, "error", err)
			continue
		}
		cp.Values[domain] = value
	}
	if err := s.write(cp); err != nil {
		return Checkpoint{}, err
	}
	return cp, nil
}

// write persists atomically: temp file in the same directory, fsync, rename.
func (s *CheckpointStore) write(cp Checkpoint) error {
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	final := filepath.Join(s.dir, cp.Filename())
	tmp, err := os.CreateTemp(s.dir, ".checkpoint-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp checkpoint: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close checkpoint: %w", err)
	}
	if err := os.Rename(tmpName, final); err != nil {
		return fmt.Errorf("commit checkpoint: %w", err)
	}
	return nil
}

// Filename returns the stable on-disk name for the checkpoint. The id
// suffix keeps two captures with the same label in the same second from
// overwriting each other.
func (c Checkpoint) Filename() string {
	suffix := c.ID
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	return c.CreatedAt.Format("20060102-150405") + "-" + c.Label + "-" + suffix + ".json"
}

// List returns all stored checkpoints ordered by creation time, oldest
// first. Corrupt files are reported in the log and skipped.
func (s *CheckpointStore) List() ([]Checkpoint, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read checkpoint dir: %w", err)
	}
	var out []Checkpoint
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		cp, err := s.load(filepath.Join(s.dir, e.Name()))
		if err != nil {
			s.log.Warn("skipping unreadable checkpoint", "file", e.Name(), "error", err)
			continue
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Get resolves a checkpoint by uuid or by on-disk filename.
func (s *CheckpointStore) Get(id string) (Checkpoint, error) {
	direct := filepath.Join(s.dir, id)
	if _, err := os.Stat(direct); err == nil {
		return s.load(direct)
	}
	all, err := s.List()
	if err != nil {
		return Checkpoint{}, err
	}
	for _, cp := range all {
		if cp.ID == id || cp.Filename() == id {
			return cp, nil
		}
	}
	return Checkpoint{}, fmt.Errorf("%w: %s", ErrCheckpointNotFound, id)
}

func (s *CheckpointStore) load(path string) (Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Checkpoint{}, err
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return Checkpoint{}, fmt.Errorf("%w: %s: %v", ErrCheckpointCorrupt, filepath.Base(path), err)
	}
	return cp, nil
}

// Restore reapplies the captured values of the identified checkpoint.
//
// Domains present in the checkpoint but no longer registered are skipped.
// A failing domain is reported and the remaining domains still run; the
// returned error is non-nil if any domain failed. Unrelated state is never
// touched.
func (s *CheckpointStore) Restore(ctx context.Context, id string) ([]RestoreOutcome, error) {
	cp, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	return s.RestoreCheckpoint(ctx, cp, nil)
}

// RestoreCheckpoint restores cp, optionally limited to the given domains
// (nil means every captured domain). Used directly by the apply controller
// so a rollback only touches the domains it mutated.
func (s *CheckpointStore) RestoreCheckpoint(ctx context.Context, cp Checkpoint, only []string) ([]RestoreOutcome, error) {
	var outcomes []RestoreOutcome
	var failed []string

	domains := make([]string, 0, len(cp.Values))
	for d := range cp.Values {
		domains = append(domains, d)
	}
	sort.Strings(domains)

	for _, domain := range domains {
		if only != nil && !containsString(only, domain) {
			continue
		}
		eff, err := s.registry.Lookup(domain)
		if err != nil {
			outcomes = append(outcomes, RestoreOutcome{Domain: domain, Status: "skipped", Detail: "domain no longer tracked"})
			continue
		}
		if err := eff.Restore(ctx, cp.Values[domain]); err != nil {
			if errors.Is(err, ErrEffectorUnavailable) {
				outcomes = append(outcomes, RestoreOutcome{Domain: domain, Status: "skipped", Detail: err.Error()})
				continue
			}
			outcomes = append(outcomes, RestoreOutcome{Domain: domain, Status: "failed", Detail: err.Error()})
			failed = append(failed, domain)
			continue
		}
		outcomes = append(outcomes, RestoreOutcome{Domain: domain, Status: "restored"})
	}
	if len(failed) > 0 {
		return outcomes, fmt.Errorf("restore left domains unrestored: %s", strings.Join(failed, ", "))
	}
	return outcomes, nil
}

// Prune removes old checkpoints, keeping at least keepLast newest and
// anything younger than maxAge. A zero maxAge disables the age rule; a zero
// keepLast keeps none on age expiry. Returns the pruned filenames.
func (s *CheckpointStore) Prune(keepLast int, maxAge time.Duration) ([]string, error) {
	all, err := s.List()
	if err != nil {
		return nil, err
	}
	var pruned []string
	cutoffIdx := len(all) - keepLast
	for i, cp := range all {
		if i >= cutoffIdx {
			break
		}
		if maxAge > 0 && time.Since(cp.CreatedAt) < maxAge {
			continue
		}
		path := filepath.Join(s.dir, cp.Filename())
		if err := os.Remove(path); err != nil {
			s.log.Warn("prune failed", "file", cp.Filename(), "error", err)
			continue
		}
		pruned = append(pruned, cp.Filename())
	}
	return pruned, nil
}

func sanitizeLabel(label string) string {
	if label == "" {
		return "manual"
	}
	label = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, label)
	return strings.Trim(label, "-")
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
