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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sys/unix"
)

var (
	// ErrDomainBusy is returned when another apply already holds a
	// domain. Callers fail fast; they never queue.
	ErrDomainBusy = errors.New("domain busy: another apply is in progress")

	// ErrStaleApply is returned when a leftover in-flight marker from a
	// crashed apply is found. Safe continuation cannot be inferred from
	// a partially-applied state, so the marker must be cleared by hand.
	ErrStaleApply = errors.New("stale apply marker found: resolve manually with 'ghostctl locks clear'")
)

// LockTable provides advisory per-domain locking.
//
// # Description
//
// Two layers: an in-process semaphore per domain (TryAcquire, so a second
// request fails fast with ErrDomainBusy) and a cross-process flock on a
// per-domain lock file. An in-flight marker file is written for the
// duration of a mutation; a marker left behind by a crashed process and
// older than StaleAge blocks new applies on that domain until cleared.
//
// # Thread Safety
//
// Safe for concurrent use.
type LockTable struct {
	dir string

	// StaleAge is the age beyond which a leftover marker is considered
	// stale. Markers younger than this still block (the owner may be
	// alive in another process that crashed its flock holder).
	StaleAge time.Duration

	mu   sync.Mutex
	sems map[string]*semaphore.Weighted
}

// NewLockTable returns a lock table rooted at dir.
func NewLockTable(dir string) (*LockTable, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	return &LockTable{
		dir:      dir,
		StaleAge: 10 * time.Minute,
		sems:     make(map[string]*semaphore.Weighted),
	}, nil
}

func (t *LockTable) sem(domain string) *semaphore.Weighted {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sems[domain]
	if !ok {
		s = semaphore.NewWeighted(1)
		t.sems[domain] = s
	}
	return s
}

func (t *LockTable) lockPath(domain string) string {
	return filepath.Join(t.dir, domain+".lock")
}

func (t *LockTable) markerPath(domain string) string {
	return filepath.Join(t.dir, domain+".inflight")
}

// Acquire takes the advisory lock for a domain, failing fast with
// ErrDomainBusy if it is held, or ErrStaleApply if a crashed apply left a
// marker behind. The returned release function must be called exactly once.
func (t *LockTable) Acquire(domain string) (release func(), err error) {
	s := t.sem(domain)
	if !s.TryAcquire(1) {
		return nil, fmt.Errorf("%w (domain=%s)", ErrDomainBusy, domain)
	}
	defer func() {
		if err != nil {
			s.Release(1)
		}
	}()

	if fi, statErr := os.Stat(t.markerPath(domain)); statErr == nil {
		if time.Since(fi.ModTime()) >= t.StaleAge {
			return nil, fmt.Errorf("%w (domain=%s, age=%s)", ErrStaleApply, domain, time.Since(fi.ModTime()).Round(time.Second))
		}
		return nil, fmt.Errorf("%w (domain=%s)", ErrDomainBusy, domain)
	}

	f, err := os.OpenFile(t.lockPath(domain), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%w (domain=%s)", ErrDomainBusy, domain)
		}
		return nil, fmt.Errorf("flock %s: %w", domain, err)
	}
	// Truncate only after the flock is held so a losing contender never
	// clobbers the holder's line.
	if err := f.Truncate(0); err == nil {
		fmt.Fprintf(f, "pid=%d ts=%s\n", os.Getpid(), time.Now().Format(time.RFC3339))
	}

	return func() {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
		s.Release(1)
	}, nil
}

// MarkInFlight records that a mutation is underway on a domain. Removed by
// ClearInFlight on any clean terminal state; left behind only on a crash.
func (t *LockTable) MarkInFlight(domain string) error {
	return os.WriteFile(t.markerPath(domain),
		[]byte(fmt.Sprintf("pid=%d ts=%s\n", os.Getpid(), time.Now().Format(time.RFC3339))), 0o644)
}

// ClearInFlight removes the in-flight marker for a domain.
func (t *LockTable) ClearInFlight(domain string) {
	os.Remove(t.markerPath(domain))
}

// ClearStale removes leftover markers, returning the domains cleared. This
// is the manual resolution path for ErrStaleApply.
func (t *LockTable) ClearStale() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(t.dir, "*.inflight"))
	if err != nil {
		return nil, err
	}
	var cleared []string
	for _, m := range matches {
		if err := os.Remove(m); err == nil {
			base := filepath.Base(m)
			cleared = append(cleared, base[:len(base)-len(".inflight")])
		}
	}
	return cleared, nil
}
