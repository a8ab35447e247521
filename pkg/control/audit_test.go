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
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAudit(t *testing.T) *AuditLog {
	t.Helper()
	log, err := NewAuditLog(filepath.Join(t.TempDir(), "actions.log"))
	require.NoError(t, err)
	return log
}

func TestAuditLog_AppendFillsIDAndTimestamp(t *testing.T) {
	log := newTestAudit(t)
	require.NoError(t, log.Append(AuditEntry{Actor: "cli", Action: "apply", Result: "applied"}))

	entries, err := log.Read(0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.NotEmpty(t, entries[0].ID)
	assert.False(t, entries[0].Timestamp.IsZero())
}

func TestAuditLog_ReadTail(t *testing.T) {
	log := newTestAudit(t)
	for i := 0; i < 5; i++ {
		require.NoError(t, log.Append(AuditEntry{
			Actor: "cli", Action: "apply", Result: fmt.Sprintf("r%d", i),
		}))
	}

	entries, err := log.Read(2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "r3", entries[0].Result)
	assert.Equal(t, "r4", entries[1].Result)
}

func TestAuditLog_ReadSkipsTornLines(t *testing.T) {
	log := newTestAudit(t)
	require.NoError(t, log.Append(AuditEntry{Actor: "cli", Action: "apply", Result: "applied"}))

	// Simulate a torn final line from a crashed writer.
	f, err := os.OpenFile(log.Path(), os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"actor":"cli","action":"apply","res`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	entries, err := log.Read(0)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "torn line must be skipped, not fatal")
}

func TestAuditLog_ReadMissingFileIsEmpty(t *testing.T) {
	log := newTestAudit(t)
	entries, err := log.Read(0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestAuditLog_FollowStreamsNewEntries(t *testing.T) {
	log := newTestAudit(t)
	require.NoError(t, log.Append(AuditEntry{Actor: "cli", Action: "apply", Result: "old"}))

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	got := make(chan AuditEntry, 4)
	go func() {
		_ = log.Follow(ctx, func(e AuditEntry) { got <- e })
	}()

	// Give the watcher a moment to attach, then append.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, log.Append(AuditEntry{Actor: "cli", Action: "apply", Result: "new"}))

	select {
	case e := <-got:
		assert.Equal(t, "new", e.Result, "only entries after the call stream")
	case <-ctx.Done():
		t.Fatal("Follow did not deliver the appended entry")
	}
}
