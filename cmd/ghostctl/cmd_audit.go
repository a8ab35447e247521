// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/GhostControl/pkg/control"
	"github.com/AleutianAI/GhostControl/pkg/ux"
)

// runAudit is the CLI handler for "ghostctl audit".
//
// The default shows the tail of the action log; --follow streams new
// entries until interrupted.
func runAudit(cmd *cobra.Command, args []string) {
	stack, err := newControlStack()
	if err != nil {
		ux.Error(err.Error())
		exit(1)
	}
	defer stack.close()

	entries, err := stack.audit.Read(auditLastN)
	if err != nil {
		ux.Error(err.Error())
		exit(1)
	}
	if len(entries) == 0 && !auditFollowFlag {
		ux.Muted("audit log empty")
		return
	}
	for _, e := range entries {
		renderAuditEntry(e)
	}

	if !auditFollowFlag {
		return
	}
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	err = stack.audit.Follow(ctx, renderAuditEntry)
	if err != nil && !errors.Is(err, context.Canceled) {
		ux.Error(err.Error())
		exit(1)
	}
}

func renderAuditEntry(e control.AuditEntry) {
	target := e.Action
	if e.Domain != "" {
		target = fmt.Sprintf("%s %s/%s", e.Action, e.Domain, e.Profile)
	}
	line := fmt.Sprintf("%s  %-14s %-28s %s",
		e.Timestamp.Format("2006-01-02 15:04:05"), e.Actor, target, e.Result)
	switch e.Result {
	case string(control.StatusApplied), "ok", "authorized":
		ux.Success(line)
	case string(control.StatusRolledBack):
		ux.Warning(line)
	case string(control.StatusDryRun), "read-only", "skipped":
		ux.Muted(line)
	default:
		ux.Error(line)
	}
	if e.Detail != "" {
		ux.Muted("    " + e.Detail)
	}
}
