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
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/GhostControl/pkg/control"
	"github.com/AleutianAI/GhostControl/pkg/ux"
)

// runCheckpointCreate is the CLI handler for "ghostctl checkpoint create".
func runCheckpointCreate(cmd *cobra.Command, args []string) {
	stack, err := newControlStack()
	if err != nil {
		ux.Error(err.Error())
		exit(1)
	}
	defer stack.close()

	cp, err := stack.store.Create(context.Background(), checkpointLabel, control.SourceManual)
	if err != nil {
		ux.Error(err.Error())
		exit(1)
	}
	auditErr := stack.audit.Append(control.AuditEntry{
		Actor:  "cli",
		Action: "checkpoint-create",
		Result: "ok",
		Detail: fmt.Sprintf("checkpoint=%s domains=%d", cp.ID, len(cp.Values)),
	})
	if auditErr != nil {
		logger.Error("audit append failed", "error", auditErr)
	}

	ux.Success(fmt.Sprintf("checkpoint %s (%s)", cp.ID, cp.Filename()))
	domains := make([]string, 0, len(cp.Values))
	for d := range cp.Values {
		domains = append(domains, d)
	}
	sort.Strings(domains)
	ux.KV("captured", strings.Join(domains, ", "))
}

// runCheckpointList is the CLI handler for "ghostctl checkpoint list".
func runCheckpointList(cmd *cobra.Command, args []string) {
	stack, err := newControlStack()
	if err != nil {
		ux.Error(err.Error())
		exit(1)
	}
	defer stack.close()

	all, err := stack.store.List()
	if err != nil {
		ux.Error(err.Error())
		exit(1)
	}
	if len(all) == 0 {
		ux.Muted("no checkpoints")
		return
	}
	for _, cp := range all {
		ux.KV(cp.Filename(), fmt.Sprintf("id=%s source=%s domains=%d",
			cp.ID, cp.Source, len(cp.Values)))
	}
}

// runCheckpointRestore is the CLI handler for "ghostctl checkpoint restore".
func runCheckpointRestore(cmd *cobra.Command, args []string) {
	stack, err := newControlStack()
	if err != nil {
		ux.Error(err.Error())
		exit(1)
	}
	defer stack.close()

	if !confirmApply("checkpoint restore " + args[0]) {
		ux.Muted("aborted")
		exit(0)
	}

	outcomes, restoreErr := stack.store.Restore(context.Background(), args[0])
	for _, o := range outcomes {
		switch o.Status {
		case "restored":
			ux.Success(o.Domain + ": restored")
		case "skipped":
			ux.Muted(fmt.Sprintf("%s: skipped (%s)", o.Domain, o.Detail))
		default:
			ux.Error(fmt.Sprintf("%s: %s (%s)", o.Domain, o.Status, o.Detail))
		}
	}

	result := "ok"
	detail := fmt.Sprintf("checkpoint=%s restored=%d", args[0], len(outcomes))
	if restoreErr != nil {
		result = "failed"
		detail = restoreErr.Error()
	}
	auditErr := stack.audit.Append(control.AuditEntry{
		Actor:  "cli",
		Action: "checkpoint-restore",
		Result: result,
		Detail: detail,
	})
	if auditErr != nil {
		logger.Error("audit append failed", "error", auditErr)
	}
	if restoreErr != nil {
		ux.Error(restoreErr.Error())
		exit(2)
	}
}

// runCheckpointPrune is the CLI handler for "ghostctl checkpoint prune".
func runCheckpointPrune(cmd *cobra.Command, args []string) {
	stack, err := newControlStack()
	if err != nil {
		ux.Error(err.Error())
		exit(1)
	}
	defer stack.close()

	ret := stack.cfg.Retention
	maxAge := time.Duration(ret.MaxAgeDays) * 24 * time.Hour
	pruned, err := stack.store.Prune(ret.KeepLast, maxAge)
	if err != nil {
		ux.Error(err.Error())
		exit(1)
	}
	if len(pruned) == 0 {
		ux.Muted("nothing to prune")
		return
	}
	for _, name := range pruned {
		ux.Muted("pruned " + name)
	}
	ux.Success(fmt.Sprintf("pruned %d checkpoint(s), keeping last %d", len(pruned), ret.KeepLast))
}
