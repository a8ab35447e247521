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
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/GhostControl/pkg/control"
	"github.com/AleutianAI/GhostControl/pkg/ux"
)

// runLocksClear is the CLI handler for "ghostctl locks clear": the manual
// resolution path after a crashed apply left an in-flight marker behind.
func runLocksClear(cmd *cobra.Command, args []string) {
	stack, err := newControlStack()
	if err != nil {
		ux.Error(err.Error())
		exit(1)
	}
	defer stack.close()

	cleared, err := stack.locks.ClearStale()
	if err != nil {
		ux.Error(err.Error())
		exit(1)
	}
	if len(cleared) == 0 {
		ux.Muted("no in-flight markers found")
		return
	}
	auditErr := stack.audit.Append(control.AuditEntry{
		Actor:  "cli",
		Action: "locks-clear",
		Result: "ok",
		Detail: "cleared: " + strings.Join(cleared, ", "),
	})
	if auditErr != nil {
		logger.Error("audit append failed", "error", auditErr)
	}
	ux.Warning("cleared markers for: " + strings.Join(cleared, ", "))
	ux.Muted("verify the affected domains manually or restore the latest checkpoint")
}
