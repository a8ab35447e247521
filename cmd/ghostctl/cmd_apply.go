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

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/GhostControl/cmd/ghostctl/config"
	"github.com/AleutianAI/GhostControl/pkg/control"
	"github.com/AleutianAI/GhostControl/pkg/ux"
)

// runProfileList is the CLI handler for "ghostctl profile list".
func runProfileList(cmd *cobra.Command, args []string) {
	cfg := &config.Global
	domains := make([]string, 0, len(cfg.Profiles))
	for d := range cfg.Profiles {
		domains = append(domains, d)
	}
	sort.Strings(domains)
	for _, domain := range domains {
		ids := cfg.ProfileIDs(domain)
		sort.Strings(ids)
		ux.KV(domain, strings.Join(ids, ", "))
	}
}

// confirmApply asks the operator before a real mutation. Skipped for
// --yes, dry runs, and plain (non-interactive) output.
func confirmApply(what string) bool {
	if yesFlag || ux.Plain() {
		return true
	}
	confirmed := false
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(fmt.Sprintf("Apply %s now?", what)).
			Description("A checkpoint is captured first; a regression rolls the change back.").
			Value(&confirmed),
	))
	if err := form.Run(); err != nil {
		return false
	}
	return confirmed
}

// runProfileApply is the CLI handler for "ghostctl profile apply".
//
// Without --apply the plan is shown and nothing is mutated, matching the
// safe-by-default behavior of every other surface.
func runProfileApply(cmd *cobra.Command, args []string) {
	domain, id := args[0], args[1]
	cfg := &config.Global

	profile, err := cfg.Resolve(domain, id)
	if err != nil {
		ux.Error(err.Error())
		exit(1)
	}

	stack, err := newControlStack()
	if err != nil {
		ux.Error(err.Error())
		exit(1)
	}
	defer stack.close()

	dryRun := dryRunFlag || !applyFlag
	if !dryRun && !confirmApply(domain+"/"+id) {
		ux.Muted("aborted")
		exit(0)
	}

	req := control.ApplyRequest{
		Profile:              profile,
		DryRun:               dryRun,
		Window:               cfg.WindowFor(id, verifySeconds),
		RollbackOnRegression: cfg.Verify.RollbackOnRegression && !noRollback,
		Actor:                "cli",
	}

	var spin *ux.Spinner
	if !dryRun {
		spin = ux.NewSpinner(fmt.Sprintf("applying %s/%s and verifying over %s",
			domain, id, req.Window.Duration))
		spin.Start()
	}
	res, err := stack.controller.Apply(context.Background(), req)
	if spin != nil {
		spin.Stop()
	}
	if err != nil {
		ux.Error(err.Error())
		exit(1)
	}

	renderApplyResult(res)
	recordHistory(stack, res)
	if res.Status == control.StatusFailed {
		exit(2)
	}
}

// recordHistory best-effort persists an apply outcome to the warm store.
func recordHistory(stack *controlStack, results ...control.ApplyResult) {
	hist, err := stack.openHistory()
	if err != nil {
		logger.Debug("history store unavailable", "error", err)
		return
	}
	defer hist.Close()
	for _, res := range results {
		if res.Status == control.StatusDryRun {
			continue
		}
		if err := hist.RecordApply(res); err != nil {
			logger.Warn("history record failed", "error", err)
		}
	}
}
