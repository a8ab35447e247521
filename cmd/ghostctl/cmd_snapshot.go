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

	"github.com/spf13/cobra"

	"github.com/AleutianAI/GhostControl/pkg/control"
	"github.com/AleutianAI/GhostControl/pkg/ux"
)

// runSnapshot is the CLI handler for "ghostctl snapshot". Read-only: it
// records one telemetry reading into the history store.
func runSnapshot(cmd *cobra.Command, args []string) {
	stack, err := newControlStack()
	if err != nil {
		ux.Error(err.Error())
		exit(1)
	}
	defer stack.close()

	collector := control.NewSnapshotCollector(stack.runner, stack.power,
		control.NewCPUTempProvider(stack.runner),
		control.NewJournalErrProvider(stack.runner, stack.cfg.Verify.Seconds),
	)
	snap := collector.Collect(context.Background())

	ux.Title("Snapshot")
	ux.KV("taken_at", snap.TakenAt.Format("2006-01-02 15:04:05"))
	ux.KV("cpu_temp_c", fmtPtrFloat(snap.CPUTempC))
	ux.KV("journal_p0p3_lines", fmtPtrFloat(snap.JournalErrs))
	ux.KV("failed_units", fmtPtrInt(snap.FailedUnits))
	ux.KV("ac_online", fmtPtrBool(snap.ACOnline))
	ux.KV("battery_percent", fmtPtrInt(snap.BatteryPercent))

	hist, err := stack.openHistory()
	if err != nil {
		ux.Warning("history store unavailable, snapshot not persisted: " + err.Error())
		return
	}
	defer hist.Close()
	if err := hist.RecordSnapshot(snap); err != nil {
		ux.Warning("snapshot not persisted: " + err.Error())
		return
	}
	ux.Success("snapshot recorded")
}

// runGuard is the CLI handler for "ghostctl guard". Read-only: it scores
// host health from the most recent snapshots.
func runGuard(cmd *cobra.Command, args []string) {
	stack, err := newControlStack()
	if err != nil {
		ux.Error(err.Error())
		exit(1)
	}
	defer stack.close()

	hist, err := stack.openHistory()
	if err != nil {
		ux.Error("history store unavailable: " + err.Error())
		exit(1)
	}
	defer hist.Close()

	snaps, err := hist.RecentSnapshots(guardLastN)
	if err != nil {
		ux.Error(err.Error())
		exit(1)
	}
	report := control.GuardScore(snaps)

	ux.Title("Guard")
	if report.Analyzed == 0 {
		ux.Warning("no snapshots recorded yet; run 'ghostctl snapshot' first")
		return
	}
	ux.KV("analyzed", fmt.Sprintf("%d snapshot(s)", report.Analyzed))
	ux.KV("avg_cpu_temp_c", fmtPtrFloat(report.AvgCPUTempC))
	ux.KV("avg_journal_errs", fmtPtrFloat(report.AvgJournalErrs))
	ux.KV("avg_failed_units", fmtPtrFloat(report.AvgFailedUnits))
	if p := report.Penalties; p.CPUTemp+p.JournalErrs+p.FailedUnits > 0 {
		ux.KV("penalties", fmt.Sprintf("temp=%.1f journal=%.1f units=%.1f",
			p.CPUTemp, p.JournalErrs, p.FailedUnits))
	}
	if report.Pass {
		ux.Success(fmt.Sprintf("score %d/100 (pass)", report.Score))
	} else {
		ux.Warning(fmt.Sprintf("score %d/100 (below pass threshold)", report.Score))
		exit(1)
	}
}
