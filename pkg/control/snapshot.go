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
	"strings"
	"time"
)

// Snapshot is a one-shot host telemetry reading. Nil fields mean the
// signal was unavailable on this host.
type Snapshot struct {
	TakenAt        time.Time `json:"taken_at"`
	CPUTempC       *float64  `json:"cpu_temp_c,omitempty"`
	JournalErrs    *float64  `json:"journal_p0p3_lines,omitempty"`
	FailedUnits    *int      `json:"failed_units,omitempty"`
	ACOnline       *bool     `json:"ac_online,omitempty"`
	BatteryPercent *int      `json:"battery_percent,omitempty"`
}

// SnapshotCollector gathers one Snapshot from the host signal sources.
type SnapshotCollector struct {
	runner    CommandRunner
	providers []MetricProvider
	power     *PowerSupplyReader
}

// NewSnapshotCollector returns a collector over the given sources.
func NewSnapshotCollector(runner CommandRunner, power *PowerSupplyReader, providers ...MetricProvider) *SnapshotCollector {
	return &SnapshotCollector{runner: runner, providers: providers, power: power}
}

// Collect reads every signal once. Unavailable signals are simply omitted.
func (c *SnapshotCollector) Collect(ctx context.Context) Snapshot {
	snap := Snapshot{TakenAt: time.Now()}
	for _, p := range c.providers {
		v, err := p.Sample(ctx)
		if err != nil {
			continue
		}
		value := v
		switch p.Name() {
		case MetricCPUTempC:
			snap.CPUTempC = &value
		case MetricJournalErrs:
			snap.JournalErrs = &value
		}
	}
	if c.power != nil {
		if ac, ok := c.power.ACOnline(); ok {
			snap.ACOnline = &ac
		}
		if batt, ok := c.power.BatteryPercent(); ok {
			snap.BatteryPercent = &batt
		}
	}
	if c.runner != nil && c.runner.LookPath("systemctl") {
		res := c.runner.Run(ctx, "systemctl", "--failed", "--no-legend")
		if res.Ok() {
			count := 0
			for _, ln := range strings.Split(res.Stdout, "\n") {
				if strings.TrimSpace(ln) != "" {
					count++
				}
			}
			snap.FailedUnits = &count
		}
	}
	return snap
}
