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

import "math"

// GuardReport is the read-only health score over recent snapshots.
type GuardReport struct {
	// Score is 0..100; 100 is a fully healthy host.
	Score int `json:"score"`

	// Pass is true when Score is at or above the pass threshold (75).
	Pass bool `json:"pass"`

	// Analyzed is the number of snapshots that contributed.
	Analyzed int `json:"analyzed"`

	// Penalties breaks the deduction down per signal.
	Penalties GuardPenalties `json:"penalties"`

	// Averages holds the averaged inputs actually observed.
	AvgCPUTempC    *float64 `json:"avg_cpu_temp_c,omitempty"`
	AvgJournalErrs *float64 `json:"avg_journal_errs,omitempty"`
	AvgFailedUnits *float64 `json:"avg_failed_units,omitempty"`
}

// GuardPenalties are the individual score deductions.
type GuardPenalties struct {
	CPUTemp     float64 `json:"cpu_temp"`
	JournalErrs float64 `json:"journal_errs"`
	FailedUnits float64 `json:"failed_units"`
}

const guardPassScore = 75

// rampPenalty grows linearly above start by scale per unit, capped.
func rampPenalty(value, start, scale, limit float64) float64 {
	if value <= start {
		return 0
	}
	return math.Min(limit, (value-start)*scale)
}

// GuardScore computes the health score from recent snapshots. With no
// snapshots the report has Analyzed=0 and a full score; callers surface
// the missing data separately.
func GuardScore(snaps []Snapshot) GuardReport {
	report := GuardReport{Score: 100, Pass: true}
	if len(snaps) == 0 {
		return report
	}

	var tempSum, errSum, failSum float64
	var tempN, errN, failN int
	for _, s := range snaps {
		if s.CPUTempC != nil {
			tempSum += *s.CPUTempC
			tempN++
		}
		if s.JournalErrs != nil {
			errSum += *s.JournalErrs
			errN++
		}
		if s.FailedUnits != nil {
			failSum += float64(*s.FailedUnits)
			failN++
		}
	}
	report.Analyzed = len(snaps)

	var penalties GuardPenalties
	if tempN > 0 {
		avg := tempSum / float64(tempN)
		report.AvgCPUTempC = &avg
		penalties.CPUTemp = rampPenalty(avg, 70.0, 1.2, 30.0)
	}
	if errN > 0 {
		avg := errSum / float64(errN)
		report.AvgJournalErrs = &avg
		penalties.JournalErrs = math.Min(25.0, math.Max(0, avg)*2.0)
	}
	if failN > 0 {
		avg := failSum / float64(failN)
		report.AvgFailedUnits = &avg
		penalties.FailedUnits = math.Min(30.0, math.Max(0, avg)*6.0)
	}

	score := 100.0 - (penalties.CPUTemp + penalties.JournalErrs + penalties.FailedUnits)
	report.Score = int(math.Max(0, math.Min(100, math.Round(score))))
	report.Pass = report.Score >= guardPassScore
	report.Penalties = penalties
	return report
}
