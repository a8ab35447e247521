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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// Metric names produced by the built-in providers and referenced by the
// default verification thresholds.
const (
	MetricCPUTempC    = "cpu_temp_c"
	MetricJournalErrs = "journal_p0p3_lines"
)

// ErrMetricUnavailable marks a metric whose source is missing on this
// host. The verification sampler excludes such metrics from the verdict;
// they are never treated as violations.
var ErrMetricUnavailable = errors.New("metric source unavailable")

// MetricProvider reads one numeric health signal.
//
// # Thread Safety
//
// Providers must be safe for concurrent use.
type MetricProvider interface {
	// Name returns the metric name used in threshold maps and verdicts.
	Name() string

	// Sample reads the current value, or ErrMetricUnavailable.
	Sample(ctx context.Context) (float64, error)
}

var firstFloatRe = regexp.MustCompile(`(-?\d+(?:\.\d+)?)`)

// firstFloat extracts the first decimal number in text.
func firstFloat(text string) (float64, bool) {
	m := firstFloatRe.FindString(text)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(m, 64)
	return v, err == nil
}

// =============================================================================
// CPU TEMPERATURE
// =============================================================================

// cpuTempLabels are tried in order; the first matching sensors line wins.
var cpuTempLabels = []string{"Tctl:", "Package id 0:", "Tdie:", "CPU:", "edge:"}

// CPUTempProvider reads the CPU temperature from lm-sensors output.
type CPUTempProvider struct {
	runner CommandRunner
}

// NewCPUTempProvider returns the cpu_temp_c metric provider.
func NewCPUTempProvider(runner CommandRunner) *CPUTempProvider {
	return &CPUTempProvider{runner: runner}
}

func (p *CPUTempProvider) Name() string { return MetricCPUTempC }

func (p *CPUTempProvider) Sample(ctx context.Context) (float64, error) {
	if !p.runner.LookPath("sensors") {
		return 0, fmt.Errorf("%w: sensors", ErrMetricUnavailable)
	}
	res := p.runner.Run(ctx, "sensors")
	if !res.Ok() {
		return 0, fmt.Errorf("%w: sensors: %s", ErrMetricUnavailable, res.Output())
	}
	lines := strings.Split(res.Stdout, "\n")
	for _, label := range cpuTempLabels {
		for _, ln := range lines {
			if strings.Contains(ln, label) {
				if v, ok := firstFloat(ln); ok {
					return v, nil
				}
			}
		}
	}
	for _, ln := range lines {
		if strings.Contains(ln, "°C") || strings.Contains(ln, " C") {
			if v, ok := firstFloat(ln); ok {
				return v, nil
			}
		}
	}
	return 0, fmt.Errorf("%w: no temperature line found", ErrMetricUnavailable)
}

// =============================================================================
// JOURNAL ERROR LINES
// =============================================================================

// JournalErrProvider counts journal lines in the emerg..err severity band
// over a trailing window.
type JournalErrProvider struct {
	runner CommandRunner

	// WindowSeconds is the trailing window passed to journalctl --since.
	// Values below 1 are clamped to 1.
	WindowSeconds int
}

// NewJournalErrProvider returns the journal_p0p3_lines metric provider.
func NewJournalErrProvider(runner CommandRunner, windowSeconds int) *JournalErrProvider {
	return &JournalErrProvider{runner: runner, WindowSeconds: windowSeconds}
}

func (p *JournalErrProvider) Name() string { return MetricJournalErrs }

func (p *JournalErrProvider) Sample(ctx context.Context) (float64, error) {
	if !p.runner.LookPath("journalctl") {
		return 0, fmt.Errorf("%w: journalctl", ErrMetricUnavailable)
	}
	secs := p.WindowSeconds
	if secs < 1 {
		secs = 1
	}
	res := p.runner.Run(ctx, "journalctl",
		"--since", fmt.Sprintf("%d sec ago", secs), "-p", "0..3", "--no-pager")
	if !res.Ok() {
		return 0, fmt.Errorf("%w: journalctl: %s", ErrMetricUnavailable, res.Output())
	}
	count := 0
	for _, ln := range strings.Split(res.Stdout, "\n") {
		s := strings.TrimSpace(ln)
		if s == "" || strings.HasPrefix(s, "--") {
			continue
		}
		count++
	}
	return float64(count), nil
}

// =============================================================================
// POWER SOURCE / BATTERY (sysfs)
// =============================================================================

// PowerSupplyReader reads AC and battery state from
// /sys/class/power_supply. The root is configurable for tests.
type PowerSupplyReader struct {
	Root string
}

// NewPowerSupplyReader returns a reader over the real sysfs tree.
func NewPowerSupplyReader() *PowerSupplyReader {
	return &PowerSupplyReader{Root: "/sys/class/power_supply"}
}

func (r *PowerSupplyReader) readFile(parts ...string) (string, bool) {
	data, err := os.ReadFile(filepath.Join(append([]string{r.Root}, parts...)...))
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(data)), true
}

// ACOnline reports whether a mains supply is online. The second return is
// false when the state cannot be determined.
func (r *PowerSupplyReader) ACOnline() (bool, bool) {
	entries, err := os.ReadDir(r.Root)
	if err != nil {
		return false, false
	}
	foundMains := false
	for _, e := range entries {
		typ, ok := r.readFile(e.Name(), "type")
		if !ok || typ != "Mains" {
			continue
		}
		online, ok := r.readFile(e.Name(), "online")
		if !ok {
			continue
		}
		foundMains = true
		if online == "1" {
			return true, true
		}
	}
	if foundMains {
		return false, true
	}
	// Fallback naming used on some laptops.
	for _, pat := range []string{"AC*", "ADP*"} {
		matches, _ := filepath.Glob(filepath.Join(r.Root, pat, "online"))
		for _, m := range matches {
			data, err := os.ReadFile(m)
			if err != nil {
				continue
			}
			return strings.TrimSpace(string(data)) == "1", true
		}
	}
	return false, false
}

// BatteryPercent returns the first battery's capacity. The second return
// is false when no battery is present.
func (r *PowerSupplyReader) BatteryPercent() (int, bool) {
	entries, err := os.ReadDir(r.Root)
	if err != nil {
		return 0, false
	}
	for _, e := range entries {
		typ, ok := r.readFile(e.Name(), "type")
		if !ok || typ != "Battery" {
			continue
		}
		capacity, ok := r.readFile(e.Name(), "capacity")
		if !ok {
			continue
		}
		if v, err := strconv.Atoi(capacity); err == nil {
			return v, true
		}
	}
	matches, _ := filepath.Glob(filepath.Join(r.Root, "BAT*", "capacity"))
	for _, m := range matches {
		data, err := os.ReadFile(m)
		if err != nil {
			continue
		}
		if v, err := strconv.Atoi(strings.TrimSpace(string(data))); err == nil {
			return v, true
		}
	}
	return 0, false
}
