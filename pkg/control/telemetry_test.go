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
	"os"
	"path/filepath"
	"testing"
)

const sensorsOutput = `k10temp-pci-00c3
Adapter: PCI adapter
Tctl:         +61.5°C

amdgpu-pci-0300
Adapter: PCI adapter
edge:         +54.0°C`

func TestCPUTempProvider_ParsesTctl(t *testing.T) {
	runner := newFakeRunner()
	runner.responses["sensors"] = RunResult{Code: 0, Stdout: sensorsOutput}
	p := NewCPUTempProvider(runner)

	v, err := p.Sample(context.Background())
	if err != nil {
		t.Fatalf("Sample failed: %v", err)
	}
	if v != 61.5 {
		t.Errorf("Sample = %v, want 61.5 (Tctl preferred over edge)", v)
	}
}

func TestCPUTempProvider_FallsBackToAnyDegreeLine(t *testing.T) {
	runner := newFakeRunner()
	runner.responses["sensors"] = RunResult{Code: 0, Stdout: "temp1:  +42.0°C  (crit = +100.0°C)"}
	p := NewCPUTempProvider(runner)

	v, err := p.Sample(context.Background())
	if err != nil {
		t.Fatalf("Sample failed: %v", err)
	}
	if v != 42.0 {
		t.Errorf("Sample = %v, want 42.0", v)
	}
}

func TestCPUTempProvider_MissingSensors(t *testing.T) {
	runner := newFakeRunner()
	runner.missing["sensors"] = true
	p := NewCPUTempProvider(runner)

	_, err := p.Sample(context.Background())
	if !errors.Is(err, ErrMetricUnavailable) {
		t.Errorf("Sample error = %v, want ErrMetricUnavailable", err)
	}
}

func TestJournalErrProvider_CountsNonEmptyLines(t *testing.T) {
	runner := newFakeRunner()
	runner.responses["journalctl --since 30 sec ago -p 0..3 --no-pager"] = RunResult{Code: 0,
		Stdout: "-- No entries --"}
	p := NewJournalErrProvider(runner, 30)

	v, err := p.Sample(context.Background())
	if err != nil {
		t.Fatalf("Sample failed: %v", err)
	}
	if v != 0 {
		t.Errorf("empty journal count = %v, want 0", v)
	}

	runner.responses["journalctl --since 30 sec ago -p 0..3 --no-pager"] = RunResult{Code: 0,
		Stdout: "Jan 01 00:00:00 host kernel: oops\nJan 01 00:00:01 host unit[1]: failed\n"}
	v, err = p.Sample(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if v != 2 {
		t.Errorf("journal count = %v, want 2", v)
	}
}

func TestJournalErrProvider_ClampsWindow(t *testing.T) {
	runner := newFakeRunner()
	runner.responses["journalctl --since 1 sec ago -p 0..3 --no-pager"] = RunResult{Code: 0, Stdout: ""}
	p := NewJournalErrProvider(runner, 0)

	if _, err := p.Sample(context.Background()); err != nil {
		t.Fatalf("Sample failed: %v", err)
	}
	if runner.callCount("journalctl --since 1 sec ago") != 1 {
		t.Errorf("window below 1s must clamp to 1: %v", runner.calls)
	}
}

func TestFirstFloat(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"Tctl: +61.5°C", 61.5, true},
		{"-12.25 something", -12.25, true},
		{"no numbers here", 0, false},
	}
	for _, tc := range tests {
		got, ok := firstFloat(tc.in)
		if ok != tc.ok || got != tc.want {
			t.Errorf("firstFloat(%q) = %v, %t; want %v, %t", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

// =============================================================================
// POWER SUPPLY (sysfs fixture)
// =============================================================================

func writeSysfs(t *testing.T, root string, entries map[string]map[string]string) {
	t.Helper()
	for name, files := range entries {
		dir := filepath.Join(root, name)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
		for file, content := range files {
			if err := os.WriteFile(filepath.Join(dir, file), []byte(content+"\n"), 0o644); err != nil {
				t.Fatal(err)
			}
		}
	}
}

func TestPowerSupplyReader_MainsAndBattery(t *testing.T) {
	root := t.TempDir()
	writeSysfs(t, root, map[string]map[string]string{
		"AC":   {"type": "Mains", "online": "1"},
		"BAT0": {"type": "Battery", "capacity": "73"},
	})
	r := &PowerSupplyReader{Root: root}

	ac, ok := r.ACOnline()
	if !ok || !ac {
		t.Errorf("ACOnline = %t, %t; want true, true", ac, ok)
	}
	pct, ok := r.BatteryPercent()
	if !ok || pct != 73 {
		t.Errorf("BatteryPercent = %d, %t; want 73, true", pct, ok)
	}
}

func TestPowerSupplyReader_OnBattery(t *testing.T) {
	root := t.TempDir()
	writeSysfs(t, root, map[string]map[string]string{
		"AC":   {"type": "Mains", "online": "0"},
		"BAT0": {"type": "Battery", "capacity": "15"},
	})
	r := &PowerSupplyReader{Root: root}

	ac, ok := r.ACOnline()
	if !ok || ac {
		t.Errorf("ACOnline = %t, %t; want false, true", ac, ok)
	}
}

func TestPowerSupplyReader_NoSupplies(t *testing.T) {
	r := &PowerSupplyReader{Root: t.TempDir()}
	if _, ok := r.ACOnline(); ok {
		t.Error("empty sysfs must report unknown AC state")
	}
	if _, ok := r.BatteryPercent(); ok {
		t.Error("empty sysfs must report no battery")
	}
}
