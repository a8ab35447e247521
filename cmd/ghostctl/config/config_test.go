// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/GhostControl/pkg/control"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 30, cfg.Verify.Seconds)
	assert.True(t, cfg.Verify.RollbackOnRegression)
	assert.Equal(t, 90.0, cfg.Verify.Thresholds[control.MetricCPUTempC])
	assert.Equal(t, 10.0, cfg.Verify.Thresholds[control.MetricJournalErrs])
}

func TestDefaultConfig_ProfileCatalog(t *testing.T) {
	cfg := DefaultConfig()

	p, err := cfg.Resolve(control.DomainPower, "battery")
	require.NoError(t, err)
	require.Len(t, p.Steps, 1)
	assert.Equal(t, "power-saver", p.Steps[0].Value, "battery maps to the platform power-saver profile")

	audio, err := cfg.Resolve(control.DomainAudio, "lowlatency")
	require.NoError(t, err)
	assert.Equal(t, "clock.force-quantum", audio.Steps[0].Property)
	assert.Equal(t, "128", audio.Steps[0].Value)

	_, err = cfg.Resolve(control.DomainPower, "turbo-nitro")
	assert.Error(t, err)
}

func TestWindowFor_Defaults(t *testing.T) {
	cfg := DefaultConfig()
	w := cfg.WindowFor("balanced", 0)

	assert.Equal(t, 30*time.Second, w.Duration)
	assert.Equal(t, 5*time.Second, w.Interval)
	assert.Equal(t, 90.0, w.Thresholds[control.MetricCPUTempC])
}

func TestWindowFor_SecondsOverride(t *testing.T) {
	cfg := DefaultConfig()
	w := cfg.WindowFor("balanced", 7)
	assert.Equal(t, 7*time.Second, w.Duration)
}

func TestWindowFor_ProfileThresholdOverride(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Verify.ProfileOverrides = map[string]map[string]float64{
		"performance": {control.MetricCPUTempC: 95.0},
	}

	w := cfg.WindowFor("performance", 0)
	assert.Equal(t, 95.0, w.Thresholds[control.MetricCPUTempC])
	assert.Equal(t, 10.0, w.Thresholds[control.MetricJournalErrs], "other thresholds untouched")

	base := cfg.WindowFor("balanced", 0)
	assert.Equal(t, 90.0, base.Thresholds[control.MetricCPUTempC], "override is per-profile")
}

func TestLoadFrom_FirstRunCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "ghostctl.yaml")

	require.NoError(t, LoadFrom(path))

	_, err := os.Stat(path)
	assert.NoError(t, err, "first run should write the default config")
	assert.Equal(t, "info", Global.LogLevel)
	assert.NotEmpty(t, Global.Profiles)
}

func TestLoadFrom_SparseFileOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ghostctl.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: debug\nverify:\n  seconds: 10\n  interval_seconds: 2\n"), 0o644))

	require.NoError(t, LoadFrom(path))

	assert.Equal(t, "debug", Global.LogLevel)
	assert.Equal(t, 10, Global.Verify.Seconds)
	assert.NotEmpty(t, Global.Profiles, "defaults fill what the file omits")
	assert.NotEmpty(t, Global.StateDir)
}

func TestLoadFrom_InvalidLevelRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ghostctl.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: loud\n"), 0o644))

	err := LoadFrom(path)
	assert.Error(t, err, "log_level outside debug/info/warn/error must fail validation")
}

func TestStaleLockAge(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 10*time.Minute, cfg.StaleLockAge())
}

func TestDefaultConfig_PolicyIntents(t *testing.T) {
	cfg := DefaultConfig()
	assert.True(t, cfg.Policy.SafeByDefault)
	assert.True(t, cfg.Policy.Intents["scene"].AllowApply)
	assert.True(t, cfg.Policy.Intents["autopilot"].AllowApply)
	assert.False(t, cfg.Policy.Intents["health"].AllowApply)
	assert.False(t, cfg.Policy.Intents["drift"].AllowApply)
	assert.False(t, cfg.Policy.Intents["snapshot"].AllowApply)
}
