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
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// controllerHarness bundles a fully wired controller over fakes.
type controllerHarness struct {
	controller *Controller
	power      *fakeEffector
	audit      *AuditLog
	store      *CheckpointStore
	locks      *LockTable
}

func newControllerHarness(t *testing.T, power *fakeEffector, cpuTemps ...float64) *controllerHarness {
	t.Helper()
	dir := t.TempDir()

	registry := NewRegistry()
	require.NoError(t, registry.Register(power))

	store, err := NewCheckpointStore(filepath.Join(dir, "checkpoints"), registry, nil)
	require.NoError(t, err)
	audit, err := NewAuditLog(filepath.Join(dir, "actions.log"))
	require.NoError(t, err)
	locks, err := NewLockTable(filepath.Join(dir, "locks"))
	require.NoError(t, err)

	if len(cpuTemps) == 0 {
		cpuTemps = []float64{50.0}
	}
	sampler := NewSampler(nil, &staticProvider{name: MetricCPUTempC, values: cpuTemps})

	return &controllerHarness{
		controller: NewController(registry, store, sampler, audit, locks, NewMetrics(), nil),
		power:      power,
		audit:      audit,
		store:      store,
		locks:      locks,
	}
}

func balancedRequest() ApplyRequest {
	return ApplyRequest{
		Profile: Profile{
			ID:     "balanced",
			Domain: "power",
			Steps:  []Step{{Property: "profile", Value: "balanced"}},
		},
		Window: Window{
			Duration:   0,
			Interval:   time.Second,
			Thresholds: map[string]float64{MetricCPUTempC: 90.0},
		},
		RollbackOnRegression: true,
		Actor:                "test",
	}
}

func auditEntries(t *testing.T, h *controllerHarness) []AuditEntry {
	t.Helper()
	entries, err := h.audit.Read(0)
	require.NoError(t, err)
	return entries
}

func TestController_ApplyCommitsWhenHealthy(t *testing.T) {
	power := &fakeEffector{domain: "power", value: "performance"}
	h := newControllerHarness(t, power, 50.0)

	res, err := h.controller.Apply(context.Background(), balancedRequest())
	require.NoError(t, err)

	assert.Equal(t, StatusApplied, res.Status)
	assert.Equal(t, "balanced", power.value)
	assert.NotEmpty(t, res.CheckpointID)
	assert.Empty(t, power.restored, "healthy apply must not roll back")

	entries := auditEntries(t, h)
	require.Len(t, entries, 1, "exactly one terminal audit entry per apply")
	assert.Equal(t, "applied", entries[0].Result)
	assert.Contains(t, entries[0].Detail, res.CheckpointID)
}

func TestController_RegressionRollsBack(t *testing.T) {
	power := &fakeEffector{domain: "power", value: "performance"}
	h := newControllerHarness(t, power, 95.0)

	res, err := h.controller.Apply(context.Background(), balancedRequest())
	require.NoError(t, err)

	assert.Equal(t, StatusRolledBack, res.Status)
	assert.Equal(t, "performance", power.value, "prior value must be restored")
	assert.Contains(t, res.Violated, MetricCPUTempC)
	assert.Contains(t, res.Detail, "regression")

	entries := auditEntries(t, h)
	require.Len(t, entries, 1)
	assert.Equal(t, "rolled-back", entries[0].Result)
}

func TestController_RegressionKeptWhenRollbackDisabled(t *testing.T) {
	power := &fakeEffector{domain: "power", value: "performance"}
	h := newControllerHarness(t, power, 95.0)

	req := balancedRequest()
	req.RollbackOnRegression = false
	res, err := h.controller.Apply(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, StatusApplied, res.Status)
	assert.Equal(t, "balanced", power.value)
	assert.Contains(t, res.Detail, "rollback disabled")
	assert.Empty(t, power.restored)
}

func TestController_DryRunMutatesNothing(t *testing.T) {
	power := &fakeEffector{domain: "power", value: "performance"}
	h := newControllerHarness(t, power)

	req := balancedRequest()
	req.DryRun = true
	res, err := h.controller.Apply(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, StatusDryRun, res.Status)
	assert.Equal(t, "performance", power.value)
	assert.Empty(t, res.CheckpointID, "dry run must not capture a checkpoint")
	assert.Equal(t, req.Profile.Steps, res.PlannedSteps)

	cps, err := h.store.List()
	require.NoError(t, err)
	assert.Empty(t, cps)

	entries := auditEntries(t, h)
	require.Len(t, entries, 1, "dry runs are audited too")
	assert.Equal(t, "dry-run", entries[0].Result)
}

func TestController_ApplyFailureRollsBack(t *testing.T) {
	power := &fakeEffector{domain: "power", value: "performance"}
	h := newControllerHarness(t, power)

	// Fail the mutation after the checkpoint is captured. The fake applies
	// nothing, so restore should bring back the captured value.
	power.applyErr = &EffectorApplyError{Domain: "power", Step: "profile", Detail: "dbus timeout"}

	res, err := h.controller.Apply(context.Background(), balancedRequest())
	require.NoError(t, err)

	assert.Equal(t, StatusRolledBack, res.Status)
	assert.Contains(t, res.Detail, "apply failed")
	assert.Len(t, power.restored, 1)
}

func TestController_UnavailableEffectorSkips(t *testing.T) {
	power := &fakeEffector{domain: "power", value: "performance"}
	h := newControllerHarness(t, power)

	power.applyErr = fmt.Errorf("%w: powerprofilesctl", ErrEffectorUnavailable)

	res, err := h.controller.Apply(context.Background(), balancedRequest())
	require.NoError(t, err)

	// Missing tool is a skip, not a failure; nothing was mutated so there
	// is nothing to roll back.
	assert.Equal(t, StatusApplied, res.Status)
	assert.Contains(t, res.Detail, "skipped")
	assert.Empty(t, power.restored)

	// The audit log must not read like a real apply.
	entries := auditEntries(t, h)
	require.Len(t, entries, 1)
	assert.Equal(t, "skipped", entries[0].Result)
}

func TestController_UnknownDomainAudited(t *testing.T) {
	h := newControllerHarness(t, &fakeEffector{domain: "power", value: "x"})

	req := balancedRequest()
	req.Profile.Domain = "warp-drive"
	_, err := h.controller.Apply(context.Background(), req)
	assert.ErrorIs(t, err, ErrUnknownDomain)

	entries := auditEntries(t, h)
	require.Len(t, entries, 1, "even a refused apply leaves an audit entry")
	assert.Equal(t, "failed", entries[0].Result)
}

func TestController_BusyDomainFailsFast(t *testing.T) {
	power := &fakeEffector{domain: "power", value: "performance"}
	h := newControllerHarness(t, power)

	release, err := h.locks.Acquire("power")
	require.NoError(t, err)
	defer release()

	_, err = h.controller.Apply(context.Background(), balancedRequest())
	assert.ErrorIs(t, err, ErrDomainBusy)
	assert.Empty(t, power.applied, "busy domain must not be mutated")
}

func TestController_RollbackFailureIsTerminalFailed(t *testing.T) {
	power := &fakeEffector{domain: "power", value: "performance"}
	h := newControllerHarness(t, power, 95.0)

	power.restoreErr = fmt.Errorf("restore path gone")

	res, err := h.controller.Apply(context.Background(), balancedRequest())
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, res.Status)
	assert.Contains(t, res.Detail, "rollback incomplete")

	entries := auditEntries(t, h)
	require.Len(t, entries, 1)
	assert.Equal(t, "failed", entries[0].Result)
}

func TestController_ApplyBundleAggregates(t *testing.T) {
	dir := t.TempDir()
	registry := NewRegistry()
	power := &fakeEffector{domain: "power", value: "performance"}
	audio := &fakeEffector{domain: "audio", value: `{"clock.force-quantum":"0","clock.force-rate":"0"}`}
	require.NoError(t, registry.Register(power))
	require.NoError(t, registry.Register(audio))

	store, err := NewCheckpointStore(filepath.Join(dir, "checkpoints"), registry, nil)
	require.NoError(t, err)
	audit, err := NewAuditLog(filepath.Join(dir, "actions.log"))
	require.NoError(t, err)
	locks, err := NewLockTable(filepath.Join(dir, "locks"))
	require.NoError(t, err)
	sampler := NewSampler(nil, &staticProvider{name: MetricCPUTempC, values: []float64{50.0}})
	ctl := NewController(registry, store, sampler, audit, locks, nil, nil)

	profiles := []Profile{
		{ID: "balanced", Domain: "power", Steps: []Step{{Property: "profile", Value: "balanced"}}},
		{ID: "lowlatency", Domain: "audio", Steps: []Step{{Property: "clock.force-quantum", Value: "128"}}},
	}
	window := Window{Interval: time.Second, Thresholds: map[string]float64{MetricCPUTempC: 90.0}}

	bundle, err := ctl.ApplyBundle(context.Background(), "scene:game", profiles, false, window, true)
	require.NoError(t, err)

	assert.Equal(t, StatusApplied, bundle.Status)
	require.Len(t, bundle.Results, 2)
	assert.Equal(t, "power", bundle.Results[0].Domain, "power applies first")
	assert.Equal(t, "audio", bundle.Results[1].Domain)

	entries, err := audit.Read(0)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "one terminal audit entry per sub-apply")
}

func TestController_ApplyBundleWorstStatusWins(t *testing.T) {
	dir := t.TempDir()
	registry := NewRegistry()
	power := &fakeEffector{domain: "power", value: "performance"}
	audio := &fakeEffector{domain: "audio", value: "{}",
		applyErr: &EffectorApplyError{Domain: "audio", Step: "clock.force-quantum", Detail: "no daemon"}}
	require.NoError(t, registry.Register(power))
	require.NoError(t, registry.Register(audio))

	store, err := NewCheckpointStore(filepath.Join(dir, "checkpoints"), registry, nil)
	require.NoError(t, err)
	audit, err := NewAuditLog(filepath.Join(dir, "actions.log"))
	require.NoError(t, err)
	locks, err := NewLockTable(filepath.Join(dir, "locks"))
	require.NoError(t, err)
	sampler := NewSampler(nil, &staticProvider{name: MetricCPUTempC, values: []float64{50.0}})
	ctl := NewController(registry, store, sampler, audit, locks, nil, nil)

	profiles := []Profile{
		{ID: "balanced", Domain: "power", Steps: []Step{{Property: "profile", Value: "balanced"}}},
		{ID: "lowlatency", Domain: "audio", Steps: []Step{{Property: "clock.force-quantum", Value: "128"}}},
	}
	bundle, err := ctl.ApplyBundle(context.Background(), "scene:game", profiles, false,
		Window{Interval: time.Second}, true)
	require.NoError(t, err)

	assert.Equal(t, StatusRolledBack, bundle.Status)
	assert.Equal(t, StatusApplied, bundle.Results[0].Status, "earlier domain still applied")
	assert.Equal(t, StatusRolledBack, bundle.Results[1].Status)
}

func TestApplyState_String(t *testing.T) {
	states := map[ApplyState]string{
		StateIdle:        "Idle",
		StateCapturing:   "Capturing",
		StateApplying:    "Applying",
		StateVerifying:   "Verifying",
		StateCommitting:  "Committing",
		StateRollingBack: "RollingBack",
		StateDone:        "Done",
		StateFailed:      "Failed",
	}
	for s, want := range states {
		if got := s.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", s, got, want)
		}
	}
}
