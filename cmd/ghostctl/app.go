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
	"fmt"
	"path/filepath"

	"github.com/AleutianAI/GhostControl/cmd/ghostctl/config"
	"github.com/AleutianAI/GhostControl/pkg/control"
	"github.com/AleutianAI/GhostControl/pkg/ux"
)

// controlStack is the wired control plane for one invocation.
type controlStack struct {
	cfg        *config.GhostConfig
	runner     control.CommandRunner
	registry   *control.Registry
	store      *control.CheckpointStore
	audit      *control.AuditLog
	locks      *control.LockTable
	sampler    *control.Sampler
	metrics    *control.Metrics
	controller *control.Controller
	power      *control.PowerSupplyReader
}

// newControlStack wires effectors, stores and the controller from the
// loaded configuration.
func newControlStack() (*controlStack, error) {
	cfg := &config.Global
	runner := control.NewExecRunner()

	registry := control.NewRegistry()
	effectors := []control.Effector{
		control.NewPowerEffector(runner),
		control.NewAudioEffector(runner),
		control.NewNetworkEffector(runner),
		control.NewQoSEffector(runner),
		control.NewFirewallEffector(runner),
		control.NewServiceEffector(runner, cfg.Timers),
	}
	for _, e := range effectors {
		if err := registry.Register(e); err != nil {
			return nil, err
		}
	}

	store, err := control.NewCheckpointStore(
		filepath.Join(cfg.StateDir, "checkpoints"), registry, logger.Slog())
	if err != nil {
		return nil, err
	}
	audit, err := control.NewAuditLog(filepath.Join(cfg.StateDir, "actions.log"))
	if err != nil {
		return nil, err
	}
	locks, err := control.NewLockTable(filepath.Join(cfg.StateDir, "locks"))
	if err != nil {
		return nil, err
	}
	locks.StaleAge = cfg.StaleLockAge()

	sampler := control.NewSampler(logger.Slog(),
		control.NewCPUTempProvider(runner),
		control.NewJournalErrProvider(runner, cfg.Verify.Seconds),
	)
	metrics := control.NewMetrics()

	return &controlStack{
		cfg:      cfg,
		runner:   runner,
		registry: registry,
		store:    store,
		audit:    audit,
		locks:    locks,
		sampler:  sampler,
		metrics:  metrics,
		controller: control.NewController(registry, store, sampler,
			audit, locks, metrics, logger.Slog()),
		power: control.NewPowerSupplyReader(),
	}, nil
}

// close flushes metrics to the configured textfile, if any.
func (s *controlStack) close() {
	if err := s.metrics.WriteTextfile(s.cfg.MetricsTextfile); err != nil {
		logger.Warn("metrics textfile export failed", "error", err)
	}
}

// openHistory opens the badger-backed history store under the state dir.
func (s *controlStack) openHistory() (*control.History, error) {
	return control.OpenHistory(control.HistoryConfig{
		Path: filepath.Join(s.cfg.StateDir, "history"),
	})
}

// renderApplyResult prints one apply outcome.
func renderApplyResult(res control.ApplyResult) {
	line := fmt.Sprintf("%s/%s: %s", res.Domain, res.Profile, res.Status)
	switch res.Status {
	case control.StatusApplied:
		ux.Success(line)
	case control.StatusDryRun:
		ux.Info(line)
		for _, step := range res.PlannedSteps {
			ux.KV(step.Property, step.Value)
		}
	case control.StatusRolledBack:
		ux.Warning(line)
	default:
		ux.Error(line)
	}
	if res.Detail != "" {
		ux.Muted("  " + res.Detail)
	}
	for metric, value := range res.Readings {
		ux.KV(metric, fmt.Sprintf("%.1f", value))
	}
}
