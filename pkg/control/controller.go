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
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// =============================================================================
// STATES AND STATUSES
// =============================================================================

// ApplyState is the controller's position in the apply lifecycle.
type ApplyState int

const (
	StateIdle ApplyState = iota
	StateCapturing
	StateApplying
	StateVerifying
	StateCommitting
	StateRollingBack
	StateDone
	StateFailed
)

func (s ApplyState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateCapturing:
		return "Capturing"
	case StateApplying:
		return "Applying"
	case StateVerifying:
		return "Verifying"
	case StateCommitting:
		return "Committing"
	case StateRollingBack:
		return "RollingBack"
	case StateDone:
		return "Done"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// ApplyStatus is the terminal status of one apply.
type ApplyStatus string

const (
	StatusApplied    ApplyStatus = "applied"
	StatusRolledBack ApplyStatus = "rolled-back"
	StatusDryRun     ApplyStatus = "dry-run"
	StatusFailed     ApplyStatus = "failed"
)

// =============================================================================
// REQUEST / RESULT
// =============================================================================

// ApplyRequest describes one apply of a single-domain profile.
type ApplyRequest struct {
	// Profile is the immutable step list to apply.
	Profile Profile

	// DryRun emits the plan without mutating anything. No checkpoint is
	// taken and no verification runs.
	DryRun bool

	// Window configures post-apply verification.
	Window Window

	// RollbackOnRegression controls whether a regression verdict rolls
	// the change back (true) or keeps it with a logged regression.
	RollbackOnRegression bool

	// Actor is recorded in the audit log ("cli", "scene:game",
	// "autopilot", "route:<intent>").
	Actor string
}

// ApplyResult is the single terminal outcome of one apply.
type ApplyResult struct {
	Status       ApplyStatus        `json:"status"`
	Profile      string             `json:"profile"`
	Domain       string             `json:"domain"`
	CheckpointID string             `json:"checkpoint_id,omitempty"`
	Readings     map[string]float64 `json:"readings,omitempty"`
	Violated     []string           `json:"violated,omitempty"`
	PlannedSteps []Step             `json:"planned_steps,omitempty"`
	Detail       string             `json:"detail,omitempty"`
	Timestamp    time.Time          `json:"ts"`
}

// BundleResult aggregates per-domain outcomes for a multi-domain apply.
type BundleResult struct {
	// Status is "applied" only when every sub-apply succeeded without a
	// rollback; "dry-run" for a planned bundle; otherwise the most severe
	// sub-status (failed > rolled-back).
	Status  ApplyStatus   `json:"status"`
	Results []ApplyResult `json:"results"`
}

// =============================================================================
// CONTROLLER
// =============================================================================

// Controller orchestrates capture → apply → verify → commit/rollback for
// one domain at a time.
//
// # Description
//
// The controller guarantees that a checkpoint exists before any non-dry-run
// mutation, that a regression or apply failure restores the checkpointed
// prior values for every domain it touched, and that exactly one terminal
// audit entry is written per apply. It is never left in Applying or
// Verifying on a clean exit.
//
// # Thread Safety
//
// Safe for concurrent use; per-domain advisory locks serialize mutations,
// and a second request on a held domain fails fast with ErrDomainBusy.
type Controller struct {
	registry *Registry
	store    *CheckpointStore
	sampler  *Sampler
	audit    *AuditLog
	locks    *LockTable
	metrics  *Metrics
	log      *slog.Logger
	tracer   trace.Tracer
}

// NewController wires the apply controller. metrics may be nil.
func NewController(registry *Registry, store *CheckpointStore, sampler *Sampler,
	audit *AuditLog, locks *LockTable, metrics *Metrics, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	return &Controller{
		registry: registry,
		store:    store,
		sampler:  sampler,
		audit:    audit,
		locks:    locks,
		metrics:  metrics,
		log:      log,
		tracer:   otel.Tracer("ghostctl/control"),
	}
}

// Apply runs one profile through the full state machine and returns its
// terminal result. The returned error is non-nil only when no mutation was
// attempted at all (policy of this layer: busy domains, unknown domains and
// stale markers surface as errors; everything after the checkpoint surfaces
// through the ApplyResult).
func (c *Controller) Apply(ctx context.Context, req ApplyRequest) (ApplyResult, error) {
	ctx, span := c.tracer.Start(ctx, "controller.apply",
		trace.WithAttributes(
			attribute.String("profile", req.Profile.ID),
			attribute.String("domain", req.Profile.Domain),
			attribute.Bool("dry_run", req.DryRun),
		))
	defer span.End()

	result, err := c.apply(ctx, req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return result, err
	}
	span.SetAttributes(attribute.String("status", string(result.Status)))
	if c.metrics != nil {
		c.metrics.Applies.WithLabelValues(string(result.Status), req.Profile.Domain).Inc()
	}
	return result, nil
}

func (c *Controller) apply(ctx context.Context, req ApplyRequest) (ApplyResult, error) {
	state := StateIdle
	result := ApplyResult{
		Status:    StatusFailed,
		Profile:   req.Profile.ID,
		Domain:    req.Profile.Domain,
		Timestamp: time.Now(),
	}

	transition := func(to ApplyState) {
		c.log.Debug("apply state transition",
			"profile", req.Profile.ID, "domain", req.Profile.Domain,
			"from", state.String(), "to", to.String())
		state = to
	}

	// Dry run: Idle → Done with a plan, no mutation, no checkpoint.
	if req.DryRun {
		transition(StateDone)
		result.Status = StatusDryRun
		result.PlannedSteps = req.Profile.Steps
		c.writeAudit(req, result, "plan emitted, no mutation")
		return result, nil
	}

	eff, err := c.registry.Lookup(req.Profile.Domain)
	if err != nil {
		c.writeAudit(req, result, err.Error())
		return result, err
	}

	release, err := c.locks.Acquire(req.Profile.Domain)
	if err != nil {
		if c.metrics != nil && errors.Is(err, ErrDomainBusy) {
			c.metrics.DomainBusyHits.Inc()
		}
		result.Detail = err.Error()
		c.writeAudit(req, result, err.Error())
		return result, err
	}
	defer release()

	// Capturing: the checkpoint must exist before any mutation.
	transition(StateCapturing)
	cp, err := c.store.Create(ctx, "pre-apply-"+req.Profile.ID, SourceAutoPreApply)
	if err != nil {
		transition(StateFailed)
		result.Detail = fmt.Sprintf("checkpoint capture failed: %v", err)
		c.writeAudit(req, result, result.Detail)
		return result, nil
	}
	result.CheckpointID = cp.ID

	// Applying.
	transition(StateApplying)
	if err := c.locks.MarkInFlight(req.Profile.Domain); err != nil {
		c.log.Warn("could not write in-flight marker", "domain", req.Profile.Domain, "error", err)
	}
	defer c.locks.ClearInFlight(req.Profile.Domain)

	applyErr := eff.Apply(ctx, req.Profile.Steps)
	switch {
	case applyErr == nil:
		// fallthrough to verification
	case errors.Is(applyErr, ErrEffectorUnavailable):
		// Missing tool: steps skipped, not failed. Nothing mutated, so
		// there is nothing to verify or roll back. The audit entry says
		// "skipped" so the log never reads like a real apply.
		transition(StateDone)
		result.Status = StatusApplied
		result.Detail = fmt.Sprintf("steps skipped: %v", applyErr)
		c.writeAuditResult(req, result, "skipped", result.Detail)
		return result, nil
	default:
		// EffectorApplyFailed: abort and roll back immediately.
		c.log.Warn("apply step failed, rolling back",
			"profile", req.Profile.ID, "domain", req.Profile.Domain, "error", applyErr)
		return c.rollback(ctx, req, cp, &state, result,
			fmt.Sprintf("apply failed: %v", applyErr), transition)
	}

	// Verifying.
	transition(StateVerifying)
	verdict := c.sampler.Run(ctx, req.Window)
	result.Readings = verdict.Readings
	result.Violated = verdict.ViolatedMetrics()

	switch {
	case verdict.Regression && req.RollbackOnRegression:
		if c.metrics != nil {
			c.metrics.Regressions.Inc()
		}
		return c.rollback(ctx, req, cp, &state, result,
			"regression detected: "+strings.Join(result.Violated, ", "), transition)

	case verdict.Inconclusive && req.RollbackOnRegression:
		// A cancelled window never proves safety; treat it like a
		// regression when rollback is enabled.
		return c.rollback(ctx, req, cp, &state, result,
			"verification inconclusive (window cancelled)", transition)

	case verdict.Regression:
		if c.metrics != nil {
			c.metrics.Regressions.Inc()
		}
		transition(StateCommitting)
		transition(StateDone)
		result.Status = StatusApplied
		result.Detail = "regression detected but rollback disabled: " + strings.Join(result.Violated, ", ")
		c.writeAudit(req, result, result.Detail)
		return result, nil

	default:
		transition(StateCommitting)
		transition(StateDone)
		result.Status = StatusApplied
		c.writeAudit(req, result, "verification passed")
		return result, nil
	}
}

// rollback restores the checkpointed prior values for the domain this
// request mutated and writes the single terminal audit entry.
func (c *Controller) rollback(ctx context.Context, req ApplyRequest, cp Checkpoint,
	state *ApplyState, result ApplyResult, reason string, transition func(ApplyState)) (ApplyResult, error) {

	transition(StateRollingBack)
	if c.metrics != nil {
		c.metrics.Rollbacks.Inc()
	}

	outcomes, err := c.store.RestoreCheckpoint(ctx, cp, []string{req.Profile.Domain})
	if err != nil {
		transition(StateFailed)
		result.Status = StatusFailed
		result.Detail = fmt.Sprintf("%s; rollback incomplete: %v", reason, err)
		c.writeAudit(req, result, result.Detail)
		return result, nil
	}

	transition(StateDone)
	result.Status = StatusRolledBack
	result.Detail = reason
	detail := reason
	for _, o := range outcomes {
		detail += fmt.Sprintf("; %s=%s", o.Domain, o.Status)
	}
	c.writeAudit(req, result, detail)
	return result, nil
}

// writeAudit records the one terminal entry for an apply.
func (c *Controller) writeAudit(req ApplyRequest, result ApplyResult, detail string) {
	c.writeAuditResult(req, result, string(result.Status), detail)
}

func (c *Controller) writeAuditResult(req ApplyRequest, result ApplyResult, resultName, detail string) {
	actor := req.Actor
	if actor == "" {
		actor = "cli"
	}
	entry := AuditEntry{
		Actor:   actor,
		Action:  "apply",
		Domain:  req.Profile.Domain,
		Profile: req.Profile.ID,
		Result:  resultName,
		Detail:  detail,
	}
	if result.CheckpointID != "" {
		entry.Detail += "; checkpoint=" + result.CheckpointID
	}
	if err := c.audit.Append(entry); err != nil {
		c.log.Error("audit append failed", "error", err)
	}
}

// ApplyBundle applies multiple single-domain profiles in order, running
// each through the full state machine independently, and aggregates the
// outcomes. A failed or rolled-back sub-apply does not stop later domains;
// every domain gets its own verdict and audit entry.
func (c *Controller) ApplyBundle(ctx context.Context, actor string, profiles []Profile,
	dryRun bool, window Window, rollbackOnRegression bool) (BundleResult, error) {

	bundle := BundleResult{Status: StatusApplied}
	if dryRun {
		bundle.Status = StatusDryRun
	}

	for _, p := range profiles {
		res, err := c.Apply(ctx, ApplyRequest{
			Profile:              p,
			DryRun:               dryRun,
			Window:               window,
			RollbackOnRegression: rollbackOnRegression,
			Actor:                actor,
		})
		if err != nil {
			res.Status = StatusFailed
			res.Profile = p.ID
			res.Domain = p.Domain
			res.Detail = err.Error()
			res.Timestamp = time.Now()
		}
		bundle.Results = append(bundle.Results, res)

		if dryRun {
			continue
		}
		switch res.Status {
		case StatusFailed:
			bundle.Status = StatusFailed
		case StatusRolledBack:
			if bundle.Status != StatusFailed {
				bundle.Status = StatusRolledBack
			}
		}
	}
	return bundle, nil
}
