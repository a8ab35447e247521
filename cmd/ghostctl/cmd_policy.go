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
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/GhostControl/cmd/ghostctl/config"
	"github.com/AleutianAI/GhostControl/pkg/control"
	"github.com/AleutianAI/GhostControl/pkg/ux"
)

// runPolicyCheck is the CLI handler for "ghostctl policy check".
//
// It evaluates the gate for one intent and the given flags without
// executing anything, so operators can see exactly why an apply would be
// allowed or denied.
func runPolicyCheck(cmd *cobra.Command, args []string) {
	decision := control.Decide(args[0], applyFlag, allowApplyFlag, config.Global.Policy)
	renderDecision(decision)
	if !decision.Authorized && applyFlag {
		exit(1)
	}
}

func renderDecision(d control.PolicyDecision) {
	ux.Title("Policy gate")
	ux.KV("intent", d.Intent)
	ux.KV("apply_capable", fmt.Sprintf("%t", d.ApplyCapable))
	if d.Authorized {
		ux.Success("authorized")
	} else {
		ux.Warning("not authorized (read-only variant runs)")
	}
	for _, r := range d.Reasons {
		ux.Muted("  " + r)
	}
}

// runRoute is the CLI handler for "ghostctl route".
//
// Freeform task text routes to an intent; the policy gate then decides
// whether the state-changing variant may run. Denied or unauthorized
// requests fall back to the read-only variant of the same intent, and the
// routing decision itself is audited.
func runRoute(cmd *cobra.Command, args []string) {
	if routeTask == "" && routeIntent == "" {
		ux.Error("route needs --task or --intent")
		exit(1)
	}
	intent := routeIntent
	if intent == "" {
		intent = control.PickIntent(routeTask)
	}

	decision := control.Decide(intent, applyFlag, allowApplyFlag, config.Global.Policy)
	renderDecision(decision)

	stack, err := newControlStack()
	if err != nil {
		ux.Error(err.Error())
		exit(1)
	}

	if applyFlag && !decision.Authorized {
		stack.metrics.PolicyDenials.Inc()
	}
	auditErr := stack.audit.Append(control.AuditEntry{
		Actor:  "route:" + intent,
		Action: "route",
		Result: map[bool]string{true: "authorized", false: "read-only"}[decision.Authorized],
		Detail: fmt.Sprintf("task=%q reasons=%s", routeTask, strings.Join(decision.Reasons, "; ")),
	})
	if auditErr != nil {
		logger.Error("audit append failed", "error", auditErr)
	}
	stack.close()

	// The gate only ever widens to the apply variant; every intent has a
	// safe read-only rendition.
	switch intent {
	case "scene":
		scene := control.PickScene(routeTask)
		if !decision.Authorized {
			dryRunFlag = true
		}
		runScene(cmd, []string{scene})
	case "autopilot":
		if !decision.Authorized {
			dryRunFlag = true
		}
		runAutopilot(cmd, nil)
	case "snapshot":
		runSnapshot(cmd, nil)
	case "drift":
		runDriftReport()
	default: // health
		runGuard(cmd, nil)
	}
}

// runDriftReport prints the current value of every readable domain. It is
// the read-only "what changed" surface for the drift intent.
func runDriftReport() {
	stack, err := newControlStack()
	if err != nil {
		ux.Error(err.Error())
		exit(1)
	}
	defer stack.close()

	ux.Title("Domain state")
	ctx := context.Background()
	for _, domain := range stack.registry.Domains() {
		eff, err := stack.registry.Lookup(domain)
		if err != nil {
			continue
		}
		value, err := eff.Read(ctx)
		if err != nil {
			ux.KV(domain, "unavailable: "+err.Error())
			continue
		}
		ux.KV(domain, value)
	}
}
