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
	"github.com/spf13/cobra"

	"github.com/AleutianAI/GhostControl/pkg/ux"
)

// --- Global Command Variables ---
var (
	applyFlag       bool
	dryRunFlag      bool
	yesFlag         bool
	verifySeconds   int
	noRollback      bool
	allowApplyFlag  bool
	plainOutput     bool
	traceEnabled    bool
	auditFollowFlag bool
	auditLastN      int
	routeTask       string
	routeIntent     string
	guardLastN      int
	checkpointLabel string

	rootCmd = &cobra.Command{
		Use:   "ghostctl",
		Short: "A cli for safe, reversible host tuning",
		Long: `ghostctl proposes and applies reversible runtime changes (power,
audio, network, queueing profiles) with checkpoint capture, post-apply
verification and automatic rollback on regression. Nothing it does
survives past a restore; boot-affecting state is never touched.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if plainOutput {
				ux.SetPlain(true)
			}
		},
	}

	// --- Profile apply ---
	profileCmd = &cobra.Command{
		Use:   "profile",
		Short: "List and apply safe runtime power profiles",
	}
	profileListCmd = &cobra.Command{
		Use:   "list",
		Short: "List available profiles per domain",
		Run:   runProfileList, // Defined in cmd_apply.go
	}
	profileApplyCmd = &cobra.Command{
		Use:   "apply [domain] [profile]",
		Short: "Apply a named profile to one domain with verify/rollback",
		Args:  cobra.ExactArgs(2),
		Run:   runProfileApply, // Defined in cmd_apply.go
	}

	// --- Scenes ---
	sceneCmd = &cobra.Command{
		Use:   "scene [name]",
		Short: "Apply a workflow scene (power + audio + network bundle)",
		Args:  cobra.MaximumNArgs(1),
		Run:   runScene, // Defined in cmd_scene.go
	}

	// --- Autopilot ---
	autopilotCmd = &cobra.Command{
		Use:   "autopilot",
		Short: "Decide a profile bundle from power/battery/temperature context",
		Run:   runAutopilot, // Defined in cmd_autopilot.go
	}

	// --- Checkpoints ---
	checkpointCmd = &cobra.Command{
		Use:   "checkpoint",
		Short: "Create, list, restore and prune rollback checkpoints",
	}
	checkpointCreateCmd = &cobra.Command{
		Use:   "create",
		Short: "Capture the current value of every tracked domain",
		Run:   runCheckpointCreate, // Defined in cmd_checkpoint.go
	}
	checkpointListCmd = &cobra.Command{
		Use:   "list",
		Short: "List stored checkpoints by creation time",
		Run:   runCheckpointList, // Defined in cmd_checkpoint.go
	}
	checkpointRestoreCmd = &cobra.Command{
		Use:   "restore [id]",
		Short: "Restore captured values for the domains in a checkpoint",
		Args:  cobra.ExactArgs(1),
		Run:   runCheckpointRestore, // Defined in cmd_checkpoint.go
	}
	checkpointPruneCmd = &cobra.Command{
		Use:   "prune",
		Short: "Remove old checkpoints per the retention policy",
		Run:   runCheckpointPrune, // Defined in cmd_checkpoint.go
	}

	// --- Policy / routing ---
	policyCmd = &cobra.Command{
		Use:   "policy",
		Short: "Inspect the apply policy gate",
	}
	policyCheckCmd = &cobra.Command{
		Use:   "check [intent]",
		Short: "Evaluate the policy gate for an intent without executing",
		Args:  cobra.ExactArgs(1),
		Run:   runPolicyCheck, // Defined in cmd_policy.go
	}
	routeCmd = &cobra.Command{
		Use:   "route",
		Short: "Route a freeform task to an intent behind the policy gate",
		Run:   runRoute, // Defined in cmd_policy.go
	}

	// --- Audit ---
	auditCmd = &cobra.Command{
		Use:   "audit",
		Short: "Read or follow the append-only action log",
		Run:   runAudit, // Defined in cmd_audit.go
	}

	// --- Telemetry ---
	snapshotCmd = &cobra.Command{
		Use:   "snapshot",
		Short: "Record a one-shot host telemetry snapshot",
		Run:   runSnapshot, // Defined in cmd_snapshot.go
	}
	guardCmd = &cobra.Command{
		Use:   "guard",
		Short: "Score host health from recent snapshots (read-only)",
		Run:   runGuard, // Defined in cmd_snapshot.go
	}

	// --- Locks ---
	locksCmd = &cobra.Command{
		Use:   "locks",
		Short: "Inspect and resolve apply locks",
	}
	locksClearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Clear stale in-flight markers left by a crashed apply",
		Run:   runLocksClear, // Defined in cmd_locks.go
	}
)

func init() {
	rootCmd.PersistentFlags().BoolVar(&plainOutput, "plain", false, "machine-readable output (no color)")
	rootCmd.PersistentFlags().BoolVar(&traceEnabled, "trace", false, "emit OpenTelemetry spans to stderr")

	for _, cmd := range []*cobra.Command{profileApplyCmd, sceneCmd, autopilotCmd} {
		cmd.Flags().BoolVar(&applyFlag, "apply", false, "actually apply changes")
		cmd.Flags().BoolVar(&dryRunFlag, "dry-run", false, "show the plan only")
		cmd.Flags().IntVar(&verifySeconds, "verify-seconds", 0, "override the verification window (seconds)")
		cmd.Flags().BoolVar(&noRollback, "no-rollback-on-regression", false, "keep the change even if verification regresses")
		cmd.Flags().BoolVar(&yesFlag, "yes", false, "skip the interactive confirmation")
	}

	routeCmd.Flags().StringVar(&routeTask, "task", "", "freeform task text")
	routeCmd.Flags().StringVar(&routeIntent, "intent", "", "explicit intent (overrides task routing)")
	routeCmd.Flags().BoolVar(&applyFlag, "apply", false, "request the state-changing variant")
	routeCmd.Flags().BoolVar(&allowApplyFlag, "allow-apply", false, "explicit policy-gate confirmation for apply actions")
	routeCmd.Flags().BoolVar(&dryRunFlag, "dry-run", false, "show the plan only")

	policyCheckCmd.Flags().BoolVar(&applyFlag, "apply", false, "simulate an apply request")
	policyCheckCmd.Flags().BoolVar(&allowApplyFlag, "allow-apply", false, "simulate the allow-apply confirmation")

	auditCmd.Flags().BoolVar(&auditFollowFlag, "follow", false, "stream new entries as they are appended")
	auditCmd.Flags().IntVar(&auditLastN, "last", 20, "number of entries to show")

	guardCmd.Flags().IntVar(&guardLastN, "last", 6, "number of latest snapshots to inspect")
	checkpointCreateCmd.Flags().StringVar(&checkpointLabel, "label", "manual", "checkpoint label")

	profileCmd.AddCommand(profileListCmd, profileApplyCmd)
	checkpointCmd.AddCommand(checkpointCreateCmd, checkpointListCmd, checkpointRestoreCmd, checkpointPruneCmd)
	policyCmd.AddCommand(policyCheckCmd)
	locksCmd.AddCommand(locksClearCmd)

	rootCmd.AddCommand(profileCmd, sceneCmd, autopilotCmd, checkpointCmd,
		policyCmd, routeCmd, auditCmd, snapshotCmd, guardCmd, locksCmd)
}
