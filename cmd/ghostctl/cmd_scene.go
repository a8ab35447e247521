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

// runScene is the CLI handler for "ghostctl scene [name]".
//
// Without a name the known scenes are listed. With a name the scene's
// bundle is planned (default) or applied domain-by-domain (--apply), each
// domain going through its own checkpoint/verify/rollback cycle.
func runScene(cmd *cobra.Command, args []string) {
	scenes := control.DefaultScenes()
	if len(args) == 0 {
		ux.Title("Scenes")
		for _, name := range control.SceneNames(scenes) {
			sc := scenes[name]
			ux.KV(name, fmt.Sprintf("power=%s audio=%s network=%s", sc.Power, sc.Audio, sc.Network))
		}
		return
	}

	scene, ok := scenes[args[0]]
	if !ok {
		ux.Error(fmt.Sprintf("unknown scene %q (known: %s)",
			args[0], strings.Join(control.SceneNames(scenes), ", ")))
		exit(1)
	}

	secs := verifySeconds
	if secs == 0 {
		secs = scene.VerifySeconds
	}
	applyBundleCmd("scene:"+scene.Name, scene.Name, scene.Power, scene.Audio, scene.Network, secs)
}

// applyBundleCmd plans or applies a power/audio/network bundle under a
// single actor label. Shared by the scene and autopilot commands.
func applyBundleCmd(actor, what, power, audio, network string, secs int) {
	cfg := &config.Global
	profiles, err := control.BundleProfiles(cfg, power, audio, network)
	if err != nil {
		ux.Error(err.Error())
		exit(1)
	}

	stack, err := newControlStack()
	if err != nil {
		ux.Error(err.Error())
		exit(1)
	}
	defer stack.close()

	dryRun := dryRunFlag || !applyFlag
	if !dryRun && !confirmApply(what) {
		ux.Muted("aborted")
		exit(0)
	}

	bundle, err := stack.controller.ApplyBundle(context.Background(), actor, profiles,
		dryRun, cfg.WindowFor(power, secs),
		cfg.Verify.RollbackOnRegression && !noRollback)
	if err != nil {
		ux.Error(err.Error())
		exit(1)
	}

	for _, res := range bundle.Results {
		renderApplyResult(res)
	}
	if !dryRun {
		recordHistory(stack, bundle.Results...)
	}
	switch bundle.Status {
	case control.StatusFailed:
		ux.Error(fmt.Sprintf("%s: %s", what, bundle.Status))
		exit(2)
	case control.StatusRolledBack:
		ux.Warning(fmt.Sprintf("%s: %s", what, bundle.Status))
	case control.StatusDryRun:
		ux.Muted("dry run only; pass --apply to make changes")
	default:
		ux.Success(fmt.Sprintf("%s: %s", what, bundle.Status))
	}
}
