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

	"github.com/spf13/cobra"

	"github.com/AleutianAI/GhostControl/pkg/control"
	"github.com/AleutianAI/GhostControl/pkg/ux"
)

// runAutopilot is the CLI handler for "ghostctl autopilot".
//
// It reads the host context vector (AC, battery, CPU temperature), decides
// a target bundle through the fixed rule list, and plans or applies it.
func runAutopilot(cmd *cobra.Command, args []string) {
	stack, err := newControlStack()
	if err != nil {
		ux.Error(err.Error())
		exit(1)
	}
	defer stack.close()

	hostCtx := control.ReadAutopilotContext(control.AutopilotSources{
		Ctx:     context.Background(),
		Power:   stack.power,
		CPUTemp: control.NewCPUTempProvider(stack.runner),
	})
	bundle, rule := control.DecideBundle(hostCtx)

	ux.Title("Autopilot")
	ux.KV("ac_online", fmtPtrBool(hostCtx.ACOnline))
	ux.KV("battery_percent", fmtPtrInt(hostCtx.BatteryPercent))
	ux.KV("cpu_temp_c", fmtPtrFloat(hostCtx.CPUTempC))
	ux.KV("rule", rule)
	ux.KV("target", fmt.Sprintf("power=%s audio=%s network=%s",
		bundle.Power, orDash(bundle.Audio), orDash(bundle.Network)))

	applyBundleCmd("autopilot", "autopilot:"+rule,
		bundle.Power, bundle.Audio, bundle.Network, verifySeconds)
}

func fmtPtrBool(v *bool) string {
	if v == nil {
		return "unknown"
	}
	return fmt.Sprintf("%t", *v)
}

func fmtPtrInt(v *int) string {
	if v == nil {
		return "unknown"
	}
	return fmt.Sprintf("%d", *v)
}

func fmtPtrFloat(v *float64) string {
	if v == nil {
		return "unknown"
	}
	return fmt.Sprintf("%.1f", *v)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
