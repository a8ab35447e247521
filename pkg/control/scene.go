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
	"sort"
)

// =============================================================================
// SCENES
// =============================================================================

// Scene maps a workflow label to a profile bundle.
type Scene struct {
	Name          string `yaml:"name" json:"name"`
	Power         string `yaml:"power" json:"power"`
	Audio         string `yaml:"audio" json:"audio"`
	Network       string `yaml:"network" json:"network"`
	VerifySeconds int    `yaml:"verify_seconds" json:"verify_seconds"`
}

// DefaultScenes returns the built-in workflow scenes.
func DefaultScenes() map[string]Scene {
	return map[string]Scene{
		"game":   {Name: "game", Power: "performance", Audio: "lowlatency", Network: "latency", VerifySeconds: 20},
		"code":   {Name: "code", Power: "performance", Audio: "balanced", Network: "latency", VerifySeconds: 15},
		"focus":  {Name: "focus", Power: "balanced", Audio: "balanced", Network: "latency", VerifySeconds: 15},
		"travel": {Name: "travel", Power: "battery", Audio: "powersave", Network: "isp-auto", VerifySeconds: 20},
		"stream": {Name: "stream", Power: "balanced", Audio: "lowlatency", Network: "latency", VerifySeconds: 20},
	}
}

// SceneNames returns the scene labels in sorted order.
func SceneNames(scenes map[string]Scene) []string {
	out := make([]string, 0, len(scenes))
	for name := range scenes {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ProfileCatalog resolves (domain, profile id) to a concrete Profile. The
// CLI builds one from configuration; tests build small fakes.
type ProfileCatalog interface {
	Resolve(domain, id string) (Profile, error)
}

// BundleProfiles expands a target bundle into ordered single-domain
// profiles: power first (it carries the safety verification), then audio,
// then network. Empty bundle slots are skipped.
func BundleProfiles(catalog ProfileCatalog, power, audio, network string) ([]Profile, error) {
	type slot struct{ domain, id string }
	var profiles []Profile
	for _, s := range []slot{
		{DomainPower, power},
		{DomainAudio, audio},
		{DomainNetwork, network},
	} {
		if s.id == "" {
			continue
		}
		p, err := catalog.Resolve(s.domain, s.id)
		if err != nil {
			return nil, fmt.Errorf("resolve %s/%s: %w", s.domain, s.id, err)
		}
		profiles = append(profiles, p)
	}
	return profiles, nil
}

// =============================================================================
// AUTOPILOT
// =============================================================================

// AutopilotContext is the observed context vector. Nil fields mean the
// signal could not be read on this host.
type AutopilotContext struct {
	ACOnline       *bool    `json:"ac_online"`
	BatteryPercent *int     `json:"battery_percent"`
	CPUTempC       *float64 `json:"cpu_temp_c"`
}

// TargetBundle is the decided profile bundle for a context.
type TargetBundle struct {
	Power   string `json:"power"`
	Audio   string `json:"audio,omitempty"`
	Network string `json:"network,omitempty"`
}

// AutopilotRule is one guarded decision. Guards are pure functions of the
// context vector.
type AutopilotRule struct {
	Name   string
	Guard  func(AutopilotContext) bool
	Bundle TargetBundle
}

// AutopilotRules returns the ordered rule list, evaluated first-match-wins.
//
// Precedence is fixed and intentional:
//
//  1. low-battery-offline: on battery at ≤20% always wins, regardless of
//     any temperature reading, because draining a low battery is worse
//     than running warm.
//  2. hot: CPU at or above 85°C backs power off to the battery profile.
//  3. mains: on AC, prefer performance with the latency network profile.
//  4. default: balanced power.
func AutopilotRules() []AutopilotRule {
	return []AutopilotRule{
		{
			Name: "low-battery-offline",
			Guard: func(c AutopilotContext) bool {
				return c.ACOnline != nil && !*c.ACOnline &&
					c.BatteryPercent != nil && *c.BatteryPercent <= 20
			},
			Bundle: TargetBundle{Power: "battery", Audio: "powersave", Network: "isp-auto"},
		},
		{
			Name: "hot",
			Guard: func(c AutopilotContext) bool {
				return c.CPUTempC != nil && *c.CPUTempC >= 85.0
			},
			Bundle: TargetBundle{Power: "battery"},
		},
		{
			Name: "mains",
			Guard: func(c AutopilotContext) bool {
				return c.ACOnline != nil && *c.ACOnline
			},
			Bundle: TargetBundle{Power: "performance", Network: "latency"},
		},
		{
			Name:   "default",
			Guard:  func(AutopilotContext) bool { return true },
			Bundle: TargetBundle{Power: "balanced"},
		},
	}
}

// DecideBundle evaluates the rule list against the context and returns the
// target bundle plus the name of the matching rule.
func DecideBundle(ctx AutopilotContext) (TargetBundle, string) {
	for _, rule := range AutopilotRules() {
		if rule.Guard(ctx) {
			return rule.Bundle, rule.Name
		}
	}
	// Unreachable: the last rule always matches.
	return TargetBundle{Power: "balanced"}, "default"
}

// ReadAutopilotContext gathers the context vector from the host. Missing
// signals stay nil and simply fail their guards.
func ReadAutopilotContext(ctx AutopilotSources) AutopilotContext {
	out := AutopilotContext{}
	if ctx.Power != nil {
		if ac, ok := ctx.Power.ACOnline(); ok {
			out.ACOnline = &ac
		}
		if batt, ok := ctx.Power.BatteryPercent(); ok {
			out.BatteryPercent = &batt
		}
	}
	if ctx.CPUTemp != nil {
		if v, err := ctx.CPUTemp.Sample(ctx.Ctx); err == nil {
			out.CPUTempC = &v
		}
	}
	return out
}

// AutopilotSources are the host signal sources for the context vector.
type AutopilotSources struct {
	Ctx     context.Context
	Power   *PowerSupplyReader
	CPUTemp MetricProvider
}
