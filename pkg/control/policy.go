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
	"errors"
	"strings"
)

// ErrPolicyDenied marks an apply refused by the policy gate. No mutation
// is attempted; the denial is logged by the caller.
var ErrPolicyDenied = errors.New("policy denied")

// IntentPolicy is the per-intent section of the policy configuration.
type IntentPolicy struct {
	// AllowApply marks the intent apply-capable. Without it no
	// combination of request flags authorizes a mutation.
	AllowApply bool `yaml:"allow_apply" json:"allow_apply"`
}

// PolicyConfig is the routed-intent policy file.
type PolicyConfig struct {
	// SafeByDefault is informational: routed intents run read-only
	// variants unless fully authorized.
	SafeByDefault bool `yaml:"safe_by_default" json:"safe_by_default"`

	// Intents maps intent name to its policy.
	Intents map[string]IntentPolicy `yaml:"intents" json:"intents"`
}

// PolicyDecision is the gate's verdict for one routed request.
type PolicyDecision struct {
	Intent       string   `json:"intent"`
	ApplyCapable bool     `json:"apply_capable"`
	Authorized   bool     `json:"authorized"`
	Reasons      []string `json:"reasons"`
}

// Decide is the policy gate: a pure, deterministic function of its inputs.
//
// Authorization requires all three of: an explicit apply request, an
// explicit allow-apply confirmation, and the intent being marked
// apply-capable in the policy configuration. There is no partial
// authorization; any missing condition yields authorized=false with the
// reasons listing every unmet condition.
func Decide(intent string, applyRequested, allowApplyConfirmed bool, cfg PolicyConfig) PolicyDecision {
	capable := cfg.Intents[intent].AllowApply

	d := PolicyDecision{
		Intent:       intent,
		ApplyCapable: capable,
		Authorized:   applyRequested && allowApplyConfirmed && capable,
	}
	if d.Authorized {
		d.Reasons = []string{"apply requested, allow-apply confirmed, intent is apply-capable"}
		return d
	}
	if !applyRequested {
		d.Reasons = append(d.Reasons, "apply not requested")
	}
	if !allowApplyConfirmed {
		d.Reasons = append(d.Reasons, "allow-apply not confirmed")
	}
	if !capable {
		d.Reasons = append(d.Reasons, "intent not apply-capable in policy")
	}
	return d
}

// PickIntent routes freeform task text to an intent name by keyword
// matching, first match wins. Unmatched text routes to the read-only
// "health" intent.
func PickIntent(task string) string {
	t := strings.ToLower(task)
	contains := func(keys ...string) bool {
		for _, k := range keys {
			if strings.Contains(t, k) {
				return true
			}
		}
		return false
	}
	switch {
	case contains("drift", "ports", "firewall", "exposure"):
		return "drift"
	case contains("health", "guard", "status"):
		return "health"
	case contains("snapshot", "baseline"):
		return "snapshot"
	case contains("battery", "power saver", "travel"):
		return "scene"
	case contains("performance", "boost", "gaming", "code mode"):
		return "scene"
	case contains("autopilot", "auto mode"):
		return "autopilot"
	default:
		return "health"
	}
}

// PickScene maps task text to a scene name for the "scene" intent.
func PickScene(task string) string {
	t := strings.ToLower(task)
	switch {
	case strings.Contains(t, "battery") || strings.Contains(t, "travel"):
		return "travel"
	case strings.Contains(t, "game") || strings.Contains(t, "gaming"):
		return "game"
	case strings.Contains(t, "code") || strings.Contains(t, "compile") || strings.Contains(t, "build"):
		return "code"
	default:
		return "focus"
	}
}
