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
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/GhostControl/pkg/control"
)

// GhostConfig is the on-disk configuration for ghostctl
// (~/.ghostctl/ghostctl.yaml).
type GhostConfig struct {
	// StateDir holds checkpoints/, locks/, history/ and actions.log.
	StateDir string `yaml:"state_dir" validate:"required"`

	// LogDir enables file logging when non-empty.
	LogDir string `yaml:"log_dir"`

	// LogLevel is debug/info/warn/error.
	LogLevel string `yaml:"log_level" validate:"oneof=debug info warn error"`

	// Verify configures the post-apply verification window.
	Verify VerifyConfig `yaml:"verify"`

	// Timers are the systemd user timers tracked by checkpoints and the
	// services effector.
	Timers []string `yaml:"timers"`

	// Retention prunes old checkpoints.
	Retention RetentionConfig `yaml:"retention"`

	// MetricsTextfile, when set, receives Prometheus counters in
	// node-exporter textfile format after each invocation.
	MetricsTextfile string `yaml:"metrics_textfile"`

	// StaleLockMinutes is the age after which a leftover in-flight
	// marker is reported as stale.
	StaleLockMinutes int `yaml:"stale_lock_minutes" validate:"min=1"`

	// Profiles catalogs the named profiles per domain.
	Profiles map[string]map[string][]control.Step `yaml:"profiles" validate:"required"`

	// Policy is the routed-intent policy for the apply gate.
	Policy control.PolicyConfig `yaml:"policy"`
}

// VerifyConfig models the verification window and thresholds as
// configuration rather than constants. Thresholds apply to every profile;
// ProfileOverrides lets a specific profile relax or tighten individual
// metrics (resolves the per-domain-threshold open question in favor of
// per-profile configuration).
type VerifyConfig struct {
	Seconds              int                           `yaml:"seconds" validate:"min=1"`
	IntervalSeconds      int                           `yaml:"interval_seconds" validate:"min=1"`
	RollbackOnRegression bool                          `yaml:"rollback_on_regression"`
	Thresholds           map[string]float64            `yaml:"thresholds"`
	ProfileOverrides     map[string]map[string]float64 `yaml:"profile_overrides"`
}

// RetentionConfig controls checkpoint pruning.
type RetentionConfig struct {
	// KeepLast checkpoints are always retained.
	KeepLast int `yaml:"keep_last" validate:"min=0"`

	// MaxAgeDays prunes checkpoints older than this (0 disables).
	MaxAgeDays int `yaml:"max_age_days" validate:"min=0"`
}

// WindowFor builds the control.Window for a profile, applying any
// per-profile threshold overrides.
func (c *GhostConfig) WindowFor(profileID string, secondsOverride int) control.Window {
	thresholds := make(map[string]float64, len(c.Verify.Thresholds))
	for k, v := range c.Verify.Thresholds {
		thresholds[k] = v
	}
	for k, v := range c.Verify.ProfileOverrides[profileID] {
		thresholds[k] = v
	}
	secs := c.Verify.Seconds
	if secondsOverride > 0 {
		secs = secondsOverride
	}
	return control.Window{
		Duration:   time.Duration(secs) * time.Second,
		Interval:   time.Duration(c.Verify.IntervalSeconds) * time.Second,
		Thresholds: thresholds,
	}
}

// StaleLockAge returns the configured stale-marker age.
func (c *GhostConfig) StaleLockAge() time.Duration {
	return time.Duration(c.StaleLockMinutes) * time.Minute
}

// Resolve implements control.ProfileCatalog over the configured profiles.
func (c *GhostConfig) Resolve(domain, id string) (control.Profile, error) {
	steps, ok := c.Profiles[domain][id]
	if !ok {
		return control.Profile{}, fmt.Errorf("no profile %q for domain %q", id, domain)
	}
	return control.Profile{ID: id, Domain: domain, Steps: steps}, nil
}

// ProfileIDs returns the profile names configured for a domain.
func (c *GhostConfig) ProfileIDs(domain string) []string {
	out := make([]string, 0, len(c.Profiles[domain]))
	for id := range c.Profiles[domain] {
		out = append(out, id)
	}
	return out
}

// Validate checks structural constraints.
func (c *GhostConfig) Validate() error {
	return validator.New().Struct(c)
}

// DefaultConfig returns the configuration written on first run. Profile
// values mirror the tuning the control plane was built around: reversible
// runtime settings only.
func DefaultConfig() GhostConfig {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	base := filepath.Join(home, ".ghostctl")

	return GhostConfig{
		StateDir:         base,
		LogDir:           filepath.Join(base, "logs"),
		LogLevel:         "info",
		StaleLockMinutes: 10,
		Verify: VerifyConfig{
			Seconds:              30,
			IntervalSeconds:      5,
			RollbackOnRegression: true,
			Thresholds: map[string]float64{
				control.MetricCPUTempC:    90.0,
				control.MetricJournalErrs: 10,
			},
		},
		Timers: []string{
			"ghost-snapshot.timer",
			"ghost-autopilot.timer",
			"ghost-selfheal.timer",
		},
		Retention: RetentionConfig{KeepLast: 10, MaxAgeDays: 30},
		Profiles: map[string]map[string][]control.Step{
			control.DomainPower: {
				"balanced":    {{Property: "profile", Value: "balanced"}},
				"performance": {{Property: "profile", Value: "performance"}},
				"battery":     {{Property: "profile", Value: "power-saver"}},
				"focus":       {{Property: "profile", Value: "balanced"}},
			},
			control.DomainAudio: {
				"balanced":   {{Property: "clock.force-quantum", Value: "0"}, {Property: "clock.force-rate", Value: "0"}},
				"lowlatency": {{Property: "clock.force-quantum", Value: "128"}, {Property: "clock.force-rate", Value: "48000"}},
				"studio":     {{Property: "clock.force-quantum", Value: "64"}, {Property: "clock.force-rate", Value: "48000"}},
				"powersave":  {{Property: "clock.force-quantum", Value: "1024"}, {Property: "clock.force-rate", Value: "48000"}},
			},
			control.DomainNetwork: {
				"isp-auto": {
					{Property: "ipv4.ignore-auto-dns", Value: "no"},
					{Property: "ipv4.dns", Value: ""},
					{Property: "ipv6.ignore-auto-dns", Value: "no"},
					{Property: "ipv6.dns", Value: ""},
				},
				"latency": {
					{Property: "ipv4.ignore-auto-dns", Value: "yes"},
					{Property: "ipv4.dns", Value: "1.1.1.1 1.0.0.1 9.9.9.9"},
					{Property: "ipv6.ignore-auto-dns", Value: "yes"},
					{Property: "ipv6.dns", Value: "2606:4700:4700::1111 2606:4700:4700::1001 2620:fe::9"},
				},
				"privacy": {
					{Property: "ipv4.ignore-auto-dns", Value: "yes"},
					{Property: "ipv4.dns", Value: "9.9.9.9 149.112.112.112"},
					{Property: "ipv6.ignore-auto-dns", Value: "yes"},
					{Property: "ipv6.dns", Value: "2620:fe::9 2620:fe::fe"},
				},
			},
			control.DomainQoS: {
				"default": {
					{Property: "target", Value: "5ms"},
					{Property: "interval", Value: "100ms"},
					{Property: "quantum", Value: "1514"},
					{Property: "flows", Value: "1024"},
					{Property: "limit", Value: "10240"},
				},
				"gaming": {
					{Property: "target", Value: "3ms"},
					{Property: "interval", Value: "50ms"},
					{Property: "quantum", Value: "1514"},
					{Property: "flows", Value: "2048"},
					{Property: "limit", Value: "8192"},
				},
				"streaming": {
					{Property: "target", Value: "4ms"},
					{Property: "interval", Value: "80ms"},
					{Property: "quantum", Value: "1514"},
					{Property: "flows", Value: "1024"},
					{Property: "limit", Value: "12288"},
				},
			},
		},
		Policy: control.PolicyConfig{
			SafeByDefault: true,
			Intents: map[string]control.IntentPolicy{
				"health":    {AllowApply: false},
				"drift":     {AllowApply: false},
				"snapshot":  {AllowApply: false},
				"scene":     {AllowApply: true},
				"autopilot": {AllowApply: true},
			},
		},
	}
}
