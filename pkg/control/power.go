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
	"os"
)

// DomainPower is the power-profile domain (powerprofilesctl).
const DomainPower = "power"

// PowerEffector selects the platform power profile via powerprofilesctl.
//
// On hosts where a Homebrew python shadows the system one, the system
// interpreter is forced so the gi imports required by
// /usr/bin/powerprofilesctl keep working.
type PowerEffector struct {
	runner CommandRunner

	// statFunc allows tests to control the system-binary probe.
	statFunc func(string) bool
}

// NewPowerEffector returns the power domain effector.
func NewPowerEffector(runner CommandRunner) *PowerEffector {
	return &PowerEffector{
		runner: runner,
		statFunc: func(path string) bool {
			_, err := os.Stat(path)
			return err == nil
		},
	}
}

func (p *PowerEffector) Domain() string { return DomainPower }

// command resolves the powerprofilesctl invocation, or nil if the tool is
// absent on this host.
func (p *PowerEffector) command(args ...string) []string {
	if p.statFunc("/usr/bin/powerprofilesctl") && p.statFunc("/usr/bin/python") {
		return append([]string{"/usr/bin/python", "/usr/bin/powerprofilesctl"}, args...)
	}
	if p.runner.LookPath("powerprofilesctl") {
		return append([]string{"powerprofilesctl"}, args...)
	}
	return nil
}

func (p *PowerEffector) run(ctx context.Context, args ...string) (RunResult, error) {
	cmd := p.command(args...)
	if cmd == nil {
		return RunResult{}, fmt.Errorf("%w: powerprofilesctl", ErrEffectorUnavailable)
	}
	return p.runner.Run(ctx, cmd[0], cmd[1:]...), nil
}

func (p *PowerEffector) Read(ctx context.Context) (string, error) {
	res, err := p.run(ctx, "get")
	if err != nil {
		return "", err
	}
	if !res.Ok() || res.Stdout == "" {
		return "", fmt.Errorf("powerprofilesctl get failed: %s", res.Output())
	}
	return res.Stdout, nil
}

func (p *PowerEffector) Apply(ctx context.Context, steps []Step) error {
	for _, s := range steps {
		if s.Property != "profile" {
			return fmt.Errorf("%w: power/%s", ErrUnknownStep, s.Property)
		}
		res, err := p.run(ctx, "set", s.Value)
		if err != nil {
			return err
		}
		if !res.Ok() {
			return &EffectorApplyError{Domain: DomainPower, Step: s.Property, Detail: res.Output()}
		}
	}
	return nil
}

func (p *PowerEffector) Restore(ctx context.Context, value string) error {
	if value == "" {
		return fmt.Errorf("previous power profile unknown")
	}
	res, err := p.run(ctx, "set", value)
	if err != nil {
		return err
	}
	if !res.Ok() {
		return fmt.Errorf("restore power profile %q: %s", value, res.Output())
	}
	return nil
}
