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
)

// DomainFirewall is the firewalld runtime default-zone domain.
const DomainFirewall = "firewall"

// FirewallEffector switches the firewalld default zone. Only the runtime
// default zone is touched; permanent configuration and individual rules
// are never modified, which keeps the domain trivially reversible.
type FirewallEffector struct {
	runner CommandRunner
}

// NewFirewallEffector returns the firewall zone effector.
func NewFirewallEffector(runner CommandRunner) *FirewallEffector {
	return &FirewallEffector{runner: runner}
}

func (f *FirewallEffector) Domain() string { return DomainFirewall }

func (f *FirewallEffector) Read(ctx context.Context) (string, error) {
	if !f.runner.LookPath("firewall-cmd") {
		return "", fmt.Errorf("%w: firewall-cmd", ErrEffectorUnavailable)
	}
	res := f.runner.Run(ctx, "firewall-cmd", "--get-default-zone")
	if !res.Ok() || res.Stdout == "" {
		return "", fmt.Errorf("firewall-cmd get default zone failed: %s", res.Output())
	}
	return res.Stdout, nil
}

func (f *FirewallEffector) Apply(ctx context.Context, steps []Step) error {
	if !f.runner.LookPath("firewall-cmd") {
		return fmt.Errorf("%w: firewall-cmd", ErrEffectorUnavailable)
	}
	for _, s := range steps {
		if s.Property != "default-zone" {
			return fmt.Errorf("%w: firewall/%s", ErrUnknownStep, s.Property)
		}
		res := f.runner.Run(ctx, "firewall-cmd", "--set-default-zone="+s.Value)
		if !res.Ok() {
			return &EffectorApplyError{Domain: DomainFirewall, Step: s.Property, Detail: res.Output()}
		}
	}
	return nil
}

func (f *FirewallEffector) Restore(ctx context.Context, value string) error {
	if !f.runner.LookPath("firewall-cmd") {
		return fmt.Errorf("%w: firewall-cmd", ErrEffectorUnavailable)
	}
	if value == "" {
		return fmt.Errorf("previous firewall zone unknown")
	}
	res := f.runner.Run(ctx, "firewall-cmd", "--set-default-zone="+value)
	if !res.Ok() {
		return fmt.Errorf("restore firewall zone %q: %s", value, res.Output())
	}
	return nil
}
