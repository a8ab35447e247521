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
	"encoding/json"
	"fmt"
	"strings"
)

// DomainServices is the background-task domain: enabled/active state of a
// fixed set of systemd user timers.
const DomainServices = "services"

// TimerState is the captured enabled/active state of one user timer.
type TimerState struct {
	Enabled bool `json:"enabled"`
	Active  bool `json:"active"`
}

// ServiceEffector manages the enabled/active state of systemd user timers.
//
// The managed set is fixed at construction. Apply steps use the timer unit
// name as the property and "enabled"/"disabled" (optionally with
// ",active"/",inactive") as the value.
type ServiceEffector struct {
	runner CommandRunner
	timers []string
}

// NewServiceEffector returns the background-task effector for the given
// user timer units.
func NewServiceEffector(runner CommandRunner, timers []string) *ServiceEffector {
	return &ServiceEffector{runner: runner, timers: timers}
}

func (s *ServiceEffector) Domain() string { return DomainServices }

// Timers returns the managed timer unit names.
func (s *ServiceEffector) Timers() []string { return s.timers }

func (s *ServiceEffector) timerState(ctx context.Context, name string) TimerState {
	en := s.runner.Run(ctx, "systemctl", "--user", "is-enabled", name)
	ac := s.runner.Run(ctx, "systemctl", "--user", "is-active", name)
	return TimerState{
		Enabled: en.Ok() && en.Stdout == "enabled",
		Active:  ac.Ok() && ac.Stdout == "active",
	}
}

func (s *ServiceEffector) setState(ctx context.Context, name string, st TimerState) error {
	enableVerb, activeVerb := "disable", "stop"
	if st.Enabled {
		enableVerb = "enable"
	}
	if st.Active {
		activeVerb = "start"
	}
	if res := s.runner.Run(ctx, "systemctl", "--user", enableVerb, name); !res.Ok() {
		return &EffectorApplyError{Domain: DomainServices, Step: name, Detail: res.Output()}
	}
	if res := s.runner.Run(ctx, "systemctl", "--user", activeVerb, name); !res.Ok() {
		return &EffectorApplyError{Domain: DomainServices, Step: name, Detail: res.Output()}
	}
	return nil
}

func (s *ServiceEffector) Read(ctx context.Context) (string, error) {
	if !s.runner.LookPath("systemctl") {
		return "", fmt.Errorf("%w: systemctl", ErrEffectorUnavailable)
	}
	states := make(map[string]TimerState, len(s.timers))
	for _, name := range s.timers {
		states[name] = s.timerState(ctx, name)
	}
	data, err := json.Marshal(states)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (s *ServiceEffector) Apply(ctx context.Context, steps []Step) error {
	if !s.runner.LookPath("systemctl") {
		return fmt.Errorf("%w: systemctl", ErrEffectorUnavailable)
	}
	for _, step := range steps {
		if !s.manages(step.Property) {
			return fmt.Errorf("%w: services/%s", ErrUnknownStep, step.Property)
		}
		st, err := parseTimerValue(step.Value)
		if err != nil {
			return fmt.Errorf("services/%s: %w", step.Property, err)
		}
		if err := s.setState(ctx, step.Property, st); err != nil {
			return err
		}
	}
	return nil
}

func (s *ServiceEffector) Restore(ctx context.Context, value string) error {
	if !s.runner.LookPath("systemctl") {
		return fmt.Errorf("%w: systemctl", ErrEffectorUnavailable)
	}
	var states map[string]TimerState
	if err := json.Unmarshal([]byte(value), &states); err != nil {
		return fmt.Errorf("decode services checkpoint value: %w", err)
	}
	for name, st := range states {
		// Timers dropped from the managed set since the checkpoint was
		// taken are left alone.
		if !s.manages(name) {
			continue
		}
		if err := s.setState(ctx, name, st); err != nil {
			return err
		}
	}
	return nil
}

func (s *ServiceEffector) manages(name string) bool {
	for _, t := range s.timers {
		if t == name {
			return true
		}
	}
	return false
}

// parseTimerValue parses "enabled", "disabled", "enabled,active",
// "disabled,inactive" and the like into a TimerState.
func parseTimerValue(v string) (TimerState, error) {
	st := TimerState{}
	for _, part := range strings.Split(v, ",") {
		switch strings.TrimSpace(part) {
		case "enabled":
			st.Enabled = true
		case "disabled":
			st.Enabled = false
		case "active":
			st.Active = true
		case "inactive":
			st.Active = false
		case "":
		default:
			return st, fmt.Errorf("unrecognized timer state %q", part)
		}
	}
	return st, nil
}
