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
	"regexp"
)

// DomainAudio is the PipeWire runtime-settings domain (pw-metadata).
const DomainAudio = "audio"

// Audio properties managed by this effector. Forcing quantum/rate to "0"
// returns PipeWire to its own defaults, which is what makes the domain
// fully reversible.
const (
	audioPropQuantum = "clock.force-quantum"
	audioPropRate    = "clock.force-rate"
)

var pwSettingRe = regexp.MustCompile(`key:'([^']+)'\s+value:'([^']*)'`)

// AudioEffector tunes PipeWire clock quantum and rate through pw-metadata.
type AudioEffector struct {
	runner CommandRunner
}

// NewAudioEffector returns the audio domain effector.
func NewAudioEffector(runner CommandRunner) *AudioEffector {
	return &AudioEffector{runner: runner}
}

func (a *AudioEffector) Domain() string { return DomainAudio }

// audioState is the captured prior value, serialized as the checkpoint
// value for this domain.
type audioState struct {
	ForceQuantum string `json:"clock.force-quantum"`
	ForceRate    string `json:"clock.force-rate"`
}

func (a *AudioEffector) readState(ctx context.Context) (audioState, error) {
	if !a.runner.LookPath("pw-metadata") {
		return audioState{}, fmt.Errorf("%w: pw-metadata", ErrEffectorUnavailable)
	}
	res := a.runner.Run(ctx, "pw-metadata", "-n", "settings")
	if !res.Ok() {
		return audioState{}, fmt.Errorf("pw-metadata read failed: %s", res.Output())
	}
	st := audioState{ForceQuantum: "0", ForceRate: "0"}
	for _, m := range pwSettingRe.FindAllStringSubmatch(res.Stdout, -1) {
		switch m[1] {
		case audioPropQuantum:
			st.ForceQuantum = m[2]
		case audioPropRate:
			st.ForceRate = m[2]
		}
	}
	return st, nil
}

func (a *AudioEffector) write(ctx context.Context, key, value string) error {
	res := a.runner.Run(ctx, "pw-metadata", "-n", "settings", "0", key, value)
	if !res.Ok() {
		return &EffectorApplyError{Domain: DomainAudio, Step: key, Detail: res.Output()}
	}
	return nil
}

func (a *AudioEffector) Read(ctx context.Context) (string, error) {
	st, err := a.readState(ctx)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(st)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (a *AudioEffector) Apply(ctx context.Context, steps []Step) error {
	if !a.runner.LookPath("pw-metadata") {
		return fmt.Errorf("%w: pw-metadata", ErrEffectorUnavailable)
	}
	for _, s := range steps {
		if s.Property != audioPropQuantum && s.Property != audioPropRate {
			return fmt.Errorf("%w: audio/%s", ErrUnknownStep, s.Property)
		}
		if err := a.write(ctx, s.Property, s.Value); err != nil {
			return err
		}
	}
	return nil
}

func (a *AudioEffector) Restore(ctx context.Context, value string) error {
	if !a.runner.LookPath("pw-metadata") {
		return fmt.Errorf("%w: pw-metadata", ErrEffectorUnavailable)
	}
	var st audioState
	if err := json.Unmarshal([]byte(value), &st); err != nil {
		return fmt.Errorf("decode audio checkpoint value: %w", err)
	}
	if st.ForceQuantum == "" {
		st.ForceQuantum = "0"
	}
	if st.ForceRate == "" {
		st.ForceRate = "0"
	}
	if err := a.write(ctx, audioPropQuantum, st.ForceQuantum); err != nil {
		return err
	}
	return a.write(ctx, audioPropRate, st.ForceRate)
}
