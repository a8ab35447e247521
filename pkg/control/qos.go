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

// DomainQoS is the queueing-discipline domain (tc fq_codel on the default
// route interface).
const DomainQoS = "qos"

// Queueing parameters accepted as step properties. They map 1:1 onto
// fq_codel arguments.
var qosParams = []string{"target", "interval", "quantum", "flows", "limit"}

// QoSEffector tunes the root fq_codel qdisc on the default interface.
//
// tc is invoked through sudo -n; hosts are expected to carry a narrow
// sudoers entry for it. A captured value of kernel-default means the root
// qdisc was not an fq_codel we installed, and restore simply deletes the
// root qdisc to hand control back to the kernel.
type QoSEffector struct {
	runner CommandRunner
}

// NewQoSEffector returns the queueing-discipline effector.
func NewQoSEffector(runner CommandRunner) *QoSEffector {
	return &QoSEffector{runner: runner}
}

func (q *QoSEffector) Domain() string { return DomainQoS }

const qosKernelDefault = "kernel-default"

type qosState struct {
	Iface  string            `json:"iface"`
	Params map[string]string `json:"params,omitempty"`
}

func (q *QoSEffector) defaultInterface(ctx context.Context) (string, error) {
	res := q.runner.Run(ctx, "ip", "route", "show", "default")
	if !res.Ok() || res.Stdout == "" {
		return "", fmt.Errorf("no default route: %s", res.Output())
	}
	for _, ln := range strings.Split(res.Stdout, "\n") {
		parts := strings.Fields(ln)
		for i, p := range parts {
			if p == "dev" && i+1 < len(parts) {
				return parts[i+1], nil
			}
		}
	}
	return "", fmt.Errorf("default route has no dev field")
}

// currentParams parses the root qdisc line. Returns nil params when the
// root qdisc is not fq_codel.
func (q *QoSEffector) currentParams(ctx context.Context, iface string) map[string]string {
	res := q.runner.Run(ctx, "tc", "qdisc", "show", "dev", iface)
	if !res.Ok() {
		return nil
	}
	for _, ln := range strings.Split(res.Stdout, "\n") {
		if !strings.Contains(ln, "fq_codel") || !strings.Contains(ln, "root") {
			continue
		}
		params := map[string]string{}
		fields := strings.Fields(ln)
		for i, f := range fields {
			for _, name := range qosParams {
				if f == name && i+1 < len(fields) {
					params[name] = fields[i+1]
				}
			}
		}
		if len(params) > 0 {
			return params
		}
	}
	return nil
}

func (q *QoSEffector) install(ctx context.Context, iface string, params map[string]string) error {
	// Best effort: a missing root qdisc is fine.
	q.runner.Run(ctx, "sudo", "-n", "tc", "qdisc", "del", "dev", iface, "root")

	args := []string{"-n", "tc", "qdisc", "add", "dev", iface, "root", "fq_codel"}
	for _, name := range qosParams {
		if v, ok := params[name]; ok {
			args = append(args, name, v)
		}
	}
	args = append(args, "ecn")
	res := q.runner.Run(ctx, "sudo", args...)
	if !res.Ok() {
		return &EffectorApplyError{Domain: DomainQoS, Step: "qdisc-add", Detail: res.Output()}
	}
	return nil
}

func (q *QoSEffector) Read(ctx context.Context) (string, error) {
	if !q.runner.LookPath("tc") || !q.runner.LookPath("ip") {
		return "", fmt.Errorf("%w: tc", ErrEffectorUnavailable)
	}
	iface, err := q.defaultInterface(ctx)
	if err != nil {
		return "", err
	}
	st := qosState{Iface: iface, Params: q.currentParams(ctx, iface)}
	data, err := json.Marshal(st)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (q *QoSEffector) Apply(ctx context.Context, steps []Step) error {
	if !q.runner.LookPath("tc") || !q.runner.LookPath("ip") {
		return fmt.Errorf("%w: tc", ErrEffectorUnavailable)
	}
	iface, err := q.defaultInterface(ctx)
	if err != nil {
		return &EffectorApplyError{Domain: DomainQoS, Step: "resolve-interface", Detail: err.Error(), Err: err}
	}
	params := map[string]string{}
	for _, s := range steps {
		if !isQoSParam(s.Property) {
			return fmt.Errorf("%w: qos/%s", ErrUnknownStep, s.Property)
		}
		params[s.Property] = s.Value
	}
	return q.install(ctx, iface, params)
}

func (q *QoSEffector) Restore(ctx context.Context, value string) error {
	if !q.runner.LookPath("tc") {
		return fmt.Errorf("%w: tc", ErrEffectorUnavailable)
	}
	var st qosState
	if err := json.Unmarshal([]byte(value), &st); err != nil {
		return fmt.Errorf("decode qos checkpoint value: %w", err)
	}
	if st.Iface == "" {
		return fmt.Errorf("qos checkpoint value has no interface")
	}
	if len(st.Params) == 0 {
		// Prior root qdisc was not ours; return control to the kernel.
		res := q.runner.Run(ctx, "sudo", "-n", "tc", "qdisc", "del", "dev", st.Iface, "root")
		if !res.Ok() && res.Stdout+res.Stderr != "" {
			// "RTNETLINK answers: No such file" style output means the
			// default is already in place.
			if !strings.Contains(res.Output(), "No such") {
				return fmt.Errorf("restore qos on %s: %s", st.Iface, res.Output())
			}
		}
		return nil
	}
	return q.install(ctx, st.Iface, st.Params)
}

func isQoSParam(name string) bool {
	for _, p := range qosParams {
		if p == name {
			return true
		}
	}
	return false
}
