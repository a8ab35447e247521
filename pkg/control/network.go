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

// DomainNetwork is the DNS-resolution domain (NetworkManager / nmcli).
const DomainNetwork = "network"

// networkDNSFields are the connection fields this effector reads, applies,
// and restores. Nothing else on the connection is touched.
var networkDNSFields = []string{
	"ipv4.dns",
	"ipv4.ignore-auto-dns",
	"ipv6.dns",
	"ipv6.ignore-auto-dns",
}

// NetworkEffector manages per-connection DNS settings via nmcli.
//
// The captured value records both the connection name and its DNS fields,
// so a restore reapplies to the same connection even if a different one is
// active by then.
type NetworkEffector struct {
	runner CommandRunner
}

// NewNetworkEffector returns the network DNS effector.
func NewNetworkEffector(runner CommandRunner) *NetworkEffector {
	return &NetworkEffector{runner: runner}
}

func (n *NetworkEffector) Domain() string { return DomainNetwork }

type networkState struct {
	Connection string            `json:"connection"`
	Device     string            `json:"device"`
	Fields     map[string]string `json:"fields"`
}

// activeConnection finds the active wireless connection, falling back to
// any active non-loopback connection.
func (n *NetworkEffector) activeConnection(ctx context.Context) (name, device string, err error) {
	res := n.runner.Run(ctx, "nmcli", "-t", "-f", "NAME,TYPE,DEVICE", "connection", "show", "--active")
	if !res.Ok() {
		return "", "", fmt.Errorf("nmcli connection show failed: %s", res.Output())
	}
	var fallbackName, fallbackDev string
	for _, ln := range strings.Split(res.Stdout, "\n") {
		parts := strings.Split(ln, ":")
		if len(parts) < 3 || parts[2] == "" {
			continue
		}
		if parts[1] == "802-11-wireless" {
			return parts[0], parts[2], nil
		}
		if parts[1] != "loopback" && fallbackName == "" {
			fallbackName, fallbackDev = parts[0], parts[2]
		}
	}
	if fallbackName == "" {
		return "", "", fmt.Errorf("no active non-loopback connection")
	}
	return fallbackName, fallbackDev, nil
}

func (n *NetworkEffector) readFields(ctx context.Context, conn string) (map[string]string, error) {
	res := n.runner.Run(ctx, "nmcli", "-t", "-f", strings.Join(networkDNSFields, ","),
		"connection", "show", conn)
	if !res.Ok() {
		return nil, fmt.Errorf("nmcli connection show %q failed: %s", conn, res.Output())
	}
	fields := map[string]string{
		"ipv4.ignore-auto-dns": "no",
		"ipv6.ignore-auto-dns": "no",
	}
	for _, ln := range strings.Split(res.Stdout, "\n") {
		k, v, ok := strings.Cut(ln, ":")
		if !ok {
			continue
		}
		fields[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return fields, nil
}

func (n *NetworkEffector) modify(ctx context.Context, conn, field, value string) error {
	res := n.runner.Run(ctx, "nmcli", "connection", "modify", conn, field, value)
	if !res.Ok() {
		return &EffectorApplyError{Domain: DomainNetwork, Step: field, Detail: res.Output()}
	}
	return nil
}

// reactivate bounces the connection so modified DNS fields take effect.
func (n *NetworkEffector) reactivate(ctx context.Context, conn string) error {
	res := n.runner.Run(ctx, "nmcli", "connection", "up", conn)
	if !res.Ok() {
		return &EffectorApplyError{Domain: DomainNetwork, Step: "connection-up", Detail: res.Output()}
	}
	return nil
}

func (n *NetworkEffector) Read(ctx context.Context) (string, error) {
	if !n.runner.LookPath("nmcli") {
		return "", fmt.Errorf("%w: nmcli", ErrEffectorUnavailable)
	}
	conn, dev, err := n.activeConnection(ctx)
	if err != nil {
		return "", err
	}
	fields, err := n.readFields(ctx, conn)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(networkState{Connection: conn, Device: dev, Fields: fields})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (n *NetworkEffector) Apply(ctx context.Context, steps []Step) error {
	if !n.runner.LookPath("nmcli") {
		return fmt.Errorf("%w: nmcli", ErrEffectorUnavailable)
	}
	conn, _, err := n.activeConnection(ctx)
	if err != nil {
		return &EffectorApplyError{Domain: DomainNetwork, Step: "resolve-connection", Detail: err.Error(), Err: err}
	}
	for _, s := range steps {
		if !isDNSField(s.Property) {
			return fmt.Errorf("%w: network/%s", ErrUnknownStep, s.Property)
		}
		if err := n.modify(ctx, conn, s.Property, s.Value); err != nil {
			return err
		}
	}
	return n.reactivate(ctx, conn)
}

func (n *NetworkEffector) Restore(ctx context.Context, value string) error {
	if !n.runner.LookPath("nmcli") {
		return fmt.Errorf("%w: nmcli", ErrEffectorUnavailable)
	}
	var st networkState
	if err := json.Unmarshal([]byte(value), &st); err != nil {
		return fmt.Errorf("decode network checkpoint value: %w", err)
	}
	if st.Connection == "" {
		return fmt.Errorf("network checkpoint value has no connection")
	}
	for _, field := range networkDNSFields {
		if err := n.modify(ctx, st.Connection, field, st.Fields[field]); err != nil {
			return err
		}
	}
	return n.reactivate(ctx, st.Connection)
}

func isDNSField(name string) bool {
	for _, f := range networkDNSFields {
		if f == name {
			return true
		}
	}
	return false
}
