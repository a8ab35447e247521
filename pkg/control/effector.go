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
	"errors"
	"fmt"
	"sort"
	"sync"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrEffectorUnavailable is returned when the underlying host tool for
	// a domain is absent. Callers skip the step; this is never fatal.
	ErrEffectorUnavailable = errors.New("effector unavailable: required tool missing")

	// ErrUnknownDomain is returned by the registry for an unregistered domain.
	ErrUnknownDomain = errors.New("unknown effector domain")

	// ErrUnknownStep is returned when a profile names a property the
	// effector does not manage.
	ErrUnknownStep = errors.New("unknown step property for domain")
)

// EffectorApplyError indicates a mutation step failed after it was
// attempted. Unlike ErrEffectorUnavailable this aborts the remaining steps
// of the current apply and forces a rollback of already-mutated domains.
type EffectorApplyError struct {
	// Domain is the effector domain that failed.
	Domain string

	// Step is the property being applied when the failure occurred.
	Step string

	// Detail carries the tool output or error text.
	Detail string

	// Err is the underlying error, if any.
	Err error
}

func (e *EffectorApplyError) Error() string {
	return fmt.Sprintf("apply failed: domain=%s step=%s: %s", e.Domain, e.Step, e.Detail)
}

func (e *EffectorApplyError) Unwrap() error { return e.Err }

// =============================================================================
// EFFECTOR INTERFACE
// =============================================================================

// Step is one ordered mutation within a profile: a target property and the
// value to set it to.
type Step struct {
	// Property names the setting within the domain (e.g. "profile" for
	// power, "clock.force-quantum" for audio).
	Property string `json:"property" yaml:"property"`

	// Value is the value to apply.
	Value string `json:"value" yaml:"value"`
}

// Profile is an immutable, ordered list of steps for one domain.
type Profile struct {
	// ID identifies the profile (e.g. "balanced", "lowlatency").
	ID string `json:"id" yaml:"id"`

	// Domain is the effector domain the steps target.
	Domain string `json:"domain" yaml:"domain"`

	// Steps are applied in declared order.
	Steps []Step `json:"steps" yaml:"steps"`
}

// Effector reads, applies, and restores one real system setting domain.
//
// # Description
//
// Each effector owns exactly one domain. Read returns an opaque value that
// the same effector can later hand to Restore to return the host to that
// state; callers never interpret it beyond persistence. Apply executes the
// given steps in order.
//
// # Errors
//
//   - ErrEffectorUnavailable: the backing tool is missing. The caller
//     skips this domain and continues.
//   - *EffectorApplyError: a step was attempted and failed. The caller
//     aborts the apply and rolls back domains already mutated.
//
// # Thread Safety
//
// Effectors hold no mutable state and are safe for concurrent use; the
// per-domain advisory lock serializes actual mutations.
type Effector interface {
	// Domain returns the domain name this effector manages.
	Domain() string

	// Read captures the current value of the domain for checkpointing.
	Read(ctx context.Context) (string, error)

	// Apply executes the steps in order.
	Apply(ctx context.Context, steps []Step) error

	// Restore returns the domain to a previously captured value.
	// Restore must be idempotent.
	Restore(ctx context.Context, value string) error
}

// =============================================================================
// REGISTRY
// =============================================================================

// Registry maps domain names to their concrete effector.
//
// # Description
//
// The registry replaces string-based branching: the controller and the
// checkpoint store look effectors up by domain and treat them uniformly
// through the Effector interface.
//
// # Thread Safety
//
// Safe for concurrent use. Registration normally happens once at startup.
type Registry struct {
	mu        sync.RWMutex
	effectors map[string]Effector
}

// NewRegistry returns an empty effector registry.
func NewRegistry() *Registry {
	return &Registry{effectors: make(map[string]Effector)}
}

// Register adds an effector. Registering a duplicate domain is an error.
func (r *Registry) Register(e Effector) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := e.Domain()
	if _, exists := r.effectors[d]; exists {
		return fmt.Errorf("effector for domain %q already registered", d)
	}
	r.effectors[d] = e
	return nil
}

// Lookup returns the effector for a domain.
func (r *Registry) Lookup(domain string) (Effector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.effectors[domain]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDomain, domain)
	}
	return e, nil
}

// Domains returns the registered domain names in sorted order.
func (r *Registry) Domains() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.effectors))
	for d := range r.effectors {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}
