// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package control implements the safe mutation controller: reversible,
// checkpointed runtime changes to host tuning domains (power, audio,
// network, queueing, firewall, background services) with post-apply
// verification and automatic rollback on regression.
//
// The package never mutates anything it cannot restore. Every non-dry-run
// apply captures a checkpoint first, and every terminal outcome is recorded
// exactly once in the audit log.
package control

import (
	"context"
	"os/exec"
	"strings"
)

// CommandRunner abstracts execution of external host tools.
//
// # Description
//
// All effectors and telemetry providers shell out through this interface
// so tests can substitute a fake and so availability checks (tool present
// on PATH) are centralized. A missing tool is reported via LookPath, not
// by a failed Run.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type CommandRunner interface {
	// LookPath reports whether the named tool is available on this host.
	LookPath(name string) bool

	// Run executes the tool and returns its exit code and trimmed output.
	// Run never returns an error for a non-zero exit; callers inspect Code.
	Run(ctx context.Context, name string, args ...string) RunResult
}

// RunResult holds the outcome of a single external command.
type RunResult struct {
	// Code is the process exit code. 127 indicates the tool could not
	// be started at all.
	Code int

	// Stdout is the trimmed standard output.
	Stdout string

	// Stderr is the trimmed standard error.
	Stderr string
}

// Ok reports whether the command exited zero.
func (r RunResult) Ok() bool { return r.Code == 0 }

// Output returns stdout if present, otherwise stderr. Convenient for
// logging a one-line summary of a command outcome.
func (r RunResult) Output() string {
	if r.Stdout != "" {
		return r.Stdout
	}
	return r.Stderr
}

// execRunner is the production CommandRunner backed by os/exec.
type execRunner struct{}

// NewExecRunner returns a CommandRunner that executes real host commands.
func NewExecRunner() CommandRunner { return execRunner{} }

func (execRunner) LookPath(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

func (execRunner) Run(ctx context.Context, name string, args ...string) RunResult {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := RunResult{
		Stdout: strings.TrimSpace(stdout.String()),
		Stderr: strings.TrimSpace(stderr.String()),
	}
	switch e := err.(type) {
	case nil:
		res.Code = 0
	case *exec.ExitError:
		res.Code = e.ExitCode()
	default:
		// Tool missing or not startable.
		res.Code = 127
		if res.Stderr == "" {
			res.Stderr = err.Error()
		}
	}
	return res
}
