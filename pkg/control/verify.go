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
	"log/slog"
	"time"
)

// Window configures one post-apply verification run.
type Window struct {
	// Duration is the total observation window. Zero or anything at or
	// below Interval means a single instantaneous sample round.
	Duration time.Duration

	// Interval is the sampling cadence. Default: 5s.
	Interval time.Duration

	// Thresholds maps metric name to the maximum allowed value. A sampled
	// value strictly greater than the threshold is a violation; a value
	// equal to the threshold is not.
	Thresholds map[string]float64
}

// Violation records one threshold breach.
type Violation struct {
	Metric    string    `json:"metric"`
	Value     float64   `json:"value"`
	Threshold float64   `json:"threshold"`
	At        time.Time `json:"at"`
}

// Verdict is the outcome of a verification window.
type Verdict struct {
	// Regression is true when any metric strictly exceeded its threshold
	// at any sample during the window.
	Regression bool `json:"regression"`

	// Inconclusive is true when the window was cancelled before
	// completing. Callers treat an inconclusive verdict conservatively:
	// it never proves the apply safe.
	Inconclusive bool `json:"inconclusive,omitempty"`

	// Violations lists each breach observed, in sample order.
	Violations []Violation `json:"violations,omitempty"`

	// Readings holds the last observed value per metric. Metrics whose
	// source was unavailable for the whole window are absent.
	Readings map[string]float64 `json:"readings,omitempty"`
}

// ViolatedMetrics returns the distinct metric names that breached.
func (v Verdict) ViolatedMetrics() []string {
	seen := map[string]bool{}
	var out []string
	for _, viol := range v.Violations {
		if !seen[viol.Metric] {
			seen[viol.Metric] = true
			out = append(out, viol.Metric)
		}
	}
	return out
}

// Sampler runs verification windows over a set of metric providers.
//
// # Description
//
// Each provider is sampled at the window's cadence. Any single sample
// strictly above its threshold forces regression=true for the whole
// window (sampling continues so the verdict lists every violation). A
// provider returning ErrMetricUnavailable is excluded from the verdict
// for that round, never counted as a violation.
//
// The run is cancellable through the context; on cancellation the partial
// verdict computed so far is returned with Inconclusive set.
type Sampler struct {
	providers []MetricProvider
	log       *slog.Logger
}

// NewSampler returns a sampler over the given providers.
func NewSampler(log *slog.Logger, providers ...MetricProvider) *Sampler {
	if log == nil {
		log = slog.Default()
	}
	return &Sampler{providers: providers, log: log}
}

// Run executes one verification window and returns its verdict. A window
// whose thresholds match no provider yields an empty, non-regression
// verdict.
func (s *Sampler) Run(ctx context.Context, w Window) Verdict {
	interval := w.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}

	verdict := Verdict{Readings: make(map[string]float64)}

	s.sampleOnce(ctx, w, &verdict)
	if ctx.Err() != nil {
		verdict.Inconclusive = true
		return verdict
	}
	if w.Duration <= interval {
		return verdict
	}

	deadline := time.Now().Add(w.Duration)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			verdict.Inconclusive = true
			return verdict
		case now := <-ticker.C:
			s.sampleOnce(ctx, w, &verdict)
			if ctx.Err() != nil {
				verdict.Inconclusive = true
				return verdict
			}
			if !now.Before(deadline) {
				return verdict
			}
		}
	}
}

func (s *Sampler) sampleOnce(ctx context.Context, w Window, verdict *Verdict) {
	for _, p := range s.providers {
		threshold, watched := w.Thresholds[p.Name()]
		value, err := p.Sample(ctx)
		if err != nil {
			if errors.Is(err, ErrMetricUnavailable) {
				s.log.Debug("metric excluded from verdict", "metric", p.Name(), "reason", err)
				continue
			}
			if ctx.Err() != nil {
				return
			}
			s.log.Warn("metric sample failed", "metric", p.Name(), "error", err)
			continue
		}
		verdict.Readings[p.Name()] = value
		if watched && value > threshold {
			verdict.Regression = true
			verdict.Violations = append(verdict.Violations, Violation{
				Metric:    p.Name(),
				Value:     value,
				Threshold: threshold,
				At:        time.Now(),
			})
		}
	}
}
