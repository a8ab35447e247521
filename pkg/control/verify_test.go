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
	"sync"
	"testing"
	"time"
)

// staticProvider yields a fixed sequence of values (last one repeats).
type staticProvider struct {
	mu     sync.Mutex
	name   string
	values []float64
	err    error
	idx    int
}

func (p *staticProvider) Name() string { return p.name }

func (p *staticProvider) Sample(context.Context) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return 0, p.err
	}
	v := p.values[p.idx]
	if p.idx < len(p.values)-1 {
		p.idx++
	}
	return v, nil
}

func singleSampleWindow(thresholds map[string]float64) Window {
	return Window{Duration: 0, Interval: time.Second, Thresholds: thresholds}
}

func TestSampler_NoRegressionAtThreshold(t *testing.T) {
	// A value equal to the threshold is not a violation; the rule is
	// strictly greater.
	s := NewSampler(nil, &staticProvider{name: MetricCPUTempC, values: []float64{90.0}})
	v := s.Run(context.Background(), singleSampleWindow(map[string]float64{MetricCPUTempC: 90.0}))

	if v.Regression {
		t.Error("value == threshold must not be a regression")
	}
	if got := v.Readings[MetricCPUTempC]; got != 90.0 {
		t.Errorf("reading = %v, want 90.0", got)
	}
}

func TestSampler_RegressionAboveThreshold(t *testing.T) {
	s := NewSampler(nil, &staticProvider{name: MetricCPUTempC, values: []float64{95.0}})
	v := s.Run(context.Background(), singleSampleWindow(map[string]float64{MetricCPUTempC: 90.0}))

	if !v.Regression {
		t.Fatal("95.0 > 90.0 must regress")
	}
	if len(v.Violations) != 1 {
		t.Fatalf("violations = %d, want 1", len(v.Violations))
	}
	viol := v.Violations[0]
	if viol.Metric != MetricCPUTempC || viol.Value != 95.0 || viol.Threshold != 90.0 {
		t.Errorf("unexpected violation: %+v", viol)
	}
	if got := v.ViolatedMetrics(); len(got) != 1 || got[0] != MetricCPUTempC {
		t.Errorf("ViolatedMetrics() = %v", got)
	}
}

func TestSampler_UnavailableMetricExcluded(t *testing.T) {
	s := NewSampler(nil,
		&staticProvider{name: MetricCPUTempC, err: fmt.Errorf("%w: sensors", ErrMetricUnavailable)},
		&staticProvider{name: MetricJournalErrs, values: []float64{3}},
	)
	v := s.Run(context.Background(), singleSampleWindow(map[string]float64{
		MetricCPUTempC:    90.0,
		MetricJournalErrs: 10,
	}))

	if v.Regression {
		t.Error("unavailable metric must never count as a violation")
	}
	if _, present := v.Readings[MetricCPUTempC]; present {
		t.Error("unavailable metric should be absent from readings")
	}
	if got := v.Readings[MetricJournalErrs]; got != 3 {
		t.Errorf("journal reading = %v, want 3", got)
	}
}

func TestSampler_UnwatchedMetricNeverRegresses(t *testing.T) {
	s := NewSampler(nil, &staticProvider{name: "something_else", values: []float64{1e9}})
	v := s.Run(context.Background(), singleSampleWindow(map[string]float64{MetricCPUTempC: 90.0}))
	if v.Regression {
		t.Error("metric without a threshold must not regress")
	}
}

func TestSampler_CancelledWindowInconclusive(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	s := NewSampler(nil, &staticProvider{name: MetricCPUTempC, values: []float64{50.0}})
	done := make(chan Verdict, 1)
	go func() {
		done <- s.Run(ctx, Window{
			Duration:   time.Minute,
			Interval:   10 * time.Millisecond,
			Thresholds: map[string]float64{MetricCPUTempC: 90.0},
		})
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case v := <-done:
		if !v.Inconclusive {
			t.Error("cancelled window must be inconclusive")
		}
		if v.Regression {
			t.Error("no threshold was breached")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("sampler did not stop on cancellation")
	}
}

func TestSampler_CancelledSingleRoundInconclusive(t *testing.T) {
	// A window at or below the interval takes exactly one sample round. A
	// context cancelled before that round makes every provider unavailable,
	// which must not pass as a clean empty verdict.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewSampler(nil, &staticProvider{name: MetricCPUTempC, err: ErrMetricUnavailable})
	v := s.Run(ctx, Window{
		Thresholds: map[string]float64{MetricCPUTempC: 90.0},
	})

	if !v.Inconclusive {
		t.Error("cancelled single-round window must be inconclusive")
	}
	if v.Regression {
		t.Error("cancellation is not a regression")
	}
}

func TestSampler_MultiSampleCollectsEveryViolation(t *testing.T) {
	// 85 (ok), 95 (violation), 96 (violation). Sampling continues past the
	// first breach so the verdict lists every one.
	s := NewSampler(nil, &staticProvider{name: MetricCPUTempC, values: []float64{85, 95, 96}})
	v := s.Run(context.Background(), Window{
		Duration:   25 * time.Millisecond,
		Interval:   10 * time.Millisecond,
		Thresholds: map[string]float64{MetricCPUTempC: 90.0},
	})

	if !v.Regression {
		t.Fatal("window with breaches must regress")
	}
	if len(v.Violations) < 2 {
		t.Errorf("violations = %d, want at least 2", len(v.Violations))
	}
	if got := v.Readings[MetricCPUTempC]; got < 95 {
		t.Errorf("last reading = %v, want the final sample", got)
	}
}
