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
	"fmt"
	"testing"
)

func boolPtr(v bool) *bool        { return &v }
func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func TestDecideBundle_LowBatteryWinsOverEverything(t *testing.T) {
	// On battery at 15% the low-battery rule wins even with a hot CPU.
	ctx := AutopilotContext{
		ACOnline:       boolPtr(false),
		BatteryPercent: intPtr(15),
		CPUTempC:       floatPtr(92.0),
	}
	bundle, rule := DecideBundle(ctx)
	if rule != "low-battery-offline" {
		t.Fatalf("rule = %q, want low-battery-offline", rule)
	}
	if bundle.Power != "battery" || bundle.Audio != "powersave" || bundle.Network != "isp-auto" {
		t.Errorf("bundle = %+v", bundle)
	}
}

func TestDecideBundle_Rules(t *testing.T) {
	tests := []struct {
		name     string
		ctx      AutopilotContext
		wantRule string
		want     TargetBundle
	}{
		{
			name:     "hot on mains backs off",
			ctx:      AutopilotContext{ACOnline: boolPtr(true), CPUTempC: floatPtr(87.0)},
			wantRule: "hot",
			want:     TargetBundle{Power: "battery"},
		},
		{
			name:     "mains prefers performance",
			ctx:      AutopilotContext{ACOnline: boolPtr(true), CPUTempC: floatPtr(60.0)},
			wantRule: "mains",
			want:     TargetBundle{Power: "performance", Network: "latency"},
		},
		{
			name:     "battery above 20 percent is default",
			ctx:      AutopilotContext{ACOnline: boolPtr(false), BatteryPercent: intPtr(60)},
			wantRule: "default",
			want:     TargetBundle{Power: "balanced"},
		},
		{
			name:     "no signals at all is default",
			ctx:      AutopilotContext{},
			wantRule: "default",
			want:     TargetBundle{Power: "balanced"},
		},
		{
			name:     "temp at 85 is hot",
			ctx:      AutopilotContext{CPUTempC: floatPtr(85.0)},
			wantRule: "hot",
			want:     TargetBundle{Power: "battery"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			bundle, rule := DecideBundle(tc.ctx)
			if rule != tc.wantRule {
				t.Errorf("rule = %q, want %q", rule, tc.wantRule)
			}
			if bundle != tc.want {
				t.Errorf("bundle = %+v, want %+v", bundle, tc.want)
			}
		})
	}
}

// mapCatalog is a ProfileCatalog over a fixed set, for bundle tests.
type mapCatalog map[string]map[string][]Step

func (c mapCatalog) Resolve(domain, id string) (Profile, error) {
	steps, ok := c[domain][id]
	if !ok {
		return Profile{}, fmt.Errorf("no profile %s/%s", domain, id)
	}
	return Profile{ID: id, Domain: domain, Steps: steps}, nil
}

func testCatalog() mapCatalog {
	return mapCatalog{
		DomainPower:   {"performance": {{Property: "profile", Value: "performance"}}},
		DomainAudio:   {"lowlatency": {{Property: "clock.force-quantum", Value: "128"}}},
		DomainNetwork: {"latency": {{Property: "ipv4.dns", Value: "1.1.1.1"}}},
	}
}

func TestBundleProfiles_OrderAndSkips(t *testing.T) {
	profiles, err := BundleProfiles(testCatalog(), "performance", "", "latency")
	if err != nil {
		t.Fatalf("BundleProfiles failed: %v", err)
	}
	if len(profiles) != 2 {
		t.Fatalf("profiles = %d, want 2 (empty audio slot skipped)", len(profiles))
	}
	if profiles[0].Domain != DomainPower {
		t.Error("power must come first")
	}
	if profiles[1].Domain != DomainNetwork {
		t.Error("network must come after power")
	}
}

func TestBundleProfiles_UnknownProfileFails(t *testing.T) {
	_, err := BundleProfiles(testCatalog(), "warp", "", "")
	if err == nil {
		t.Error("unknown profile must fail resolution")
	}
}

func TestSceneNames_Sorted(t *testing.T) {
	names := SceneNames(DefaultScenes())
	if len(names) != 5 {
		t.Fatalf("scenes = %v", names)
	}
	for i := 1; i < len(names); i++ {
		if names[i-1] >= names[i] {
			t.Errorf("scene names not sorted: %v", names)
		}
	}
}

func TestDefaultScenes_TravelIsBatteryBundle(t *testing.T) {
	sc := DefaultScenes()["travel"]
	if sc.Power != "battery" || sc.Audio != "powersave" || sc.Network != "isp-auto" {
		t.Errorf("travel scene = %+v", sc)
	}
}
