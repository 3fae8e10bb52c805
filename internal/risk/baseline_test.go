// AuthShield - Continuous Authentication Risk Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authshield

package risk

import (
	"math"
	"testing"
)

func f64(v float64) *float64 { return &v }

func approxEqual(t *testing.T, name string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("%s = %v, want %v", name, got, want)
	}
}

func fullSample(base float64) Sample {
	return Sample{
		MouseSpeed:        f64(base),
		MouseAcceleration: f64(base * 2),
		KeyHoldTime:       f64(base * 3),
		FlightTime:        f64(base * 4),
		TypingSpeed:       f64(base * 5),
		StraightLineRatio: f64(0.5),
		CurveComplexity:   f64(0.4),
	}
}

func TestBuildBaselineInsufficientSamples(t *testing.T) {
	samples := []Sample{fullSample(100), fullSample(110)}

	profile, ok := BuildBaseline(samples, 3)
	if ok {
		t.Fatal("expected no baseline from 2 samples")
	}
	if profile != nil {
		t.Fatal("expected nil profile when insufficient")
	}
}

func TestBuildBaselineStatistics(t *testing.T) {
	samples := []Sample{
		{MouseSpeed: f64(100)},
		{MouseSpeed: f64(110)},
		{MouseSpeed: f64(120)},
	}

	profile, ok := BuildBaseline(samples, 3)
	if !ok {
		t.Fatal("expected baseline from 3 samples")
	}

	m := profile[FeatureMouseSpeed]
	approxEqual(t, "mean", m.Mean, 110)
	approxEqual(t, "stddev", m.StdDev, 10) // sample stddev of {100,110,120}
}

func TestBuildBaselineMissingFeature(t *testing.T) {
	samples := []Sample{
		{MouseSpeed: f64(100)},
		{MouseSpeed: f64(100)},
		{MouseSpeed: f64(100)},
	}

	profile, ok := BuildBaseline(samples, 3)
	if !ok {
		t.Fatal("expected baseline")
	}

	// Never-observed features get a zeroed metric, not an absent key.
	m, present := profile[FeatureTypingSpeed]
	if !present {
		t.Fatal("expected typing_speed metric present")
	}
	if m.Mean != 0 || m.StdDev != 0 {
		t.Errorf("expected zero metric for unobserved feature, got %+v", m)
	}
}

func TestBuildBaselineSkipsMissingValues(t *testing.T) {
	samples := []Sample{
		{MouseSpeed: f64(100), TypingSpeed: f64(60)},
		{MouseSpeed: f64(200)},
		{MouseSpeed: f64(300), TypingSpeed: f64(80)},
	}

	profile, ok := BuildBaseline(samples, 3)
	if !ok {
		t.Fatal("expected baseline")
	}

	approxEqual(t, "typing_speed mean", profile[FeatureTypingSpeed].Mean, 70)
	approxEqual(t, "mouse_speed mean", profile[FeatureMouseSpeed].Mean, 200)
}

func TestBuildBaselineSingleValueStdDev(t *testing.T) {
	samples := []Sample{
		{MouseSpeed: f64(100), TypingSpeed: f64(60)},
		{MouseSpeed: f64(100)},
		{MouseSpeed: f64(100)},
	}

	profile, _ := BuildBaseline(samples, 3)
	if sd := profile[FeatureTypingSpeed].StdDev; sd != 0 {
		t.Errorf("stddev of single value = %v, want 0", sd)
	}
}
