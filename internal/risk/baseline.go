// AuthShield - Continuous Authentication Risk Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authshield

package risk

import "math"

// BuildBaseline computes a per-feature baseline profile from a user's
// historical samples. Returns (nil, false) when fewer than minSamples
// samples exist: a user with too little history has NO baseline, which
// is a distinct state from a baseline of zeros.
//
// Missing feature values are excluded from that feature's statistics;
// a feature with no values at all gets {Mean: 0, StdDev: 0}.
func BuildBaseline(samples []Sample, minSamples int) (BaselineProfile, bool) {
	if len(samples) < minSamples {
		return nil, false
	}

	profile := make(BaselineProfile, len(Features()))
	for _, f := range Features() {
		values := make([]float64, 0, len(samples))
		for i := range samples {
			if v, ok := samples[i].Value(f); ok {
				values = append(values, v)
			}
		}
		profile[f] = Metric{
			Mean:   mean(values),
			StdDev: sampleStdDev(values),
		}
	}
	return profile, true
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// sampleStdDev is the n-1 (Bessel-corrected) standard deviation.
// Returns 0 for fewer than 2 values.
func sampleStdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	var sq float64
	for _, v := range values {
		d := v - m
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(values)-1))
}
