// AuthShield - Continuous Authentication Risk Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authshield

package risk

import "testing"

func TestZCurveProbability(t *testing.T) {
	curve := DefaultZCurve()

	tests := []struct {
		z    float64
		want float64
	}{
		{0, 0},
		{1, 0},
		{1.5, 0.15},
		{2, 0.3},
		{2.5, 0.5},
		{3, 0.7},
		{4, 0.85},
		{5, 1.0},
		{10, 1.0}, // capped
	}

	for _, tt := range tests {
		approxEqual(t, "probability", curve.Probability(tt.z), tt.want)
	}
}

func TestScoreBehaviorNoBaseline(t *testing.T) {
	scorer := NewAnomalyScorer(DefaultScoringPolicy())

	result := scorer.ScoreBehavior(nil, fullSample(100))

	approxEqual(t, "overall", result.OverallScore, 0.85)
	if result.IsAnomaly {
		t.Error("no-baseline result must not be an anomaly")
	}
	if result.Confidence != ConfidenceLow {
		t.Errorf("confidence = %s, want low", result.Confidence)
	}
	if result.Recommendation != RecommendationStepUp {
		t.Errorf("recommendation = %s, want step_up", result.Recommendation)
	}
	if len(result.Factors) != 0 {
		t.Errorf("expected no factors, got %d", len(result.Factors))
	}
}

func TestScoreBehaviorSingleExtremeFactor(t *testing.T) {
	scorer := NewAnomalyScorer(DefaultScoringPolicy())
	baseline := BaselineProfile{
		FeatureMouseSpeed: {Mean: 100, StdDev: 10},
	}
	sample := Sample{MouseSpeed: f64(140)} // z = 4

	result := scorer.ScoreBehavior(baseline, sample)

	if len(result.Factors) != 1 {
		t.Fatalf("expected 1 factor, got %d", len(result.Factors))
	}
	approxEqual(t, "z", result.Factors[0].ZScore, 4)
	if !result.Factors[0].Anomalous {
		t.Error("z=4 factor must be anomalous")
	}
	// Only the mouse_speed weight was evaluated, so normalization divides
	// it right back out: score equals the curve probability.
	approxEqual(t, "anomaly probability", result.AnomalyProbability, 0.85)
	approxEqual(t, "overall", result.OverallScore, 0.15)
	approxEqual(t, "headline z", result.ZScore, 4)
	if !result.IsAnomaly {
		t.Error("expected anomaly")
	}
	if result.Severity != SeverityHigh {
		t.Errorf("severity = %s, want high", result.Severity)
	}
	if result.Recommendation != RecommendationBlock {
		t.Errorf("recommendation = %s, want block", result.Recommendation)
	}
	if result.Confidence != ConfidenceLow {
		t.Errorf("confidence = %s, want low (1 factor)", result.Confidence)
	}
}

func TestScoreBehaviorNormalSample(t *testing.T) {
	scorer := NewAnomalyScorer(DefaultScoringPolicy())
	baseline := BaselineProfile{}
	for _, f := range Features() {
		baseline[f] = Metric{Mean: 100, StdDev: 10}
	}
	sample := Sample{
		MouseSpeed:        f64(105),
		MouseAcceleration: f64(95),
		KeyHoldTime:       f64(100),
		FlightTime:        f64(108),
		TypingSpeed:       f64(92),
		StraightLineRatio: f64(101),
		CurveComplexity:   f64(99),
	}

	result := scorer.ScoreBehavior(baseline, sample)

	// All z-scores below 1: zero anomaly probability, full trust.
	approxEqual(t, "overall", result.OverallScore, 1.0)
	if result.IsAnomaly {
		t.Error("in-baseline sample must not be an anomaly")
	}
	if result.Confidence != ConfidenceHigh {
		t.Errorf("confidence = %s, want high (7 factors)", result.Confidence)
	}
	if result.Recommendation != RecommendationAllow {
		t.Errorf("recommendation = %s, want allow", result.Recommendation)
	}
	if result.Severity != SeverityLow {
		t.Errorf("severity = %s, want low", result.Severity)
	}
}

func TestScoreBehaviorFactorCountTrigger(t *testing.T) {
	scorer := NewAnomalyScorer(DefaultScoringPolicy())
	baseline := BaselineProfile{}
	for _, f := range Features() {
		baseline[f] = Metric{Mean: 100, StdDev: 10}
	}
	// Three lightly-weighted factors just past the anomalous threshold;
	// the weighted score stays moderate but the count rule fires.
	sample := Sample{
		MouseSpeed:        f64(100),
		MouseAcceleration: f64(121), // z = 2.1
		KeyHoldTime:       f64(100),
		FlightTime:        f64(100),
		TypingSpeed:       f64(100),
		StraightLineRatio: f64(121), // z = 2.1
		CurveComplexity:   f64(121), // z = 2.1
	}

	result := scorer.ScoreBehavior(baseline, sample)

	if result.AnomalyProbability > 0.5 {
		t.Fatalf("setup invalid: weighted score %v should be moderate", result.AnomalyProbability)
	}
	if !result.IsAnomaly {
		t.Error("3 anomalous factors must flag the sample")
	}
}

func TestScoreBehaviorSkipsZeroMeanAndMissing(t *testing.T) {
	scorer := NewAnomalyScorer(DefaultScoringPolicy())
	baseline := BaselineProfile{
		FeatureMouseSpeed:  {Mean: 0, StdDev: 0}, // never observed historically
		FeatureTypingSpeed: {Mean: 60, StdDev: 5},
		FeatureKeyHoldTime: {Mean: 80, StdDev: 8},
	}
	sample := Sample{
		MouseSpeed:  f64(500), // skipped: zero-mean baseline
		TypingSpeed: f64(60),
		// key_hold_time missing: skipped
	}

	result := scorer.ScoreBehavior(baseline, sample)

	if len(result.Factors) != 1 {
		t.Fatalf("expected 1 evaluated factor, got %d", len(result.Factors))
	}
	if result.Factors[0].Feature != FeatureTypingSpeed {
		t.Errorf("evaluated %s, want typing_speed", result.Factors[0].Feature)
	}
}

func TestScoreBehaviorZeroStdDev(t *testing.T) {
	scorer := NewAnomalyScorer(DefaultScoringPolicy())
	baseline := BaselineProfile{
		FeatureMouseSpeed: {Mean: 100, StdDev: 0},
	}
	sample := Sample{MouseSpeed: f64(9999)}

	result := scorer.ScoreBehavior(baseline, sample)

	if len(result.Factors) != 1 {
		t.Fatalf("expected 1 factor, got %d", len(result.Factors))
	}
	approxEqual(t, "z with zero stddev", result.Factors[0].ZScore, 0)
	approxEqual(t, "overall", result.OverallScore, 1.0)
}

func TestScoreBehaviorDeterministic(t *testing.T) {
	scorer := NewAnomalyScorer(DefaultScoringPolicy())
	baseline := BaselineProfile{}
	for _, f := range Features() {
		baseline[f] = Metric{Mean: 100, StdDev: 10}
	}
	sample := fullSample(130)

	a := scorer.ScoreBehavior(baseline, sample)
	b := scorer.ScoreBehavior(baseline, sample)

	if a.OverallScore != b.OverallScore || len(a.Factors) != len(b.Factors) {
		t.Fatal("scoring must be deterministic")
	}
	for i := range a.Factors {
		if a.Factors[i] != b.Factors[i] {
			t.Errorf("factor %d order/content differs between runs", i)
		}
	}
}
