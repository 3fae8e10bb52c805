// AuthShield - Continuous Authentication Risk Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authshield

package risk

// ZCurve maps an absolute z-score to an anomaly probability with a
// piecewise-linear ramp. Below Low the probability is zero; between the
// knots it rises at the configured slopes; above High it is capped at 1.
type ZCurve struct {
	Low       float64 // z at which probability starts rising
	Mid       float64 // end of first ramp
	High      float64 // end of second ramp
	MidSlope  float64 // probability per z unit on (Low, Mid]
	HighSlope float64 // probability per z unit on (Mid, High]
	TailSlope float64 // probability per z unit beyond High
}

// DefaultZCurve returns the production curve: 0 below z=1, then
// 0.3/unit to z=2, 0.4/unit to z=3, 0.15/unit beyond, capped at 1.
func DefaultZCurve() ZCurve {
	return ZCurve{Low: 1, Mid: 2, High: 3, MidSlope: 0.3, HighSlope: 0.4, TailSlope: 0.15}
}

// Probability converts an absolute z-score to an anomaly probability in [0,1].
func (c ZCurve) Probability(z float64) float64 {
	switch {
	case z <= c.Low:
		return 0
	case z <= c.Mid:
		return (z - c.Low) * c.MidSlope
	case z <= c.High:
		return (c.Mid-c.Low)*c.MidSlope + (z-c.Mid)*c.HighSlope
	default:
		base := (c.Mid-c.Low)*c.MidSlope + (c.High-c.Mid)*c.HighSlope
		return Clamp01(base + (z-c.High)*c.TailSlope)
	}
}

// ScoringPolicy parameterizes the behavioral anomaly scorer.
type ScoringPolicy struct {
	// FeatureWeights weights each feature's anomaly probability. Features
	// absent from the map are ignored entirely.
	FeatureWeights map[Feature]float64

	// Curve converts z-scores to anomaly probabilities.
	Curve ZCurve

	// AnomalousZ flags an individual factor as anomalous when its z exceeds it.
	AnomalousZ float64

	// AnomalyScoreThreshold: normalized weighted probability above which the
	// sample as a whole is anomalous.
	AnomalyScoreThreshold float64

	// AnomalousFactorCount: a sample is also anomalous when at least this
	// many individual factors are anomalous, regardless of the weighted score.
	AnomalousFactorCount int

	// HighConfidenceFactors / MediumConfidenceFactors set the evaluated-factor
	// counts required for high and medium confidence.
	HighConfidenceFactors   int
	MediumConfidenceFactors int

	// AllowThreshold / StepUpThreshold split the overall trust score into
	// allow / step_up / block.
	AllowThreshold  float64
	StepUpThreshold float64

	// NoBaselineScore is the fixed trust score returned for users without
	// an established baseline.
	NoBaselineScore float64

	// MinBaselineSamples is the minimum sample count for a baseline to exist.
	MinBaselineSamples int
}

// DefaultScoringPolicy returns the production scoring parameters.
func DefaultScoringPolicy() ScoringPolicy {
	return ScoringPolicy{
		FeatureWeights: map[Feature]float64{
			FeatureMouseSpeed:        0.20,
			FeatureMouseAcceleration: 0.15,
			FeatureKeyHoldTime:       0.20,
			FeatureFlightTime:        0.15,
			FeatureTypingSpeed:       0.20,
			FeatureStraightLineRatio: 0.05,
			FeatureCurveComplexity:   0.05,
		},
		Curve:                   DefaultZCurve(),
		AnomalousZ:              2.0,
		AnomalyScoreThreshold:   0.5,
		AnomalousFactorCount:    3,
		HighConfidenceFactors:   6,
		MediumConfidenceFactors: 3,
		AllowThreshold:          0.8,
		StepUpThreshold:         0.5,
		NoBaselineScore:         0.85,
		MinBaselineSamples:      3,
	}
}

// TrustWeights weights the three trust signals. Must sum to 1.0.
type TrustWeights struct {
	Device     float64 `json:"device"`
	TLS        float64 `json:"tls"`
	Behavioral float64 `json:"behavioral"`
}

// AggregationPolicy parameterizes multi-signal trust aggregation.
type AggregationPolicy struct {
	Weights TrustWeights

	// AllowThreshold / StepUpThreshold split the aggregate into
	// allow / step_up / block.
	AllowThreshold  float64
	StepUpThreshold float64

	// HighConfidence / MediumConfidence bucket the aggregate into
	// confidence levels.
	HighConfidence   float64
	MediumConfidence float64

	// Defaults substituted for unknown signals.
	DefaultDeviceTrust     float64
	DefaultTLSTrust        float64
	DefaultBehavioralTrust float64

	// UnknownDeviceTrust is assigned when a device id is present but has
	// never been seen before. Deliberately below DefaultDeviceTrust: a new
	// device is a stronger signal than no device signal at all.
	UnknownDeviceTrust float64

	// Known-device trust derivation: familiarity = min(1, seenCount /
	// FamiliarityCeiling), trust = familiarity*FamiliarityWeight +
	// storedTrust*StoredTrustWeight.
	FamiliarityCeiling int
	FamiliarityWeight  float64
	StoredTrustWeight  float64
}

// DefaultAggregationPolicy returns the production aggregation parameters.
func DefaultAggregationPolicy() AggregationPolicy {
	return AggregationPolicy{
		Weights:                TrustWeights{Device: 0.35, TLS: 0.25, Behavioral: 0.40},
		AllowThreshold:         0.72,
		StepUpThreshold:        0.45,
		HighConfidence:         0.72,
		MediumConfidence:       0.55,
		DefaultDeviceTrust:     0.5,
		DefaultTLSTrust:        0.5,
		DefaultBehavioralTrust: 0.75,
		UnknownDeviceTrust:     0.3,
		FamiliarityCeiling:     10,
		FamiliarityWeight:      0.6,
		StoredTrustWeight:      0.4,
	}
}
