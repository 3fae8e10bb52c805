// AuthShield - Continuous Authentication Risk Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authshield

// Package risk implements the statistical scoring core: per-user behavioral
// baselining, z-score anomaly scoring, and multi-signal trust aggregation.
//
// Every entry point is a pure function of its inputs. The package holds no
// state between calls and performs no I/O; persistence and broadcast belong
// to the callers (see internal/engine).
package risk

import (
	"errors"
	"math"
)

// ErrInvalidInput indicates a missing required identifier (e.g. user id).
// Surfaced to callers as a client error; never retried.
var ErrInvalidInput = errors.New("invalid input")

// Feature identifies one tracked behavioral-biometric feature.
type Feature string

const (
	FeatureMouseSpeed        Feature = "mouse_speed"
	FeatureMouseAcceleration Feature = "mouse_acceleration"
	FeatureKeyHoldTime       Feature = "key_hold_time"
	FeatureFlightTime        Feature = "flight_time"
	FeatureTypingSpeed       Feature = "typing_speed"
	FeatureStraightLineRatio Feature = "straight_line_ratio"
	FeatureCurveComplexity   Feature = "curve_complexity"
)

// Features returns all tracked features in a stable order.
// DETERMINISM: scoring iterates this slice, never a map, so factor order
// in results is reproducible.
func Features() []Feature {
	return []Feature{
		FeatureMouseSpeed,
		FeatureMouseAcceleration,
		FeatureKeyHoldTime,
		FeatureFlightTime,
		FeatureTypingSpeed,
		FeatureStraightLineRatio,
		FeatureCurveComplexity,
	}
}

// Sample is one behavioral observation window produced by a client.
// Fields are pointers because clients routinely omit features; a nil field
// is "not observed", which is distinct from an observed zero.
type Sample struct {
	MouseSpeed        *float64 `json:"mouse_speed,omitempty"`
	MouseAcceleration *float64 `json:"mouse_acceleration,omitempty"`
	KeyHoldTime       *float64 `json:"key_hold_time,omitempty"`
	FlightTime        *float64 `json:"flight_time,omitempty"`
	TypingSpeed       *float64 `json:"typing_speed,omitempty"`
	StraightLineRatio *float64 `json:"straight_line_ratio,omitempty"`
	CurveComplexity   *float64 `json:"curve_complexity,omitempty"`
}

// Value returns the observed value for a feature and whether it was observed.
func (s *Sample) Value(f Feature) (float64, bool) {
	var p *float64
	switch f {
	case FeatureMouseSpeed:
		p = s.MouseSpeed
	case FeatureMouseAcceleration:
		p = s.MouseAcceleration
	case FeatureKeyHoldTime:
		p = s.KeyHoldTime
	case FeatureFlightTime:
		p = s.FlightTime
	case FeatureTypingSpeed:
		p = s.TypingSpeed
	case FeatureStraightLineRatio:
		p = s.StraightLineRatio
	case FeatureCurveComplexity:
		p = s.CurveComplexity
	}
	if p == nil {
		return 0, false
	}
	return *p, true
}

// Metric is the per-feature statistical summary of a user's history.
type Metric struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
}

// BaselineProfile maps every tracked feature to its historical metric.
// A profile only exists for users with at least MinBaselineSamples samples;
// callers must treat the absent-profile state explicitly.
type BaselineProfile map[Feature]Metric

// Recommendation is the three-tier authentication decision.
type Recommendation string

const (
	RecommendationAllow  Recommendation = "allow"
	RecommendationStepUp Recommendation = "step_up"
	RecommendationBlock  Recommendation = "block"
)

// Confidence expresses how much evidence backs a verdict.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Severity buckets an anomaly for alerting.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// AnomalyFactor records the evaluation of a single feature against baseline.
type AnomalyFactor struct {
	Feature   Feature `json:"feature"`
	Observed  float64 `json:"observed"`
	Expected  float64 `json:"expected"`
	ZScore    float64 `json:"z_score"`
	Anomalous bool    `json:"anomalous"`
}

// AnomalyResult is the behavioral scoring outcome for one sample.
type AnomalyResult struct {
	Factors            []AnomalyFactor `json:"factors"`
	OverallScore       float64         `json:"overall_score"`       // trust, 0..1
	AnomalyProbability float64         `json:"anomaly_probability"` // 1 - OverallScore pre-clamp
	ZScore             float64         `json:"z_score"`             // headline: max |z| across factors
	Severity           Severity        `json:"severity"`
	IsAnomaly          bool            `json:"is_anomaly"`
	Confidence         Confidence      `json:"confidence_level"`
	Recommendation     Recommendation  `json:"recommendation"`
}

// TrustComponents carries the three trust signals for aggregation.
// Nil means "unknown"; the aggregator substitutes policy defaults.
type TrustComponents struct {
	Device     *float64
	TLS        *float64
	Behavioral *float64
}

// TrustVerdict is the aggregated multi-signal outcome.
type TrustVerdict struct {
	OverallScore   float64            `json:"overall_score"`
	Confidence     Confidence         `json:"confidence_level"`
	Recommendation Recommendation     `json:"recommendation"`
	Components     map[string]float64 `json:"components"`
	Weights        map[string]float64 `json:"weights"`
}

// Clamp01 clamps v to the closed interval [0, 1].
// Every score and trust value that leaves this package passes through it.
func Clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
