// AuthShield - Continuous Authentication Risk Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authshield

package risk

import "math"

// AnomalyScorer scores behavioral samples against baseline profiles.
// Stateless and safe for concurrent use.
type AnomalyScorer struct {
	policy ScoringPolicy
}

// NewAnomalyScorer creates a scorer with the given policy.
func NewAnomalyScorer(policy ScoringPolicy) *AnomalyScorer {
	return &AnomalyScorer{policy: policy}
}

// ScoreBehavior evaluates a sample against the user's baseline and returns
// a trust-oriented result (higher OverallScore = more trusted).
//
// A nil baseline (user not yet profiled) yields the fixed moderate-trust
// result: the system cannot vouch for the user but has no evidence against
// them either, so the caller is steered toward step-up, never block.
func (s *AnomalyScorer) ScoreBehavior(baseline BaselineProfile, sample Sample) AnomalyResult {
	if baseline == nil {
		return AnomalyResult{
			Factors:            []AnomalyFactor{},
			OverallScore:       s.policy.NoBaselineScore,
			AnomalyProbability: 1 - s.policy.NoBaselineScore,
			Severity:           SeverityLow,
			IsAnomaly:          false,
			Confidence:         ConfidenceLow,
			Recommendation:     RecommendationStepUp,
		}
	}

	var (
		factors     []AnomalyFactor
		weightedSum float64
		totalWeight float64
		anomalousN  int
		maxAbsZ     float64
	)

	for _, f := range Features() {
		weight, ok := s.policy.FeatureWeights[f]
		if !ok {
			continue
		}
		value, observed := sample.Value(f)
		metric := baseline[f]
		// A zero mean means the feature never appeared in the user's
		// history; nothing to compare against.
		if !observed || metric.Mean == 0 {
			continue
		}

		z := 0.0
		if metric.StdDev > 0 {
			z = math.Abs(value-metric.Mean) / metric.StdDev
		}
		if z > maxAbsZ {
			maxAbsZ = z
		}

		anomalous := z > s.policy.AnomalousZ
		if anomalous {
			anomalousN++
		}
		weightedSum += s.policy.Curve.Probability(z) * weight
		totalWeight += weight

		factors = append(factors, AnomalyFactor{
			Feature:   f,
			Observed:  value,
			Expected:  metric.Mean,
			ZScore:    z,
			Anomalous: anomalous,
		})
	}

	// Normalize by the weight of features actually evaluated so a sparse
	// sample is not rewarded for omitting features.
	normalized := 0.0
	if totalWeight > 0 {
		normalized = weightedSum / totalWeight
	}

	result := AnomalyResult{
		Factors:            factors,
		OverallScore:       Clamp01(1 - normalized),
		AnomalyProbability: Clamp01(normalized),
		ZScore:             maxAbsZ,
		IsAnomaly:          normalized > s.policy.AnomalyScoreThreshold || anomalousN >= s.policy.AnomalousFactorCount,
	}
	result.Severity = s.severity(result.AnomalyProbability)
	result.Confidence = s.confidence(len(factors))
	result.Recommendation = s.recommend(result.OverallScore)
	return result
}

// confidence depends on evidence volume, not on the verdict itself.
func (s *AnomalyScorer) confidence(evaluated int) Confidence {
	switch {
	case evaluated >= s.policy.HighConfidenceFactors:
		return ConfidenceHigh
	case evaluated >= s.policy.MediumConfidenceFactors:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

func (s *AnomalyScorer) recommend(score float64) Recommendation {
	switch {
	case score >= s.policy.AllowThreshold:
		return RecommendationAllow
	case score >= s.policy.StepUpThreshold:
		return RecommendationStepUp
	default:
		return RecommendationBlock
	}
}

func (s *AnomalyScorer) severity(probability float64) Severity {
	switch {
	case probability >= 0.90:
		return SeverityCritical
	case probability >= 0.75:
		return SeverityHigh
	case probability >= 0.55:
		return SeverityMedium
	default:
		return SeverityLow
	}
}
