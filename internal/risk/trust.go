// AuthShield - Continuous Authentication Risk Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authshield

package risk

// TrustAggregator combines device, TLS and behavioral trust signals into
// a single verdict. Stateless and safe for concurrent use.
type TrustAggregator struct {
	policy AggregationPolicy
}

// NewTrustAggregator creates an aggregator with the given policy.
func NewTrustAggregator(policy AggregationPolicy) *TrustAggregator {
	return &TrustAggregator{policy: policy}
}

// AggregateTrust computes the weighted aggregate of the three trust signals.
// Nil components are replaced with policy defaults; unknown is never an
// error at this layer. Idempotent: the same inputs always produce the same
// verdict.
func (a *TrustAggregator) AggregateTrust(c TrustComponents) TrustVerdict {
	device := orDefault(c.Device, a.policy.DefaultDeviceTrust)
	tls := orDefault(c.TLS, a.policy.DefaultTLSTrust)
	behavioral := orDefault(c.Behavioral, a.policy.DefaultBehavioralTrust)

	overall := Clamp01(device*a.policy.Weights.Device +
		tls*a.policy.Weights.TLS +
		behavioral*a.policy.Weights.Behavioral)

	return TrustVerdict{
		OverallScore:   overall,
		Confidence:     a.confidence(overall),
		Recommendation: a.recommend(overall),
		Components: map[string]float64{
			"device":     device,
			"tls":        tls,
			"behavioral": behavioral,
		},
		Weights: map[string]float64{
			"device":     a.policy.Weights.Device,
			"tls":        a.policy.Weights.TLS,
			"behavioral": a.policy.Weights.Behavioral,
		},
	}
}

// DeviceTrust derives trust for a device the user has been seen on before.
// Familiarity saturates at FamiliarityCeiling sightings, then blends with
// the stored per-device trust score.
func (a *TrustAggregator) DeviceTrust(seenCount int, storedTrust float64) float64 {
	familiarity := float64(seenCount) / float64(a.policy.FamiliarityCeiling)
	if familiarity > 1 {
		familiarity = 1
	}
	return Clamp01(familiarity*a.policy.FamiliarityWeight + storedTrust*a.policy.StoredTrustWeight)
}

// UnknownDeviceTrust is the trust assigned to a device id never seen before.
func (a *TrustAggregator) UnknownDeviceTrust() float64 {
	return a.policy.UnknownDeviceTrust
}

// DefaultBehavioralTrust is the trust substituted when no behavioral
// signal is available, for callers that need to report the degraded value.
func (a *TrustAggregator) DefaultBehavioralTrust() float64 {
	return a.policy.DefaultBehavioralTrust
}

func (a *TrustAggregator) confidence(score float64) Confidence {
	switch {
	case score >= a.policy.HighConfidence:
		return ConfidenceHigh
	case score >= a.policy.MediumConfidence:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

func (a *TrustAggregator) recommend(score float64) Recommendation {
	switch {
	case score >= a.policy.AllowThreshold:
		return RecommendationAllow
	case score >= a.policy.StepUpThreshold:
		return RecommendationStepUp
	default:
		return RecommendationBlock
	}
}

func orDefault(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}
