// AuthShield - Continuous Authentication Risk Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authshield

// Package engine orchestrates a full session evaluation: behavioral
// scoring, trust aggregation, geo-velocity analysis, the impossible-travel
// override, alert persistence and event emission.
//
// The verdict depends only on the scoring inputs. Side effects (persisting
// samples and alerts, publishing events, broadcasting) are fire-and-forget:
// their failures are logged and counted but never change the outcome.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/authshield/internal/events"
	"github.com/tomtom215/authshield/internal/geo"
	"github.com/tomtom215/authshield/internal/logging"
	"github.com/tomtom215/authshield/internal/metrics"
	"github.com/tomtom215/authshield/internal/risk"
	"github.com/tomtom215/authshield/internal/store"
	"github.com/tomtom215/authshield/internal/websocket"
)

// Alert types emitted by the engine.
const (
	AlertTypeBehavioralAnomaly = "behavioral_anomaly"
	AlertTypeImpossibleTravel  = "impossible_travel"
)

// criticalBehavioralScore: a final score below this makes a behavioral
// alert critical rather than high.
const criticalBehavioralScore = 0.3

// Override caps applied when impossible travel is detected.
const (
	blockScoreCap  = 0.30
	stepUpScoreCap = 0.49
)

// SessionInput carries everything known about the session under evaluation.
// UserID is required; all other signals are optional and degrade to
// documented defaults when absent.
type SessionInput struct {
	UserID         string
	DeviceID       string
	TLSFingerprint string
	IPAddress      string
	Latitude       *float64
	Longitude      *float64
	City           string
	Country        string
	Sample         risk.Sample
}

// Evaluation is the complete outcome of one session evaluation.
type Evaluation struct {
	UserID         string              `json:"user_id"`
	OverallScore   float64             `json:"overall_score"`
	Confidence     risk.Confidence     `json:"confidence_level"`
	Recommendation risk.Recommendation `json:"recommendation"`
	Behavioral     risk.AnomalyResult  `json:"behavioral"`
	Trust          risk.TrustVerdict   `json:"trust"`
	Travel         *geo.Verdict        `json:"travel,omitempty"`
	Factors        map[string]any      `json:"factors"`
	EvaluatedAt    time.Time           `json:"evaluated_at"`
}

// Config carries the engine policy knobs.
type Config struct {
	// BaselineWindow is how many recent samples feed baseline building.
	BaselineWindow int
	// MinBaselineSamples below which a user has no baseline.
	MinBaselineSamples int
	// CriticalSpeedKmh decides between the block and step_up overrides.
	CriticalSpeedKmh float64
}

// Engine evaluates sessions and emits risk events.
type Engine struct {
	cfg        Config
	scorer     *risk.AnomalyScorer
	aggregator *risk.TrustAggregator
	detector   *geo.VelocityDetector

	samples      store.SampleStore
	devices      store.DeviceStore
	fingerprints store.FingerprintStore
	alerts       store.AlertStore

	publisher events.Publisher
	// broadcaster is the direct hub path used when the event bus is
	// disabled; with NATS enabled the bridge does the broadcasting.
	broadcaster events.Broadcaster

	now func() time.Time
}

// New creates an engine. broadcaster may be nil when the NATS bridge
// handles feed delivery.
func New(
	cfg Config,
	scorer *risk.AnomalyScorer,
	aggregator *risk.TrustAggregator,
	detector *geo.VelocityDetector,
	samples store.SampleStore,
	devices store.DeviceStore,
	fingerprints store.FingerprintStore,
	alerts store.AlertStore,
	publisher events.Publisher,
	broadcaster events.Broadcaster,
) *Engine {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Engine{
		cfg:          cfg,
		scorer:       scorer,
		aggregator:   aggregator,
		detector:     detector,
		samples:      samples,
		devices:      devices,
		fingerprints: fingerprints,
		alerts:       alerts,
		publisher:    publisher,
		broadcaster:  broadcaster,
		now:          time.Now,
	}
}

// EvaluateSession runs the full pipeline for one session observation.
func (e *Engine) EvaluateSession(ctx context.Context, in SessionInput) (*Evaluation, error) {
	if in.UserID == "" {
		return nil, fmt.Errorf("%w: user id required", risk.ErrInvalidInput)
	}
	start := e.now()

	behavioral, scored := e.scoreBehavioral(ctx, in.UserID, in.Sample)

	// A failed history lookup is "no behavioral signal": leave the
	// component nil so the aggregator substitutes its documented default,
	// rather than feeding in the no-baseline score.
	components := risk.TrustComponents{
		Device: e.deviceTrust(ctx, in.UserID, in.DeviceID),
		TLS:    e.tlsTrust(ctx, in.TLSFingerprint),
	}
	if scored {
		components.Behavioral = &behavioral.OverallScore
	}
	trust := e.aggregator.AggregateTrust(components)

	ev := &Evaluation{
		UserID:         in.UserID,
		OverallScore:   trust.OverallScore,
		Confidence:     trust.Confidence,
		Recommendation: trust.Recommendation,
		Behavioral:     behavioral,
		Trust:          trust,
		Factors:        make(map[string]any, len(behavioral.Factors)+4),
		EvaluatedAt:    start,
	}
	for _, f := range behavioral.Factors {
		ev.Factors[string(f.Feature)] = f.ZScore
	}

	if in.Latitude != nil && in.Longitude != nil {
		ev.Travel = e.checkTravel(ctx, in)
	}
	e.applyTravelOverride(ev)

	e.emitAlerts(ctx, ev)
	e.emitActivity(ctx, ev)

	metrics.EvaluationsTotal.WithLabelValues(string(ev.Recommendation)).Inc()
	metrics.EvaluationDuration.Observe(time.Since(start).Seconds())
	return ev, nil
}

// CheckAnomaly runs behavioral scoring alone, without trust aggregation
// or geo analysis.
func (e *Engine) CheckAnomaly(ctx context.Context, userID string, sample risk.Sample) (*risk.AnomalyResult, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id required", risk.ErrInvalidInput)
	}
	result, _ := e.scoreBehavioral(ctx, userID, sample)
	return &result, nil
}

// Baseline returns the user's baseline profile, or ok=false when too few
// samples exist.
func (e *Engine) Baseline(ctx context.Context, userID string) (risk.BaselineProfile, bool, error) {
	if userID == "" {
		return nil, false, fmt.Errorf("%w: user id required", risk.ErrInvalidInput)
	}
	samples, err := e.samples.RecentSamples(ctx, userID, e.cfg.BaselineWindow)
	if err != nil {
		return nil, false, fmt.Errorf("loading samples for %s: %w", userID, err)
	}
	profile, ok := risk.BuildBaseline(samples, e.cfg.MinBaselineSamples)
	return profile, ok, nil
}

// DetectImpossibleTravel exposes the standalone geo-velocity check. A
// flagged verdict persists an alert and reaches the activity feed, same
// as a flag raised during a full evaluation.
func (e *Engine) DetectImpossibleTravel(ctx context.Context, obs geo.Point) (*geo.Verdict, error) {
	verdict, err := e.detector.DetectImpossibleTravel(ctx, obs)
	if err != nil {
		if errors.Is(err, risk.ErrInvalidInput) {
			return nil, err
		}
		// History write failed; the verdict itself is still valid.
		logging.Error().Err(err).Str("user_id", obs.UserID).Msg("failed to record geolocation")
	}
	if verdict.Impossible {
		metrics.ImpossibleTravelTotal.Inc()
		e.persistTravelAlert(ctx, obs.UserID, &verdict)
		e.emitTravelActivity(ctx, obs.UserID, &verdict)
	}
	return &verdict, nil
}

// scoreBehavioral loads history, scores the sample against it, then
// persists the sample as the newest history entry.
//
// scored is false when the history lookup itself failed: the returned
// result is a low-confidence placeholder built on the aggregator's
// behavioral default, distinct from the no-baseline score a new user gets.
func (e *Engine) scoreBehavioral(ctx context.Context, userID string, sample risk.Sample) (risk.AnomalyResult, bool) {
	history, err := e.samples.RecentSamples(ctx, userID, e.cfg.BaselineWindow)
	if err != nil {
		logging.Error().Err(err).Str("user_id", userID).Msg("sample history lookup failed")
		trust := e.aggregator.DefaultBehavioralTrust()
		if err := e.samples.SaveSample(ctx, userID, sample); err != nil {
			logging.Error().Err(err).Str("user_id", userID).Msg("failed to persist behavioral sample")
		}
		return risk.AnomalyResult{
			OverallScore:       trust,
			AnomalyProbability: 1 - trust,
			Severity:           risk.SeverityLow,
			Confidence:         risk.ConfidenceLow,
			Recommendation:     risk.RecommendationStepUp,
		}, false
	}
	baseline, _ := risk.BuildBaseline(history, e.cfg.MinBaselineSamples)

	result := e.scorer.ScoreBehavior(baseline, sample)
	if result.IsAnomaly {
		metrics.AnomaliesTotal.Inc()
	}

	if err := e.samples.SaveSample(ctx, userID, sample); err != nil {
		logging.Error().Err(err).Str("user_id", userID).Msg("failed to persist behavioral sample")
	}
	return result, true
}

// deviceTrust derives the device component. Nil means "no signal" and
// the aggregator default applies; a device id that has never been seen
// is a real signal and scores a fixed low trust.
func (e *Engine) deviceTrust(ctx context.Context, userID, deviceID string) *float64 {
	if deviceID == "" {
		return nil
	}

	var trust float64
	profile, err := e.devices.GetDevice(ctx, userID, deviceID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		trust = e.aggregator.UnknownDeviceTrust()
	case err != nil:
		logging.Warn().Err(err).Str("user_id", userID).Msg("device lookup degraded")
		return nil
	default:
		trust = e.aggregator.DeviceTrust(profile.SeenCount, profile.TrustScore)
	}

	if _, err := e.devices.TouchDevice(ctx, userID, deviceID, e.now()); err != nil {
		logging.Error().Err(err).Str("user_id", userID).Str("device_id", deviceID).
			Msg("failed to update device profile")
	}
	return &trust
}

func (e *Engine) tlsTrust(ctx context.Context, hash string) *float64 {
	if hash == "" {
		return nil
	}
	fp, err := e.fingerprints.GetFingerprint(ctx, hash)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		logging.Warn().Err(err).Msg("fingerprint lookup degraded")
		return nil
	}
	return &fp.TrustScore
}

func (e *Engine) checkTravel(ctx context.Context, in SessionInput) *geo.Verdict {
	verdict, err := e.detector.DetectImpossibleTravel(ctx, geo.Point{
		UserID:    in.UserID,
		Latitude:  *in.Latitude,
		Longitude: *in.Longitude,
		City:      in.City,
		Country:   in.Country,
		IPAddress: in.IPAddress,
	})
	if err != nil && !errors.Is(err, risk.ErrInvalidInput) {
		logging.Error().Err(err).Str("user_id", in.UserID).Msg("failed to record geolocation")
	}
	if verdict.Impossible {
		metrics.ImpossibleTravelTotal.Inc()
	}
	return &verdict
}

// applyTravelOverride escalates the verdict when impossible travel was
// detected. Escalation only: an already-blocking verdict is never relaxed.
func (e *Engine) applyTravelOverride(ev *Evaluation) {
	if ev.Travel == nil {
		return
	}
	if ev.Travel.Checked {
		for k, v := range ev.Travel.Factors() {
			ev.Factors[k] = v
		}
	}
	if !ev.Travel.Impossible {
		return
	}

	ev.Confidence = risk.ConfidenceLow
	if ev.Travel.SpeedKmh > e.cfg.CriticalSpeedKmh {
		ev.Recommendation = risk.RecommendationBlock
		ev.OverallScore = math.Min(ev.OverallScore, blockScoreCap)
		return
	}
	if ev.Recommendation == risk.RecommendationAllow {
		ev.Recommendation = risk.RecommendationStepUp
	}
	ev.OverallScore = math.Min(ev.OverallScore, stepUpScoreCap)
}

func (e *Engine) emitAlerts(ctx context.Context, ev *Evaluation) {
	if ev.Behavioral.IsAnomaly {
		severity := risk.SeverityHigh
		if ev.OverallScore < criticalBehavioralScore {
			severity = risk.SeverityCritical
		}
		e.saveAlert(ctx, store.Alert{
			ID:          uuid.NewString(),
			UserID:      ev.UserID,
			Type:        AlertTypeBehavioralAnomaly,
			Severity:    string(severity),
			Description: fmt.Sprintf("behavioral anomaly detected (score %.2f, z %.2f)", ev.Behavioral.OverallScore, ev.Behavioral.ZScore),
			Metadata:    ev.Factors,
			CreatedAt:   ev.EvaluatedAt,
		})
	}

	if ev.Travel != nil && ev.Travel.Impossible {
		e.persistTravelAlert(ctx, ev.UserID, ev.Travel)
	}
}

func (e *Engine) persistTravelAlert(ctx context.Context, userID string, v *geo.Verdict) {
	e.saveAlert(ctx, store.Alert{
		ID:          uuid.NewString(),
		UserID:      userID,
		Type:        AlertTypeImpossibleTravel,
		Severity:    string(v.Severity),
		Description: travelDescription(v),
		Metadata:    v.Factors(),
		CreatedAt:   e.now(),
	})
}

// travelDescription names the places involved when they are known;
// coordinates-only observations fall back to the raw numbers.
func travelDescription(v *geo.Verdict) string {
	if v.Location != "" && v.PreviousLocation != "" {
		return fmt.Sprintf("user appeared in %s from %s: %.0f km in %.0f minutes (%.0f km/h)",
			v.Location, v.PreviousLocation, v.DistanceKm, v.TimeDeltaMinutes, v.SpeedKmh)
	}
	return fmt.Sprintf("impossible travel: %.0f km in %.0f minutes (%.0f km/h)",
		v.DistanceKm, v.TimeDeltaMinutes, v.SpeedKmh)
}

func (e *Engine) saveAlert(ctx context.Context, alert store.Alert) {
	if err := e.alerts.SaveAlert(ctx, alert); err != nil {
		logging.Error().Err(err).Str("alert_type", alert.Type).Str("user_id", alert.UserID).
			Msg("failed to persist alert")
		return
	}
	metrics.AlertsTotal.WithLabelValues(alert.Type, alert.Severity).Inc()

	if err := e.publisher.PublishAlert(ctx, alert); err != nil {
		logging.Error().Err(err).Str("alert_id", alert.ID).Msg("failed to publish alert")
	}
}

func (e *Engine) emitActivity(ctx context.Context, ev *Evaluation) {
	msg := fmt.Sprintf("risk evaluated: %s (score %.2f)", ev.Recommendation, ev.OverallScore)
	e.publishActivity(ctx, events.NewActivity(ev.UserID, ev.OverallScore, string(ev.Confidence), msg))
}

// emitTravelActivity puts a flagged standalone check on the activity feed.
// A velocity flag on its own is circumstantial, so confidence is low.
func (e *Engine) emitTravelActivity(ctx context.Context, userID string, v *geo.Verdict) {
	activity := events.NewActivity(userID, v.RiskScore, string(risk.ConfidenceLow), travelDescription(v))
	e.publishActivity(ctx, activity)
}

func (e *Engine) publishActivity(ctx context.Context, activity events.Activity) {
	if err := e.publisher.PublishActivity(ctx, activity); err != nil {
		logging.Error().Err(err).Str("user_id", activity.UserID).Msg("failed to publish activity")
	}
	if e.broadcaster != nil {
		e.broadcaster.Broadcast(websocket.Message{
			Type: websocket.MessageTypeActivity,
			Data: activity,
		})
	}
}
