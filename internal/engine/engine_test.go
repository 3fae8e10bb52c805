// AuthShield - Continuous Authentication Risk Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authshield

package engine

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/authshield/internal/events"
	"github.com/tomtom215/authshield/internal/geo"
	"github.com/tomtom215/authshield/internal/risk"
	"github.com/tomtom215/authshield/internal/store"
	"github.com/tomtom215/authshield/internal/websocket"
)

func f64(v float64) *float64 { return &v }

type capturePublisher struct {
	activities []events.Activity
	alerts     []store.Alert
	fail       bool
}

func (p *capturePublisher) PublishActivity(_ context.Context, a events.Activity) error {
	if p.fail {
		return errors.New("bus down")
	}
	p.activities = append(p.activities, a)
	return nil
}

func (p *capturePublisher) PublishAlert(_ context.Context, a store.Alert) error {
	if p.fail {
		return errors.New("bus down")
	}
	p.alerts = append(p.alerts, a)
	return nil
}

func (p *capturePublisher) Close() error { return nil }

type captureBroadcaster struct {
	messages []websocket.Message
}

func (b *captureBroadcaster) Broadcast(msg websocket.Message) {
	b.messages = append(b.messages, msg)
}

type harness struct {
	engine    *Engine
	mem       *store.Memory
	publisher *capturePublisher
	hub       *captureBroadcaster
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mem := store.NewMemory()
	pub := &capturePublisher{}
	hub := &captureBroadcaster{}

	eng := New(
		Config{BaselineWindow: 50, MinBaselineSamples: 3, CriticalSpeedKmh: 5000},
		risk.NewAnomalyScorer(risk.DefaultScoringPolicy()),
		risk.NewTrustAggregator(risk.DefaultAggregationPolicy()),
		geo.NewVelocityDetector(mem, geo.DefaultPolicy()),
		mem, mem, mem, mem,
		pub, hub,
	)
	return &harness{engine: eng, mem: mem, publisher: pub, hub: hub}
}

func fullSample(base float64) risk.Sample {
	return risk.Sample{
		MouseSpeed:        f64(base),
		MouseAcceleration: f64(base),
		KeyHoldTime:       f64(base),
		FlightTime:        f64(base),
		TypingSpeed:       f64(base),
		StraightLineRatio: f64(base),
		CurveComplexity:   f64(base),
	}
}

func seedSamples(t *testing.T, h *harness, userID string, values ...float64) {
	t.Helper()
	for _, v := range values {
		if err := h.mem.SaveSample(context.Background(), userID, risk.Sample{MouseSpeed: f64(v)}); err != nil {
			t.Fatal(err)
		}
	}
}

func TestEvaluateSessionRequiresUserID(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.EvaluateSession(context.Background(), SessionInput{})
	if !errors.Is(err, risk.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestEvaluateSessionNewUserDefaults(t *testing.T) {
	h := newHarness(t)

	ev, err := h.engine.EvaluateSession(context.Background(), SessionInput{
		UserID: "u1",
		Sample: fullSample(100),
	})
	if err != nil {
		t.Fatal(err)
	}

	// No baseline: behavioral 0.85. No device/TLS signal: defaults 0.5.
	// 0.5*0.35 + 0.5*0.25 + 0.85*0.40 = 0.64
	if math.Abs(ev.OverallScore-0.64) > 1e-9 {
		t.Errorf("overall = %v, want 0.64", ev.OverallScore)
	}
	if ev.Recommendation != risk.RecommendationStepUp {
		t.Errorf("recommendation = %s, want step_up", ev.Recommendation)
	}
	if ev.Behavioral.OverallScore != 0.85 {
		t.Errorf("behavioral = %v, want 0.85", ev.Behavioral.OverallScore)
	}

	// The sample itself becomes history.
	samples, _ := h.mem.RecentSamples(context.Background(), "u1", 10)
	if len(samples) != 1 {
		t.Errorf("persisted samples = %d, want 1", len(samples))
	}

	if len(h.publisher.activities) != 1 {
		t.Fatalf("activities published = %d, want 1", len(h.publisher.activities))
	}
	if h.publisher.activities[0].Type != events.ActivityTypeRiskCalculated {
		t.Errorf("activity type = %s", h.publisher.activities[0].Type)
	}
	if len(h.hub.messages) != 1 {
		t.Errorf("hub broadcasts = %d, want 1", len(h.hub.messages))
	}
}

func TestEvaluateSessionUnknownDevice(t *testing.T) {
	h := newHarness(t)

	ev, err := h.engine.EvaluateSession(context.Background(), SessionInput{
		UserID:   "u1",
		DeviceID: "new-laptop",
		Sample:   fullSample(100),
	})
	if err != nil {
		t.Fatal(err)
	}

	if got := ev.Trust.Components["device"]; got != 0.3 {
		t.Errorf("unknown device trust = %v, want 0.3", got)
	}

	// First sight creates the profile for next time.
	profile, err := h.mem.GetDevice(context.Background(), "u1", "new-laptop")
	if err != nil {
		t.Fatal(err)
	}
	if profile.SeenCount != 1 {
		t.Errorf("seen count = %d, want 1", profile.SeenCount)
	}
}

func TestEvaluateSessionKnownDeviceAndFingerprint(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// 10 prior sightings saturate familiarity.
	for i := 0; i < 10; i++ {
		if _, err := h.mem.TouchDevice(ctx, "u1", "laptop", time.Now()); err != nil {
			t.Fatal(err)
		}
	}
	if err := h.mem.PutFingerprint(ctx, store.TLSFingerprint{Hash: "fp1", TrustScore: 0.9}); err != nil {
		t.Fatal(err)
	}

	ev, err := h.engine.EvaluateSession(ctx, SessionInput{
		UserID:         "u1",
		DeviceID:       "laptop",
		TLSFingerprint: "fp1",
		Sample:         fullSample(100),
	})
	if err != nil {
		t.Fatal(err)
	}

	// device = min(1, 10/10)*0.6 + 0.5*0.4 = 0.8
	if got := ev.Trust.Components["device"]; math.Abs(got-0.8) > 1e-9 {
		t.Errorf("device trust = %v, want 0.8", got)
	}
	if got := ev.Trust.Components["tls"]; got != 0.9 {
		t.Errorf("tls trust = %v, want 0.9", got)
	}
}

func TestEvaluateSessionCriticalTravelOverride(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// Prior login 10 minutes ago, ~2000 km away: ~12000 km/h.
	if err := h.mem.AppendPoint(ctx, geo.Point{
		ID: "p0", UserID: "u1", Latitude: 0, Longitude: 10,
		RecordedAt: time.Now().Add(-10 * time.Minute),
	}); err != nil {
		t.Fatal(err)
	}

	ev, err := h.engine.EvaluateSession(ctx, SessionInput{
		UserID:    "u1",
		IPAddress: "1.2.3.4",
		Latitude:  f64(18),
		Longitude: f64(10),
		Sample:    fullSample(100),
	})
	if err != nil {
		t.Fatal(err)
	}

	if ev.Travel == nil || !ev.Travel.Impossible {
		t.Fatal("expected impossible travel verdict")
	}
	if ev.Recommendation != risk.RecommendationBlock {
		t.Errorf("recommendation = %s, want block", ev.Recommendation)
	}
	if ev.OverallScore > blockScoreCap {
		t.Errorf("overall = %v, want <= %v", ev.OverallScore, blockScoreCap)
	}
	if ev.Confidence != risk.ConfidenceLow {
		t.Errorf("confidence = %s, want low", ev.Confidence)
	}
	if _, ok := ev.Factors["impossible_travel"]; !ok {
		t.Error("travel factors missing from merged factor map")
	}

	alerts, _ := h.mem.ListAlerts(ctx, store.AlertFilter{Type: AlertTypeImpossibleTravel})
	if len(alerts) != 1 {
		t.Fatalf("travel alerts = %d, want 1", len(alerts))
	}
	if alerts[0].Severity != string(risk.SeverityCritical) {
		t.Errorf("alert severity = %s, want critical", alerts[0].Severity)
	}
}

func TestEvaluateSessionModerateTravelOverride(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// ~2000 km in one hour: impossible but below the critical threshold.
	if err := h.mem.AppendPoint(ctx, geo.Point{
		ID: "p0", UserID: "u1", Latitude: 0, Longitude: 10,
		RecordedAt: time.Now().Add(-time.Hour),
	}); err != nil {
		t.Fatal(err)
	}

	ev, err := h.engine.EvaluateSession(ctx, SessionInput{
		UserID:    "u1",
		Latitude:  f64(18),
		Longitude: f64(10),
		Sample:    fullSample(100),
	})
	if err != nil {
		t.Fatal(err)
	}

	if ev.Recommendation != risk.RecommendationStepUp {
		t.Errorf("recommendation = %s, want step_up", ev.Recommendation)
	}
	if ev.OverallScore > stepUpScoreCap {
		t.Errorf("overall = %v, want <= %v", ev.OverallScore, stepUpScoreCap)
	}
	if ev.Confidence != risk.ConfidenceLow {
		t.Errorf("confidence = %s, want low", ev.Confidence)
	}
}

func TestEvaluateSessionBehavioralAnomalyAlert(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	seedSamples(t, h, "u1", 100, 110, 120)

	ev, err := h.engine.EvaluateSession(ctx, SessionInput{
		UserID: "u1",
		Sample: risk.Sample{MouseSpeed: f64(500)}, // z = 39
	})
	if err != nil {
		t.Fatal(err)
	}

	if !ev.Behavioral.IsAnomaly {
		t.Fatal("expected behavioral anomaly")
	}
	alerts, _ := h.mem.ListAlerts(ctx, store.AlertFilter{Type: AlertTypeBehavioralAnomaly})
	if len(alerts) != 1 {
		t.Fatalf("behavioral alerts = %d, want 1", len(alerts))
	}
	if len(h.publisher.alerts) != 1 {
		t.Errorf("published alerts = %d, want 1", len(h.publisher.alerts))
	}
}

func TestEvaluateSessionPublisherFailureDoesNotAlterVerdict(t *testing.T) {
	h := newHarness(t)
	h.publisher.fail = true

	ev, err := h.engine.EvaluateSession(context.Background(), SessionInput{
		UserID: "u1",
		Sample: fullSample(100),
	})
	if err != nil {
		t.Fatalf("publisher failure leaked into evaluation: %v", err)
	}
	if ev.Recommendation != risk.RecommendationStepUp {
		t.Errorf("recommendation = %s, want step_up", ev.Recommendation)
	}
}

func TestBaselineLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, ok, err := h.engine.Baseline(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("baseline must not exist for a new user")
	}

	seedSamples(t, h, "u1", 100, 110, 120)

	profile, ok, err := h.engine.Baseline(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("baseline must exist after 3 samples")
	}
	if m := profile[risk.FeatureMouseSpeed]; math.Abs(m.Mean-110) > 1e-9 {
		t.Errorf("mean = %v, want 110", m.Mean)
	}
}

func TestCheckAnomalyPersistsSample(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result, err := h.engine.CheckAnomaly(ctx, "u1", risk.Sample{MouseSpeed: f64(100 + float64(i)*10)})
		if err != nil {
			t.Fatal(err)
		}
		if i == 0 && result.OverallScore != 0.85 {
			t.Errorf("first check score = %v, want 0.85 (no baseline)", result.OverallScore)
		}
	}

	// Three checks later the user has a baseline.
	if _, ok, _ := h.engine.Baseline(ctx, "u1"); !ok {
		t.Error("baseline should exist after three anomaly checks")
	}
}

func TestDetectImpossibleTravelStandalone(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	v, err := h.engine.DetectImpossibleTravel(ctx, geo.Point{
		UserID: "u1", Latitude: 0, Longitude: 10, IPAddress: "1.2.3.4",
	})
	if err != nil {
		t.Fatal(err)
	}
	if v.Checked {
		t.Error("first check must be unchecked")
	}

	if _, err := h.engine.DetectImpossibleTravel(ctx, geo.Point{Latitude: 0, Longitude: 10}); !errors.Is(err, risk.ErrInvalidInput) {
		t.Errorf("missing user = %v, want ErrInvalidInput", err)
	}
}

func TestDetectImpossibleTravelStandaloneFeedsActivity(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if err := h.mem.AppendPoint(ctx, geo.Point{
		ID: "p0", UserID: "u1", Latitude: 35.68, Longitude: 139.69,
		City: "Tokyo", Country: "JP",
		RecordedAt: time.Now().Add(-10 * time.Minute),
	}); err != nil {
		t.Fatal(err)
	}

	v, err := h.engine.DetectImpossibleTravel(ctx, geo.Point{
		UserID: "u1", Latitude: 48.86, Longitude: 2.35,
		City: "Paris", Country: "FR", IPAddress: "1.2.3.4",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !v.Impossible {
		t.Fatal("expected impossible travel verdict")
	}

	// A flagged standalone check reaches the activity feed, same as a
	// full evaluation would.
	if len(h.publisher.activities) != 1 {
		t.Fatalf("activities published = %d, want 1", len(h.publisher.activities))
	}
	activity := h.publisher.activities[0]
	if activity.Type != events.ActivityTypeRiskCalculated {
		t.Errorf("activity type = %s", activity.Type)
	}
	if activity.ConfidenceLevel != string(risk.ConfidenceLow) {
		t.Errorf("confidence = %s, want low", activity.ConfidenceLevel)
	}
	if activity.RiskScore != v.RiskScore {
		t.Errorf("activity risk = %v, want %v", activity.RiskScore, v.RiskScore)
	}
	if len(h.hub.messages) != 1 {
		t.Errorf("hub broadcasts = %d, want 1", len(h.hub.messages))
	}

	alerts, _ := h.mem.ListAlerts(ctx, store.AlertFilter{Type: AlertTypeImpossibleTravel})
	if len(alerts) != 1 {
		t.Fatalf("travel alerts = %d, want 1", len(alerts))
	}
	want := "user appeared in Paris, FR from Tokyo, JP"
	if !strings.HasPrefix(alerts[0].Description, want) {
		t.Errorf("alert description = %q, want prefix %q", alerts[0].Description, want)
	}
	if alerts[0].Metadata["sourceLocation"] != "Paris, FR" || alerts[0].Metadata["previousLocation"] != "Tokyo, JP" {
		t.Errorf("alert metadata locations = %v", alerts[0].Metadata)
	}
}

// failingSampleStore simulates a sample store whose reads are down while
// writes still work.
type failingSampleStore struct {
	*store.Memory
}

func (f *failingSampleStore) RecentSamples(context.Context, string, int) ([]risk.Sample, error) {
	return nil, errors.New("store down")
}

func TestEvaluateSessionHistoryLookupFailureUsesBehavioralDefault(t *testing.T) {
	mem := store.NewMemory()
	pub := &capturePublisher{}
	eng := New(
		Config{BaselineWindow: 50, MinBaselineSamples: 3, CriticalSpeedKmh: 5000},
		risk.NewAnomalyScorer(risk.DefaultScoringPolicy()),
		risk.NewTrustAggregator(risk.DefaultAggregationPolicy()),
		geo.NewVelocityDetector(mem, geo.DefaultPolicy()),
		&failingSampleStore{mem}, mem, mem, mem,
		pub, nil,
	)

	ev, err := eng.EvaluateSession(context.Background(), SessionInput{
		UserID: "u1",
		Sample: fullSample(100),
	})
	if err != nil {
		t.Fatalf("lookup failure must degrade, not fail: %v", err)
	}

	// A failed history read is "no behavioral signal", not "no baseline":
	// the aggregation default applies, not the no-baseline score.
	if got := ev.Trust.Components["behavioral"]; got != 0.75 {
		t.Errorf("behavioral component = %v, want 0.75", got)
	}
	// 0.5*0.35 + 0.5*0.25 + 0.75*0.40 = 0.60
	if math.Abs(ev.OverallScore-0.60) > 1e-9 {
		t.Errorf("overall = %v, want 0.60", ev.OverallScore)
	}
	if ev.Behavioral.OverallScore != 0.75 {
		t.Errorf("behavioral result score = %v, want 0.75", ev.Behavioral.OverallScore)
	}
	if ev.Behavioral.Confidence != risk.ConfidenceLow {
		t.Errorf("behavioral confidence = %s, want low", ev.Behavioral.Confidence)
	}
	if ev.Behavioral.IsAnomaly {
		t.Error("degraded scoring must not report an anomaly")
	}

	// The sample still lands in history for when reads recover.
	samples, _ := mem.RecentSamples(context.Background(), "u1", 10)
	if len(samples) != 1 {
		t.Errorf("persisted samples = %d, want 1", len(samples))
	}
}
