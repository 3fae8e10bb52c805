// AuthShield - Continuous Authentication Risk Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authshield

// Package geo implements geo-velocity analysis: detecting logins whose
// implied travel speed between consecutive locations is physically
// impossible.
package geo

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/authshield/internal/risk"
)

// Point is one recorded login location for a user. History is append-only;
// reads return newest first.
type Point struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	City       string    `json:"city,omitempty"`
	Country    string    `json:"country,omitempty"`
	IPAddress  string    `json:"ip_address"`
	RiskScore  float64   `json:"risk_score"`
	RecordedAt time.Time `json:"recorded_at"`
}

// HasCoordinates reports whether the point carries usable coordinates.
// A zero/zero pair is treated as unset; it is a null island artifact in
// practice, not a login in the Gulf of Guinea.
func (p *Point) HasCoordinates() bool {
	return p.Latitude != 0 || p.Longitude != 0
}

// Location renders the point's place name ("Paris, FR"), city or country
// alone when only one is known, or "" when neither is.
func (p *Point) Location() string {
	switch {
	case p.City != "" && p.Country != "":
		return p.City + ", " + p.Country
	case p.City != "":
		return p.City
	default:
		return p.Country
	}
}

// HistoryStore persists login locations.
type HistoryStore interface {
	// LatestPoint returns the most recent point for a user, or nil when
	// the user has no history.
	LatestPoint(ctx context.Context, userID string) (*Point, error)
	// AppendPoint records a new point.
	AppendPoint(ctx context.Context, p Point) error
}

// Policy parameterizes the velocity detector.
type Policy struct {
	// ImpossibleSpeedKmh: implied speeds above this are flagged.
	ImpossibleSpeedKmh float64
	// CriticalSpeedKmh: flagged speeds above this are critical severity.
	CriticalSpeedKmh float64
	// RiskSpeedDivisor scales speed into a 0..1 risk score.
	RiskSpeedDivisor float64
}

// DefaultPolicy returns the production thresholds: commercial aviation
// tops out near 900 km/h, so anything above 1000 cannot be legitimate.
func DefaultPolicy() Policy {
	return Policy{
		ImpossibleSpeedKmh: 1000,
		CriticalSpeedKmh:   5000,
		RiskSpeedDivisor:   10000,
	}
}

// Verdict is the outcome of one impossible-travel check.
type Verdict struct {
	UserID string `json:"user_id"`
	// Checked is false when no prior location with valid coordinates
	// existed; an unchecked verdict is never Impossible.
	Checked          bool          `json:"checked"`
	Impossible       bool          `json:"impossible"`
	DistanceKm       float64       `json:"distance_km"`
	TimeDeltaMinutes float64       `json:"time_delta_minutes"`
	SpeedKmh         float64       `json:"speed_kmh"`
	RiskScore        float64       `json:"risk_score"`
	Severity         risk.Severity `json:"severity,omitempty"`
	// Location / PreviousLocation are the place names of the new and
	// prior points, when known ("Paris, FR").
	Location         string `json:"location,omitempty"`
	PreviousLocation string `json:"previous_location,omitempty"`
}

// Factors renders the verdict as a factor map for merging into an
// evaluation result.
func (v Verdict) Factors() map[string]any {
	m := map[string]any{
		"impossible_travel": v.Impossible,
		"travelDistanceKm":  v.DistanceKm,
		"timeDeltaMinutes":  v.TimeDeltaMinutes,
		"requiredSpeedKmh":  v.SpeedKmh,
	}
	if v.Location != "" {
		m["sourceLocation"] = v.Location
	}
	if v.PreviousLocation != "" {
		m["previousLocation"] = v.PreviousLocation
	}
	return m
}

// maxReportedSpeedKmh bounds the speed recorded on verdicts so two logins
// in the same instant stay JSON-encodable. The decision logic itself works
// on the unbounded value.
const maxReportedSpeedKmh = 1e9

// earthRadiusKm is the mean Earth radius used by the haversine formula.
const earthRadiusKm = 6371.0

// VelocityDetector checks each new login location against the user's most
// recent one and records the new location regardless of outcome.
type VelocityDetector struct {
	store  HistoryStore
	policy Policy
	now    func() time.Time
}

// NewVelocityDetector creates a detector backed by the given history store.
func NewVelocityDetector(store HistoryStore, policy Policy) *VelocityDetector {
	return &VelocityDetector{store: store, policy: policy, now: time.Now}
}

// DetectImpossibleTravel evaluates a new login location for a user. The
// observation carries the user id, coordinates, and whatever the caller
// knows about the place (ip, city, country); the detector assigns the id,
// timestamp and risk score.
//
// The new point is appended to history in every outcome except invalid
// input, so the next check always has a prior point. When flagged, the
// appended point carries the computed risk score; otherwise 0.
func (d *VelocityDetector) DetectImpossibleTravel(ctx context.Context, obs Point) (Verdict, error) {
	if obs.UserID == "" {
		return Verdict{}, risk.ErrInvalidInput
	}

	now := d.now()
	verdict := Verdict{UserID: obs.UserID, Location: obs.Location()}

	prior, err := d.store.LatestPoint(ctx, obs.UserID)
	if err != nil {
		// Degraded lookup: record the point, skip the check.
		prior = nil
	}

	if prior != nil && prior.HasCoordinates() {
		verdict.Checked = true
		verdict.PreviousLocation = prior.Location()
		verdict.DistanceKm = Haversine(prior.Latitude, prior.Longitude, obs.Latitude, obs.Longitude)

		hours := now.Sub(prior.RecordedAt).Hours()
		if hours < 0 {
			hours = 0
		}
		verdict.TimeDeltaMinutes = hours * 60

		speed := math.Inf(1)
		if hours > 0 {
			speed = verdict.DistanceKm / hours
		}
		verdict.SpeedKmh = math.Min(speed, maxReportedSpeedKmh)

		if speed > d.policy.ImpossibleSpeedKmh {
			verdict.Impossible = true
			verdict.RiskScore = math.Min(1, speed/d.policy.RiskSpeedDivisor)
			verdict.Severity = risk.SeverityHigh
			if speed > d.policy.CriticalSpeedKmh {
				verdict.Severity = risk.SeverityCritical
			}
		}
	}

	obs.ID = uuid.NewString()
	obs.RiskScore = verdict.RiskScore
	obs.RecordedAt = now
	if err := d.store.AppendPoint(ctx, obs); err != nil {
		// History write failure must not change the verdict; the caller
		// logs it.
		return verdict, err
	}
	return verdict, nil
}

// Haversine returns the great-circle distance in kilometers between two
// coordinate pairs.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRadians(lat2 - lat1)
	dLon := toRadians(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
