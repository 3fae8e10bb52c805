// AuthShield - Continuous Authentication Risk Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authshield

// Package store persists behavioral samples, geolocation history, anomaly
// alerts, device profiles and TLS fingerprints.
//
// DuckDB backs the append-heavy analytical data (samples, geolocations,
// alerts); Badger backs the hot key-value lookups (devices, fingerprints).
// Memory implementations back tests. Circuit-breaker decorators wrap the
// lookup paths so a failing store degrades scoring instead of failing it.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/tomtom215/authshield/internal/geo"
	"github.com/tomtom215/authshield/internal/risk"
)

// ErrNotFound indicates the requested record does not exist.
var ErrNotFound = errors.New("not found")

// Alert is a persisted anomaly alert awaiting operator review.
type Alert struct {
	ID           string         `json:"id"`
	UserID       string         `json:"user_id"`
	Type         string         `json:"type"`
	Severity     string         `json:"severity"`
	Description  string         `json:"description"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Acknowledged bool           `json:"acknowledged"`
	CreatedAt    time.Time      `json:"created_at"`
}

// AlertFilter narrows ListAlerts results. Zero values match everything.
type AlertFilter struct {
	UserID string
	Type   string
	// Acknowledged filters by ack state when non-nil.
	Acknowledged *bool
	Limit        int
}

// DeviceProfile tracks how familiar a (user, device) pair is.
type DeviceProfile struct {
	UserID     string    `json:"user_id"`
	DeviceID   string    `json:"device_id"`
	SeenCount  int       `json:"seen_count"`
	TrustScore float64   `json:"trust_score"`
	FirstSeen  time.Time `json:"first_seen"`
	LastSeen   time.Time `json:"last_seen"`
}

// TLSFingerprint records trust for a client TLS fingerprint hash.
type TLSFingerprint struct {
	Hash       string    `json:"hash"`
	UserID     string    `json:"user_id"`
	TrustScore float64   `json:"trust_score"`
	SeenCount  int       `json:"seen_count"`
	LastSeen   time.Time `json:"last_seen"`
}

// SampleStore persists behavioral samples per user.
type SampleStore interface {
	// SaveSample appends one sample to a user's history.
	SaveSample(ctx context.Context, userID string, sample risk.Sample) error
	// RecentSamples returns up to limit samples, newest first.
	RecentSamples(ctx context.Context, userID string, limit int) ([]risk.Sample, error)
}

// AlertStore persists anomaly alerts.
type AlertStore interface {
	SaveAlert(ctx context.Context, alert Alert) error
	ListAlerts(ctx context.Context, filter AlertFilter) ([]Alert, error)
	// AcknowledgeAlert marks an alert reviewed; ErrNotFound if absent.
	AcknowledgeAlert(ctx context.Context, id string) error
}

// DeviceStore persists device familiarity profiles.
type DeviceStore interface {
	// GetDevice returns the profile, or ErrNotFound for an unseen pair.
	GetDevice(ctx context.Context, userID, deviceID string) (*DeviceProfile, error)
	// TouchDevice increments the sighting count (creating the profile on
	// first sight) and returns the updated profile.
	TouchDevice(ctx context.Context, userID, deviceID string, at time.Time) (*DeviceProfile, error)
}

// FingerprintStore persists TLS fingerprint trust records.
type FingerprintStore interface {
	// GetFingerprint returns the record, or ErrNotFound for an unseen hash.
	GetFingerprint(ctx context.Context, hash string) (*TLSFingerprint, error)
	// PutFingerprint creates or replaces a record.
	PutFingerprint(ctx context.Context, fp TLSFingerprint) error
}

// GeoStore is the geolocation history consumed by the velocity detector.
type GeoStore interface {
	geo.HistoryStore
	// RecentPoints returns up to limit points, newest first.
	RecentPoints(ctx context.Context, userID string, limit int) ([]geo.Point, error)
}
