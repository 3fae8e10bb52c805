// AuthShield - Continuous Authentication Risk Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authshield

// Package api exposes the REST and websocket surface of the risk engine.
package api

import (
	"github.com/tomtom215/authshield/internal/engine"
	"github.com/tomtom215/authshield/internal/geo"
	"github.com/tomtom215/authshield/internal/risk"
)

// BehavioralPayload carries one behavioral observation window. Field
// names match what the browser agent sends; absent fields mean the
// feature was not observed, not that it was zero.
type BehavioralPayload struct {
	MouseVelocity     *float64 `json:"mouseVelocity,omitempty"`
	MouseAcceleration *float64 `json:"mouseAcceleration,omitempty"`
	DwellTime         *float64 `json:"dwellTime,omitempty"`
	FlightTime        *float64 `json:"flightTime,omitempty"`
	TypingSpeed       *float64 `json:"typingSpeed,omitempty"`
	StraightLineRatio *float64 `json:"straightLineRatio,omitempty"`
	CurveComplexity   *float64 `json:"curveComplexity,omitempty"`
}

// Sample converts the wire payload to the scoring representation.
func (p BehavioralPayload) Sample() risk.Sample {
	return risk.Sample{
		MouseSpeed:        p.MouseVelocity,
		MouseAcceleration: p.MouseAcceleration,
		KeyHoldTime:       p.DwellTime,
		FlightTime:        p.FlightTime,
		TypingSpeed:       p.TypingSpeed,
		StraightLineRatio: p.StraightLineRatio,
		CurveComplexity:   p.CurveComplexity,
	}
}

// ScoreRequest is the full-evaluation request body.
type ScoreRequest struct {
	UserID         string            `json:"userId" validate:"required"`
	DeviceID       string            `json:"deviceId,omitempty"`
	TLSFingerprint string            `json:"tlsFingerprint,omitempty"`
	IPAddress      string            `json:"ipAddress,omitempty"`
	Latitude       *float64          `json:"latitude,omitempty" validate:"omitempty,latitude"`
	Longitude      *float64          `json:"longitude,omitempty" validate:"omitempty,longitude"`
	City           string            `json:"city,omitempty"`
	Country        string            `json:"country,omitempty"`
	Behavioral     BehavioralPayload `json:"behavioral"`
}

// Input converts the request to the engine's session input.
func (r ScoreRequest) Input() engine.SessionInput {
	return engine.SessionInput{
		UserID:         r.UserID,
		DeviceID:       r.DeviceID,
		TLSFingerprint: r.TLSFingerprint,
		IPAddress:      r.IPAddress,
		Latitude:       r.Latitude,
		Longitude:      r.Longitude,
		City:           r.City,
		Country:        r.Country,
		Sample:         r.Behavioral.Sample(),
	}
}

// AnomalyCheckRequest is the behavioral-only scoring request body.
type AnomalyCheckRequest struct {
	UserID     string            `json:"userId" validate:"required"`
	Behavioral BehavioralPayload `json:"behavioral"`
}

// TravelRequest is the standalone geo-velocity check request body.
type TravelRequest struct {
	UserID    string  `json:"userId" validate:"required"`
	IPAddress string  `json:"ipAddress,omitempty"`
	Latitude  float64 `json:"latitude" validate:"latitude"`
	Longitude float64 `json:"longitude" validate:"longitude"`
	City      string  `json:"city,omitempty"`
	Country   string  `json:"country,omitempty"`
}

// Observation converts the request to the detector's point representation.
func (r TravelRequest) Observation() geo.Point {
	return geo.Point{
		UserID:    r.UserID,
		Latitude:  r.Latitude,
		Longitude: r.Longitude,
		City:      r.City,
		Country:   r.Country,
		IPAddress: r.IPAddress,
	}
}

// BaselineResponse is returned by the baseline endpoint. Status is "ok"
// when a baseline exists and "insufficient_data" otherwise; clients must
// branch on it rather than on a zeroed profile.
type BaselineResponse struct {
	UserID   string               `json:"userId"`
	Status   string               `json:"status"`
	Baseline risk.BaselineProfile `json:"baseline,omitempty"`
}

// Baseline response statuses.
const (
	BaselineStatusOK               = "ok"
	BaselineStatusInsufficientData = "insufficient_data"
)

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}
