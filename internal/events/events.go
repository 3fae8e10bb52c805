// AuthShield - Continuous Authentication Risk Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authshield

// Package events defines the risk event envelopes and the NATS JetStream
// pipeline that carries them: a resilient Watermill publisher, an embedded
// NATS server for single-instance deployments, and a subscriber bridge
// that forwards events to the websocket hub.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Topics carried on the event bus.
const (
	TopicActivity = "risk.activity"
	TopicAlerts   = "risk.alerts"
)

// ActivityTypeRiskCalculated is the activity type emitted after every
// session evaluation.
const ActivityTypeRiskCalculated = "risk_calculated"

// Activity is one entry in the live activity feed.
type Activity struct {
	ID              string    `json:"id"`
	Type            string    `json:"type"`
	UserID          string    `json:"userId"`
	RiskScore       float64   `json:"riskScore"`
	ConfidenceLevel string    `json:"confidenceLevel"`
	Message         string    `json:"message"`
	Timestamp       time.Time `json:"timestamp"`
}

// NewActivity builds a risk_calculated activity for a user.
func NewActivity(userID string, riskScore float64, confidence, msg string) Activity {
	return Activity{
		ID:              uuid.NewString(),
		Type:            ActivityTypeRiskCalculated,
		UserID:          userID,
		RiskScore:       riskScore,
		ConfidenceLevel: confidence,
		Message:         msg,
		Timestamp:       time.Now().UTC(),
	}
}

// ActivityEnvelope is the wire format consumed by feed clients.
type ActivityEnvelope struct {
	Type     string   `json:"type"`
	Activity Activity `json:"activity"`
}

// Envelope wraps an activity for the feed.
func (a Activity) Envelope() ActivityEnvelope {
	return ActivityEnvelope{Type: "activity", Activity: a}
}
