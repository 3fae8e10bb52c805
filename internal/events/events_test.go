// AuthShield - Continuous Authentication Risk Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authshield

package events

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"

	"github.com/tomtom215/authshield/internal/store"
	"github.com/tomtom215/authshield/internal/websocket"
)

func TestNewActivity(t *testing.T) {
	a := NewActivity("u1", 0.42, "medium", "risk evaluated")

	if a.ID == "" {
		t.Error("activity must get an id")
	}
	if a.Type != ActivityTypeRiskCalculated {
		t.Errorf("type = %s, want %s", a.Type, ActivityTypeRiskCalculated)
	}
	if a.Timestamp.IsZero() {
		t.Error("activity must be timestamped")
	}
}

func TestActivityEnvelopeShape(t *testing.T) {
	a := NewActivity("u1", 0.42, "medium", "risk evaluated")

	data, err := json.Marshal(a.Envelope())
	if err != nil {
		t.Fatal(err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded["type"] != "activity" {
		t.Errorf("envelope type = %v, want activity", decoded["type"])
	}
	inner, ok := decoded["activity"].(map[string]any)
	if !ok {
		t.Fatal("envelope missing activity object")
	}
	if inner["userId"] != "u1" {
		t.Errorf("userId = %v, want u1", inner["userId"])
	}
	if inner["confidenceLevel"] != "medium" {
		t.Errorf("confidenceLevel = %v, want medium", inner["confidenceLevel"])
	}
}

func TestNopPublisher(t *testing.T) {
	p := NopPublisher{}
	ctx := context.Background()

	if err := p.PublishActivity(ctx, NewActivity("u1", 0.5, "low", "m")); err != nil {
		t.Errorf("nop activity publish: %v", err)
	}
	if err := p.PublishAlert(ctx, store.Alert{ID: "a1"}); err != nil {
		t.Errorf("nop alert publish: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("nop close: %v", err)
	}
}

type captureBroadcaster struct {
	messages chan websocket.Message
}

func (c *captureBroadcaster) Broadcast(msg websocket.Message) {
	c.messages <- msg
}

func TestBridgeForwardsToHub(t *testing.T) {
	pubsub := gochannel.NewGoChannel(gochannel.Config{}, NewWatermillLogger())
	defer pubsub.Close()

	capture := &captureBroadcaster{messages: make(chan websocket.Message, 8)}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bridge := NewBridge(capture, pubsub)
	go bridge.Run(ctx) //nolint:errcheck

	// Give the bridge a moment to subscribe before publishing.
	time.Sleep(50 * time.Millisecond)

	activity := NewActivity("u1", 0.9, "high", "anomaly detected")
	payload, err := json.Marshal(activity.Envelope())
	if err != nil {
		t.Fatal(err)
	}
	if err := pubsub.Publish(TopicActivity, message.NewMessage(activity.ID, payload)); err != nil {
		t.Fatal(err)
	}

	select {
	case msg := <-capture.messages:
		if msg.Type != websocket.MessageTypeActivity {
			t.Errorf("type = %s, want activity", msg.Type)
		}
		got, ok := msg.Data.(Activity)
		if !ok {
			t.Fatalf("data = %T, want Activity", msg.Data)
		}
		if got.UserID != "u1" || got.RiskScore != 0.9 {
			t.Errorf("forwarded activity = %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("activity never forwarded")
	}

	alert := store.Alert{ID: "a1", UserID: "u1", Type: "impossible_travel", Severity: "critical"}
	alertPayload, err := json.Marshal(alert)
	if err != nil {
		t.Fatal(err)
	}
	if err := pubsub.Publish(TopicAlerts, message.NewMessage(alert.ID, alertPayload)); err != nil {
		t.Fatal(err)
	}

	select {
	case msg := <-capture.messages:
		if msg.Type != websocket.MessageTypeAlert {
			t.Errorf("type = %s, want alert", msg.Type)
		}
		got, ok := msg.Data.(store.Alert)
		if !ok {
			t.Fatalf("data = %T, want store.Alert", msg.Data)
		}
		if got.ID != "a1" || got.Severity != "critical" {
			t.Errorf("forwarded alert = %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("alert never forwarded")
	}
}

func TestBridgeAcksMalformedPayload(t *testing.T) {
	pubsub := gochannel.NewGoChannel(gochannel.Config{}, NewWatermillLogger())
	defer pubsub.Close()

	capture := &captureBroadcaster{messages: make(chan websocket.Message, 8)}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bridge := NewBridge(capture, pubsub)
	go bridge.Run(ctx) //nolint:errcheck
	time.Sleep(50 * time.Millisecond)

	if err := pubsub.Publish(TopicActivity, message.NewMessage("bad", []byte("{not json"))); err != nil {
		t.Fatal(err)
	}

	select {
	case msg := <-capture.messages:
		t.Fatalf("malformed payload must not be forwarded, got %+v", msg)
	case <-time.After(200 * time.Millisecond):
	}
}
