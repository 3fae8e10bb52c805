// AuthShield - Continuous Authentication Risk Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authshield

package events

import (
	"context"
	"fmt"
	"time"

	wmnats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	natsgo "github.com/nats-io/nats.go"

	"github.com/tomtom215/authshield/internal/logging"
	"github.com/tomtom215/authshield/internal/store"
	"github.com/tomtom215/authshield/internal/websocket"
)

// Broadcaster is the hub-facing side of the bridge.
type Broadcaster interface {
	Broadcast(msg websocket.Message)
}

// Bridge subscribes to the event topics and forwards everything to the
// websocket hub, decoupling feed delivery from the evaluation path.
type Bridge struct {
	hub        Broadcaster
	subscriber message.Subscriber
}

// NewBridge creates a bridge from any Watermill subscriber to the hub.
func NewBridge(hub Broadcaster, subscriber message.Subscriber) *Bridge {
	return &Bridge{hub: hub, subscriber: subscriber}
}

// NewNATSSubscriber creates the JetStream subscriber used by the bridge
// in production.
func NewNATSSubscriber(url string, connectTimeout time.Duration) (message.Subscriber, error) {
	sub, err := wmnats.NewSubscriber(wmnats.SubscriberConfig{
		URL: url,
		NatsOptions: []natsgo.Option{
			natsgo.Timeout(connectTimeout),
			natsgo.RetryOnFailedConnect(true),
			natsgo.MaxReconnects(-1),
			natsgo.ReconnectWait(time.Second),
		},
		Unmarshaler: &wmnats.NATSMarshaler{},
		JetStream: wmnats.JetStreamConfig{
			Disabled:      false,
			AutoProvision: true,
		},
	}, NewWatermillLogger())
	if err != nil {
		return nil, fmt.Errorf("creating nats subscriber: %w", err)
	}
	return sub, nil
}

// Run consumes both topics until ctx is cancelled. Designed to run under
// supervision; returns ctx.Err() on shutdown.
func (b *Bridge) Run(ctx context.Context) error {
	activities, err := b.subscriber.Subscribe(ctx, TopicActivity)
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", TopicActivity, err)
	}
	alerts, err := b.subscriber.Subscribe(ctx, TopicAlerts)
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", TopicAlerts, err)
	}

	logging.Info().Msg("event bridge started")
	for {
		select {
		case <-ctx.Done():
			logging.Info().Str("component", "event-bridge").Msg("event bridge stopped")
			return ctx.Err()

		case msg, ok := <-activities:
			if !ok {
				return fmt.Errorf("activity subscription closed")
			}
			b.forwardActivity(msg)

		case msg, ok := <-alerts:
			if !ok {
				return fmt.Errorf("alert subscription closed")
			}
			b.forwardAlert(msg)
		}
	}
}

// Malformed payloads are acked: redelivering them can never succeed.
func (b *Bridge) forwardActivity(msg *message.Message) {
	var env ActivityEnvelope
	if err := json.Unmarshal(msg.Payload, &env); err != nil {
		logging.Error().Err(err).Str("message_id", msg.UUID).Msg("dropping malformed activity event")
		msg.Ack()
		return
	}
	b.hub.Broadcast(websocket.Message{Type: websocket.MessageTypeActivity, Data: env.Activity})
	msg.Ack()
}

func (b *Bridge) forwardAlert(msg *message.Message) {
	var alert store.Alert
	if err := json.Unmarshal(msg.Payload, &alert); err != nil {
		logging.Error().Err(err).Str("message_id", msg.UUID).Msg("dropping malformed alert event")
		msg.Ack()
		return
	}
	b.hub.Broadcast(websocket.Message{Type: websocket.MessageTypeAlert, Data: alert})
	msg.Ack()
}
