// AuthShield - Continuous Authentication Risk Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authshield

package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	wmnats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	natsgo "github.com/nats-io/nats.go"
	"github.com/sony/gobreaker/v2"

	"github.com/tomtom215/authshield/internal/logging"
	"github.com/tomtom215/authshield/internal/metrics"
	"github.com/tomtom215/authshield/internal/store"
)

// Publisher emits risk events to the bus. Implementations must be safe
// for concurrent use; all methods are fire-and-forget from the engine's
// point of view.
type Publisher interface {
	PublishActivity(ctx context.Context, activity Activity) error
	PublishAlert(ctx context.Context, alert store.Alert) error
	Close() error
}

// NopPublisher discards events; used when NATS is disabled.
type NopPublisher struct{}

func (NopPublisher) PublishActivity(context.Context, Activity) error { return nil }
func (NopPublisher) PublishAlert(context.Context, store.Alert) error { return nil }
func (NopPublisher) Close() error                                    { return nil }

// NATSPublisher publishes events to NATS JetStream through Watermill,
// with a circuit breaker so a broken bus cannot slow down evaluations.
type NATSPublisher struct {
	publisher message.Publisher
	cb        *gobreaker.CircuitBreaker[any]
	mu        sync.RWMutex
	closed    bool
}

// NewNATSPublisher connects to the NATS server at url.
func NewNATSPublisher(url string, connectTimeout time.Duration) (*NATSPublisher, error) {
	logger := NewWatermillLogger()

	natsOpts := []natsgo.Option{
		natsgo.Timeout(connectTimeout),
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(time.Second),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logging.Error().Err(err).Msg("nats disconnected")
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logging.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
	}

	pub, err := wmnats.NewPublisher(wmnats.PublisherConfig{
		URL:         url,
		NatsOptions: natsOpts,
		Marshaler:   &wmnats.NATSMarshaler{},
		JetStream: wmnats.JetStreamConfig{
			Disabled:      false,
			AutoProvision: true,
			TrackMsgId:    true,
			PublishOptions: []natsgo.PubOpt{
				natsgo.RetryAttempts(3),
				natsgo.RetryWait(100 * time.Millisecond),
			},
		},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating nats publisher: %w", err)
	}

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "nats_publisher",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 10 &&
				float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
			metrics.SetBreakerState(name, to)
		},
	})

	return &NATSPublisher{publisher: pub, cb: cb}, nil
}

// PublishActivity emits a feed activity on the activity topic.
func (p *NATSPublisher) PublishActivity(ctx context.Context, activity Activity) error {
	data, err := json.Marshal(activity.Envelope())
	if err != nil {
		return fmt.Errorf("encoding activity: %w", err)
	}
	msg := message.NewMessage(activity.ID, data)
	msg.Metadata.Set("user_id", activity.UserID)
	return p.publish(ctx, TopicActivity, msg)
}

// PublishAlert emits a persisted alert on the alerts topic.
func (p *NATSPublisher) PublishAlert(ctx context.Context, alert store.Alert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("encoding alert: %w", err)
	}
	id := alert.ID
	if id == "" {
		id = uuid.NewString()
	}
	msg := message.NewMessage(id, data)
	msg.Metadata.Set("user_id", alert.UserID)
	msg.Metadata.Set("alert_type", alert.Type)
	return p.publish(ctx, TopicAlerts, msg)
}

func (p *NATSPublisher) publish(_ context.Context, topic string, msg *message.Message) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return fmt.Errorf("publisher is closed")
	}
	p.mu.RUnlock()

	// Message UUID doubles as the JetStream dedup id.
	if msg.Metadata.Get(natsgo.MsgIdHdr) == "" {
		msg.Metadata.Set(natsgo.MsgIdHdr, msg.UUID)
	}

	_, err := p.cb.Execute(func() (any, error) {
		return nil, p.publisher.Publish(topic, msg)
	})
	if err != nil {
		metrics.EventPublishesTotal.WithLabelValues(topic, "error").Inc()
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}
	metrics.EventPublishesTotal.WithLabelValues(topic, "ok").Inc()
	return nil
}

// Close shuts the publisher down; subsequent publishes fail fast.
func (p *NATSPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.publisher.Close()
}
