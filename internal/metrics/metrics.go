// AuthShield - Continuous Authentication Risk Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authshield

// Package metrics defines the Prometheus instrumentation for the service.
// All metrics are registered on the default registry via promauto and
// exposed at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker/v2"
)

var (
	// EvaluationsTotal counts session evaluations by final recommendation.
	EvaluationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "authshield",
		Name:      "evaluations_total",
		Help:      "Session risk evaluations by recommendation.",
	}, []string{"recommendation"})

	// EvaluationDuration tracks end-to-end evaluation latency.
	EvaluationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "authshield",
		Name:      "evaluation_duration_seconds",
		Help:      "Latency of full session evaluations.",
		Buckets:   prometheus.DefBuckets,
	})

	// AnomaliesTotal counts behavioral samples flagged as anomalous.
	AnomaliesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "authshield",
		Name:      "anomalies_total",
		Help:      "Behavioral samples flagged as anomalous.",
	})

	// ImpossibleTravelTotal counts flagged impossible-travel events.
	ImpossibleTravelTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "authshield",
		Name:      "impossible_travel_total",
		Help:      "Logins flagged as impossible travel.",
	})

	// AlertsTotal counts persisted alerts by type and severity.
	AlertsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "authshield",
		Name:      "alerts_total",
		Help:      "Anomaly alerts persisted, by type and severity.",
	}, []string{"type", "severity"})

	// EventPublishesTotal counts event-bus publishes by topic and outcome.
	EventPublishesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "authshield",
		Name:      "event_publishes_total",
		Help:      "Event publishes by topic and outcome.",
	}, []string{"topic", "status"})

	// WebsocketClients tracks currently connected activity-feed clients.
	WebsocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "authshield",
		Name:      "websocket_clients",
		Help:      "Connected websocket clients.",
	})

	// BreakerState exposes circuit breaker state per breaker
	// (0 closed, 1 half-open, 2 open).
	BreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "authshield",
		Name:      "circuit_breaker_state",
		Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open).",
	}, []string{"name"})

	// HTTPRequestsTotal counts HTTP requests by method, route and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "authshield",
		Name:      "http_requests_total",
		Help:      "HTTP requests by method, route pattern and status code.",
	}, []string{"method", "route", "status"})

	// HTTPRequestDuration tracks HTTP handler latency by route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "authshield",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route pattern.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})
)

// SetBreakerState records a breaker's state transition.
func SetBreakerState(name string, state gobreaker.State) {
	var v float64
	switch state {
	case gobreaker.StateClosed:
		v = 0
	case gobreaker.StateHalfOpen:
		v = 1
	case gobreaker.StateOpen:
		v = 2
	}
	BreakerState.WithLabelValues(name).Set(v)
}
