// AuthShield - Continuous Authentication Risk Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authshield

package services

import (
	"context"
)

// Runner matches components whose Run method blocks until the context
// is canceled: the websocket hub and the NATS-to-websocket bridge.
type Runner interface {
	Run(ctx context.Context) error
}

// HubService runs the websocket hub under supervision.
type HubService struct {
	hub Runner
}

// NewHubService wraps the websocket hub as a supervised service.
func NewHubService(hub Runner) *HubService {
	return &HubService{hub: hub}
}

// Serve implements suture.Service.
func (s *HubService) Serve(ctx context.Context) error {
	return s.hub.Run(ctx)
}

// String implements fmt.Stringer for supervisor log messages.
func (s *HubService) String() string { return "websocket-hub" }

// BridgeService runs the event bridge that forwards NATS risk events to
// websocket clients.
type BridgeService struct {
	bridge Runner
}

// NewBridgeService wraps the event bridge as a supervised service.
func NewBridgeService(bridge Runner) *BridgeService {
	return &BridgeService{bridge: bridge}
}

// Serve implements suture.Service.
func (s *BridgeService) Serve(ctx context.Context) error {
	return s.bridge.Run(ctx)
}

// String implements fmt.Stringer for supervisor log messages.
func (s *BridgeService) String() string { return "event-bridge" }
