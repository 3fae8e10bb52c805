// AuthShield - Continuous Authentication Risk Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authshield

// Package websocket implements the live activity feed: a hub that fans
// risk events out to connected dashboard clients.
package websocket

import (
	"context"
	"sort"
	"sync"

	"github.com/tomtom215/authshield/internal/logging"
	"github.com/tomtom215/authshield/internal/metrics"
)

// Message types sent over the activity feed.
const (
	MessageTypeActivity = "activity"
	MessageTypeAlert    = "alert"
	MessageTypePing     = "ping"
	MessageTypePong     = "pong"
)

// Message is the envelope for all feed traffic.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Hub maintains the set of active clients and broadcasts messages to them.
type Hub struct {
	clients      map[*Client]bool
	broadcast    chan Message
	register     chan *Client
	unregister   chan *Client
	clientBuffer int
	mu           sync.RWMutex
}

// NewHub creates a hub with the given pending-broadcast capacity.
func NewHub(broadcastBuffer int) *Hub {
	if broadcastBuffer <= 0 {
		broadcastBuffer = 256
	}
	return &Hub{
		clients:      make(map[*Client]bool),
		broadcast:    make(chan Message, broadcastBuffer),
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		clientBuffer: 64,
	}
}

// SetClientBuffer sets the per-client send queue capacity. Call before
// the first client connects.
func (h *Hub) SetClientBuffer(n int) {
	if n > 0 {
		h.clientBuffer = n
	}
}

// Run processes client lifecycle and broadcast events until ctx is
// cancelled, then closes all clients and returns ctx.Err(). Designed to
// run under supervision.
//
// DETERMINISM: lifecycle events are drained before broadcasts so client
// state is consistent when a message fans out.
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.register:
			h.addClient(client)
			continue
		case client := <-h.unregister:
			h.removeClient(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case message := <-h.broadcast:
			h.broadcastToClients(message)
		}
	}
}

// Broadcast queues a message for all connected clients. Never blocks: if
// the hub is saturated the message is dropped with a warning. The feed is
// best-effort; the persisted alert is the source of truth.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		logging.Warn().Str("type", msg.Type).Msg("broadcast channel full, dropping message")
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	total := len(h.clients)
	h.mu.Unlock()
	metrics.WebsocketClients.Set(float64(total))
	logging.Info().Int("total_clients", total).Msg("websocket client connected")
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	total := len(h.clients)
	h.mu.Unlock()
	metrics.WebsocketClients.Set(float64(total))
	logging.Info().Int("total_clients", total).Msg("websocket client disconnected")
}

func (h *Hub) shutdown(ctx context.Context) {
	h.mu.Lock()
	closed := len(h.clients)
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
	h.mu.Unlock()
	metrics.WebsocketClients.Set(0)

	logging.Info().
		Str("component", "websocket-hub").
		AnErr("reason", ctx.Err()).
		Int("clients_closed", closed).
		Msg("websocket hub stopped")
}

// broadcastToClients fans a message out in deterministic client-id order.
// Clients whose send queue is full are dropped; a stalled consumer must
// not back up the feed for everyone else.
func (h *Hub) broadcastToClients(message Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].id < clients[j].id })

	for _, client := range clients {
		select {
		case client.send <- message:
		default:
			logging.Warn().Uint64("client_id", client.id).Msg("client send queue full, disconnecting")
			close(client.send)
			delete(h.clients, client)
		}
	}
	metrics.WebsocketClients.Set(float64(len(h.clients)))
}
