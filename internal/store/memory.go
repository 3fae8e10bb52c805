// AuthShield - Continuous Authentication Risk Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authshield

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/authshield/internal/geo"
	"github.com/tomtom215/authshield/internal/risk"
)

// Memory is an in-memory implementation of every store interface.
// Used in tests and as a seed backend; safe for concurrent use.
type Memory struct {
	mu           sync.RWMutex
	samples      map[string][]risk.Sample // per user, oldest first
	points       map[string][]geo.Point   // per user, oldest first
	alerts       []Alert
	devices      map[string]*DeviceProfile  // key userID + "/" + deviceID
	fingerprints map[string]*TLSFingerprint // key hash
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		samples:      make(map[string][]risk.Sample),
		points:       make(map[string][]geo.Point),
		devices:      make(map[string]*DeviceProfile),
		fingerprints: make(map[string]*TLSFingerprint),
	}
}

func (m *Memory) SaveSample(_ context.Context, userID string, sample risk.Sample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples[userID] = append(m.samples[userID], sample)
	return nil
}

func (m *Memory) RecentSamples(_ context.Context, userID string, limit int) ([]risk.Sample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := m.samples[userID]
	out := make([]risk.Sample, 0, limit)
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

func (m *Memory) LatestPoint(_ context.Context, userID string) (*geo.Point, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pts := m.points[userID]
	if len(pts) == 0 {
		return nil, nil
	}
	p := pts[len(pts)-1]
	return &p, nil
}

func (m *Memory) AppendPoint(_ context.Context, p geo.Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.points[p.UserID] = append(m.points[p.UserID], p)
	return nil
}

func (m *Memory) RecentPoints(_ context.Context, userID string, limit int) ([]geo.Point, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := m.points[userID]
	out := make([]geo.Point, 0, limit)
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

func (m *Memory) SaveAlert(_ context.Context, alert Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, alert)
	return nil
}

func (m *Memory) ListAlerts(_ context.Context, filter AlertFilter) ([]Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Alert, 0, len(m.alerts))
	for _, a := range m.alerts {
		if filter.UserID != "" && a.UserID != filter.UserID {
			continue
		}
		if filter.Type != "" && a.Type != filter.Type {
			continue
		}
		if filter.Acknowledged != nil && a.Acknowledged != *filter.Acknowledged {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *Memory) AcknowledgeAlert(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.alerts {
		if m.alerts[i].ID == id {
			m.alerts[i].Acknowledged = true
			return nil
		}
	}
	return ErrNotFound
}

func deviceKey(userID, deviceID string) string { return userID + "/" + deviceID }

func (m *Memory) GetDevice(_ context.Context, userID, deviceID string) (*DeviceProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.devices[deviceKey(userID, deviceID)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *Memory) TouchDevice(_ context.Context, userID, deviceID string, at time.Time) (*DeviceProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := deviceKey(userID, deviceID)
	p, ok := m.devices[key]
	if !ok {
		p = &DeviceProfile{
			UserID:     userID,
			DeviceID:   deviceID,
			TrustScore: 0.5,
			FirstSeen:  at,
		}
		m.devices[key] = p
	}
	p.SeenCount++
	p.LastSeen = at
	cp := *p
	return &cp, nil
}

func (m *Memory) GetFingerprint(_ context.Context, hash string) (*TLSFingerprint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	fp, ok := m.fingerprints[hash]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *fp
	return &cp, nil
}

func (m *Memory) PutFingerprint(_ context.Context, fp TLSFingerprint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := fp
	m.fingerprints[fp.Hash] = &cp
	return nil
}
