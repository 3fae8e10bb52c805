// AuthShield - Continuous Authentication Risk Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authshield

package store

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/tomtom215/authshield/internal/geo"
	"github.com/tomtom215/authshield/internal/logging"
	"github.com/tomtom215/authshield/internal/metrics"
)

// Circuit-breaker decorators for the lookup stores on the scoring path.
// When a backend fails repeatedly the breaker opens and lookups fail fast;
// the engine then falls back to documented default trust values instead of
// stalling every evaluation on a dying store.

func breakerSettings(name string) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        name,
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
	}
}

// deviceResult distinguishes "not found" from backend failure so that a
// missing profile, a perfectly normal outcome, never trips the breaker.
type deviceResult struct {
	profile  *DeviceProfile
	notFound bool
}

// BreakerDeviceStore wraps a DeviceStore with a circuit breaker.
type BreakerDeviceStore struct {
	inner DeviceStore
	cb    *gobreaker.CircuitBreaker[deviceResult]
}

// NewBreakerDeviceStore decorates inner with a breaker named "device_store".
func NewBreakerDeviceStore(inner DeviceStore) *BreakerDeviceStore {
	return &BreakerDeviceStore{
		inner: inner,
		cb:    gobreaker.NewCircuitBreaker[deviceResult](breakerSettings("device_store")),
	}
}

func (s *BreakerDeviceStore) GetDevice(ctx context.Context, userID, deviceID string) (*DeviceProfile, error) {
	res, err := s.cb.Execute(func() (deviceResult, error) {
		p, err := s.inner.GetDevice(ctx, userID, deviceID)
		if errors.Is(err, ErrNotFound) {
			return deviceResult{notFound: true}, nil
		}
		if err != nil {
			return deviceResult{}, err
		}
		return deviceResult{profile: p}, nil
	})
	if err != nil {
		return nil, err
	}
	if res.notFound {
		return nil, ErrNotFound
	}
	return res.profile, nil
}

func (s *BreakerDeviceStore) TouchDevice(ctx context.Context, userID, deviceID string, at time.Time) (*DeviceProfile, error) {
	res, err := s.cb.Execute(func() (deviceResult, error) {
		p, err := s.inner.TouchDevice(ctx, userID, deviceID, at)
		if err != nil {
			return deviceResult{}, err
		}
		return deviceResult{profile: p}, nil
	})
	if err != nil {
		return nil, err
	}
	return res.profile, nil
}

// fingerprintResult mirrors deviceResult for TLS fingerprints.
type fingerprintResult struct {
	fp       *TLSFingerprint
	notFound bool
}

// BreakerFingerprintStore wraps a FingerprintStore with a circuit breaker.
type BreakerFingerprintStore struct {
	inner FingerprintStore
	cb    *gobreaker.CircuitBreaker[fingerprintResult]
}

// NewBreakerFingerprintStore decorates inner with a breaker named
// "fingerprint_store".
func NewBreakerFingerprintStore(inner FingerprintStore) *BreakerFingerprintStore {
	return &BreakerFingerprintStore{
		inner: inner,
		cb:    gobreaker.NewCircuitBreaker[fingerprintResult](breakerSettings("fingerprint_store")),
	}
}

func (s *BreakerFingerprintStore) GetFingerprint(ctx context.Context, hash string) (*TLSFingerprint, error) {
	res, err := s.cb.Execute(func() (fingerprintResult, error) {
		fp, err := s.inner.GetFingerprint(ctx, hash)
		if errors.Is(err, ErrNotFound) {
			return fingerprintResult{notFound: true}, nil
		}
		if err != nil {
			return fingerprintResult{}, err
		}
		return fingerprintResult{fp: fp}, nil
	})
	if err != nil {
		return nil, err
	}
	if res.notFound {
		return nil, ErrNotFound
	}
	return res.fp, nil
}

func (s *BreakerFingerprintStore) PutFingerprint(ctx context.Context, fp TLSFingerprint) error {
	_, err := s.cb.Execute(func() (fingerprintResult, error) {
		return fingerprintResult{}, s.inner.PutFingerprint(ctx, fp)
	})
	return err
}

// BreakerGeoStore wraps a GeoStore with a circuit breaker.
type BreakerGeoStore struct {
	inner GeoStore
	cb    *gobreaker.CircuitBreaker[[]geo.Point]
}

// NewBreakerGeoStore decorates inner with a breaker named "geo_store".
func NewBreakerGeoStore(inner GeoStore) *BreakerGeoStore {
	return &BreakerGeoStore{
		inner: inner,
		cb:    gobreaker.NewCircuitBreaker[[]geo.Point](breakerSettings("geo_store")),
	}
}

func (s *BreakerGeoStore) LatestPoint(ctx context.Context, userID string) (*geo.Point, error) {
	pts, err := s.cb.Execute(func() ([]geo.Point, error) {
		p, err := s.inner.LatestPoint(ctx, userID)
		if err != nil {
			return nil, err
		}
		if p == nil {
			return nil, nil
		}
		return []geo.Point{*p}, nil
	})
	if err != nil {
		return nil, err
	}
	if len(pts) == 0 {
		return nil, nil
	}
	return &pts[0], nil
}

func (s *BreakerGeoStore) AppendPoint(ctx context.Context, p geo.Point) error {
	_, err := s.cb.Execute(func() ([]geo.Point, error) {
		return nil, s.inner.AppendPoint(ctx, p)
	})
	return err
}

func (s *BreakerGeoStore) RecentPoints(ctx context.Context, userID string, limit int) ([]geo.Point, error) {
	return s.cb.Execute(func() ([]geo.Point, error) {
		return s.inner.RecentPoints(ctx, userID, limit)
	})
}
