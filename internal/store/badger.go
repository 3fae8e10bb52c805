// AuthShield - Continuous Authentication Risk Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authshield

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/authshield/internal/logging"
)

// Key layout:
//
//	device/<userID>/<deviceID> -> DeviceProfile
//	tlsfp/<hash>               -> TLSFingerprint
const (
	devicePrefix      = "device/"
	fingerprintPrefix = "tlsfp/"
)

// newDeviceTrust is the stored trust score assigned when a device profile
// is first created. Familiarity is tracked separately via SeenCount.
const newDeviceTrust = 0.5

// Badger implements DeviceStore and FingerprintStore on an embedded
// Badger database. These are per-request point lookups on the scoring
// path, so they live in a KV store rather than DuckDB.
type Badger struct {
	db *badger.DB
}

// OpenBadger opens the store at dir; an empty dir opens an in-memory
// instance (used in tests).
func OpenBadger(dir string) (*Badger, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger at %q: %w", dir, err)
	}
	return &Badger{db: db}, nil
}

// Close closes the underlying database.
func (b *Badger) Close() error { return b.db.Close() }

// RunGC runs Badger value-log garbage collection until the given context
// is cancelled. Intended to be launched as a goroutine.
func (b *Badger) RunGC(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// ErrNoRewrite just means there was nothing to collect.
			if err := b.db.RunValueLogGC(0.5); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				logging.Warn().Err(err).Msg("badger value log gc failed")
			}
		}
	}
}

func (b *Badger) GetDevice(_ context.Context, userID, deviceID string) (*DeviceProfile, error) {
	var profile DeviceProfile
	err := b.get(devicePrefix+userID+"/"+deviceID, &profile)
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (b *Badger) TouchDevice(_ context.Context, userID, deviceID string, at time.Time) (*DeviceProfile, error) {
	key := []byte(devicePrefix + userID + "/" + deviceID)
	var profile DeviceProfile

	err := b.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
			profile = DeviceProfile{
				UserID:     userID,
				DeviceID:   deviceID,
				TrustScore: newDeviceTrust,
				FirstSeen:  at,
			}
		case err != nil:
			return err
		default:
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &profile)
			}); err != nil {
				return err
			}
		}

		profile.SeenCount++
		profile.LastSeen = at

		data, err := json.Marshal(profile)
		if err != nil {
			return err
		}
		return txn.Set(key, data)
	})
	if err != nil {
		return nil, fmt.Errorf("touching device %s/%s: %w", userID, deviceID, err)
	}
	return &profile, nil
}

func (b *Badger) GetFingerprint(_ context.Context, hash string) (*TLSFingerprint, error) {
	var fp TLSFingerprint
	if err := b.get(fingerprintPrefix+hash, &fp); err != nil {
		return nil, err
	}
	return &fp, nil
}

func (b *Badger) PutFingerprint(_ context.Context, fp TLSFingerprint) error {
	data, err := json.Marshal(fp)
	if err != nil {
		return fmt.Errorf("encoding fingerprint: %w", err)
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(fingerprintPrefix+fp.Hash), data)
	})
	if err != nil {
		return fmt.Errorf("storing fingerprint %s: %w", fp.Hash, err)
	}
	return nil
}

func (b *Badger) get(key string, out any) error {
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, out)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", key, err)
	}
	return nil
}
