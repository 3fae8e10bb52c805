// AuthShield - Continuous Authentication Risk Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authshield

// Package main is the entry point for the AuthShield server.
//
// AuthShield continuously scores authenticated sessions from behavioral
// telemetry (mouse dynamics, keystroke timing), device and TLS fingerprint
// familiarity, and geographic velocity, and recommends allow, step_up, or
// block per evaluation.
//
// # Startup order
//
//  1. Configuration: defaults, YAML file, then AUTHSHIELD_ env vars (koanf)
//  2. Logging: global zerolog from the logging section
//  3. DuckDB: behavioral samples, location history, alerts
//  4. Badger: device profiles and TLS fingerprints
//  5. NATS: embedded JetStream server or external URL (optional)
//  6. Supervisor tree: storage, messaging, and API layers under suture
//
// # Shutdown
//
// SIGINT/SIGTERM cancel the root context; the tree drains the HTTP server
// within server.shutdown_timeout, then stores and the event pipeline close.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/authshield/internal/api"
	"github.com/tomtom215/authshield/internal/config"
	"github.com/tomtom215/authshield/internal/engine"
	"github.com/tomtom215/authshield/internal/events"
	"github.com/tomtom215/authshield/internal/geo"
	"github.com/tomtom215/authshield/internal/logging"
	"github.com/tomtom215/authshield/internal/risk"
	"github.com/tomtom215/authshield/internal/store"
	"github.com/tomtom215/authshield/internal/supervisor"
	"github.com/tomtom215/authshield/internal/supervisor/services"
	ws "github.com/tomtom215/authshield/internal/websocket"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to YAML config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("version", version).
		Str("db_path", cfg.Database.Path).
		Bool("nats_enabled", cfg.NATS.Enabled).
		Msg("starting authshield")

	db, err := store.OpenDuckDB(cfg.Database.Path, cfg.Database.MaxOpenConns)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to open duckdb")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("error closing duckdb")
		}
	}()

	kv, err := store.OpenBadger(cfg.Badger.Dir)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to open badger")
	}
	defer func() {
		if err := kv.Close(); err != nil {
			logging.Error().Err(err).Msg("error closing badger")
		}
	}()

	// Lookup paths to shared state go through circuit breakers so a sick
	// store degrades evaluations instead of stalling them.
	devices := store.NewBreakerDeviceStore(kv)
	fingerprints := store.NewBreakerFingerprintStore(kv)
	geoStore := store.NewBreakerGeoStore(db)

	scoring := risk.DefaultScoringPolicy()
	scoring.MinBaselineSamples = cfg.Risk.MinBaselineSamples
	scoring.NoBaselineScore = cfg.Risk.NoBaselineScore

	aggregation := risk.DefaultAggregationPolicy()
	aggregation.Weights = risk.TrustWeights{
		Device:     cfg.Risk.DeviceWeight,
		TLS:        cfg.Risk.TLSWeight,
		Behavioral: cfg.Risk.BehavioralWeight,
	}
	aggregation.AllowThreshold = cfg.Risk.AllowThreshold
	aggregation.StepUpThreshold = cfg.Risk.StepUpThreshold

	geoPolicy := geo.DefaultPolicy()
	geoPolicy.ImpossibleSpeedKmh = cfg.Risk.ImpossibleSpeedKmh
	geoPolicy.CriticalSpeedKmh = cfg.Risk.CriticalSpeedKmh
	detector := geo.NewVelocityDetector(geoStore, geoPolicy)

	hub := ws.NewHub(cfg.WebSocket.BroadcastBuffer)
	hub.SetClientBuffer(cfg.WebSocket.ClientBuffer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})

	checks := map[string]api.HealthChecker{
		"duckdb": db.Ping,
	}

	// Event pipeline. With NATS the engine publishes to JetStream and the
	// bridge forwards to the websocket hub; without it the engine hands
	// messages to the hub directly.
	var publisher events.Publisher = events.NopPublisher{}
	var broadcaster events.Broadcaster = hub
	if cfg.NATS.Enabled {
		url := cfg.NATS.URL
		if cfg.NATS.Embedded {
			srv, err := events.StartEmbeddedServer(cfg.NATS.StoreDir)
			if err != nil {
				logging.Fatal().Err(err).Msg("failed to start embedded nats server")
			}
			defer srv.Shutdown()
			url = srv.ClientURL()
			checks["nats"] = func(context.Context) error {
				if !srv.Running() {
					return errors.New("embedded nats server not running")
				}
				return nil
			}
			logging.Info().Str("url", url).Msg("embedded nats server started")
		}

		natsPublisher, err := events.NewNATSPublisher(url, cfg.NATS.ConnectTimeout)
		if err != nil {
			logging.Fatal().Err(err).Str("url", url).Msg("failed to connect nats publisher")
		}
		defer func() {
			if err := natsPublisher.Close(); err != nil {
				logging.Error().Err(err).Msg("error closing nats publisher")
			}
		}()

		subscriber, err := events.NewNATSSubscriber(url, cfg.NATS.ConnectTimeout)
		if err != nil {
			logging.Fatal().Err(err).Str("url", url).Msg("failed to connect nats subscriber")
		}

		publisher = natsPublisher
		broadcaster = nil
		tree.AddMessagingService(services.NewBridgeService(events.NewBridge(hub, subscriber)))
	}

	eng := engine.New(
		engine.Config{
			BaselineWindow:     cfg.Risk.BaselineWindow,
			MinBaselineSamples: cfg.Risk.MinBaselineSamples,
			CriticalSpeedKmh:   cfg.Risk.CriticalSpeedKmh,
		},
		risk.NewAnomalyScorer(scoring),
		risk.NewTrustAggregator(aggregation),
		detector,
		db, devices, fingerprints, db,
		publisher, broadcaster,
	)

	handlers := api.NewHandlers(eng, db, hub, checks, version)
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewRouter(handlers, cfg.Security),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	tree.AddStorageService(services.NewGCService(kv, cfg.Badger.GCInterval))
	tree.AddStorageService(services.NewRetentionService(
		db,
		time.Duration(cfg.Database.RetentionDays)*24*time.Hour,
		time.Hour,
	))
	tree.AddMessagingService(services.NewHubService(hub))
	tree.AddAPIService(services.NewHTTPService(server, cfg.Server.ShutdownTimeout))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("received shutdown signal")
		cancel()
	}()

	logging.Info().Str("addr", server.Addr).Msg("starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("supervisor error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("service failed to stop within timeout")
	}

	logging.Info().Msg("authshield stopped")
}
