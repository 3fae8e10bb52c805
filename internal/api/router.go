// AuthShield - Continuous Authentication Risk Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authshield

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/authshield/internal/config"
	"github.com/tomtom215/authshield/internal/middleware"
)

// NewRouter builds the HTTP surface: health and metrics at the root,
// the risk API under /api/v1, and the websocket feed.
//
// Authentication is the deployment's concern; this service is expected
// to sit behind an authenticating gateway.
func NewRouter(h *Handlers, sec config.SecurityConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Prometheus)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(securityHeaders)

	if len(sec.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   sec.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Content-Type", middleware.RequestIDHeader},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.handleHealth)
		r.Get("/ws", h.handleWebsocket)

		// Scoring routes are rate limited per client IP; the feed and
		// health are not, so dashboards keep working under pressure.
		r.Group(func(r chi.Router) {
			r.Use(httprate.LimitByIP(sec.RateLimit, sec.RateLimitWindow))

			r.Post("/ml/score", h.handleScore)
			r.Post("/ml/anomaly-check", h.handleAnomalyCheck)
			r.Get("/ml/baseline/{userID}", h.handleBaseline)
			r.Post("/detect-impossible-travel", h.handleTravel)

			r.Get("/alerts", h.handleListAlerts)
			r.Post("/alerts/{id}/acknowledge", h.handleAcknowledgeAlert)
		})
	})

	return r
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}
