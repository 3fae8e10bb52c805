// AuthShield - Continuous Authentication Risk Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authshield

package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/authshield/internal/engine"
	"github.com/tomtom215/authshield/internal/logging"
	"github.com/tomtom215/authshield/internal/middleware"
	"github.com/tomtom215/authshield/internal/risk"
	"github.com/tomtom215/authshield/internal/store"
	"github.com/tomtom215/authshield/internal/validation"
	"github.com/tomtom215/authshield/internal/websocket"
)

// maxBodyBytes bounds request bodies on scoring routes.
const maxBodyBytes = 256 * 1024

// HealthChecker reports component health for the health endpoint.
type HealthChecker func(ctx context.Context) error

// Handlers holds the dependencies of the HTTP surface.
type Handlers struct {
	engine  *engine.Engine
	alerts  store.AlertStore
	hub     *websocket.Hub
	checks  map[string]HealthChecker
	version string
}

// NewHandlers wires the HTTP handlers. checks maps component name to a
// health probe; nil is allowed.
func NewHandlers(eng *engine.Engine, alerts store.AlertStore, hub *websocket.Hub, checks map[string]HealthChecker, version string) *Handlers {
	return &Handlers{engine: eng, alerts: alerts, hub: hub, checks: checks, version: version}
}

func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	type componentState struct {
		Status string `json:"status"`
		Error  string `json:"error,omitempty"`
	}
	components := make(map[string]componentState, len(h.checks))
	healthy := true
	for name, check := range h.checks {
		if err := check(r.Context()); err != nil {
			components[name] = componentState{Status: "unhealthy", Error: err.Error()}
			healthy = false
		} else {
			components[name] = componentState{Status: "ok"}
		}
	}

	status := "ok"
	code := http.StatusOK
	if !healthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":     status,
		"version":    h.version,
		"components": components,
	})
}

func (h *Handlers) handleScore(w http.ResponseWriter, r *http.Request) {
	var req ScoreRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	ev, err := h.engine.EvaluateSession(r.Context(), req.Input())
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (h *Handlers) handleAnomalyCheck(w http.ResponseWriter, r *http.Request) {
	var req AnomalyCheckRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.engine.CheckAnomaly(r.Context(), req.UserID, req.Behavioral.Sample())
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) handleBaseline(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	profile, ok, err := h.engine.Baseline(r.Context(), userID)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	resp := BaselineResponse{UserID: userID, Status: BaselineStatusOK, Baseline: profile}
	if !ok {
		resp.Status = BaselineStatusInsufficientData
		resp.Baseline = nil
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) handleTravel(w http.ResponseWriter, r *http.Request) {
	var req TravelRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	verdict, err := h.engine.DetectImpossibleTravel(r.Context(), req.Observation())
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, verdict)
}

func (h *Handlers) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	filter := store.AlertFilter{
		UserID: r.URL.Query().Get("userId"),
		Type:   r.URL.Query().Get("type"),
		Limit:  100,
	}
	if v := r.URL.Query().Get("acknowledged"); v != "" {
		acked, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "acknowledged must be true or false")
			return
		}
		filter.Acknowledged = &acked
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 || limit > 1000 {
			writeError(w, r, http.StatusBadRequest, "limit must be an integer between 1 and 1000")
			return
		}
		filter.Limit = limit
	}

	alerts, err := h.alerts.ListAlerts(r.Context(), filter)
	if err != nil {
		logging.Error().Err(err).Msg("listing alerts failed")
		writeError(w, r, http.StatusInternalServerError, "failed to list alerts")
		return
	}
	if alerts == nil {
		alerts = []store.Alert{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts, "count": len(alerts)})
}

func (h *Handlers) handleAcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	err := h.alerts.AcknowledgeAlert(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "alert not found")
		return
	}
	if err != nil {
		logging.Error().Err(err).Str("alert_id", id).Msg("acknowledging alert failed")
		writeError(w, r, http.StatusInternalServerError, "failed to acknowledge alert")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": "acknowledged"})
}

func (h *Handlers) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWS(h.hub, w, r)
}

// decodeAndValidate parses the JSON body into dst and validates it,
// writing the 400 response itself on failure.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, r, http.StatusBadRequest, "malformed request body: "+err.Error())
		return false
	}
	if err := validation.Validate(dst); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, risk.ErrInvalidInput) {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	logging.Error().Err(err).Str("path", r.URL.Path).Msg("evaluation failed")
	writeError(w, r, http.StatusInternalServerError, "evaluation failed")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, status, ErrorResponse{
		Error:     msg,
		RequestID: middleware.GetRequestID(r.Context()),
	})
}
