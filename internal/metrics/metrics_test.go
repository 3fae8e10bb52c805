// AuthShield - Continuous Authentication Risk Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authshield

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/sony/gobreaker/v2"
)

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatalf("writing metric: %v", err)
	}
	return m.GetGauge().GetValue()
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("writing metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestSetBreakerState(t *testing.T) {
	tests := []struct {
		state gobreaker.State
		want  float64
	}{
		{gobreaker.StateClosed, 0},
		{gobreaker.StateHalfOpen, 1},
		{gobreaker.StateOpen, 2},
	}

	for _, tt := range tests {
		SetBreakerState("test_breaker", tt.state)
		got := gaugeValue(t, BreakerState.WithLabelValues("test_breaker"))
		if got != tt.want {
			t.Errorf("state %v recorded as %v, want %v", tt.state, got, tt.want)
		}
	}
}

func TestCountersIncrement(t *testing.T) {
	before := counterValue(t, EvaluationsTotal.WithLabelValues("allow"))
	EvaluationsTotal.WithLabelValues("allow").Inc()
	after := counterValue(t, EvaluationsTotal.WithLabelValues("allow"))

	if after != before+1 {
		t.Errorf("counter went %v -> %v, want +1", before, after)
	}
}

func TestAlertsTotalLabels(t *testing.T) {
	AlertsTotal.WithLabelValues("impossible_travel", "critical").Inc()
	v := counterValue(t, AlertsTotal.WithLabelValues("impossible_travel", "critical"))
	if v < 1 {
		t.Errorf("labelled counter = %v, want >= 1", v)
	}
}
