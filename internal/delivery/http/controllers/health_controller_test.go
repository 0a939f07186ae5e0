package controllers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthController_Health(t *testing.T) {
	up := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	tests := []struct {
		name       string
		checks     map[string]HealthCheck
		wantStatus int
		want       HealthResponse
	}{
		{
			name:       "all up",
			checks:     map[string]HealthCheck{"database": up, "redis": up},
			wantStatus: http.StatusOK,
			want:       HealthResponse{Status: "ok", Checks: map[string]string{"database": "up", "redis": "up"}},
		},
		{
			name:       "redis down",
			checks:     map[string]HealthCheck{"database": up, "redis": down},
			wantStatus: http.StatusServiceUnavailable,
			want:       HealthResponse{Status: "degraded", Checks: map[string]string{"database": "up", "redis": "down"}},
		},
		{
			name:       "nothing to check",
			checks:     nil,
			wantStatus: http.StatusOK,
			want:       HealthResponse{Status: "ok", Checks: map[string]string{}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := NewHealthController(testLogger, tt.checks, time.Second)
			rr := httptest.NewRecorder()

			ctrl.Health(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			require.Equal(t, tt.wantStatus, rr.Code)
			var got HealthResponse
			decodeEnvelope(t, rr, &got)
			assert.Equal(t, tt.want, got)
		})
	}
}
