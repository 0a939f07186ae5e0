package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCORS(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	handler := CORS([]string{" https://app.example.com/ "}, next)

	tests := []struct {
		name         string
		method       string
		origin       string
		preflight    bool
		wantStatus   int
		wantAllowed  bool
		wantMethods  bool
		wantVaryOnly bool
	}{
		{name: "preflight from allowed origin", method: http.MethodOptions, origin: "https://app.example.com", preflight: true, wantStatus: http.StatusNoContent, wantAllowed: true, wantMethods: true},
		{name: "preflight from unknown origin", method: http.MethodOptions, origin: "https://evil.example.com", preflight: true, wantStatus: http.StatusNoContent, wantVaryOnly: true},
		{name: "plain OPTIONS reaches the router", method: http.MethodOptions, origin: "https://app.example.com", wantStatus: http.StatusServiceUnavailable, wantAllowed: true},
		{name: "request from allowed origin", method: http.MethodPost, origin: "https://app.example.com", wantStatus: http.StatusServiceUnavailable, wantAllowed: true},
		{name: "request from unknown origin", method: http.MethodPost, origin: "https://evil.example.com", wantStatus: http.StatusServiceUnavailable, wantVaryOnly: true},
		{name: "request without origin", method: http.MethodGet, wantStatus: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "http://test/registrations/ev-1", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			}
			rr := httptest.NewRecorder()

			handler.ServeHTTP(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)
			if tt.wantAllowed {
				assert.Equal(t, tt.origin, rr.Header().Get("Access-Control-Allow-Origin"))
				assert.Contains(t, rr.Header().Get("Access-Control-Expose-Headers"), "Retry-After")
				assert.Contains(t, rr.Header().Get("Access-Control-Expose-Headers"), idempotentReplayedHeader)
			} else {
				assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
				assert.Empty(t, rr.Header().Get("Access-Control-Expose-Headers"))
			}
			if tt.wantAllowed || tt.wantVaryOnly {
				assert.Equal(t, "Origin", rr.Header().Get("Vary"))
			} else {
				assert.Empty(t, rr.Header().Get("Vary"))
			}
			if tt.wantMethods {
				assert.Contains(t, rr.Header().Get("Access-Control-Allow-Headers"), IdempotencyKeyHeader)
				assert.Contains(t, rr.Header().Get("Access-Control-Allow-Methods"), http.MethodDelete)
			} else {
				assert.Empty(t, rr.Header().Get("Access-Control-Allow-Methods"))
			}
		})
	}
}
