package controllers

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"eventregistration/internal/delivery/http/helpers"
)

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

// HealthResponse is the data payload for GET /healthz.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

type HealthController struct {
	Logger  *slog.Logger
	Checks  map[string]HealthCheck
	Timeout time.Duration
}

func NewHealthController(logger *slog.Logger, checks map[string]HealthCheck, timeout time.Duration) *HealthController {
	return &HealthController{
		Logger:  logger,
		Checks:  checks,
		Timeout: timeout,
	}
}

// Health godoc
// @Summary Health check
// @Description Pings the database and Redis. Responds 503 when any dependency is down.
// @Tags health
// @Produce json
// @Success 200 {object} helpers.APIResponse "data.status is ok"
// @Failure 503 {object} helpers.APIResponse "data.status is degraded"
// @Router /healthz [get]
func (c *HealthController) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	names := make([]string, 0, len(c.Checks))
	for name := range c.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := HealthResponse{Status: "ok", Checks: make(map[string]string, len(names))}
	for _, name := range names {
		if err := c.Checks[name](ctx); err != nil {
			c.Logger.WarnContext(ctx, "health check failed", "check", name, "err", err)
			resp.Checks[name] = "down"
			resp.Status = "degraded"
			continue
		}
		resp.Checks[name] = "up"
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	helpers.WriteJSONSuccess(w, status, resp)
}
