package api

import (
	"context"
	"net/http"
	"time"
)

type dependencyCheck struct {
	name     string
	required bool
	ping     func(ctx context.Context) error
}

type HealthHandler struct {
	checks  []dependencyCheck
	env     string
	version string
}

func NewHealthHandler(env, version string) *HealthHandler {
	return &HealthHandler{
		env:     env,
		version: version,
	}
}

// Require registers a dependency whose outage makes the service unready.
func (h *HealthHandler) Require(name string, ping func(ctx context.Context) error) {
	h.checks = append(h.checks, dependencyCheck{name: name, required: true, ping: ping})
}

// Optional registers a dependency whose outage only degrades the service.
func (h *HealthHandler) Optional(name string, ping func(ctx context.Context) error) {
	h.checks = append(h.checks, dependencyCheck{name: name, ping: ping})
}

type LivenessResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Env     string `json:"env,omitempty"`
}

type ReadinessResponse struct {
	Status       string            `json:"status"`
	Version      string            `json:"version,omitempty"`
	Env          string            `json:"env,omitempty"`
	Dependencies map[string]string `json:"dependencies"`
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	resp := LivenessResponse{
		Status:  "ok",
		Version: h.version,
		Env:     h.env,
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	deps := make(map[string]string, len(h.checks))
	status := "ok"

	for _, c := range h.checks {
		checkCtx, checkCancel := context.WithTimeout(ctx, time.Second)
		err := c.ping(checkCtx)
		checkCancel()

		if err == nil {
			deps[c.name] = "ok"
			continue
		}
		deps[c.name] = "down"
		switch {
		case c.required:
			status = "error"
		case status == "ok":
			status = "degraded"
		}
	}

	resp := ReadinessResponse{
		Status:       status,
		Version:      h.version,
		Env:          h.env,
		Dependencies: deps,
	}

	httpStatus := http.StatusOK
	if status == "error" {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, resp)
}
