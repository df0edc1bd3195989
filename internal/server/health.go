package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 5 * time.Second

// HealthChecker is a named readiness probe. Check returns nil when the
// dependency is healthy.
type HealthChecker struct {
	// Name appears as a key in the /readyz JSON response.
	Name string

	// Check probes the dependency. It must respect context cancellation.
	Check func(ctx context.Context) error
}

// healthResult is the JSON response body for the probe endpoints.
type healthResult struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// healthHandler serves the /healthz liveness and /readyz readiness
// probes. The checker list is fixed at construction time.
type healthHandler struct {
	checkers []HealthChecker
}

func newHealthHandler(checkers ...HealthChecker) *healthHandler {
	c := make([]HealthChecker, len(checkers))
	copy(c, checkers)
	return &healthHandler{checkers: c}
}

// healthz always returns 200: a process that can serve HTTP is alive.
func (h *healthHandler) healthz(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, healthResult{Status: "ok"})
}

// readyz returns 200 only when every registered checker passes.
func (h *healthHandler) readyz(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(h.checkers))
	allOK := true

	for _, c := range h.checkers {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := c.Check(ctx)
		cancel()

		if err != nil {
			checks[c.Name] = "fail: " + err.Error()
			allOK = false
		} else {
			checks[c.Name] = "ok"
		}
	}

	res := healthResult{Status: "ok", Checks: checks}
	status := http.StatusOK
	if !allOK {
		res.Status = "fail"
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, res)
}

func (h *healthHandler) register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.healthz)
	mux.HandleFunc("GET /readyz", h.readyz)
}

// respondJSON encodes v with the given status code, falling back to a
// plain 500 on encoding failure.
func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
