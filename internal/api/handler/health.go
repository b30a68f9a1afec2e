package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hszk-dev/typereel/internal/session"
)

type HealthResponse struct {
	Status string `json:"status"`
}

func Health(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
	})
}

// PoolStater reports rendering session pool occupancy.
type PoolStater interface {
	Stats() session.Stats
}

// Pinger is a dependency that can report whether it is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error {
	return f(ctx)
}

type ReadyResponse struct {
	Status       string            `json:"status"`
	Pool         session.Stats     `json:"pool"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
}

// ReadyHandler reports pool occupancy and the reachability of optional
// dependencies. Those dependencies are best-effort, so an unreachable one
// marks the instance degraded without failing the probe.
type ReadyHandler struct {
	pool    PoolStater
	deps    map[string]Pinger
	timeout time.Duration
}

// NewReadyHandler creates a ReadyHandler. deps may be nil.
func NewReadyHandler(pool PoolStater, deps map[string]Pinger) *ReadyHandler {
	return &ReadyHandler{
		pool:    pool,
		deps:    deps,
		timeout: 2 * time.Second,
	}
}

// Ready handles GET /ready
func (h *ReadyHandler) Ready(w http.ResponseWriter, r *http.Request) {
	resp := ReadyResponse{
		Status: "ok",
		Pool:   h.pool.Stats(),
	}

	if len(h.deps) > 0 {
		resp.Dependencies = make(map[string]string, len(h.deps))
		for name, dep := range h.deps {
			ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
			err := dep.Ping(ctx)
			cancel()
			if err != nil {
				resp.Dependencies[name] = err.Error()
				resp.Status = "degraded"
				continue
			}
			resp.Dependencies[name] = "ok"
		}
	}

	JSON(w, http.StatusOK, resp)
}
