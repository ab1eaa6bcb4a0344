package api

import (
	"context"
	"net/http"
	"time"
)

// HealthResponse is the body of the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store,omitempty"`
}

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles GET /api/healthz. A nil pinger reports ok.
func HealthHandler(store Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			WriteJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := store.Ping(ctx); err != nil {
			WriteJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "degraded", Store: "unreachable"})
			return
		}
		WriteJSON(w, http.StatusOK, HealthResponse{Status: "ok", Store: "ok"})
	}
}
