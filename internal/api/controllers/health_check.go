package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"
)

const checkTimeout = 2 * time.Second

// Check probes one dependency.
type Check func(ctx context.Context) error

type HealthCheckResponse struct {
	Status       string            `json:"status"`
	Dependencies map[string]string `json:"dependencies"`
}

// HealthCheckHandler runs every check and answers 503 when any of them fails.
func HealthCheckHandler(checks map[string]Check) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		response := HealthCheckResponse{
			Status:       "ok",
			Dependencies: make(map[string]string, len(checks)),
		}
		code := http.StatusOK

		for _, name := range names {
			ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
			err := checks[name](ctx)
			cancel()

			if err != nil {
				response.Dependencies[name] = "unavailable"
				response.Status = "degraded"
				code = http.StatusServiceUnavailable
				continue
			}
			response.Dependencies[name] = "healthy"
		}

		respondWithJSON(w, code, response)
	}
}

// respondWithJSON sends a JSON response
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
