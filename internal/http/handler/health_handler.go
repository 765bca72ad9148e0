package handler

import (
	"encoding/json"
	"net/http"

	"github.com/agri-forecast/crop-price/internal/learning"
)

// HealthCheckHandler is a simple handler that returns HTTP 200 OK.
// It can be used for health checks by Docker or other services.
func HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// StatusProvider reports the model and data state.
type StatusProvider interface {
	Status() learning.Status
}

// ReadinessHandler answers 200 once a model has been trained and 503 before.
// The body is the full status either way.
func ReadinessHandler(p StatusProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := p.Status()
		w.Header().Set("Content-Type", "application/json")
		if !st.Trained {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		if err := json.NewEncoder(w).Encode(st); err != nil {
			http.Error(w, "Failed to encode status to JSON", http.StatusInternalServerError)
		}
	}
}
