package predictor

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultLimit = 100

// APIHandler serves the prediction history.
type APIHandler struct {
	history *History
}

// NewRouter exposes the history and the Prometheus collectors.
func NewRouter(history *History) *mux.Router {
	h := &APIHandler{history: history}
	r := mux.NewRouter()
	r.HandleFunc("/api/v1/predictions", h.predictionsHandler).Methods("GET")
	r.HandleFunc("/api/v1/stats", h.statsHandler).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	return r
}

// predictionsHandler returns the newest ?limit=N predictions, oldest first.
func (h *APIHandler) predictionsHandler(w http.ResponseWriter, r *http.Request) {
	limit := defaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}
	writeJSON(w, map[string]interface{}{
		"predictions": h.history.Latest(limit),
	})
}

func (h *APIHandler) statsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.history.Stats())
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to marshal response: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}
