package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/inferloop/tsforecast/pkg/constants"
)

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{
		"status":         "ok",
		"service":        constants.AppName,
		"version":        constants.AppVersion,
		"uptime_seconds": time.Since(s.started).Seconds(),
	}
	if s.status != nil {
		for k, v := range s.status() {
			body[k] = v
		}
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) notFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]interface{}{
		"error": map[string]string{"code": "NOT_FOUND", "message": "no route for " + r.URL.Path},
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
