package api

import (
	"encoding/json"
	"net/http"

	"mivvo/internal/logging"
	"mivvo/internal/services"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErrorMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Error: message})
}

// writeError maps a service error onto its HTTP status. Internal errors are
// logged with full detail but surfaced to the client as a generic message.
func (s *Server) writeError(r *http.Request, w http.ResponseWriter, err error) {
	status := services.HTTPStatus(err)
	logger := logging.WithContext(r.Context(), s.logger)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", logging.Error(err))
		writeErrorMessage(w, status, "internal error")
		return
	}
	logger.Debug("request rejected", logging.Int("status", status), logging.Error(err))
	writeErrorMessage(w, status, err.Error())
}
