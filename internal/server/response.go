package server

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the JSON body for every non-2xx answer.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// respondJSON writes data with the given status code.
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Warn("response encoding failed", "error", err)
	}
}

// respondError writes an ErrorResponse with the given status code.
func respondError(w http.ResponseWriter, status int, err error) {
	respondJSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: err.Error(),
	})
}

// respondErrorString writes an ErrorResponse with a plain message.
func respondErrorString(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
	})
}
