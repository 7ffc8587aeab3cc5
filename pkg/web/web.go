// Package web holds the JSON response helpers shared by every handler.
package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"towfleet/internal/fault"
)

// WriteJSON serialises v with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// WriteError maps a service error onto the HTTP status implied by its
// fault category and writes a JSON error body.
func WriteError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, fault.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, fault.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, fault.ErrInvalidState):
		status = http.StatusConflict
	case errors.Is(err, fault.ErrValidation):
		status = http.StatusBadRequest
	}
	WriteJSON(w, status, map[string]string{"error": err.Error()})
}
