// internal/app/features/errors/render.go
package errors

import (
	"encoding/json"
	"net/http"
)

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// RenderForbidden writes a 403 with msg.
func RenderForbidden(w http.ResponseWriter, msg string) {
	if msg == "" {
		msg = "forbidden"
	}
	WriteJSON(w, http.StatusForbidden, body{Error: msg})
}
