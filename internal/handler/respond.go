package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// respondJSON writes a JSON body with the given status.
func respondJSON(w http.ResponseWriter, logger *slog.Logger, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}
