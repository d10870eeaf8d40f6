package handlers

import (
	"encoding/json"
	"net/http"

	"escoresheet/match-relay/internal/relay"
	"escoresheet/match-relay/pkg/log"
)

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Logger.Error().Err(err).Msg("Error encoding JSON response")
	}
}

// writeError writes an error response
func writeError(w http.ResponseWriter, status int, message string) {
	response := map[string]any{"success": false, "error": message}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Logger.Error().Err(err).Msg("Error encoding error response")
	}
}

// writeMerged answers {"success": true} laid over the JSON object body.
func writeMerged(w http.ResponseWriter, body json.RawMessage) {
	merged, err := relay.MergeJSON(body, map[string]any{"success": true})
	if err != nil {
		log.Logger.Error().Err(err).Msg("Error merging response body")
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(merged)
}
