package main

import (
	"encoding/json"
	"net/http"
	"time"
)

// handleHealth handles the GET /health endpoint
func (app *application) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":           "OK",
		"uptime":           time.Since(app.StartTime).String(),
		"activeGames":      app.Manager.ActiveCount(),
		"connectedPlayers": app.Hub.PlayerCount(),
	})
}
