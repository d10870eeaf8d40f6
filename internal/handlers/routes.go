package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"escoresheet/match-relay/internal/middlewares"
	"escoresheet/match-relay/internal/relay"
)

// RegisterRoutes mounts the synchronous API on r. The fixed /api/match
// paths are registered before /api/match/{id} so they are never taken
// for match ids.
func RegisterRoutes(r *mux.Router, rl *relay.Relay, info ServerInfo, pinLimiter *middlewares.RateLimiter) {
	server := NewServerHandler(rl, info)
	match := NewMatchHandler(rl)

	r.HandleFunc("/health", server.Health).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/server/status", server.Status).Methods(http.MethodGet)
	api.HandleFunc("/server/register-main", server.RegisterMain).Methods(http.MethodPost)
	api.HandleFunc("/server/unregister-main", server.UnregisterMain).Methods(http.MethodPost)
	api.HandleFunc("/server/connections", server.Connections).Methods(http.MethodGet)

	api.HandleFunc("/match/list", match.List).Methods(http.MethodGet)
	api.Handle("/match/validate-pin",
		middlewares.RateLimitPerClient(pinLimiter)(http.HandlerFunc(match.ValidatePin))).Methods(http.MethodPost)
	api.HandleFunc("/match/by-game-number", match.ByGameNumber).Methods(http.MethodGet)
	api.HandleFunc("/match/{id}", match.Get).Methods(http.MethodGet)
	api.HandleFunc("/match/{id}", match.Update).Methods(http.MethodPatch)
}
