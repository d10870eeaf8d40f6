package realtime

import (
	"net/http"

	"github.com/gorilla/websocket"

	"escoresheet/match-relay/internal/relay"
	"escoresheet/match-relay/pkg/log"
)

// Scoresheets run from file://, LAN addresses and hosted origins alike,
// so the upgrade accepts any origin.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Handler upgrades HTTP → WS and hands the connection to the relay.
func Handler(rl *relay.Relay, opts Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Logger.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("ws upgrade failed")
			return
		}

		c := NewConn(ws, rl, r.RemoteAddr, opts) // goroutines start inside NewConn
		log.Logger.Debug().Str("client_id", c.ID()).Str("remote", c.remote).Msg("ws upgraded")
	}
}
