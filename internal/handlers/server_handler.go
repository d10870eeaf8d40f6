package handlers

import (
	"errors"
	"fmt"
	"net"
	"net/http"

	"escoresheet/match-relay/internal/dto"
	"escoresheet/match-relay/internal/relay"
	"escoresheet/match-relay/pkg/log"
)

// InstanceIDHeader carries the scoresheet instance token for the
// main-instance slot.
const InstanceIDHeader = "X-Instance-ID"

// ServerInfo is what the status endpoint advertises about this process.
type ServerInfo struct {
	Hostname string
	Port     string
	WSPath   string
	TLS      bool
	// LocalIP overrides interface discovery; used by tests.
	LocalIP string
}

type ServerHandler struct {
	relay *relay.Relay
	info  ServerInfo
}

func NewServerHandler(rl *relay.Relay, info ServerInfo) *ServerHandler {
	return &ServerHandler{relay: rl, info: info}
}

// Health reports liveness and connection counts.
func (h *ServerHandler) Health(w http.ResponseWriter, _ *http.Request) {
	stats := h.relay.Stats()
	writeJSON(w, http.StatusOK, dto.HealthResponse{
		Status:      "healthy",
		Mode:        h.relay.Mode(),
		Uptime:      h.relay.Now().Sub(stats.StartedAt).Seconds(),
		Connections: stats.Connections,
		ActiveRooms: stats.Rooms,
	})
}

// Status describes how scoresheets and dashboards can reach the relay.
func (h *ServerHandler) Status(w http.ResponseWriter, _ *http.Request) {
	protocol, wsProtocol := "http", "ws"
	if h.info.TLS {
		protocol, wsProtocol = "https", "wss"
	}
	localIP := h.info.LocalIP
	if localIP == "" {
		localIP = getLocalIP()
	}

	base := func(host string) string { return fmt.Sprintf("%s://%s:%s", protocol, host, h.info.Port) }
	ws := func(host string) string { return fmt.Sprintf("%s://%s:%s%s", wsProtocol, host, h.info.Port, h.info.WSPath) }

	holder, ok := h.relay.MainInstance()
	resp := dto.ServerStatusResponse{
		Running:         true,
		HasMainInstance: ok,
		Mode:            h.relay.Mode(),
		Protocol:        protocol,
		WSProtocol:      wsProtocol,
		Hostname:        h.info.Hostname,
		LocalIP:         localIP,
		Port:            h.info.Port,
		WSPort:          h.info.Port,
		WSPath:          h.info.WSPath,
		URLs: dto.ServerURLs{
			Main:        base(h.info.Hostname) + "/",
			MainIP:      base(localIP) + "/",
			Referee:     base(h.info.Hostname) + "/referee.html",
			RefereeIP:   base(localIP) + "/referee.html",
			Bench:       base(h.info.Hostname) + "/bench.html",
			BenchIP:     base(localIP) + "/bench.html",
			Livescore:   base(h.info.Hostname) + "/livescore.html",
			LivescoreIP: base(localIP) + "/livescore.html",
			Websocket:   ws(h.info.Hostname),
			WebsocketIP: ws(localIP),
		},
	}
	if ok {
		resp.MainInstanceID = &holder
	}
	writeJSON(w, http.StatusOK, resp)
}

// RegisterMain claims the main-instance slot for the caller's instance id.
func (h *ServerHandler) RegisterMain(w http.ResponseWriter, r *http.Request) {
	token, err := h.relay.ClaimMain(r.Header.Get(InstanceIDHeader))
	if errors.Is(err, relay.ErrSlotTaken) {
		writeJSON(w, http.StatusConflict, dto.RegisterMainResponse{
			Success:            false,
			Error:              "Main instance already registered",
			ExistingInstanceID: token,
		})
		return
	}
	writeJSON(w, http.StatusOK, dto.RegisterMainResponse{Success: true, InstanceID: token})
}

// UnregisterMain releases the slot if the caller holds it.
func (h *ServerHandler) UnregisterMain(w http.ResponseWriter, r *http.Request) {
	if err := h.relay.ReleaseMain(r.Header.Get(InstanceIDHeader)); err != nil {
		writeError(w, http.StatusForbidden, "Not the registered instance")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Connections exposes the relay's tables for operators.
func (h *ServerHandler) Connections(w http.ResponseWriter, _ *http.Request) {
	stats := h.relay.Stats()
	subs := make(map[string]int, len(stats.Subscriptions))
	for id, n := range stats.Subscriptions {
		subs[string(id)] = n
	}
	ids := h.relay.MatchIDs()
	matches := make([]string, 0, len(ids))
	for _, id := range ids {
		matches = append(matches, string(id))
	}
	writeJSON(w, http.StatusOK, dto.ConnectionsResponse{
		Connections:     stats.Connections,
		Subscriptions:   subs,
		Matches:         matches,
		PendingRequests: stats.PendingRequests,
		MainInstanceID:  stats.MainInstance,
		StartedAt:       stats.StartedAt,
	})
}

// getLocalIP returns the first non-loopback IPv4 address, which is what
// devices on the hall's LAN use to reach the relay.
func getLocalIP() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		log.Logger.Debug().Err(err).Msg("list network interfaces")
		return "127.0.0.1"
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ipNet, ok := addr.(*net.IPNet); ok {
				if ip4 := ipNet.IP.To4(); ip4 != nil {
					return ip4.String()
				}
			}
		}
	}
	return "127.0.0.1"
}
