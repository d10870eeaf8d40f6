package dto

import (
	"encoding/json"
	"time"

	"escoresheet/match-relay/internal/relay"
)

type ValidatePinRequest struct {
	Pin  string `json:"pin"`
	Type string `json:"type"` // referee, homeTeam or awayTeam; empty means referee
}

type ValidatePinResponse struct {
	Success bool            `json:"success"`
	Match   json.RawMessage `json:"match"`
}

type GameNumberResponse struct {
	Success bool            `json:"success"`
	Match   json.RawMessage `json:"match"`
	MatchID any             `json:"matchId"`
}

type MatchListResponse struct {
	Success bool                 `json:"success"`
	Matches []relay.MatchSummary `json:"matches"`
}

type RegisterMainResponse struct {
	Success            bool   `json:"success"`
	InstanceID         string `json:"instanceId,omitempty"`
	Error              string `json:"error,omitempty"`
	ExistingInstanceID string `json:"existingInstanceId,omitempty"`
}

type HealthResponse struct {
	Status      string  `json:"status"`
	Mode        string  `json:"mode"`
	Uptime      float64 `json:"uptime"` // seconds
	Connections int     `json:"connections"`
	ActiveRooms int     `json:"activeRooms"`
}

type ServerURLs struct {
	Main        string `json:"main"`
	MainIP      string `json:"mainIP"`
	Referee     string `json:"referee"`
	RefereeIP   string `json:"refereeIP"`
	Bench       string `json:"bench"`
	BenchIP     string `json:"benchIP"`
	Livescore   string `json:"livescore"`
	LivescoreIP string `json:"livescoreIP"`
	Websocket   string `json:"websocket"`
	WebsocketIP string `json:"websocketIP"`
}

type ServerStatusResponse struct {
	Running         bool       `json:"running"`
	MainInstanceID  *string    `json:"mainInstanceId"`
	HasMainInstance bool       `json:"hasMainInstance"`
	Mode            string     `json:"mode"`
	Protocol        string     `json:"protocol"`
	WSProtocol      string     `json:"wsProtocol"`
	Hostname        string     `json:"hostname"`
	LocalIP         string     `json:"localIP"`
	Port            string     `json:"port"`
	WSPort          string     `json:"wsPort"`
	WSPath          string     `json:"wsPath"`
	URLs            ServerURLs `json:"urls"`
}

type ConnectionsResponse struct {
	Connections     int            `json:"connections"`
	Subscriptions   map[string]int `json:"subscriptions"`
	Matches         []string       `json:"matches"`
	PendingRequests int            `json:"pendingRequests"`
	MainInstanceID  string         `json:"mainInstanceId,omitempty"`
	StartedAt       time.Time      `json:"startedAt"`
}
