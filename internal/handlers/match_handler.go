package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/gorilla/mux"

	"escoresheet/match-relay/internal/dto"
	"escoresheet/match-relay/internal/middlewares"
	"escoresheet/match-relay/internal/relay"
	"escoresheet/match-relay/pkg/log"
)

const (
	msgPinTimeout        = "No match found with this PIN. Make sure the main scoresheet is running and connected."
	msgMatchDataTimeout  = "Match data not found. Make sure the main scoresheet is running and connected."
	msgGameNumberTimeout = "Match not found with this game number"
	msgUpdateTimeout     = "Update request timeout. Make sure the main scoresheet is running."
)

// maxBodyBytes bounds request bodies; PATCH carries partial match records.
const maxBodyBytes = 1 << 20

// MatchHandler answers match lookups from the snapshot store and falls
// back to asking the authoritative scoresheet through the bridge.
type MatchHandler struct {
	relay *relay.Relay
}

func NewMatchHandler(rl *relay.Relay) *MatchHandler {
	return &MatchHandler{relay: rl}
}

// List returns the single match a referee panel should offer.
func (h *MatchHandler) List(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, dto.MatchListResponse{Success: true, Matches: h.relay.Discoverable()})
}

// ValidatePin resolves a 6-character PIN to its match.
func (h *MatchHandler) ValidatePin(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil || len(strings.TrimSpace(string(body))) == 0 {
		writeError(w, http.StatusBadRequest, "Empty request body")
		return
	}
	var req dto.ValidatePinRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if utf8.RuneCountInString(req.Pin) != 6 {
		writeError(w, http.StatusBadRequest, "Invalid PIN format")
		return
	}
	pinType := relay.PinReferee
	if req.Type != "" {
		pinType = relay.PinType(req.Type)
	}
	if !pinType.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid PIN type")
		return
	}
	pin := strings.TrimSpace(req.Pin)

	if snap, ok := h.relay.FindByPin(pinType, pin); ok {
		match, err := snap.MatchWithID()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Internal error")
			return
		}
		writeJSON(w, http.StatusOK, dto.ValidatePinResponse{Success: true, Match: match})
		return
	}

	res, err := h.relay.Bridge(r.Context(), relay.RequestPinValidation, map[string]any{
		"pin":       pin,
		"pinType":   string(pinType),
		"timestamp": h.relay.Now().UnixMilli(),
	})
	if err != nil {
		h.bridgeFailed(w, r, err, http.StatusNotFound, msgPinTimeout)
		return
	}
	if !res.Success || isEmptyJSON(res.Match) {
		writeError(w, http.StatusNotFound, orDefault(res.Error, "No match found with this PIN"))
		return
	}
	writeJSON(w, http.StatusOK, dto.ValidatePinResponse{Success: true, Match: res.Match})
}

// ByGameNumber finds a match by its game number or record id.
func (h *MatchHandler) ByGameNumber(w http.ResponseWriter, r *http.Request) {
	gameNumber := strings.TrimSpace(r.URL.Query().Get("gameNumber"))
	if gameNumber == "" {
		writeError(w, http.StatusBadRequest, "Game number required")
		return
	}

	if snap, ok := h.relay.FindByGameNumber(gameNumber); ok {
		writeJSON(w, http.StatusOK, dto.GameNumberResponse{Success: true, Match: snap.Match, MatchID: string(snap.MatchID)})
		return
	}

	res, err := h.relay.Bridge(r.Context(), relay.RequestGameNumber, map[string]any{"gameNumber": gameNumber})
	if err != nil {
		h.bridgeFailed(w, r, err, http.StatusNotFound, msgGameNumberTimeout)
		return
	}
	if !res.Success || isEmptyJSON(res.Match) {
		writeError(w, http.StatusNotFound, orDefault(res.Error, "Match not found"))
		return
	}
	writeJSON(w, http.StatusOK, dto.GameNumberResponse{Success: true, Match: res.Match, MatchID: res.MatchID.Value()})
}

// Get returns a match's full snapshot.
func (h *MatchHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := relay.MatchID(strings.TrimSpace(mux.Vars(r)["id"]))
	if id == "" {
		writeError(w, http.StatusBadRequest, "Match ID required")
		return
	}

	if snap, ok := h.relay.Snapshot(id); ok {
		writeMerged(w, snap.Data)
		return
	}

	res, err := h.relay.Bridge(r.Context(), relay.RequestMatchData, map[string]any{"matchId": string(id)})
	if err != nil {
		h.bridgeFailed(w, r, err, http.StatusNotFound, msgMatchDataTimeout)
		return
	}
	if !res.Success || isEmptyJSON(res.Data) {
		writeError(w, http.StatusNotFound, orDefault(res.Error, "Match data not found"))
		return
	}
	writeMerged(w, res.Data)
}

// Update forwards a partial match update to the authoritative scoresheet.
// It is never answered from the store.
func (h *MatchHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := relay.MatchID(strings.TrimSpace(mux.Vars(r)["id"]))
	if id == "" {
		writeError(w, http.StatusBadRequest, "Match ID required")
		return
	}
	var updates map[string]json.RawMessage
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&updates); err != nil || updates == nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	res, err := h.relay.Bridge(r.Context(), relay.RequestMatchUpdate, map[string]any{
		"matchId": string(id),
		"updates": updates,
	})
	if err != nil {
		h.bridgeFailed(w, r, err, http.StatusGatewayTimeout, msgUpdateTimeout)
		return
	}
	if !res.Success {
		writeError(w, http.StatusBadGateway, orDefault(res.Error, "Update failed"))
		return
	}
	writeMerged(w, res.Data)
}

// bridgeFailed maps a bridge error to a response. A caller that went away
// gets nothing.
func (h *MatchHandler) bridgeFailed(w http.ResponseWriter, r *http.Request, err error, timeoutStatus int, timeoutMsg string) {
	logger := log.Logger.With().
		Str("request_id", middlewares.RequestID(r.Context())).
		Str("path", r.URL.Path).
		Logger()

	switch {
	case errors.Is(err, relay.ErrBridgeTimeout):
		logger.Info().Msg("bridge timed out")
		writeError(w, timeoutStatus, timeoutMsg)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		logger.Debug().Err(err).Msg("caller went away before the bridge answered")
	default:
		logger.Warn().Err(err).Msg("bridge failed")
		writeError(w, http.StatusServiceUnavailable, "Relay is shutting down")
	}
}

func isEmptyJSON(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "null"
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
