package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mcdev12/focusroom/go/internal/room"
	"github.com/mcdev12/focusroom/go/internal/room/events"
	"github.com/rs/zerolog/log"
)

// StateProvider interface defines methods for retrieving room state
type StateProvider interface {
	Snapshot(ctx context.Context, roomID string) (events.RoomSnapshot, error)
	ActiveRooms(ctx context.Context) ([]events.RoomSummary, error)
}

// StateHandler handles HTTP requests for room state
type StateHandler struct {
	stateProvider StateProvider
}

// NewStateHandler creates a new state handler
func NewStateHandler(provider StateProvider) *StateHandler {
	return &StateHandler{
		stateProvider: provider,
	}
}

// HandleGetRoomState handles GET /api/rooms/{id}/state
func (h *StateHandler) HandleGetRoomState(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("id")
	if roomID == "" {
		http.Error(w, "Room ID is required", http.StatusBadRequest)
		return
	}

	state, err := h.stateProvider.Snapshot(r.Context(), roomID)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			log.Error().Err(err).Str("room_id", roomID).Msg("failed to get room state")
		}
		http.Error(w, err.Error(), status)
		return
	}

	writeJSON(w, state)
}

// HandleGetActiveRooms handles GET /api/rooms/active
func (h *StateHandler) HandleGetActiveRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.stateProvider.ActiveRooms(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to get active rooms")
		http.Error(w, "Failed to get active rooms", statusFor(err))
		return
	}

	writeJSON(w, rooms)
}

// RegisterStateRoutes registers state-related HTTP routes
func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/rooms/active", h.HandleGetActiveRooms)
	mux.HandleFunc("GET /api/rooms/{id}/state", h.HandleGetRoomState)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, room.ErrUnknownRoom):
		return http.StatusNotFound
	case errors.Is(err, room.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, room.ErrEngineClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
