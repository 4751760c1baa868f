package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/foundrly/platform/internal/api/middleware"
	"github.com/foundrly/platform/internal/store"
)

// Room name validation: alphanumeric, hyphens, underscores, 1-50 chars
var roomNameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,50}$`)

// CreateRoomRequest represents the room creation request. Supplying
// other_user_id creates (or returns) a direct chat; otherwise name,
// is_group_chat and participant_ids describe a group room.
type CreateRoomRequest struct {
	OtherUserID    *int64  `json:"other_user_id,omitempty"`
	Name           string  `json:"name,omitempty"`
	IsGroupChat    bool    `json:"is_group_chat,omitempty"`
	ParticipantIDs []int64 `json:"participant_ids,omitempty"`
}

// ListRooms handles GET /api/chat/rooms: rooms the caller participates in,
// most recently active first.
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	rooms, err := h.store.ListRoomsForUser(r.Context(), user.ID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to list rooms")
		return
	}
	h.JSON(w, http.StatusOK, rooms)
}

// CreateRoom handles POST /api/chat/rooms. A direct chat between two users
// is unique: if one already exists it is returned with 200 instead of
// creating a second.
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.OtherUserID != nil {
		h.createDirectRoom(w, r, user.ID, *req.OtherUserID)
		return
	}

	// Group room
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		h.Error(w, http.StatusBadRequest, "for direct chat, 'other_user_id' is required; group rooms need 'name'")
		return
	}
	if !roomNameRegex.MatchString(req.Name) {
		h.Error(w, http.StatusBadRequest, "name must be 1-50 characters, alphanumeric with hyphens and underscores only")
		return
	}

	participantIDs := append([]int64{user.ID}, req.ParticipantIDs...)
	room, err := h.store.CreateRoom(r.Context(), &req.Name, true, participantIDs)
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			h.Error(w, http.StatusConflict, "a room with that name already exists")
			return
		}
		h.Error(w, http.StatusInternalServerError, "failed to create room")
		return
	}
	h.JSON(w, http.StatusCreated, room)
}

func (h *Handler) createDirectRoom(w http.ResponseWriter, r *http.Request, userID, otherUserID int64) {
	other, err := h.store.GetUserByID(r.Context(), otherUserID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if other == nil {
		h.Error(w, http.StatusBadRequest, "other user not found")
		return
	}

	existing, err := h.store.FindDirectRoom(r.Context(), userID, otherUserID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if existing != nil {
		h.JSON(w, http.StatusOK, existing)
		return
	}

	room, err := h.store.CreateRoom(r.Context(), nil, false, []int64{userID, otherUserID})
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to create room")
		return
	}
	h.JSON(w, http.StatusCreated, room)
}

// GetRoom handles GET /api/chat/rooms/{id}: detail with participants,
// restricted to participants.
func (h *Handler) GetRoom(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	roomID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid room ID")
		return
	}

	room, err := h.store.GetRoom(r.Context(), roomID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if room == nil {
		h.Error(w, http.StatusNotFound, "chat room not found")
		return
	}
	if !room.HasParticipant(user.ID) {
		h.Error(w, http.StatusForbidden, "you are not a participant of this chat room")
		return
	}
	h.JSON(w, http.StatusOK, room)
}
