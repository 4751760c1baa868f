package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/foundrly/platform/internal/api/middleware"
	"github.com/foundrly/platform/internal/models"
)

// CreateMessageRequest represents the message creation request.
type CreateMessageRequest struct {
	Content string `json:"content"`
}

// ListMessages handles GET /api/chat/rooms/{id}/messages: all messages in
// chronological order, participants only.
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	room, status, message := h.roomForParticipant(r, user)
	if room == nil {
		h.Error(w, status, message)
		return
	}

	messages, err := h.store.ListMessages(r.Context(), room.ID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to list messages")
		return
	}
	if messages == nil {
		messages = []models.Message{}
	}
	h.JSON(w, http.StatusOK, messages)
}

// CreateMessage handles POST /api/chat/rooms/{id}/messages. The REST
// surface persists only; live broadcast happens exclusively through the
// WebSocket path.
func (h *Handler) CreateMessage(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	room, status, message := h.roomForParticipant(r, user)
	if room == nil {
		h.Error(w, status, message)
		return
	}

	var req CreateMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		h.Error(w, http.StatusBadRequest, "content is required")
		return
	}

	msg, err := h.store.CreateMessage(r.Context(), room.ID, user.ID, req.Content)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to create message")
		return
	}
	if err := h.store.TouchRoom(r.Context(), room.ID); err != nil {
		h.log.Warn().Err(err).Int64("room_id", room.ID).Msg("room activity bump failed")
	}

	h.JSON(w, http.StatusCreated, msg)
}

// roomForParticipant loads the room from the URL and checks the caller
// participates in it. On failure the returned room is nil and status and
// message describe the error.
func (h *Handler) roomForParticipant(r *http.Request, user *models.User) (*models.Room, int, string) {
	roomID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return nil, http.StatusBadRequest, "invalid room ID"
	}

	room, err := h.store.GetRoom(r.Context(), roomID)
	if err != nil {
		return nil, http.StatusInternalServerError, "database error"
	}
	if room == nil {
		return nil, http.StatusNotFound, "chat room not found"
	}
	if !room.HasParticipant(user.ID) {
		return nil, http.StatusForbidden, "you are not a participant of this chat room"
	}
	return room, 0, ""
}
