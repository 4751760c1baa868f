package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/foundrly/platform/internal/api/middleware"
	"github.com/foundrly/platform/internal/models"
	"github.com/foundrly/platform/internal/notify"
)

// MarkReadRequest represents the mark-as-read request: either explicit ids
// or mark_all.
type MarkReadRequest struct {
	NotificationIDs []int64 `json:"notification_ids,omitempty"`
	MarkAll         bool    `json:"mark_all,omitempty"`
}

// ListNotifications handles GET /api/notifications. Notifications are
// visible only to their recipient; the caller always queries their own.
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	unreadOnly := r.URL.Query().Get("unread") == "true"
	notifications, err := h.store.ListNotifications(r.Context(), user.ID, unreadOnly)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to list notifications")
		return
	}
	if notifications == nil {
		notifications = []models.Notification{}
	}
	h.JSON(w, http.StatusOK, notifications)
}

// MarkNotificationsRead handles POST /api/notifications/read.
func (h *Handler) MarkNotificationsRead(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req MarkReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if !req.MarkAll && len(req.NotificationIDs) == 0 {
		h.Error(w, http.StatusBadRequest, "either 'notification_ids' or 'mark_all' must be provided")
		return
	}

	updated, err := h.store.MarkNotificationsRead(r.Context(), user.ID, req.NotificationIDs, req.MarkAll)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to mark notifications read")
		return
	}
	h.JSON(w, http.StatusOK, map[string]int64{"updated": updated})
}

// SendNotificationRequest represents the send request. The authenticated
// caller is recorded as the actor.
type SendNotificationRequest struct {
	RecipientID int64             `json:"recipient_id"`
	Verb        string            `json:"verb,omitempty"`
	Target      *models.TargetRef `json:"target,omitempty"`
	ActionURL   string            `json:"action_url,omitempty"`
	Message     string            `json:"message,omitempty"`
}

// SendNotification handles POST /api/notifications/send: persist a
// notification and push it to the recipient's live stream.
func (h *Handler) SendNotification(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req SendNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	opts := []notify.Option{notify.WithActor(user)}
	if req.Verb != "" {
		opts = append(opts, notify.WithVerb(req.Verb))
	}
	if req.Target != nil {
		opts = append(opts, notify.WithTarget(req.Target.Kind, req.Target.ID))
	}
	if req.ActionURL != "" {
		opts = append(opts, notify.WithActionURL(req.ActionURL))
	}
	if req.Message != "" {
		opts = append(opts, notify.WithMessage(req.Message))
	}

	notification, err := h.dispatcher.CreateAndSend(r.Context(), req.RecipientID, opts...)
	if err != nil {
		switch {
		case errors.Is(err, notify.ErrRecipientNotFound):
			h.Error(w, http.StatusNotFound, "recipient not found")
		case errors.Is(err, notify.ErrInvalidRecipient):
			h.Error(w, http.StatusBadRequest, "invalid recipient")
		default:
			h.Error(w, http.StatusInternalServerError, "failed to send notification")
		}
		return
	}
	h.JSON(w, http.StatusCreated, notification)
}
