package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/foundrly/platform/internal/auth"
	"github.com/foundrly/platform/internal/notify"
	"github.com/foundrly/platform/internal/store"
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	store      store.DataStore
	auth       *auth.JWT
	dispatcher *notify.Dispatcher
	log        zerolog.Logger
}

// NewHandler creates a new Handler with the given dependencies.
func NewHandler(st store.DataStore, authn *auth.JWT, dispatcher *notify.Dispatcher, log zerolog.Logger) *Handler {
	return &Handler{store: st, auth: authn, dispatcher: dispatcher, log: log}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}
