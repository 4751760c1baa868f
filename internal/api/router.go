package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/foundrly/platform/internal/api/middleware"
	"github.com/foundrly/platform/internal/auth"
	"github.com/foundrly/platform/internal/handlers"
	"github.com/foundrly/platform/internal/notify"
	"github.com/foundrly/platform/internal/realtime"
	"github.com/foundrly/platform/internal/store"
)

// NewRouter creates and configures the HTTP router.
func NewRouter(logger zerolog.Logger, st store.DataStore, authn *auth.JWT, dispatcher *notify.Dispatcher, rt *realtime.Server, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := handlers.NewHandler(st, authn, dispatcher, logger)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Public routes
	r.Get("/health", h.Health)
	r.Post("/api/login", h.Login)

	// WebSocket endpoints; sessions authorize themselves so rejected
	// connections can be counted and closed on the realtime side.
	r.Get("/ws/chat/{roomName}", rt.HandleChat)
	r.Get("/ws/notifications/{userID}", rt.HandleNotifications)

	// Authenticated REST API
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(authn))

		r.Get("/api/chat/rooms", h.ListRooms)
		r.Post("/api/chat/rooms", h.CreateRoom)
		r.Get("/api/chat/rooms/{id}", h.GetRoom)
		r.Get("/api/chat/rooms/{id}/messages", h.ListMessages)
		r.Post("/api/chat/rooms/{id}/messages", h.CreateMessage)

		r.Get("/api/notifications", h.ListNotifications)
		r.Post("/api/notifications/read", h.MarkNotificationsRead)
		r.Post("/api/notifications/send", h.SendNotification)
	})

	return r
}
