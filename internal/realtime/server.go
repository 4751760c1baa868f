package realtime

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/foundrly/platform/internal/auth"
	"github.com/foundrly/platform/internal/metrics"
	"github.com/foundrly/platform/internal/store"
)

// Server accepts WebSocket connections and runs one Session per connection.
type Server struct {
	store        store.DataStore
	auth         auth.Authenticator
	dir          *Directory
	bus          Bus
	log          zerolog.Logger
	historyLimit int
	upgrader     websocket.Upgrader
}

// NewServer wires the realtime endpoints. allowedOrigins of ["*"] accepts
// any origin.
func NewServer(st store.DataStore, authn auth.Authenticator, dir *Directory, bus Bus, log zerolog.Logger, historyLimit int, allowedOrigins []string) *Server {
	srv := &Server{
		store:        st,
		auth:         authn,
		dir:          dir,
		bus:          bus,
		log:          log,
		historyLimit: historyLimit,
	}
	srv.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return srv
}

func originChecker(allowed []string) func(*http.Request) bool {
	allowAll := false
	allowedMap := make(map[string]bool, len(allowed))
	for _, origin := range allowed {
		if origin == "*" {
			allowAll = true
		}
		allowedMap[origin] = true
	}
	return func(r *http.Request) bool {
		if allowAll {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		return allowedMap[origin]
	}
}

// rejection is an authorization failure: the transport is closed without
// the session ever touching the directory.
type rejection struct {
	status int
	reason string
}

func (e *rejection) Error() string { return e.reason }

// HandleChat handles GET /ws/chat/{roomName}.
func (s *Server) HandleChat(w http.ResponseWriter, r *http.Request) {
	roomName := chi.URLParam(r, "roomName")
	sess := newSession(KindChat, s, roomName)

	if rej := s.authorizeChat(r, sess); rej != nil {
		s.reject(w, sess, rej)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	sess.conn = conn
	sess.groups = []string{ChatGroup(roomName)}
	sess.log = sess.log.With().Int64("user_id", sess.user.ID).Str("room", roomName).Logger()
	sess.log.Info().Msg("chat session joined")

	sess.join(r.Context())
	sess.run(r.Context())
}

// HandleNotifications handles GET /ws/notifications/{userID}.
func (s *Server) HandleNotifications(w http.ResponseWriter, r *http.Request) {
	sess := newSession(KindNotifications, s, "")

	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		s.reject(w, sess, &rejection{status: http.StatusBadRequest, reason: "invalid_user_id"})
		return
	}

	if rej := s.authorizeNotifications(r, sess, userID); rej != nil {
		s.reject(w, sess, rej)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	sess.conn = conn
	sess.groups = []string{UserNotificationsGroup(userID)}
	sess.log = sess.log.With().Int64("user_id", sess.user.ID).Logger()
	sess.log.Info().Msg("notification session joined")

	sess.join(r.Context())
	sess.run(r.Context())
}

// authorizeChat resolves the caller's identity and checks that the target
// room exists and the caller participates in it.
func (s *Server) authorizeChat(r *http.Request, sess *Session) *rejection {
	sess.setState(StateAuthorizing)

	user, err := s.auth.Authenticate(r)
	if err != nil {
		if errors.Is(err, auth.ErrAnonymous) {
			return &rejection{status: http.StatusUnauthorized, reason: "anonymous"}
		}
		return &rejection{status: http.StatusInternalServerError, reason: "auth_error"}
	}
	sess.user = user

	room, err := s.store.GetRoomByName(r.Context(), sess.roomName)
	if err != nil {
		return &rejection{status: http.StatusInternalServerError, reason: "store_error"}
	}
	if room == nil {
		return &rejection{status: http.StatusNotFound, reason: "room_not_found"}
	}
	sess.room = room

	ok, err := s.store.IsParticipant(r.Context(), room.ID, user.ID)
	if err != nil {
		return &rejection{status: http.StatusInternalServerError, reason: "store_error"}
	}
	if !ok {
		return &rejection{status: http.StatusForbidden, reason: "not_participant"}
	}
	return nil
}

// authorizeNotifications resolves the caller's identity and checks it
// matches the user scope embedded in the path: nobody listens to another
// user's stream.
func (s *Server) authorizeNotifications(r *http.Request, sess *Session, userID int64) *rejection {
	sess.setState(StateAuthorizing)

	user, err := s.auth.Authenticate(r)
	if err != nil {
		if errors.Is(err, auth.ErrAnonymous) {
			return &rejection{status: http.StatusUnauthorized, reason: "anonymous"}
		}
		return &rejection{status: http.StatusInternalServerError, reason: "auth_error"}
	}
	if user.ID != userID {
		return &rejection{status: http.StatusForbidden, reason: "scope_mismatch"}
	}
	sess.user = user
	return nil
}

// reject terminates an unauthorized session before it registers anywhere.
func (s *Server) reject(w http.ResponseWriter, sess *Session, rej *rejection) {
	sess.setState(StateRejected)
	metrics.ConnectionsRejected.WithLabelValues(string(sess.kind), rej.reason).Inc()
	s.log.Info().Str("kind", string(sess.kind)).Str("reason", rej.reason).Msg("connection rejected")
	http.Error(w, rej.reason, rej.status)
}
