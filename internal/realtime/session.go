package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/foundrly/platform/internal/metrics"
	"github.com/foundrly/platform/internal/models"
	"github.com/foundrly/platform/internal/store"
)

// State is a session's position in its lifecycle.
type State int32

const (
	StateConnecting State = iota
	StateAuthorizing
	StateRejected
	StateJoining
	StateJoined
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthorizing:
		return "authorizing"
	case StateRejected:
		return "rejected"
	case StateJoining:
		return "joining"
	case StateJoined:
		return "joined"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Kind distinguishes chat sessions from notification sessions.
type Kind string

const (
	KindChat          Kind = "chat"
	KindNotifications Kind = "notifications"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = 54 * time.Second
	// Maximum inbound frame size.
	maxMessageSize = 4096
	// Outbound buffer; a subscriber slower than this drops deliveries.
	sendBufferSize = 256
)

// chatInbound is the only frame chat clients send: {"message": "<text>"}.
// A pointer distinguishes a missing field from an empty string.
type chatInbound struct {
	Message *string `json:"message"`
}

// ChatPayload is the outbound chat frame, both for history replay and live
// broadcast.
type ChatPayload struct {
	Message   string    `json:"message"`
	SenderID  int64     `json:"sender_id"`
	Timestamp time.Time `json:"timestamp"`
}

type errorFrame struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// Session owns one accepted connection: its authorization, group
// membership, inbound/outbound translation, and history replay. Each
// session runs an independent read/write goroutine pair; sessions never
// block one another.
type Session struct {
	ID   uuid.UUID
	kind Kind

	user     *models.User
	roomName string
	room     *models.Room
	groups   []string

	conn     *websocket.Conn
	send     chan []byte
	done     chan struct{}
	handlers map[string]func(Event) []byte

	dir          *Directory
	bus          Bus
	store        store.DataStore
	log          zerolog.Logger
	historyLimit int

	state     atomic.Int32
	closeOnce sync.Once
}

func newSession(kind Kind, srv *Server, roomName string) *Session {
	s := &Session{
		ID:           uuid.New(),
		kind:         kind,
		roomName:     roomName,
		send:         make(chan []byte, sendBufferSize),
		done:         make(chan struct{}),
		dir:          srv.dir,
		bus:          srv.bus,
		store:        srv.store,
		historyLimit: srv.historyLimit,
	}
	s.log = srv.log.With().Str("session_id", s.ID.String()).Str("kind", string(kind)).Logger()
	s.state.Store(int32(StateConnecting))

	// The type discriminator on each bus event selects the handler; events
	// of other kinds sharing the group are ignored by this session.
	switch kind {
	case KindChat:
		s.handlers = map[string]func(Event) []byte{
			EventChatMessage: func(ev Event) []byte { return ev.Payload },
		}
	case KindNotifications:
		s.handlers = map[string]func(Event) []byte{
			EventNotification: func(ev Event) []byte { return ev.Payload },
		}
	}
	return s
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
}

// User returns the session's resolved identity, nil before authorization.
func (s *Session) User() *models.User {
	return s.user
}

// Deliver hands a bus event to the session without blocking. Events whose
// type the session has no handler for are ignored; a full outbound buffer
// drops the delivery.
func (s *Session) Deliver(ev Event) bool {
	handler, ok := s.handlers[ev.Type]
	if !ok {
		return true
	}
	frame := handler(ev)
	if frame == nil {
		return true
	}
	select {
	case s.send <- frame:
		return true
	default:
		return false
	}
}

// join registers the session into its groups and, for chat, replays recent
// history into the outbound queue in chronological order.
func (s *Session) join(ctx context.Context) {
	s.setState(StateJoining)

	for _, g := range s.groups {
		s.dir.Join(g, s)
	}

	if s.kind == KindChat {
		s.replayHistory(ctx)
	}

	s.setState(StateJoined)
	metrics.ConnectionsActive.WithLabelValues(string(s.kind)).Inc()
}

// replayHistory queues the most recent persisted messages, oldest first, so
// a joining connection observes continuity despite missed live broadcasts.
// A store failure here skips replay but keeps the session alive.
func (s *Session) replayHistory(ctx context.Context) {
	msgs, err := s.store.ListRecentMessages(ctx, s.room.ID, s.historyLimit)
	if err != nil {
		s.log.Warn().Err(err).Msg("history replay skipped: store read failed")
		return
	}

	// Newest-first from the store; reverse to chronological order.
	for i := len(msgs) - 1; i >= 0; i-- {
		frame, err := json.Marshal(chatFrame(msgs[i]))
		if err != nil {
			continue
		}
		s.enqueue(frame)
		metrics.MessagesReplayed.Inc()
	}
}

func chatFrame(m models.Message) ChatPayload {
	return ChatPayload{
		Message:   m.SenderUsername + ": " + m.Content,
		SenderID:  m.SenderID,
		Timestamp: m.Timestamp,
	}
}

// enqueue queues an outbound frame, dropping it if the buffer is full.
func (s *Session) enqueue(frame []byte) {
	select {
	case s.send <- frame:
	default:
		metrics.BusDeliveriesDropped.Inc()
	}
}

// run drives the session until the connection closes. The write pump runs
// in its own goroutine; the read pump runs on the caller's.
func (s *Session) run(ctx context.Context) {
	go s.writePump()
	s.readPump(ctx)
}

func (s *Session) readPump(ctx context.Context) {
	defer s.shutdown()

	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug().Err(err).Msg("read error")
			}
			return
		}
		s.handleInbound(ctx, raw)
	}
}

// handleInbound processes one client frame. Malformed JSON or a missing
// message field drops the frame; the connection stays open.
func (s *Session) handleInbound(ctx context.Context, raw []byte) {
	if s.kind != KindChat {
		s.log.Debug().Msg("dropping inbound frame on notification session")
		return
	}

	var in chatInbound
	if err := json.Unmarshal(raw, &in); err != nil || in.Message == nil {
		s.log.Debug().Msg("dropping malformed frame")
		return
	}

	// The session held a valid identity at join time; it must still be set.
	if s.user == nil {
		return
	}

	// Persist first. A message that cannot be stored is never broadcast, so
	// live state can not diverge from durable state.
	msg, err := s.store.CreateMessage(ctx, s.room.ID, s.user.ID, *in.Message)
	if err != nil {
		s.log.Error().Err(err).Msg("message persist failed")
		if frame, merr := json.Marshal(errorFrame{Type: "error", Error: "message could not be delivered"}); merr == nil {
			s.enqueue(frame)
		}
		return
	}

	if err := s.store.TouchRoom(ctx, s.room.ID); err != nil {
		s.log.Warn().Err(err).Msg("room activity bump failed")
	}

	ev, err := NewEvent(EventChatMessage, ChatGroup(s.roomName), chatFrame(*msg))
	if err != nil {
		s.log.Error().Err(err).Msg("event encode failed")
		return
	}
	if err := s.bus.Publish(ctx, ev); err != nil {
		// The row is durable; live listeners miss this one and recover it
		// through history replay.
		s.log.Error().Err(err).Msg("bus publish failed")
		return
	}
	metrics.MessagesBroadcast.Inc()
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case frame := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-s.done:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// shutdown runs the Closing/Closed path exactly once: deregister from every
// joined group, release the writer, close the transport. The send channel is
// never closed; a bus delivery racing a membership snapshot may still write
// into it harmlessly.
func (s *Session) shutdown() {
	s.closeOnce.Do(func() {
		s.setState(StateClosing)
		for _, g := range s.groups {
			s.dir.Leave(g, s)
		}
		close(s.done)
		s.conn.Close()
		metrics.ConnectionsActive.WithLabelValues(string(s.kind)).Dec()
		s.setState(StateClosed)
		s.log.Info().Msg("session closed")
	})
}
