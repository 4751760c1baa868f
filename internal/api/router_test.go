package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/foundrly/platform/internal/auth"
	"github.com/foundrly/platform/internal/models"
	"github.com/foundrly/platform/internal/notify"
	"github.com/foundrly/platform/internal/realtime"
	"github.com/foundrly/platform/internal/store/storetest"
)

type apiEnv struct {
	mux   *chi.Mux
	store *storetest.Fake
	authn *auth.JWT
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()

	st := storetest.NewFake()
	authn := auth.NewJWT("test-secret", time.Hour, st)
	dir := realtime.NewDirectory()
	bus := realtime.NewLocalBus(dir, zerolog.Nop())

	resolvers := notify.NewResolverRegistry()
	resolvers.Register("user", notify.UserResolver(st))
	dispatcher := notify.NewDispatcher(st, bus, resolvers, zerolog.Nop())

	rt := realtime.NewServer(st, authn, dir, bus, zerolog.Nop(), 10, []string{"*"})
	mux := NewRouter(zerolog.Nop(), st, authn, dispatcher, rt, []string{"*"})

	return &apiEnv{mux: mux, store: st, authn: authn}
}

// tokenFor issues a real token for the user.
func (e *apiEnv) tokenFor(t *testing.T, u *models.User) string {
	t.Helper()
	token, err := e.authn.IssueToken(u.ID)
	if err != nil {
		t.Fatal(err)
	}
	return token
}

func (e *apiEnv) request(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, into interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), into); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestHealth(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.request(t, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestLoginIssuesUsableToken(t *testing.T) {
	env := newAPIEnv(t)
	env.store.AddUser("alice")

	rec := env.request(t, http.MethodPost, "/api/login", "", map[string]string{"username": "alice"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Token string      `json:"token"`
		User  models.User `json:"user"`
	}
	decode(t, rec, &resp)
	if resp.Token == "" || resp.User.Username != "alice" {
		t.Fatalf("unexpected login response: %+v", resp)
	}

	// The issued token opens the authenticated surface.
	rec = env.request(t, http.MethodGet, "/api/chat/rooms", resp.Token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with issued token, got %d", rec.Code)
	}
}

func TestLoginUnknownUser(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.request(t, http.MethodPost, "/api/login", "", map[string]string{"username": "nobody"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAuthenticatedSurfaceRequiresToken(t *testing.T) {
	env := newAPIEnv(t)

	for _, path := range []string{"/api/chat/rooms", "/api/notifications"} {
		rec := env.request(t, http.MethodGet, path, "", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", path, rec.Code)
		}
	}

	rec := env.request(t, http.MethodGet, "/api/chat/rooms", "not-a-token", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for garbage token, got %d", rec.Code)
	}
}

func TestCreateGroupRoom(t *testing.T) {
	env := newAPIEnv(t)
	alice := env.store.AddUser("alice")
	bob := env.store.AddUser("bob")
	token := env.tokenFor(t, alice)

	rec := env.request(t, http.MethodPost, "/api/chat/rooms", token, map[string]interface{}{
		"name":            "lobby",
		"participant_ids": []int64{bob.ID},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var room models.Room
	decode(t, rec, &room)
	if !room.HasParticipant(alice.ID) || !room.HasParticipant(bob.ID) {
		t.Fatalf("expected caller and bob as participants: %+v", room.Participants)
	}

	// Same name again conflicts.
	rec = env.request(t, http.MethodPost, "/api/chat/rooms", token, map[string]interface{}{"name": "lobby"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestCreateGroupRoomRejectsBadName(t *testing.T) {
	env := newAPIEnv(t)
	alice := env.store.AddUser("alice")
	token := env.tokenFor(t, alice)

	for _, name := range []string{"", "has spaces", "emoji✨", strings.Repeat("a", 51)} {
		rec := env.request(t, http.MethodPost, "/api/chat/rooms", token, map[string]interface{}{"name": name})
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("name %q: expected 400, got %d", name, rec.Code)
		}
	}
}

func TestCreateDirectRoomIdempotent(t *testing.T) {
	env := newAPIEnv(t)
	alice := env.store.AddUser("alice")
	bob := env.store.AddUser("bob")
	token := env.tokenFor(t, alice)

	rec := env.request(t, http.MethodPost, "/api/chat/rooms", token, map[string]interface{}{"other_user_id": bob.ID})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var first models.Room
	decode(t, rec, &first)

	// The second request returns the existing room, not a new one.
	rec = env.request(t, http.MethodPost, "/api/chat/rooms", token, map[string]interface{}{"other_user_id": bob.ID})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for existing direct room, got %d", rec.Code)
	}
	var second models.Room
	decode(t, rec, &second)
	if second.ID != first.ID {
		t.Fatalf("expected same room %d, got %d", first.ID, second.ID)
	}
}

func TestCreateDirectRoomUnknownUser(t *testing.T) {
	env := newAPIEnv(t)
	alice := env.store.AddUser("alice")
	token := env.tokenFor(t, alice)

	rec := env.request(t, http.MethodPost, "/api/chat/rooms", token, map[string]interface{}{"other_user_id": 999})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestGetRoomAccess(t *testing.T) {
	env := newAPIEnv(t)
	alice := env.store.AddUser("alice")
	mallory := env.store.AddUser("mallory")
	room := env.store.AddRoom("lobby", true, alice)

	rec := env.request(t, http.MethodGet, "/api/chat/rooms/"+itoa(room.ID), env.tokenFor(t, alice), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for participant, got %d", rec.Code)
	}

	rec = env.request(t, http.MethodGet, "/api/chat/rooms/"+itoa(room.ID), env.tokenFor(t, mallory), nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-participant, got %d", rec.Code)
	}

	rec = env.request(t, http.MethodGet, "/api/chat/rooms/999", env.tokenFor(t, alice), nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing room, got %d", rec.Code)
	}
}

func TestMessagesRoundTrip(t *testing.T) {
	env := newAPIEnv(t)
	alice := env.store.AddUser("alice")
	room := env.store.AddRoom("lobby", true, alice)
	token := env.tokenFor(t, alice)
	path := "/api/chat/rooms/" + itoa(room.ID) + "/messages"

	// An empty room lists as [], not null.
	rec := env.request(t, http.MethodGet, path, token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Body.String(); got != "[]\n" {
		t.Fatalf("expected empty array, got %q", got)
	}

	rec = env.request(t, http.MethodPost, path, token, map[string]string{"content": "hello"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.request(t, http.MethodGet, path, token, nil)
	var msgs []models.Message
	decode(t, rec, &msgs)
	if len(msgs) != 1 || msgs[0].Content != "hello" || msgs[0].SenderUsername != "alice" {
		t.Fatalf("unexpected messages: %+v", msgs)
	}

	rec = env.request(t, http.MethodPost, path, token, map[string]string{"content": "   "})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank content, got %d", rec.Code)
	}
}

func TestMessagesRequireParticipation(t *testing.T) {
	env := newAPIEnv(t)
	alice := env.store.AddUser("alice")
	mallory := env.store.AddUser("mallory")
	room := env.store.AddRoom("lobby", true, alice)
	path := "/api/chat/rooms/" + itoa(room.ID) + "/messages"

	rec := env.request(t, http.MethodPost, path, env.tokenFor(t, mallory), map[string]string{"content": "hi"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestNotificationFlow(t *testing.T) {
	env := newAPIEnv(t)
	alice := env.store.AddUser("alice")
	bob := env.store.AddUser("bob")
	aliceToken := env.tokenFor(t, alice)
	bobToken := env.tokenFor(t, bob)

	rec := env.request(t, http.MethodPost, "/api/notifications/send", bobToken, map[string]interface{}{
		"recipient_id": alice.ID,
		"verb":         "followed you",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.request(t, http.MethodGet, "/api/notifications?unread=true", aliceToken, nil)
	var list []models.Notification
	decode(t, rec, &list)
	if len(list) != 1 || list[0].Verb != "followed you" {
		t.Fatalf("unexpected notifications: %+v", list)
	}
	if list[0].ActorID == nil || *list[0].ActorID != bob.ID {
		t.Fatalf("expected bob as actor, got %v", list[0].ActorID)
	}

	// The sender never sees the recipient's notifications.
	rec = env.request(t, http.MethodGet, "/api/notifications", bobToken, nil)
	var bobList []models.Notification
	decode(t, rec, &bobList)
	if len(bobList) != 0 {
		t.Fatalf("expected no notifications for bob, got %d", len(bobList))
	}

	rec = env.request(t, http.MethodPost, "/api/notifications/read", aliceToken, map[string]interface{}{"mark_all": true})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var updated map[string]int64
	decode(t, rec, &updated)
	if updated["updated"] != 1 {
		t.Fatalf("expected 1 updated, got %d", updated["updated"])
	}

	rec = env.request(t, http.MethodGet, "/api/notifications?unread=true", aliceToken, nil)
	list = nil
	decode(t, rec, &list)
	if len(list) != 0 {
		t.Fatalf("expected empty unread set, got %d", len(list))
	}
}

func TestSendNotificationErrors(t *testing.T) {
	env := newAPIEnv(t)
	alice := env.store.AddUser("alice")
	token := env.tokenFor(t, alice)

	rec := env.request(t, http.MethodPost, "/api/notifications/send", token, map[string]interface{}{"recipient_id": 999})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown recipient, got %d", rec.Code)
	}
}

func TestMarkReadValidation(t *testing.T) {
	env := newAPIEnv(t)
	alice := env.store.AddUser("alice")
	token := env.tokenFor(t, alice)

	rec := env.request(t, http.MethodPost, "/api/notifications/read", token, map[string]interface{}{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty request, got %d", rec.Code)
	}
}
