package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/foundrly/platform/internal/models"
)

// newTestStore opens a throwaway on-disk database. A file, not :memory:,
// because database/sql pools connections and each in-memory connection would
// see its own empty schema.
func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(st.Close)
	return st
}

func seedUser(t *testing.T, st *SQLiteStore, username string) int64 {
	t.Helper()
	u, err := st.CreateUser(context.Background(), username, username+"@example.com")
	if err != nil {
		t.Fatal(err)
	}
	return u.ID
}

func TestCreateUserDuplicate(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	if _, err := st.CreateUser(ctx, "alice", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := st.CreateUser(ctx, "alice", ""); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestGetUserNotFound(t *testing.T) {
	st := newTestStore(t)

	u, err := st.GetUserByID(context.Background(), 999)
	if err != nil {
		t.Fatal(err)
	}
	if u != nil {
		t.Fatalf("expected nil for missing user, got %+v", u)
	}
}

func TestGetUserByUsername(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	id := seedUser(t, st, "alice")

	u, err := st.GetUserByUsername(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if u == nil || u.ID != id {
		t.Fatalf("unexpected lookup result: %+v", u)
	}
}

func TestCreateRoomWithParticipants(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	alice := seedUser(t, st, "alice")
	bob := seedUser(t, st, "bob")

	name := "lobby"
	room, err := st.CreateRoom(ctx, &name, true, []int64{alice, bob})
	if err != nil {
		t.Fatal(err)
	}
	if room.Name == nil || *room.Name != "lobby" || !room.IsGroupChat {
		t.Fatalf("unexpected room: %+v", room)
	}
	if len(room.Participants) != 2 {
		t.Fatalf("expected 2 participants, got %d", len(room.Participants))
	}

	for _, uid := range []int64{alice, bob} {
		ok, err := st.IsParticipant(ctx, room.ID, uid)
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			t.Fatalf("user %d should be a participant", uid)
		}
	}
	ok, err := st.IsParticipant(ctx, room.ID, 999)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("unknown user reported as participant")
	}
}

func TestCreateRoomDuplicateName(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	alice := seedUser(t, st, "alice")

	name := "lobby"
	if _, err := st.CreateRoom(ctx, &name, true, []int64{alice}); err != nil {
		t.Fatal(err)
	}
	if _, err := st.CreateRoom(ctx, &name, true, []int64{alice}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestUnnamedRoomsDoNotCollide(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	alice := seedUser(t, st, "alice")
	bob := seedUser(t, st, "bob")
	carol := seedUser(t, st, "carol")

	// NULL names are exempt from the uniqueness constraint.
	if _, err := st.CreateRoom(ctx, nil, false, []int64{alice, bob}); err != nil {
		t.Fatal(err)
	}
	if _, err := st.CreateRoom(ctx, nil, false, []int64{alice, carol}); err != nil {
		t.Fatal(err)
	}
}

func TestGetRoomByName(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	alice := seedUser(t, st, "alice")

	name := "lobby"
	created, err := st.CreateRoom(ctx, &name, true, []int64{alice})
	if err != nil {
		t.Fatal(err)
	}

	room, err := st.GetRoomByName(ctx, "lobby")
	if err != nil {
		t.Fatal(err)
	}
	if room == nil || room.ID != created.ID {
		t.Fatalf("unexpected room: %+v", room)
	}

	missing, err := st.GetRoomByName(ctx, "nope")
	if err != nil {
		t.Fatal(err)
	}
	if missing != nil {
		t.Fatalf("expected nil for missing room, got %+v", missing)
	}
}

func TestFindDirectRoom(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	alice := seedUser(t, st, "alice")
	bob := seedUser(t, st, "bob")
	carol := seedUser(t, st, "carol")

	direct, err := st.CreateRoom(ctx, nil, false, []int64{alice, bob})
	if err != nil {
		t.Fatal(err)
	}
	// A group room with the same pair must never shadow the direct room.
	name := "everyone"
	if _, err := st.CreateRoom(ctx, &name, true, []int64{alice, bob, carol}); err != nil {
		t.Fatal(err)
	}

	found, err := st.FindDirectRoom(ctx, alice, bob)
	if err != nil {
		t.Fatal(err)
	}
	if found == nil || found.ID != direct.ID {
		t.Fatalf("expected direct room %d, got %+v", direct.ID, found)
	}

	none, err := st.FindDirectRoom(ctx, bob, carol)
	if err != nil {
		t.Fatal(err)
	}
	if none != nil {
		t.Fatalf("expected no direct room, got %+v", none)
	}
}

func TestListRoomsForUserOrdersByActivity(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	alice := seedUser(t, st, "alice")

	first := "first"
	second := "second"
	r1, err := st.CreateRoom(ctx, &first, true, []int64{alice})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := st.CreateRoom(ctx, &second, true, []int64{alice}); err != nil {
		t.Fatal(err)
	}

	// Touching the older room moves it to the front.
	if err := st.TouchRoom(ctx, r1.ID); err != nil {
		t.Fatal(err)
	}

	rooms, err := st.ListRoomsForUser(ctx, alice)
	if err != nil {
		t.Fatal(err)
	}
	if len(rooms) != 2 {
		t.Fatalf("expected 2 rooms, got %d", len(rooms))
	}
	if rooms[0].ID != r1.ID {
		t.Fatalf("expected touched room first, got %d", rooms[0].ID)
	}
}

func TestMessageOrderingAndRecency(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	alice := seedUser(t, st, "alice")
	name := "lobby"
	room, err := st.CreateRoom(ctx, &name, true, []int64{alice})
	if err != nil {
		t.Fatal(err)
	}

	contents := []string{"one", "two", "three", "four", "five"}
	for _, c := range contents {
		m, err := st.CreateMessage(ctx, room.ID, alice, c)
		if err != nil {
			t.Fatal(err)
		}
		if m.SenderUsername != "alice" {
			t.Fatalf("expected sender username joined in, got %q", m.SenderUsername)
		}
	}

	all, err := st.ListMessages(ctx, room.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 5 {
		t.Fatalf("expected 5 messages, got %d", len(all))
	}
	for i, m := range all {
		if m.Content != contents[i] {
			t.Fatalf("position %d: expected %q, got %q", i, contents[i], m.Content)
		}
	}

	// Recent fetch is bounded and newest first.
	recent, err := st.ListRecentMessages(ctx, room.ID, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(recent))
	}
	for i, want := range []string{"five", "four", "three"} {
		if recent[i].Content != want {
			t.Fatalf("position %d: expected %q, got %q", i, want, recent[i].Content)
		}
	}
}

func TestListMessagesEmptyRoom(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	alice := seedUser(t, st, "alice")
	name := "lobby"
	room, err := st.CreateRoom(ctx, &name, true, []int64{alice})
	if err != nil {
		t.Fatal(err)
	}

	msgs, err := st.ListRecentMessages(ctx, room.ID, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 0 {
		t.Fatalf("expected no messages, got %d", len(msgs))
	}
}

func TestNotificationRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	alice := seedUser(t, st, "alice")
	bob := seedUser(t, st, "bob")

	url := "/posts/7"
	n, err := st.CreateNotification(ctx, NotificationParams{
		RecipientID: alice,
		ActorID:     &bob,
		Verb:        "liked your post",
		Target:      &models.TargetRef{Kind: "post", ID: 7},
		ActionURL:   &url,
	})
	if err != nil {
		t.Fatal(err)
	}
	if n.ID == 0 {
		t.Fatal("expected assigned id")
	}

	list, err := st.ListNotifications(ctx, alice, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(list))
	}
	got := list[0]
	if got.Verb != "liked your post" || got.ActorID == nil || *got.ActorID != bob {
		t.Fatalf("unexpected row: %+v", got)
	}
	if got.Target == nil || got.Target.Kind != "post" || got.Target.ID != 7 {
		t.Fatalf("target not round-tripped: %+v", got.Target)
	}
	if got.ActionURL == nil || *got.ActionURL != "/posts/7" {
		t.Fatalf("action url not round-tripped: %v", got.ActionURL)
	}
	if got.IsRead {
		t.Fatal("new notification must be unread")
	}
}

func TestMarkNotificationsReadByID(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	alice := seedUser(t, st, "alice")
	bob := seedUser(t, st, "bob")

	var ids []int64
	for i := 0; i < 3; i++ {
		n, err := st.CreateNotification(ctx, NotificationParams{RecipientID: alice, Verb: "v"})
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, n.ID)
	}

	updated, err := st.MarkNotificationsRead(ctx, alice, ids[:2], false)
	if err != nil {
		t.Fatal(err)
	}
	if updated != 2 {
		t.Fatalf("expected 2 updated, got %d", updated)
	}

	unread, err := st.ListNotifications(ctx, alice, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(unread) != 1 || unread[0].ID != ids[2] {
		t.Fatalf("unexpected unread set: %+v", unread)
	}

	// Another user cannot mark someone else's rows.
	updated, err = st.MarkNotificationsRead(ctx, bob, ids, false)
	if err != nil {
		t.Fatal(err)
	}
	if updated != 0 {
		t.Fatalf("expected 0 updated for foreign recipient, got %d", updated)
	}
}

func TestMarkAllNotificationsRead(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	alice := seedUser(t, st, "alice")

	for i := 0; i < 3; i++ {
		if _, err := st.CreateNotification(ctx, NotificationParams{RecipientID: alice, Verb: "v"}); err != nil {
			t.Fatal(err)
		}
	}

	updated, err := st.MarkNotificationsRead(ctx, alice, nil, true)
	if err != nil {
		t.Fatal(err)
	}
	if updated != 3 {
		t.Fatalf("expected 3 updated, got %d", updated)
	}

	// Marking again touches nothing.
	updated, err = st.MarkNotificationsRead(ctx, alice, nil, true)
	if err != nil {
		t.Fatal(err)
	}
	if updated != 0 {
		t.Fatalf("expected 0 updated on second pass, got %d", updated)
	}
}
