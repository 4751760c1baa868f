// Package storetest provides an in-memory DataStore for tests.
package storetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/foundrly/platform/internal/models"
	"github.com/foundrly/platform/internal/store"
)

// Fake is an in-memory DataStore. Failure fields, when set, make the
// corresponding write return that error.
type Fake struct {
	mu            sync.Mutex
	users         map[int64]models.User
	rooms         map[int64]models.Room
	messages      map[int64][]models.Message
	notifications []models.Notification
	nextID        int64
	clock         time.Time

	FailCreateMessage      error
	FailCreateNotification error
}

// NewFake creates an empty fake store.
func NewFake() *Fake {
	return &Fake{
		users:    make(map[int64]models.User),
		rooms:    make(map[int64]models.Room),
		messages: make(map[int64][]models.Message),
		clock:    time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (f *Fake) id() int64 {
	f.nextID++
	return f.nextID
}

// now returns a strictly increasing timestamp so ordering assertions are
// deterministic.
func (f *Fake) now() time.Time {
	f.clock = f.clock.Add(time.Millisecond)
	return f.clock
}

// AddUser seeds a user.
func (f *Fake) AddUser(username string) *models.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := models.User{ID: f.id(), Username: username, CreatedAt: f.now()}
	f.users[u.ID] = u
	return &u
}

// AddRoom seeds a room with the given participants.
func (f *Fake) AddRoom(name string, isGroup bool, participants ...*models.User) *models.Room {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addRoomLocked(&name, isGroup, participants...)
}

func (f *Fake) addRoomLocked(name *string, isGroup bool, participants ...*models.User) *models.Room {
	now := f.now()
	r := models.Room{ID: f.id(), Name: name, IsGroupChat: isGroup, CreatedAt: now, UpdatedAt: now}
	for _, p := range participants {
		r.Participants = append(r.Participants, *p)
	}
	f.rooms[r.ID] = r
	return &r
}

func (f *Fake) Close()                     {}
func (f *Fake) Ping(context.Context) error { return nil }

func (f *Fake) CreateUser(_ context.Context, username, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Username == username {
			return nil, store.ErrDuplicate
		}
	}
	u := models.User{ID: f.id(), Username: username, Email: email, CreatedAt: f.now()}
	f.users[u.ID] = u
	return &u, nil
}

func (f *Fake) GetUserByID(_ context.Context, id int64) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[id]; ok {
		return &u, nil
	}
	return nil, nil
}

func (f *Fake) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Username == username {
			u := u
			return &u, nil
		}
	}
	return nil, nil
}

func (f *Fake) CreateRoom(_ context.Context, name *string, isGroupChat bool, participantIDs []int64) (*models.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if name != nil {
		for _, r := range f.rooms {
			if r.Name != nil && *r.Name == *name {
				return nil, store.ErrDuplicate
			}
		}
	}
	var participants []*models.User
	for _, id := range participantIDs {
		if u, ok := f.users[id]; ok {
			u := u
			participants = append(participants, &u)
		}
	}
	return f.addRoomLocked(name, isGroupChat, participants...), nil
}

func (f *Fake) GetRoom(_ context.Context, id int64) (*models.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.rooms[id]; ok {
		return &r, nil
	}
	return nil, nil
}

func (f *Fake) GetRoomByName(_ context.Context, name string) (*models.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rooms {
		if r.Name != nil && *r.Name == name {
			r := r
			return &r, nil
		}
	}
	return nil, nil
}

func (f *Fake) ListRoomsForUser(_ context.Context, userID int64) ([]models.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []models.Room
	for _, r := range f.rooms {
		if r.HasParticipant(userID) {
			result = append(result, r)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].UpdatedAt.After(result[j].UpdatedAt) })
	return result, nil
}

func (f *Fake) FindDirectRoom(_ context.Context, userA, userB int64) (*models.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rooms {
		if !r.IsGroupChat && r.HasParticipant(userA) && r.HasParticipant(userB) {
			r := r
			return &r, nil
		}
	}
	return nil, nil
}

func (f *Fake) IsParticipant(_ context.Context, roomID, userID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rooms[roomID]
	return ok && r.HasParticipant(userID), nil
}

func (f *Fake) TouchRoom(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.rooms[id]; ok {
		r.UpdatedAt = f.now()
		f.rooms[id] = r
	}
	return nil
}

func (f *Fake) CreateMessage(_ context.Context, roomID, senderID int64, content string) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailCreateMessage != nil {
		return nil, f.FailCreateMessage
	}
	var username string
	if u, ok := f.users[senderID]; ok {
		username = u.Username
	}
	m := models.Message{
		ID:             f.id(),
		RoomID:         roomID,
		SenderID:       senderID,
		SenderUsername: username,
		Content:        content,
		Timestamp:      f.now(),
	}
	f.messages[roomID] = append(f.messages[roomID], m)
	return &m, nil
}

// Messages returns the persisted messages for a room in creation order.
func (f *Fake) Messages(roomID int64) []models.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Message(nil), f.messages[roomID]...)
}

func (f *Fake) ListRecentMessages(_ context.Context, roomID int64, limit int) ([]models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.messages[roomID]
	var result []models.Message
	for i := len(msgs) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, msgs[i])
	}
	return result, nil
}

func (f *Fake) ListMessages(_ context.Context, roomID int64) ([]models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Message(nil), f.messages[roomID]...), nil
}

func (f *Fake) CreateNotification(_ context.Context, p store.NotificationParams) (*models.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailCreateNotification != nil {
		return nil, f.FailCreateNotification
	}
	n := models.Notification{
		ID:          f.id(),
		RecipientID: p.RecipientID,
		ActorID:     p.ActorID,
		Verb:        p.Verb,
		Target:      p.Target,
		ActionURL:   p.ActionURL,
		Timestamp:   f.now(),
	}
	f.notifications = append(f.notifications, n)
	return &n, nil
}

// Notifications returns all persisted notifications in creation order.
func (f *Fake) Notifications() []models.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Notification(nil), f.notifications...)
}

func (f *Fake) ListNotifications(_ context.Context, recipientID int64, unreadOnly bool) ([]models.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []models.Notification
	for i := len(f.notifications) - 1; i >= 0; i-- {
		n := f.notifications[i]
		if n.RecipientID != recipientID {
			continue
		}
		if unreadOnly && n.IsRead {
			continue
		}
		result = append(result, n)
	}
	return result, nil
}

func (f *Fake) MarkNotificationsRead(_ context.Context, recipientID int64, ids []int64, all bool) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idSet := make(map[int64]bool, len(ids))
	for _, id := range ids {
		idSet[id] = true
	}
	var updated int64
	for i := range f.notifications {
		n := &f.notifications[i]
		if n.RecipientID != recipientID || n.IsRead {
			continue
		}
		if all || idSet[n.ID] {
			n.IsRead = true
			updated++
		}
	}
	return updated, nil
}
