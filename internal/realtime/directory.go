// Package realtime implements the live-messaging core: the group directory
// tracking which connections belong to which routing group, the fan-out bus
// that broadcasts events to a group, and the per-connection session state
// machine.
package realtime

import (
	"fmt"
	"sync"
)

// ChatGroup returns the routing group for a chat room.
func ChatGroup(roomName string) string {
	return "chat_" + roomName
}

// UserNotificationsGroup returns the single-user routing group for a user's
// notification stream.
func UserNotificationsGroup(userID int64) string {
	return fmt.Sprintf("user_%d_notifications", userID)
}

// Directory tracks, per group, the set of subscribers currently joined.
// Membership is process-local and never persisted; on restart it is rebuilt
// entirely from new connection attempts. All methods are safe for concurrent
// use.
type Directory struct {
	mu     sync.RWMutex
	groups map[string]map[Subscriber]struct{}
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{groups: make(map[string]map[Subscriber]struct{})}
}

// Join adds sub to the group. Adding an already-joined subscriber is a no-op.
func (d *Directory) Join(group string, sub Subscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()

	members, ok := d.groups[group]
	if !ok {
		members = make(map[Subscriber]struct{})
		d.groups[group] = members
	}
	members[sub] = struct{}{}
}

// Leave removes sub from the group. Removing a non-member is a no-op.
func (d *Directory) Leave(group string, sub Subscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()

	members, ok := d.groups[group]
	if !ok {
		return
	}
	delete(members, sub)
	if len(members) == 0 {
		delete(d.groups, group)
	}
}

// Members returns a point-in-time snapshot of the group's membership.
// Delivery iterates over the snapshot even if membership changes mid-way.
func (d *Directory) Members(group string) []Subscriber {
	d.mu.RLock()
	defer d.mu.RUnlock()

	members := d.groups[group]
	if len(members) == 0 {
		return nil
	}
	snapshot := make([]Subscriber, 0, len(members))
	for sub := range members {
		snapshot = append(snapshot, sub)
	}
	return snapshot
}
