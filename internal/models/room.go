package models

import "time"

// Room represents a chat room. Direct rooms have exactly two participants
// and no name; group rooms carry a unique name.
type Room struct {
	ID           int64     `json:"id"`
	Name         *string   `json:"name"`
	IsGroupChat  bool      `json:"is_group_chat"`
	Participants []User    `json:"participants,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// HasParticipant reports whether the given user id is among the loaded
// participants. Only meaningful when Participants was populated.
func (r *Room) HasParticipant(userID int64) bool {
	for _, p := range r.Participants {
		if p.ID == userID {
			return true
		}
	}
	return false
}
