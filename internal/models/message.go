package models

import "time"

// Message is a single chat message. Messages belong to exactly one room and
// are deleted with it. Timestamp is assigned by the store at creation and is
// the replay/broadcast order within a room.
type Message struct {
	ID             int64     `json:"id"`
	RoomID         int64     `json:"chat_room"`
	SenderID       int64     `json:"sender_id"`
	SenderUsername string    `json:"sender_username,omitempty"`
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp"`
	IsRead         bool      `json:"is_read"`
}
