package models

import (
	"fmt"
	"time"
)

// TargetRef is a tagged reference to the entity a notification is about.
// It is purely descriptive and resolved lazily through a resolver registry;
// deleting the target never cascades to the notification.
type TargetRef struct {
	Kind string `json:"kind"`
	ID   int64  `json:"id"`
}

func (t TargetRef) String() string {
	return fmt.Sprintf("%s:%d", t.Kind, t.ID)
}

// Notification is a persisted per-user notification. Visible only to its
// recipient.
type Notification struct {
	ID          int64      `json:"id"`
	RecipientID int64      `json:"recipient"`
	ActorID     *int64     `json:"actor_id"`
	Verb        string     `json:"verb"`
	Target      *TargetRef `json:"target"`
	ActionURL   *string    `json:"action_url"`
	Timestamp   time.Time  `json:"timestamp"`
	IsRead      bool       `json:"is_read"`
}
