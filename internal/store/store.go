package store

import (
	"context"
	"errors"

	"github.com/foundrly/platform/internal/models"
)

// ErrDuplicate is returned when an insert violates a uniqueness constraint
// (room name, username).
var ErrDuplicate = errors.New("store: duplicate record")

// NotificationParams carries the fields for creating a notification row.
// Verb must be non-empty; everything else is optional.
type NotificationParams struct {
	RecipientID int64
	ActorID     *int64
	Verb        string
	Target      *models.TargetRef
	ActionURL   *string
}

// DataStore defines the persistence operations the platform needs.
// Both PostgresStore and SQLiteStore implement this interface. Lookups
// return (nil, nil) when the row does not exist.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// User operations
	CreateUser(ctx context.Context, username, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)

	// Room operations
	CreateRoom(ctx context.Context, name *string, isGroupChat bool, participantIDs []int64) (*models.Room, error)
	GetRoom(ctx context.Context, id int64) (*models.Room, error)
	GetRoomByName(ctx context.Context, name string) (*models.Room, error)
	ListRoomsForUser(ctx context.Context, userID int64) ([]models.Room, error)
	FindDirectRoom(ctx context.Context, userA, userB int64) (*models.Room, error)
	IsParticipant(ctx context.Context, roomID, userID int64) (bool, error)
	TouchRoom(ctx context.Context, id int64) error

	// Message operations
	CreateMessage(ctx context.Context, roomID, senderID int64, content string) (*models.Message, error)
	ListRecentMessages(ctx context.Context, roomID int64, limit int) ([]models.Message, error)
	ListMessages(ctx context.Context, roomID int64) ([]models.Message, error)

	// Notification operations
	CreateNotification(ctx context.Context, p NotificationParams) (*models.Notification, error)
	ListNotifications(ctx context.Context, recipientID int64, unreadOnly bool) ([]models.Notification, error)
	MarkNotificationsRead(ctx context.Context, recipientID int64, ids []int64, all bool) (int64, error)
}
