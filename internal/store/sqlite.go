package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/foundrly/platform/internal/models"
)

// SQLiteStore handles SQLite database operations. It is the development
// default when no DATABASE_URL is configured.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/platform.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/platform.db"
	}

	// Ensure directory exists, unless using an in-memory database
	if !strings.HasPrefix(dbPath, ":memory:") && !strings.HasPrefix(dbPath, "file:") {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}

	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT UNIQUE NOT NULL,
		email TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS chat_rooms (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT UNIQUE,
		is_group_chat INTEGER DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS room_participants (
		room_id INTEGER NOT NULL REFERENCES chat_rooms(id) ON DELETE CASCADE,
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		PRIMARY KEY (room_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		room_id INTEGER NOT NULL REFERENCES chat_rooms(id) ON DELETE CASCADE,
		sender_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		content TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		is_read INTEGER DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS notifications (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		recipient_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		actor_id INTEGER,
		verb TEXT NOT NULL,
		target_kind TEXT,
		target_id INTEGER,
		action_url TEXT,
		timestamp DATETIME NOT NULL,
		is_read INTEGER DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_messages_room_ts ON messages(room_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_participants_user ON room_participants(user_id);
	CREATE INDEX IF NOT EXISTS idx_notifications_recipient ON notifications(recipient_id, timestamp);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateUser creates a new user record.
func (s *SQLiteStore) CreateUser(ctx context.Context, username, email string) (*models.User, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, email, created_at) VALUES (?, ?, ?)
	`, username, email, now)
	if err != nil {
		if isSQLiteUnique(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &models.User{ID: id, Username: username, Email: email, CreatedAt: now}, nil
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	user := &models.User{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, email, created_at FROM users WHERE id = ?
	`, id).Scan(&user.ID, &user.Username, &user.Email, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

// GetUserByUsername retrieves a user by username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	user := &models.User{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, email, created_at FROM users WHERE username = ?
	`, username).Scan(&user.ID, &user.Username, &user.Email, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

// CreateRoom creates a room with the given participants.
func (s *SQLiteStore) CreateRoom(ctx context.Context, name *string, isGroupChat bool, participantIDs []int64) (*models.Room, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	isGroupInt := 0
	if isGroupChat {
		isGroupInt = 1
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO chat_rooms (name, is_group_chat, created_at, updated_at)
		VALUES (?, ?, ?, ?)
	`, name, isGroupInt, now, now)
	if err != nil {
		if isSQLiteUnique(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	roomID, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	for _, uid := range participantIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO room_participants (room_id, user_id) VALUES (?, ?)
		`, roomID, uid); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetRoom(ctx, roomID)
}

// GetRoom retrieves a room by ID with its participants loaded.
func (s *SQLiteStore) GetRoom(ctx context.Context, id int64) (*models.Room, error) {
	room := &models.Room{}
	var isGroupInt int
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, is_group_chat, created_at, updated_at
		FROM chat_rooms WHERE id = ?
	`, id).Scan(&room.ID, &room.Name, &isGroupInt, &room.CreatedAt, &room.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	room.IsGroupChat = isGroupInt == 1

	if room.Participants, err = s.loadParticipants(ctx, room.ID); err != nil {
		return nil, err
	}
	return room, nil
}

// GetRoomByName retrieves a room by its unique name.
func (s *SQLiteStore) GetRoomByName(ctx context.Context, name string) (*models.Room, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM chat_rooms WHERE name = ?
	`, name).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return s.GetRoom(ctx, id)
}

// ListRoomsForUser retrieves rooms the user participates in, most recently
// updated first.
func (s *SQLiteStore) ListRoomsForUser(ctx context.Context, userID int64) ([]models.Room, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.name, r.is_group_chat, r.created_at, r.updated_at
		FROM chat_rooms r
		JOIN room_participants p ON p.room_id = r.id
		WHERE p.user_id = ?
		ORDER BY r.updated_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.Room
	for rows.Next() {
		var room models.Room
		var isGroupInt int
		if err := rows.Scan(&room.ID, &room.Name, &isGroupInt, &room.CreatedAt, &room.UpdatedAt); err != nil {
			return nil, err
		}
		room.IsGroupChat = isGroupInt == 1
		result = append(result, room)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range result {
		if result[i].Participants, err = s.loadParticipants(ctx, result[i].ID); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// FindDirectRoom finds the direct (non-group) room shared by two users.
func (s *SQLiteStore) FindDirectRoom(ctx context.Context, userA, userB int64) (*models.Room, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		SELECT r.id
		FROM chat_rooms r
		JOIN room_participants pa ON pa.room_id = r.id AND pa.user_id = ?
		JOIN room_participants pb ON pb.room_id = r.id AND pb.user_id = ?
		WHERE r.is_group_chat = 0
		LIMIT 1
	`, userA, userB).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return s.GetRoom(ctx, id)
}

// IsParticipant reports whether the user participates in the room.
func (s *SQLiteStore) IsParticipant(ctx context.Context, roomID, userID int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM room_participants WHERE room_id = ? AND user_id = ?
	`, roomID, userID).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// TouchRoom bumps the room's updated_at timestamp.
func (s *SQLiteStore) TouchRoom(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE chat_rooms SET updated_at = ? WHERE id = ?
	`, time.Now().UTC(), id)
	return err
}

// CreateMessage persists a message with a store-assigned timestamp and
// returns the row with the sender's username joined in.
func (s *SQLiteStore) CreateMessage(ctx context.Context, roomID, senderID int64, content string) (*models.Message, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (room_id, sender_id, content, timestamp, is_read)
		VALUES (?, ?, ?, ?, 0)
	`, roomID, senderID, content, now)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	var username string
	if err := s.db.QueryRowContext(ctx, `
		SELECT username FROM users WHERE id = ?
	`, senderID).Scan(&username); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	return &models.Message{
		ID:             id,
		RoomID:         roomID,
		SenderID:       senderID,
		SenderUsername: username,
		Content:        content,
		Timestamp:      now,
	}, nil
}

// ListRecentMessages retrieves the newest messages in a room, newest first.
func (s *SQLiteStore) ListRecentMessages(ctx context.Context, roomID int64, limit int) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.room_id, m.sender_id, u.username, m.content, m.timestamp, m.is_read
		FROM messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.room_id = ?
		ORDER BY m.timestamp DESC, m.id DESC
		LIMIT ?
	`, roomID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessageRows(rows)
}

// ListMessages retrieves all messages in a room in chronological order.
func (s *SQLiteStore) ListMessages(ctx context.Context, roomID int64) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.room_id, m.sender_id, u.username, m.content, m.timestamp, m.is_read
		FROM messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.room_id = ?
		ORDER BY m.timestamp ASC, m.id ASC
	`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessageRows(rows)
}

// CreateNotification persists a notification row.
func (s *SQLiteStore) CreateNotification(ctx context.Context, p NotificationParams) (*models.Notification, error) {
	now := time.Now().UTC()

	var targetKind *string
	var targetID *int64
	if p.Target != nil {
		targetKind = &p.Target.Kind
		targetID = &p.Target.ID
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (recipient_id, actor_id, verb, target_kind, target_id, action_url, timestamp, is_read)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0)
	`, p.RecipientID, p.ActorID, p.Verb, targetKind, targetID, p.ActionURL, now)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	return &models.Notification{
		ID:          id,
		RecipientID: p.RecipientID,
		ActorID:     p.ActorID,
		Verb:        p.Verb,
		Target:      p.Target,
		ActionURL:   p.ActionURL,
		Timestamp:   now,
	}, nil
}

// ListNotifications retrieves a user's notifications, newest first.
func (s *SQLiteStore) ListNotifications(ctx context.Context, recipientID int64, unreadOnly bool) ([]models.Notification, error) {
	query := `
		SELECT id, recipient_id, actor_id, verb, target_kind, target_id, action_url, timestamp, is_read
		FROM notifications
		WHERE recipient_id = ?
	`
	if unreadOnly {
		query += ` AND is_read = 0`
	}
	query += ` ORDER BY timestamp DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, recipientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.Notification
	for rows.Next() {
		var n models.Notification
		var targetKind *string
		var targetID *int64
		var isReadInt int
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.ActorID, &n.Verb, &targetKind, &targetID, &n.ActionURL, &n.Timestamp, &isReadInt); err != nil {
			return nil, err
		}
		n.IsRead = isReadInt == 1
		if targetKind != nil && targetID != nil {
			n.Target = &models.TargetRef{Kind: *targetKind, ID: *targetID}
		}
		result = append(result, n)
	}
	return result, rows.Err()
}

// MarkNotificationsRead marks the given notifications (or all unread ones)
// as read for the recipient, returning the number updated. Only the
// recipient's own rows are ever touched.
func (s *SQLiteStore) MarkNotificationsRead(ctx context.Context, recipientID int64, ids []int64, all bool) (int64, error) {
	if all {
		res, err := s.db.ExecContext(ctx, `
			UPDATE notifications SET is_read = 1 WHERE recipient_id = ? AND is_read = 0
		`, recipientID)
		if err != nil {
			return 0, err
		}
		return res.RowsAffected()
	}

	var total int64
	for _, id := range ids {
		res, err := s.db.ExecContext(ctx, `
			UPDATE notifications SET is_read = 1 WHERE recipient_id = ? AND id = ?
		`, recipientID, id)
		if err != nil {
			return total, err
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

func (s *SQLiteStore) loadParticipants(ctx context.Context, roomID int64) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.username, u.email, u.created_at
		FROM users u
		JOIN room_participants p ON p.user_id = u.id
		WHERE p.room_id = ?
		ORDER BY u.id
	`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func scanMessageRows(rows *sql.Rows) ([]models.Message, error) {
	var result []models.Message
	for rows.Next() {
		var m models.Message
		var isReadInt int
		if err := rows.Scan(&m.ID, &m.RoomID, &m.SenderID, &m.SenderUsername, &m.Content, &m.Timestamp, &isReadInt); err != nil {
			return nil, err
		}
		m.IsRead = isReadInt == 1
		result = append(result, m)
	}
	return result, rows.Err()
}

func isSQLiteUnique(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
