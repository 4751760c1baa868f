package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/foundrly/platform/internal/models"
)

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// CreateUser creates a new user record.
func (s *PostgresStore) CreateUser(ctx context.Context, username, email string) (*models.User, error) {
	user := &models.User{}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (username, email)
		VALUES ($1, $2)
		RETURNING id, username, email, created_at
	`, username, email).Scan(&user.ID, &user.Username, &user.Email, &user.CreatedAt)
	if err != nil {
		if isPostgresUnique(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return user, nil
}

// GetUserByID retrieves a user by ID.
func (s *PostgresStore) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	user := &models.User{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, username, email, created_at FROM users WHERE id = $1
	`, id).Scan(&user.ID, &user.Username, &user.Email, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

// GetUserByUsername retrieves a user by username.
func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	user := &models.User{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, username, email, created_at FROM users WHERE username = $1
	`, username).Scan(&user.ID, &user.Username, &user.Email, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

// CreateRoom creates a room with the given participants.
func (s *PostgresStore) CreateRoom(ctx context.Context, name *string, isGroupChat bool, participantIDs []int64) (*models.Room, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var roomID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO chat_rooms (name, is_group_chat)
		VALUES ($1, $2)
		RETURNING id
	`, name, isGroupChat).Scan(&roomID)
	if err != nil {
		if isPostgresUnique(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}

	for _, uid := range participantIDs {
		if _, err := tx.Exec(ctx, `
			INSERT INTO room_participants (room_id, user_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, roomID, uid); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return s.GetRoom(ctx, roomID)
}

// GetRoom retrieves a room by ID with its participants loaded.
func (s *PostgresStore) GetRoom(ctx context.Context, id int64) (*models.Room, error) {
	room := &models.Room{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, is_group_chat, created_at, updated_at
		FROM chat_rooms WHERE id = $1
	`, id).Scan(&room.ID, &room.Name, &room.IsGroupChat, &room.CreatedAt, &room.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	if room.Participants, err = s.loadParticipants(ctx, room.ID); err != nil {
		return nil, err
	}
	return room, nil
}

// GetRoomByName retrieves a room by its unique name.
func (s *PostgresStore) GetRoomByName(ctx context.Context, name string) (*models.Room, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		SELECT id FROM chat_rooms WHERE name = $1
	`, name).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return s.GetRoom(ctx, id)
}

// ListRoomsForUser retrieves rooms the user participates in, most recently
// updated first.
func (s *PostgresStore) ListRoomsForUser(ctx context.Context, userID int64) ([]models.Room, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT r.id, r.name, r.is_group_chat, r.created_at, r.updated_at
		FROM chat_rooms r
		JOIN room_participants p ON p.room_id = r.id
		WHERE p.user_id = $1
		ORDER BY r.updated_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.Room
	for rows.Next() {
		var room models.Room
		if err := rows.Scan(&room.ID, &room.Name, &room.IsGroupChat, &room.CreatedAt, &room.UpdatedAt); err != nil {
			return nil, err
		}
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
func (s *PostgresStore) FindDirectRoom(ctx context.Context, userA, userB int64) (*models.Room, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		SELECT r.id
		FROM chat_rooms r
		JOIN room_participants pa ON pa.room_id = r.id AND pa.user_id = $1
		JOIN room_participants pb ON pb.room_id = r.id AND pb.user_id = $2
		WHERE r.is_group_chat = false
		LIMIT 1
	`, userA, userB).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return s.GetRoom(ctx, id)
}

// IsParticipant reports whether the user participates in the room.
func (s *PostgresStore) IsParticipant(ctx context.Context, roomID, userID int64) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM room_participants WHERE room_id = $1 AND user_id = $2
		)
	`, roomID, userID).Scan(&exists)
	return exists, err
}

// TouchRoom bumps the room's updated_at timestamp.
func (s *PostgresStore) TouchRoom(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE chat_rooms SET updated_at = now() WHERE id = $1
	`, id)
	return err
}

// CreateMessage persists a message with a server-assigned timestamp and
// returns the row with the sender's username joined in.
func (s *PostgresStore) CreateMessage(ctx context.Context, roomID, senderID int64, content string) (*models.Message, error) {
	msg := &models.Message{}
	err := s.pool.QueryRow(ctx, `
		WITH inserted AS (
			INSERT INTO messages (room_id, sender_id, content)
			VALUES ($1, $2, $3)
			RETURNING id, room_id, sender_id, content, timestamp, is_read
		)
		SELECT i.id, i.room_id, i.sender_id, u.username, i.content, i.timestamp, i.is_read
		FROM inserted i
		JOIN users u ON u.id = i.sender_id
	`, roomID, senderID, content).Scan(
		&msg.ID,
		&msg.RoomID,
		&msg.SenderID,
		&msg.SenderUsername,
		&msg.Content,
		&msg.Timestamp,
		&msg.IsRead,
	)
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// ListRecentMessages retrieves the newest messages in a room, newest first.
func (s *PostgresStore) ListRecentMessages(ctx context.Context, roomID int64, limit int) ([]models.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT m.id, m.room_id, m.sender_id, u.username, m.content, m.timestamp, m.is_read
		FROM messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.room_id = $1
		ORDER BY m.timestamp DESC, m.id DESC
		LIMIT $2
	`, roomID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPgMessageRows(rows)
}

// ListMessages retrieves all messages in a room in chronological order.
func (s *PostgresStore) ListMessages(ctx context.Context, roomID int64) ([]models.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT m.id, m.room_id, m.sender_id, u.username, m.content, m.timestamp, m.is_read
		FROM messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.room_id = $1
		ORDER BY m.timestamp ASC, m.id ASC
	`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPgMessageRows(rows)
}

// CreateNotification persists a notification row.
func (s *PostgresStore) CreateNotification(ctx context.Context, p NotificationParams) (*models.Notification, error) {
	var targetKind *string
	var targetID *int64
	if p.Target != nil {
		targetKind = &p.Target.Kind
		targetID = &p.Target.ID
	}

	n := &models.Notification{Target: p.Target}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO notifications (recipient_id, actor_id, verb, target_kind, target_id, action_url)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, recipient_id, actor_id, verb, action_url, timestamp, is_read
	`, p.RecipientID, p.ActorID, p.Verb, targetKind, targetID, p.ActionURL).Scan(
		&n.ID,
		&n.RecipientID,
		&n.ActorID,
		&n.Verb,
		&n.ActionURL,
		&n.Timestamp,
		&n.IsRead,
	)
	if err != nil {
		return nil, err
	}
	return n, nil
}

// ListNotifications retrieves a user's notifications, newest first.
func (s *PostgresStore) ListNotifications(ctx context.Context, recipientID int64, unreadOnly bool) ([]models.Notification, error) {
	query := `
		SELECT id, recipient_id, actor_id, verb, target_kind, target_id, action_url, timestamp, is_read
		FROM notifications
		WHERE recipient_id = $1
	`
	if unreadOnly {
		query += ` AND is_read = false`
	}
	query += ` ORDER BY timestamp DESC, id DESC`

	rows, err := s.pool.Query(ctx, query, recipientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.Notification
	for rows.Next() {
		var n models.Notification
		var targetKind *string
		var targetID *int64
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.ActorID, &n.Verb, &targetKind, &targetID, &n.ActionURL, &n.Timestamp, &n.IsRead); err != nil {
			return nil, err
		}
		if targetKind != nil && targetID != nil {
			n.Target = &models.TargetRef{Kind: *targetKind, ID: *targetID}
		}
		result = append(result, n)
	}
	return result, rows.Err()
}

// MarkNotificationsRead marks the given notifications (or all unread ones)
// as read for the recipient, returning the number updated.
func (s *PostgresStore) MarkNotificationsRead(ctx context.Context, recipientID int64, ids []int64, all bool) (int64, error) {
	if all {
		tag, err := s.pool.Exec(ctx, `
			UPDATE notifications SET is_read = true WHERE recipient_id = $1 AND is_read = false
		`, recipientID)
		if err != nil {
			return 0, err
		}
		return tag.RowsAffected(), nil
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE notifications SET is_read = true WHERE recipient_id = $1 AND id = ANY($2)
	`, recipientID, ids)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) loadParticipants(ctx context.Context, roomID int64) ([]models.User, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT u.id, u.username, u.email, u.created_at
		FROM users u
		JOIN room_participants p ON p.user_id = u.id
		WHERE p.room_id = $1
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

func scanPgMessageRows(rows pgx.Rows) ([]models.Message, error) {
	var result []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.RoomID, &m.SenderID, &m.SenderUsername, &m.Content, &m.Timestamp, &m.IsRead); err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

// isPostgresUnique reports whether err is a unique constraint violation.
func isPostgresUnique(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
