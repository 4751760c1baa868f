package store

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// migrations are idempotent and run in order at startup.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		username TEXT UNIQUE NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS chat_rooms (
		id BIGSERIAL PRIMARY KEY,
		name TEXT UNIQUE,
		is_group_chat BOOLEAN NOT NULL DEFAULT false,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS room_participants (
		room_id BIGINT NOT NULL REFERENCES chat_rooms(id) ON DELETE CASCADE,
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		PRIMARY KEY (room_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id BIGSERIAL PRIMARY KEY,
		room_id BIGINT NOT NULL REFERENCES chat_rooms(id) ON DELETE CASCADE,
		sender_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		content TEXT NOT NULL,
		timestamp TIMESTAMPTZ NOT NULL DEFAULT now(),
		is_read BOOLEAN NOT NULL DEFAULT false
	)`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id BIGSERIAL PRIMARY KEY,
		recipient_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		actor_id BIGINT,
		verb TEXT NOT NULL,
		target_kind TEXT,
		target_id BIGINT,
		action_url TEXT,
		timestamp TIMESTAMPTZ NOT NULL DEFAULT now(),
		is_read BOOLEAN NOT NULL DEFAULT false
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_room_ts ON messages(room_id, timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_participants_user ON room_participants(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_recipient ON notifications(recipient_id, timestamp)`,
}

// RunMigrations applies the schema to the given PostgreSQL database.
func RunMigrations(ctx context.Context, databaseURL string) error {
	conn, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)

	for _, m := range migrations {
		if _, err := conn.Exec(ctx, m); err != nil {
			return err
		}
	}
	return nil
}
