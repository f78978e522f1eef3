package repository

import (
	"context"
	"log"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS conversations (
		id UUID PRIMARY KEY,
		user_id TEXT NOT NULL,
		tool_id TEXT NOT NULL,
		title TEXT,
		conversation_id TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS conversations_user_updated_idx ON conversations (user_id, updated_at DESC)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id UUID PRIMARY KEY,
		conversation_id UUID NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL,
		tool_id TEXT NOT NULL,
		message_type TEXT NOT NULL CHECK (message_type IN ('user', 'assistant', 'system')),
		content TEXT NOT NULL,
		metadata JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS messages_conversation_idx ON messages (conversation_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS user_files (
		id UUID PRIMARY KEY,
		user_id TEXT NOT NULL,
		file_name TEXT NOT NULL,
		file_type TEXT NOT NULL,
		file_url TEXT NOT NULL,
		file_size BIGINT,
		tool_id TEXT,
		conversation_id UUID REFERENCES conversations(id) ON DELETE SET NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS artworks (
		id UUID PRIMARY KEY,
		user_id TEXT NOT NULL,
		tool_id TEXT NOT NULL,
		title TEXT NOT NULL,
		content_type TEXT NOT NULL CHECK (content_type IN ('image', 'video', 'audio', 'text')),
		content_url TEXT NOT NULL DEFAULT '',
		thumbnail_url TEXT,
		prompt TEXT,
		input_image_url TEXT,
		output_image_url TEXT,
		output_metadata JSONB,
		tool_name TEXT,
		is_favorite BOOLEAN NOT NULL DEFAULT FALSE,
		is_public BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS artworks_user_created_idx ON artworks (user_id, created_at DESC)`,
}

// Migrate создает таблицы, если их еще нет.
func (r *Repository) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return wrap("migrate schema", err)
		}
	}
	log.Printf("INFO: [Repository] schema is up to date (%d statements)", len(schema))
	return nil
}
