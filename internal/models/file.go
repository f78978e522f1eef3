package models

import "time"

type UserFile struct {
	ID             string    `json:"id" db:"id"`
	UserID         string    `json:"user_id" db:"user_id"`
	FileName       string    `json:"file_name" db:"file_name"`
	FileType       string    `json:"file_type" db:"file_type"`
	FileURL        string    `json:"file_url" db:"file_url"`
	FileSize       *int64    `json:"file_size" db:"file_size"`
	ToolID         *string   `json:"tool_id" db:"tool_id"`
	ConversationID *string   `json:"conversation_id" db:"conversation_id"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}
