package models

import "time"

type MessageType string

const (
	MessageTypeUser      MessageType = "user"
	MessageTypeAssistant MessageType = "assistant"
	MessageTypeSystem    MessageType = "system"
)

func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeUser, MessageTypeAssistant, MessageTypeSystem:
		return true
	}
	return false
}

// Conversation - диалог пользователя с конкретным инструментом.
// ConversationID хранит идентификатор диалога на стороне шлюза.
type Conversation struct {
	ID             string    `json:"id" db:"id"`
	UserID         string    `json:"user_id" db:"user_id"`
	ToolID         string    `json:"tool_id" db:"tool_id"`
	Title          *string   `json:"title" db:"title"`
	ConversationID *string   `json:"conversation_id" db:"conversation_id"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

type Message struct {
	ID             string      `json:"id" db:"id"`
	ConversationID string      `json:"conversation_id" db:"conversation_id"`
	UserID         string      `json:"user_id" db:"user_id"`
	ToolID         string      `json:"tool_id" db:"tool_id"`
	MessageType    MessageType `json:"message_type" db:"message_type"`
	Content        string      `json:"content" db:"content"`
	Metadata       JSONMap     `json:"metadata,omitempty" db:"metadata"`
	CreatedAt      time.Time   `json:"created_at" db:"created_at"`
}

// Ключи метаданных сообщения
const (
	MetaAgentThoughts = "agent_thoughts"
	MetaFiles         = "files"
)

type FullConversation struct {
	Conversation Conversation `json:"conversation"`
	Messages     []Message    `json:"messages"`
}

type ConversationUpdate struct {
	Title          *string `json:"title"`
	ConversationID *string `json:"conversation_id"`
}
