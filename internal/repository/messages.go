package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/Jamolkhon5/aistudio/internal/models"
)

const messageColumns = `id, conversation_id, user_id, tool_id, message_type, content, metadata, created_at`

// SaveMessage добавляет сообщение в беседу пользователя и сдвигает updated_at беседы.
// Чужая или несуществующая беседа дает ErrNotFound.
func (r *Repository) SaveMessage(ctx context.Context, m models.Message) (*models.Message, error) {
	if !m.MessageType.Valid() {
		return nil, fmt.Errorf("failed to save message: %w: type %q", ErrInvalidMessage, m.MessageType)
	}
	if err := checkID("save message", m.ConversationID); err != nil {
		return nil, err
	}
	query := `
        WITH conv AS (
            UPDATE conversations SET updated_at = NOW()
            WHERE id = $2 AND user_id = $3
            RETURNING id
        )
        INSERT INTO messages (id, conversation_id, user_id, tool_id, message_type, content, metadata)
        SELECT $1, conv.id, $3, $4, $5, $6, $7 FROM conv
        RETURNING ` + messageColumns

	var saved models.Message
	err := r.db.GetContext(ctx, &saved, query,
		uuid.NewString(), m.ConversationID, m.UserID, m.ToolID, m.MessageType, m.Content, m.Metadata)
	if err != nil {
		return nil, wrap("save message", err)
	}
	return &saved, nil
}

// ListMessages - сообщения беседы в порядке создания.
func (r *Repository) ListMessages(ctx context.Context, userID, conversationID string) ([]models.Message, error) {
	if err := checkID("list messages", conversationID); err != nil {
		return nil, err
	}
	query := `
        SELECT ` + messageColumns + `
        FROM messages
        WHERE conversation_id = $1 AND user_id = $2
        ORDER BY created_at ASC`

	messages := []models.Message{}
	if err := r.db.SelectContext(ctx, &messages, query, conversationID, userID); err != nil {
		return nil, wrap("list messages", err)
	}
	return messages, nil
}

func (r *Repository) DeleteMessage(ctx context.Context, userID, id string) error {
	if err := checkID("delete message", id); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM messages WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return wrap("delete message", err)
	}
	return affected("delete message", res)
}
