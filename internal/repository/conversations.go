package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/Jamolkhon5/aistudio/internal/models"
)

const conversationColumns = `id, user_id, tool_id, title, conversation_id, created_at, updated_at`

func (r *Repository) CreateConversation(ctx context.Context, userID, toolID string, title, gatewayID *string) (*models.Conversation, error) {
	query := `
        INSERT INTO conversations (id, user_id, tool_id, title, conversation_id)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING ` + conversationColumns

	var c models.Conversation
	if err := r.db.GetContext(ctx, &c, query, uuid.NewString(), userID, toolID, title, gatewayID); err != nil {
		return nil, wrap("create conversation", err)
	}
	return &c, nil
}

// ListConversations возвращает беседы пользователя, свежие первыми. Пустой toolID - все инструменты.
func (r *Repository) ListConversations(ctx context.Context, userID, toolID string) ([]models.Conversation, error) {
	query := `
        SELECT ` + conversationColumns + `
        FROM conversations
        WHERE user_id = $1`
	args := []any{userID}
	if toolID != "" {
		query += ` AND tool_id = $2`
		args = append(args, toolID)
	}
	query += ` ORDER BY updated_at DESC`

	conversations := []models.Conversation{}
	if err := r.db.SelectContext(ctx, &conversations, query, args...); err != nil {
		return nil, wrap("list conversations", err)
	}
	return conversations, nil
}

func (r *Repository) GetConversation(ctx context.Context, userID, id string) (*models.Conversation, error) {
	if err := checkID("get conversation", id); err != nil {
		return nil, err
	}
	query := `
        SELECT ` + conversationColumns + `
        FROM conversations
        WHERE id = $1 AND user_id = $2`

	var c models.Conversation
	if err := r.db.GetContext(ctx, &c, query, id, userID); err != nil {
		return nil, wrap("get conversation", err)
	}
	return &c, nil
}

// UpdateConversation меняет только переданные поля и обновляет updated_at.
func (r *Repository) UpdateConversation(ctx context.Context, userID, id string, upd models.ConversationUpdate) (*models.Conversation, error) {
	if err := checkID("update conversation", id); err != nil {
		return nil, err
	}
	query := `
        UPDATE conversations
        SET title = COALESCE($3, title),
            conversation_id = COALESCE($4, conversation_id),
            updated_at = NOW()
        WHERE id = $1 AND user_id = $2
        RETURNING ` + conversationColumns

	var c models.Conversation
	if err := r.db.GetContext(ctx, &c, query, id, userID, upd.Title, upd.ConversationID); err != nil {
		return nil, wrap("update conversation", err)
	}
	return &c, nil
}

// DeleteConversation удаляет беседу; сообщения удаляет каскад в БД.
func (r *Repository) DeleteConversation(ctx context.Context, userID, id string) error {
	if err := checkID("delete conversation", id); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return wrap("delete conversation", err)
	}
	return affected("delete conversation", res)
}

func (r *Repository) GetFullConversation(ctx context.Context, userID, id string) (*models.FullConversation, error) {
	c, err := r.GetConversation(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	messages, err := r.ListMessages(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return &models.FullConversation{Conversation: *c, Messages: messages}, nil
}

// ClearUserData удаляет все беседы пользователя вместе с сообщениями.
func (r *Repository) ClearUserData(ctx context.Context, userID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM conversations WHERE user_id = $1`, userID)
	if err != nil {
		return 0, wrap("clear user data", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrap("clear user data", err)
	}
	return n, nil
}
