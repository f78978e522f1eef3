package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/Jamolkhon5/aistudio/internal/models"
)

const fileColumns = `id, user_id, file_name, file_type, file_url, file_size, tool_id, conversation_id, created_at`

func (r *Repository) SaveFile(ctx context.Context, f models.UserFile) (*models.UserFile, error) {
	if f.ConversationID != nil {
		if err := checkID("save file", *f.ConversationID); err != nil {
			return nil, err
		}
	}
	query := `
        INSERT INTO user_files (id, user_id, file_name, file_type, file_url, file_size, tool_id, conversation_id)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING ` + fileColumns

	var saved models.UserFile
	err := r.db.GetContext(ctx, &saved, query,
		uuid.NewString(), f.UserID, f.FileName, f.FileType, f.FileURL, f.FileSize, f.ToolID, f.ConversationID)
	if err != nil {
		return nil, wrap("save file", err)
	}
	return &saved, nil
}

// ListFiles возвращает файлы пользователя, новые первыми. Пустой conversationID - все файлы.
func (r *Repository) ListFiles(ctx context.Context, userID, conversationID string) ([]models.UserFile, error) {
	query := `
        SELECT ` + fileColumns + `
        FROM user_files
        WHERE user_id = $1`
	args := []any{userID}
	if conversationID != "" {
		if err := checkID("list files", conversationID); err != nil {
			return nil, err
		}
		query += ` AND conversation_id = $2`
		args = append(args, conversationID)
	}
	query += ` ORDER BY created_at DESC`

	files := []models.UserFile{}
	if err := r.db.SelectContext(ctx, &files, query, args...); err != nil {
		return nil, wrap("list files", err)
	}
	return files, nil
}

func (r *Repository) DeleteFile(ctx context.Context, userID, id string) error {
	if err := checkID("delete file", id); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM user_files WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return wrap("delete file", err)
	}
	return affected("delete file", res)
}
