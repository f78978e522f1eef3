package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/Jamolkhon5/aistudio/internal/models"
)

const (
	artworkColumns = `id, user_id, tool_id, title, content_type, content_url, thumbnail_url, prompt,
        input_image_url, output_image_url, output_metadata, tool_name, is_favorite, is_public,
        created_at, updated_at`

	defaultArtworkPage = 10
)

func (r *Repository) CreateArtwork(ctx context.Context, a models.Artwork) (*models.Artwork, error) {
	query := `
        INSERT INTO artworks (id, user_id, tool_id, title, content_type, content_url, thumbnail_url, prompt,
            input_image_url, output_image_url, output_metadata, tool_name, is_favorite, is_public)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
        RETURNING ` + artworkColumns

	var saved models.Artwork
	err := r.db.GetContext(ctx, &saved, query,
		uuid.NewString(), a.UserID, a.ToolID, a.Title, a.ContentType, a.ContentURL, a.ThumbnailURL, a.Prompt,
		a.InputImageURL, a.OutputImageURL, a.OutputMetadata, a.ToolName, a.IsFavorite, a.IsPublic)
	if err != nil {
		return nil, wrap("create artwork", err)
	}
	return &saved, nil
}

// ListArtworks - работы пользователя, новые первыми.
// Offset без limit использует страницу из 10 записей.
func (r *Repository) ListArtworks(ctx context.Context, userID string, f models.ArtworkFilter) ([]models.Artwork, error) {
	query := `
        SELECT ` + artworkColumns + `
        FROM artworks
        WHERE user_id = $1`
	args := []any{userID}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.ToolID != "" {
		query += ` AND tool_id = ` + arg(f.ToolID)
	}
	if f.ContentType != "" {
		query += ` AND content_type = ` + arg(f.ContentType)
	}
	if f.Search != "" {
		query += ` AND title ILIKE '%' || ` + arg(f.Search) + ` || '%'`
	}
	query += ` ORDER BY created_at DESC`

	limit := f.Limit
	if limit <= 0 && f.Offset > 0 {
		limit = defaultArtworkPage
	}
	if limit > 0 {
		query += ` LIMIT ` + arg(limit)
	}
	if f.Offset > 0 {
		query += ` OFFSET ` + arg(f.Offset)
	}

	artworks := []models.Artwork{}
	if err := r.db.SelectContext(ctx, &artworks, query, args...); err != nil {
		return nil, wrap("list artworks", err)
	}
	return artworks, nil
}

func (r *Repository) GetArtwork(ctx context.Context, userID, id string) (*models.Artwork, error) {
	if err := checkID("get artwork", id); err != nil {
		return nil, err
	}
	query := `
        SELECT ` + artworkColumns + `
        FROM artworks
        WHERE id = $1 AND user_id = $2`

	var a models.Artwork
	if err := r.db.GetContext(ctx, &a, query, id, userID); err != nil {
		return nil, wrap("get artwork", err)
	}
	return &a, nil
}

// UpdateArtwork меняет только переданные поля и обновляет updated_at.
func (r *Repository) UpdateArtwork(ctx context.Context, userID, id string, upd models.ArtworkUpdate) (*models.Artwork, error) {
	if err := checkID("update artwork", id); err != nil {
		return nil, err
	}
	query := `
        UPDATE artworks
        SET title = COALESCE($3, title),
            is_favorite = COALESCE($4, is_favorite),
            content_url = COALESCE($5, content_url),
            output_image_url = COALESCE($6, output_image_url),
            thumbnail_url = COALESCE($7, thumbnail_url),
            output_metadata = COALESCE($8, output_metadata),
            updated_at = NOW()
        WHERE id = $1 AND user_id = $2
        RETURNING ` + artworkColumns

	var a models.Artwork
	err := r.db.GetContext(ctx, &a, query, id, userID,
		upd.Title, upd.IsFavorite, upd.ContentURL, upd.OutputImageURL, upd.ThumbnailURL, upd.OutputMetadata)
	if err != nil {
		return nil, wrap("update artwork", err)
	}
	return &a, nil
}

func (r *Repository) DeleteArtwork(ctx context.Context, userID, id string) error {
	if err := checkID("delete artwork", id); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM artworks WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return wrap("delete artwork", err)
	}
	return affected("delete artwork", res)
}
