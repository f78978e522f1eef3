package models

import "time"

type ContentType string

const (
	ContentImage ContentType = "image"
	ContentVideo ContentType = "video"
	ContentAudio ContentType = "audio"
	ContentText  ContentType = "text"
)

type UploadStatus string

const (
	UploadUploading UploadStatus = "uploading"
	UploadCompleted UploadStatus = "completed"
	UploadFailed    UploadStatus = "failed"
)

// Ключи output_metadata
const (
	MetaDimensions        = "dimensions"
	MetaFileSize          = "file_size"
	MetaFormat            = "format"
	MetaPermanentURL      = "permanent_url"
	MetaTemporaryURL      = "temporary_url"
	MetaUploadStatus      = "upload_status"
	MetaUploadCompletedAt = "upload_completed_at"
	MetaUploadFailedAt    = "upload_failed_at"
	MetaUploadError       = "upload_error"
)

// Artwork - результат работы инструмента генерации вместе с источником.
type Artwork struct {
	ID             string      `json:"id" db:"id"`
	UserID         string      `json:"user_id" db:"user_id"`
	ToolID         string      `json:"tool_id" db:"tool_id"`
	Title          string      `json:"title" db:"title"`
	ContentType    ContentType `json:"content_type" db:"content_type"`
	ContentURL     string      `json:"content_url" db:"content_url"`
	ThumbnailURL   *string     `json:"thumbnail_url,omitempty" db:"thumbnail_url"`
	Prompt         *string     `json:"prompt,omitempty" db:"prompt"`
	InputImageURL  *string     `json:"input_image_url,omitempty" db:"input_image_url"`
	OutputImageURL *string     `json:"output_image_url,omitempty" db:"output_image_url"`
	OutputMetadata JSONMap     `json:"output_metadata,omitempty" db:"output_metadata"`
	ToolName       *string     `json:"tool_name,omitempty" db:"tool_name"`
	IsFavorite     bool        `json:"is_favorite" db:"is_favorite"`
	IsPublic       bool        `json:"is_public" db:"is_public"`
	CreatedAt      time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at" db:"updated_at"`
}

// UploadStatus читает статус загрузки из output_metadata.
func (a Artwork) UploadStatus() UploadStatus {
	if s, ok := a.OutputMetadata[MetaUploadStatus].(string); ok {
		return UploadStatus(s)
	}
	return ""
}

type ArtworkFilter struct {
	ToolID      string
	ContentType string
	Search      string
	Limit       int
	Offset      int
}

// ArtworkUpdate - частичное обновление, nil означает "не менять".
type ArtworkUpdate struct {
	Title          *string `json:"title"`
	IsFavorite     *bool   `json:"is_favorite"`
	ContentURL     *string `json:"content_url"`
	OutputImageURL *string `json:"output_image_url"`
	ThumbnailURL   *string `json:"thumbnail_url"`
	OutputMetadata JSONMap `json:"output_metadata"`
}
