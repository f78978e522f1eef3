package models

import (
	"github.com/Jamolkhon5/aistudio/internal/ai/gateway"
	dbmodels "github.com/Jamolkhon5/aistudio/internal/models"
)

// Типы полей динамической формы
const (
	FieldText     = "text"
	FieldTextarea = "textarea"
	FieldSelect   = "select"
	FieldFile     = "file"
	FieldNumber   = "number"
	FieldSwitch   = "switch"
)

// DefaultMaxFileSize - лимит на файл, если приложение его не задает (10 МиБ)
const DefaultMaxFileSize = 10 * 1024 * 1024

// FieldOption - вариант выбора поля select
type FieldOption struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// FieldValidation - ограничения строкового поля. Нулевые значения не проверяются.
type FieldValidation struct {
	MaxLength int    `json:"max_length,omitempty"`
	MinLength int    `json:"min_length,omitempty"`
	Pattern   string `json:"pattern,omitempty"`
}

// FileConfig - ограничения поля загрузки файлов
type FileConfig struct {
	Accept   string `json:"accept,omitempty"`
	Multiple bool   `json:"multiple"`
	MaxSize  int64  `json:"max_size"`
	MaxCount int    `json:"max_count"`
}

// FormField описывает одно поле формы, которое рисует UI
type FormField struct {
	Name         string           `json:"name"`
	Label        string           `json:"label"`
	Type         string           `json:"type"`
	Required     bool             `json:"required"`
	Placeholder  string           `json:"placeholder,omitempty"`
	DefaultValue any              `json:"default_value,omitempty"`
	Options      []FieldOption    `json:"options,omitempty"`
	Validation   *FieldValidation `json:"validation,omitempty"`
	FileConfig   *FileConfig      `json:"file_config,omitempty"`
}

// FileUploadConfig - сводка по загрузке файлов для приложения
type FileUploadConfig struct {
	Enabled  bool     `json:"enabled"`
	Types    []string `json:"types"`
	MaxCount int      `json:"max_count"`
	MaxSize  int64    `json:"max_size"`
}

// AdaptedForm - форма, полученная из схемы параметров приложения
type AdaptedForm struct {
	Fields             []FormField      `json:"fields"`
	FileUpload         FileUploadConfig `json:"file_upload"`
	OpeningStatement   string           `json:"opening_statement,omitempty"`
	SuggestedQuestions []string         `json:"suggested_questions,omitempty"`
}

// ValidationState содержит состояние валидации данных формы
type ValidationState struct {
	IsValid bool              `json:"is_valid"`
	Errors  map[string]string `json:"errors"`
}

// UploadedFile - файл, уже загруженный в шлюз или доступный по URL
type UploadedFile struct {
	ID       string `json:"id,omitempty"`
	URL      string `json:"url,omitempty"`
	MimeType string `json:"mime_type"`
}

// ToolConfig - ответ GET /v1/tools/{toolID}/config
type ToolConfig struct {
	ToolID     string             `json:"tool_id"`
	Name       string             `json:"name"`
	Type       string             `json:"type"`
	Configured bool               `json:"configured"`
	Gateway    gateway.ConfigInfo `json:"gateway"`
}

// ChatInput - запрос на сообщение в чат-инструмент
type ChatInput struct {
	ToolID         string         `json:"-"`
	ConversationID string         `json:"conversation_id,omitempty"`
	Query          string         `json:"query"`
	Inputs         map[string]any `json:"inputs,omitempty"`
	Files          []UploadedFile `json:"files,omitempty"`
}

// ChatResult - итог обмена: беседа и сохраненный ответ ассистента
type ChatResult struct {
	Conversation *dbmodels.Conversation `json:"conversation"`
	Message      *dbmodels.Message      `json:"message"`
}

// RunInput - блокирующий вызов инструмента со значениями формы
type RunInput struct {
	Query  string         `json:"query,omitempty"`
	Values map[string]any `json:"values"`
}

// ArtworkInput - запрос на генерацию работ workflow-инструментом
type ArtworkInput struct {
	ToolID        string         `json:"-"`
	Title         string         `json:"title,omitempty"`
	Prompt        string         `json:"prompt,omitempty"`
	InputImageURL string         `json:"input_image_url,omitempty"`
	Values        map[string]any `json:"values"`
	Files         []UploadedFile `json:"files,omitempty"`
}

// ArtworkResult - созданные работы; текст, если workflow не вернул изображений
type ArtworkResult struct {
	WorkflowRunID string              `json:"workflow_run_id"`
	Artworks      []*dbmodels.Artwork `json:"artworks"`
}
