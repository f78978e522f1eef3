package gateway

import "encoding/json"

const (
	ResponseModeBlocking  = "blocking"
	ResponseModeStreaming = "streaming"

	TransferLocalFile = "local_file"
	TransferRemoteURL = "remote_url"

	DefaultUser = "user"
)

type File struct {
	Type           string `json:"type"`
	TransferMethod string `json:"transfer_method"`
	URL            string `json:"url,omitempty"`
	UploadFileID   string `json:"upload_file_id,omitempty"`
}

type ChatRequest struct {
	Inputs         map[string]any `json:"inputs"`
	Query          string         `json:"query"`
	ResponseMode   string         `json:"response_mode"`
	User           string         `json:"user"`
	ConversationID string         `json:"conversation_id,omitempty"`
	Files          []File         `json:"files"`
}

type WorkflowRequest struct {
	Inputs       map[string]any `json:"inputs"`
	ResponseMode string         `json:"response_mode"`
	User         string         `json:"user"`
	Files        []File         `json:"files"`
}

type ChatResponse struct {
	Event          string          `json:"event"`
	TaskID         string          `json:"task_id"`
	ID             string          `json:"id"`
	MessageID      string          `json:"message_id"`
	ConversationID string          `json:"conversation_id"`
	Mode           string          `json:"mode"`
	Answer         string          `json:"answer"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	CreatedAt      int64           `json:"created_at"`
}

type WorkflowRunData struct {
	ID          string         `json:"id"`
	WorkflowID  string         `json:"workflow_id"`
	Status      string         `json:"status"`
	Outputs     map[string]any `json:"outputs"`
	Error       string         `json:"error,omitempty"`
	ElapsedTime float64        `json:"elapsed_time"`
	TotalTokens int            `json:"total_tokens"`
	TotalSteps  int            `json:"total_steps"`
	CreatedAt   int64          `json:"created_at"`
	FinishedAt  int64          `json:"finished_at"`
}

type WorkflowResponse struct {
	WorkflowRunID string          `json:"workflow_run_id"`
	TaskID        string          `json:"task_id"`
	Data          WorkflowRunData `json:"data"`
}

// Parameters - декларативная схема входов приложения (GET /parameters).
type Parameters struct {
	OpeningStatement   string             `json:"opening_statement"`
	SuggestedQuestions []string           `json:"suggested_questions"`
	UserInputForm      []InputFormItem    `json:"user_input_form"`
	FileUpload         *FileUploadSetting `json:"file_upload,omitempty"`
	SystemParameters   json.RawMessage    `json:"system_parameters,omitempty"`
}

// InputFormItem содержит ровно один из вариантов поля.
type InputFormItem struct {
	TextInput *InputControl `json:"text-input,omitempty"`
	Paragraph *InputControl `json:"paragraph,omitempty"`
	Select    *InputControl `json:"select,omitempty"`
}

type InputControl struct {
	Label     string   `json:"label"`
	Variable  string   `json:"variable"`
	Required  bool     `json:"required"`
	MaxLength int      `json:"max_length,omitempty"`
	Default   string   `json:"default,omitempty"`
	Options   []string `json:"options,omitempty"`
}

type FileUploadSetting struct {
	Image    *UploadTypeSetting `json:"image,omitempty"`
	Audio    *UploadTypeSetting `json:"audio,omitempty"`
	Video    *UploadTypeSetting `json:"video,omitempty"`
	Document *UploadTypeSetting `json:"document,omitempty"`
}

type UploadTypeSetting struct {
	Enabled         bool     `json:"enabled"`
	NumberLimits    int      `json:"number_limits"`
	TransferMethods []string `json:"transfer_methods,omitempty"`
}

type FileInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Size      int64  `json:"size"`
	Extension string `json:"extension"`
	MimeType  string `json:"mime_type"`
	CreatedBy string `json:"created_by"`
	CreatedAt int64  `json:"created_at"`
}
