package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/Jamolkhon5/aistudio/internal/ai/gateway"
	"github.com/Jamolkhon5/aistudio/internal/ai/studio/form"
	"github.com/Jamolkhon5/aistudio/internal/ai/studio/models"
	"github.com/Jamolkhon5/aistudio/internal/ai/studio/validator"
	"github.com/Jamolkhon5/aistudio/internal/cache"
	"github.com/Jamolkhon5/aistudio/internal/config"
	dbmodels "github.com/Jamolkhon5/aistudio/internal/models"
	"github.com/Jamolkhon5/aistudio/internal/storage"
)

var (
	ErrToolNotFound = errors.New("tool not found")
	ErrEmptyQuery   = errors.New("query is empty")
)

// ValidationError - значения формы не прошли проверку.
type ValidationError struct {
	State models.ValidationState
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.State.Errors))
	for name := range e.State.Errors {
		fields = append(fields, name)
	}
	return fmt.Sprintf("invalid form values: %s", strings.Join(fields, ", "))
}

type Gateway interface {
	StreamChatMessages(ctx context.Context, toolID string, req gateway.ChatRequest, h gateway.StreamHandlers) error
	RunWorkflow(ctx context.Context, toolID string, req gateway.WorkflowRequest) (*gateway.WorkflowResponse, error)
	CallApp(ctx context.Context, toolID, appType string, inputs map[string]any, query, user string) (*gateway.AppResult, error)
	Parameters(ctx context.Context, toolID, user string) (*gateway.Parameters, error)
	UploadFile(ctx context.Context, toolID, user string, f gateway.FileUpload) (*gateway.FileInfo, error)
	CheckConfig(toolID string) bool
	ConfigInfo(toolID string) gateway.ConfigInfo
}

type Store interface {
	CreateConversation(ctx context.Context, userID, toolID string, title, gatewayID *string) (*dbmodels.Conversation, error)
	GetConversation(ctx context.Context, userID, id string) (*dbmodels.Conversation, error)
	UpdateConversation(ctx context.Context, userID, id string, upd dbmodels.ConversationUpdate) (*dbmodels.Conversation, error)
	SaveMessage(ctx context.Context, m dbmodels.Message) (*dbmodels.Message, error)
	SaveFile(ctx context.Context, f dbmodels.UserFile) (*dbmodels.UserFile, error)
	CreateArtwork(ctx context.Context, a dbmodels.Artwork) (*dbmodels.Artwork, error)
	UpdateArtwork(ctx context.Context, userID, id string, upd dbmodels.ArtworkUpdate) (*dbmodels.Artwork, error)
}

type ParametersCache interface {
	Get(ctx context.Context, toolID string) (*gateway.Parameters, error)
	Set(ctx context.Context, toolID string, p *gateway.Parameters) error
	Invalidate(ctx context.Context, toolID string) error
}

type Mirror interface {
	MirrorWithThumbnail(ctx context.Context, tempURL, customName string, generateThumb bool) (*storage.MirrorResult, error)
}

type Objects interface {
	Upload(ctx context.Context, path, contentType string, data []byte) (string, error)
	PublicURL(path string) string
	Remove(ctx context.Context, paths ...string) error
}

type Catalog interface {
	Get(id string) (config.Tool, bool)
	All() []config.Tool
}

type Deps struct {
	Gateway     Gateway
	Store       Store
	Cache       ParametersCache
	Mirror      Mirror
	Objects     Objects
	Catalog     Catalog
	Concurrency int
}

// Studio связывает инструменты шлюза с хранилищем пользователя.
type Studio struct {
	gw          Gateway
	store       Store
	cache       ParametersCache
	mirror      Mirror
	objects     Objects
	catalog     Catalog
	analyzer    *OutputAnalyzer
	concurrency int
}

func NewStudio(deps Deps) *Studio {
	concurrency := deps.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &Studio{
		gw:          deps.Gateway,
		store:       deps.Store,
		cache:       deps.Cache,
		mirror:      deps.Mirror,
		objects:     deps.Objects,
		catalog:     deps.Catalog,
		analyzer:    NewOutputAnalyzer(),
		concurrency: concurrency,
	}
}

func (s *Studio) Tools() []config.Tool {
	return s.catalog.All()
}

func (s *Studio) tool(toolID string, want ...string) (config.Tool, error) {
	t, ok := s.catalog.Get(toolID)
	if !ok {
		return config.Tool{}, fmt.Errorf("%w: %s", ErrToolNotFound, toolID)
	}
	if len(want) > 0 && t.Type != want[0] {
		return config.Tool{}, fmt.Errorf("%w: tool %s is %s, need %s", gateway.ErrUnsupportedAppType, toolID, t.Type, want[0])
	}
	return t, nil
}

func (s *Studio) ToolConfig(toolID string) (*models.ToolConfig, error) {
	t, err := s.tool(toolID)
	if err != nil {
		return nil, err
	}
	return &models.ToolConfig{
		ToolID:     t.ID,
		Name:       t.Name,
		Type:       t.Type,
		Configured: s.gw.CheckConfig(t.ID),
		Gateway:    s.gw.ConfigInfo(t.ID),
	}, nil
}

// schema берет схему параметров из кеша, при промахе спрашивает шлюз.
func (s *Studio) schema(ctx context.Context, userID, toolID string) (*gateway.Parameters, error) {
	if s.cache != nil {
		p, err := s.cache.Get(ctx, toolID)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			log.Printf("WARN: [Studio] parameters cache: %v", err)
		}
	}

	p, err := s.gw.Parameters(ctx, toolID, userID)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, toolID, p); err != nil {
			log.Printf("WARN: [Studio] parameters cache: %v", err)
		}
	}
	return p, nil
}

// Parameters возвращает форму инструмента для UI.
func (s *Studio) Parameters(ctx context.Context, userID, toolID string) (*models.AdaptedForm, error) {
	if _, err := s.tool(toolID); err != nil {
		return nil, err
	}
	p, err := s.schema(ctx, userID, toolID)
	if err != nil {
		return nil, err
	}
	f := form.Convert(*p)
	return &f, nil
}

// RefreshParameters сбрасывает кешированную схему и заново берет ее у шлюза.
func (s *Studio) RefreshParameters(ctx context.Context, userID, toolID string) (*models.AdaptedForm, error) {
	if _, err := s.tool(toolID); err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, toolID); err != nil {
			log.Printf("WARN: [Studio] parameters cache: %v", err)
		}
	}
	return s.Parameters(ctx, userID, toolID)
}

func (s *Studio) ValidateInputs(ctx context.Context, userID, toolID string, values map[string]any) (models.ValidationState, error) {
	f, err := s.Parameters(ctx, userID, toolID)
	if err != nil {
		return models.ValidationState{}, err
	}
	return validator.ValidateFormData(values, f.Fields), nil
}

// BuildInputs проверяет значения формы и превращает их во входы шлюза.
func (s *Studio) BuildInputs(ctx context.Context, userID, toolID string, values map[string]any) (map[string]any, error) {
	f, err := s.Parameters(ctx, userID, toolID)
	if err != nil {
		return nil, err
	}
	state := validator.ValidateFormData(values, f.Fields)
	if !state.IsValid {
		return nil, &ValidationError{State: state}
	}
	return form.ToInputs(values, f.Fields), nil
}

// Run - блокирующий вызов инструмента по его типу.
func (s *Studio) Run(ctx context.Context, userID, toolID string, in models.RunInput) (*gateway.AppResult, error) {
	t, err := s.tool(toolID)
	if err != nil {
		return nil, err
	}
	inputs := map[string]any{}
	if in.Values != nil {
		if inputs, err = s.BuildInputs(ctx, userID, toolID, in.Values); err != nil {
			return nil, err
		}
	}
	return s.gw.CallApp(ctx, t.ID, t.Type, inputs, in.Query, userID)
}

type UploadResult struct {
	File   *gateway.FileInfo  `json:"file"`
	Record *dbmodels.UserFile `json:"record"`
}

// UploadFile загружает файл в шлюз, сохраняет копию в хранилище и запись в user_files.
func (s *Studio) UploadFile(ctx context.Context, userID, toolID, conversationID string, up gateway.FileUpload) (*UploadResult, error) {
	if _, err := s.tool(toolID); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(up.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	up.Reader = bytes.NewReader(data)

	info, err := s.gw.UploadFile(ctx, toolID, userID, up)
	if err != nil {
		return nil, err
	}

	stored, err := s.objects.Upload(ctx, uploadPath(userID, info.ID, up.Name), up.ContentType, data)
	if err != nil {
		return nil, err
	}

	size := int64(len(data))
	record := dbmodels.UserFile{
		UserID:   userID,
		FileName: up.Name,
		FileType: up.ContentType,
		FileURL:  s.objects.PublicURL(stored),
		FileSize: &size,
		ToolID:   &toolID,
	}
	if conversationID != "" {
		record.ConversationID = &conversationID
	}
	saved, err := s.store.SaveFile(ctx, record)
	if err != nil {
		s.removeOrphans(ctx, stored)
		return nil, err
	}
	return &UploadResult{File: info, Record: saved}, nil
}

// removeOrphans удаляет объекты, на которые не осталось записей. Ошибка только логируется.
func (s *Studio) removeOrphans(ctx context.Context, paths ...string) {
	if err := s.objects.Remove(context.WithoutCancel(ctx), paths...); err != nil {
		log.Printf("WARN: [Studio] failed to remove orphaned objects %v: %v", paths, err)
	}
}
