package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Jamolkhon5/aistudio/internal/ai/gateway"
	"github.com/Jamolkhon5/aistudio/internal/ai/studio/models"
	"github.com/Jamolkhon5/aistudio/internal/ai/studio/service"
	"github.com/Jamolkhon5/aistudio/internal/config"
	api "github.com/Jamolkhon5/aistudio/internal/handler"
)

// EventDone - последнее событие SSE-потока чата с сохраненным результатом.
const EventDone = "studio_done"

type Studio interface {
	Tools() []config.Tool
	ToolConfig(toolID string) (*models.ToolConfig, error)
	Parameters(ctx context.Context, userID, toolID string) (*models.AdaptedForm, error)
	RefreshParameters(ctx context.Context, userID, toolID string) (*models.AdaptedForm, error)
	ValidateInputs(ctx context.Context, userID, toolID string, values map[string]any) (models.ValidationState, error)
	Run(ctx context.Context, userID, toolID string, in models.RunInput) (*gateway.AppResult, error)
	Chat(ctx context.Context, userID string, in models.ChatInput, emit service.Emitter) (*models.ChatResult, error)
	GenerateArtwork(ctx context.Context, userID string, in models.ArtworkInput) (*models.ArtworkResult, error)
	UploadFile(ctx context.Context, userID, toolID, conversationID string, up gateway.FileUpload) (*service.UploadResult, error)
}

type StudioHandler struct {
	studio      Studio
	maxFileSize int64
}

func NewStudioHandler(studio Studio) *StudioHandler {
	return &StudioHandler{studio: studio, maxFileSize: models.DefaultMaxFileSize}
}

// Маршруты разбиты по длительности, чтобы main повесил на каждую группу свой таймаут.

// RegisterRoutes - быстрые маршруты: каталог, конфигурация, форма.
func (h *StudioHandler) RegisterRoutes(r chi.Router) {
	r.Get("/tools", h.ListTools)
	r.Get("/tools/{toolID}/config", h.ToolConfig)
	r.Get("/tools/{toolID}/parameters", h.Parameters)
	r.Post("/tools/{toolID}/validate", h.Validate)
}

// RegisterGatewayRoutes - блокирующие вызовы шлюза и перенос изображений.
func (h *StudioHandler) RegisterGatewayRoutes(r chi.Router) {
	r.Post("/tools/{toolID}/run", h.Run)
	r.Post("/tools/{toolID}/artworks", h.GenerateArtwork)
	r.Post("/tools/{toolID}/files", h.UploadFile)
}

// RegisterStreamRoutes - поток чата, живет без таймаута.
func (h *StudioHandler) RegisterStreamRoutes(r chi.Router) {
	r.Post("/tools/{toolID}/chat", h.Chat)
}

func (h *StudioHandler) ListTools(w http.ResponseWriter, r *http.Request) {
	api.WriteJSON(w, http.StatusOK, h.studio.Tools())
}

func (h *StudioHandler) ToolConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.studio.ToolConfig(chi.URLParam(r, "toolID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, cfg)
}

// Parameters отдает форму инструмента; с refresh=true схема перечитывается из шлюза.
func (h *StudioHandler) Parameters(w http.ResponseWriter, r *http.Request) {
	userID, ok := api.User(w, r)
	if !ok {
		return
	}
	load := h.studio.Parameters
	if refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh")); refresh {
		load = h.studio.RefreshParameters
	}
	form, err := load(r.Context(), userID, chi.URLParam(r, "toolID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, form)
}

// Validate проверяет значения формы и всегда отвечает 200 с результатом проверки.
func (h *StudioHandler) Validate(w http.ResponseWriter, r *http.Request) {
	userID, ok := api.User(w, r)
	if !ok {
		return
	}
	var req struct {
		Values map[string]any `json:"values"`
	}
	if err := api.Decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	state, err := h.studio.ValidateInputs(r.Context(), userID, chi.URLParam(r, "toolID"), req.Values)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, state)
}

func (h *StudioHandler) Run(w http.ResponseWriter, r *http.Request) {
	userID, ok := api.User(w, r)
	if !ok {
		return
	}
	var in models.RunInput
	if err := api.Decode(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.studio.Run(r.Context(), userID, chi.URLParam(r, "toolID"), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, res)
}

func (h *StudioHandler) GenerateArtwork(w http.ResponseWriter, r *http.Request) {
	userID, ok := api.User(w, r)
	if !ok {
		return
	}
	var in models.ArtworkInput
	if err := api.Decode(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	in.ToolID = chi.URLParam(r, "toolID")
	res, err := h.studio.GenerateArtwork(r.Context(), userID, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, res)
}

// UploadFile принимает multipart с полем file и необязательным conversation_id.
func (h *StudioHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	userID, ok := api.User(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxFileSize+1<<20)
	if err := r.ParseMultipartForm(h.maxFileSize); err != nil {
		api.WriteErrorStatus(w, http.StatusBadRequest, "invalid multipart form", err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		api.WriteErrorStatus(w, http.StatusBadRequest, "file is required", nil)
		return
	}
	defer file.Close()
	if header.Size > h.maxFileSize {
		api.WriteErrorStatus(w, http.StatusRequestEntityTooLarge, "file is too large",
			fmt.Sprintf("limit is %d bytes", h.maxFileSize))
		return
	}

	res, err := h.studio.UploadFile(r.Context(), userID, chi.URLParam(r, "toolID"), r.FormValue("conversation_id"), gateway.FileUpload{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Reader:      file,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, res)
}

// fail добавляет к общему отображению ошибок ошибки студии.
func (h *StudioHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var vErr *service.ValidationError
	switch {
	case errors.As(err, &vErr):
		api.WriteErrorStatus(w, http.StatusUnprocessableEntity, "validation failed", vErr.State.Errors)
	case errors.Is(err, service.ErrToolNotFound):
		api.WriteErrorStatus(w, http.StatusNotFound, "Tool not found", nil)
	case errors.Is(err, service.ErrEmptyQuery):
		api.WriteErrorStatus(w, http.StatusBadRequest, err.Error(), nil)
	default:
		api.WriteError(w, r, err)
	}
}

// Chat проксирует поток шлюза клиенту как SSE. Пока первый байт не отправлен,
// ошибки уходят обычным JSON, после него событием error в потоке.
func (h *StudioHandler) Chat(w http.ResponseWriter, r *http.Request) {
	userID, ok := api.User(w, r)
	if !ok {
		return
	}
	var in models.ChatInput
	if err := api.Decode(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	in.ToolID = chi.URLParam(r, "toolID")

	sse := &sseWriter{w: w}
	res, err := h.studio.Chat(r.Context(), userID, in, func(ev gateway.StreamEvent) error {
		if len(ev.Raw) > 0 {
			return sse.send(ev.Raw)
		}
		return sse.sendJSON(ev)
	})
	if err != nil {
		if !sse.started {
			h.fail(w, r, err)
			return
		}
		log.Printf("ERROR: [Studio] chat stream for %s: %v", in.ToolID, err)
		if err := sse.sendJSON(map[string]any{"event": gateway.EventError, "message": err.Error()}); err != nil {
			log.Printf("ERROR: [Studio] failed to send error event for %s: %v", in.ToolID, err)
		}
		return
	}
	done := struct {
		Event string `json:"event"`
		*models.ChatResult
	}{Event: EventDone, ChatResult: res}
	if err := sse.sendJSON(done); err != nil {
		log.Printf("ERROR: [Studio] failed to send %s for %s: %v", EventDone, in.ToolID, err)
	}
}

type sseWriter struct {
	w       http.ResponseWriter
	started bool
}

func (s *sseWriter) sendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	return s.send(data)
}

func (s *sseWriter) send(data []byte) error {
	if !s.started {
		h := s.w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	if f, ok := s.w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}
