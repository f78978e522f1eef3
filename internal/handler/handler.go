package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Jamolkhon5/aistudio/internal/models"
	"github.com/Jamolkhon5/aistudio/internal/storage"
)

type Store interface {
	CreateConversation(ctx context.Context, userID, toolID string, title, gatewayID *string) (*models.Conversation, error)
	ListConversations(ctx context.Context, userID, toolID string) ([]models.Conversation, error)
	GetFullConversation(ctx context.Context, userID, id string) (*models.FullConversation, error)
	UpdateConversation(ctx context.Context, userID, id string, upd models.ConversationUpdate) (*models.Conversation, error)
	DeleteConversation(ctx context.Context, userID, id string) error
	ListMessages(ctx context.Context, userID, conversationID string) ([]models.Message, error)
	DeleteMessage(ctx context.Context, userID, id string) error
	ListFiles(ctx context.Context, userID, conversationID string) ([]models.UserFile, error)
	DeleteFile(ctx context.Context, userID, id string) error
	CreateArtwork(ctx context.Context, a models.Artwork) (*models.Artwork, error)
	ListArtworks(ctx context.Context, userID string, f models.ArtworkFilter) ([]models.Artwork, error)
	GetArtwork(ctx context.Context, userID, id string) (*models.Artwork, error)
	UpdateArtwork(ctx context.Context, userID, id string, upd models.ArtworkUpdate) (*models.Artwork, error)
	DeleteArtwork(ctx context.Context, userID, id string) error
	ClearUserData(ctx context.Context, userID string) (int64, error)
}

type Mirror interface {
	MirrorWithThumbnail(ctx context.Context, tempURL, customName string, generateThumb bool) (*storage.MirrorResult, error)
	ContinuousPreload(ctx context.Context, url string, onSuccess func(), opts storage.PreloadOptions) (stop func())
}

// Handler - CRUD над данными пользователя и перенос файлов в хранилище.
type Handler struct {
	store   Store
	mirror  Mirror
	preload storage.PreloadOptions
}

func NewHandler(store Store, mirror Mirror) *Handler {
	return &Handler{
		store:   store,
		mirror:  mirror,
		preload: storage.PreloadOptions{MaxRetries: 3, RetryDelay: 2 * time.Second, Timeout: 10 * time.Second},
	}
}

// RegisterRoutes вешает маршруты данных на r. Ожидается, что r уже под auth.Middleware.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/conversations", func(r chi.Router) {
		r.Get("/", h.ListConversations)
		r.Post("/", h.CreateConversation)
		r.Get("/{id}", h.GetConversation)
		r.Patch("/{id}", h.UpdateConversation)
		r.Delete("/{id}", h.DeleteConversation)
		r.Get("/{id}/messages", h.ListMessages)
	})
	r.Delete("/messages/{id}", h.DeleteMessage)
	r.Get("/files", h.ListFiles)
	r.Delete("/files/{id}", h.DeleteFile)
	r.Route("/artworks", func(r chi.Router) {
		r.Get("/", h.ListArtworks)
		r.Post("/", h.CreateArtwork)
		r.Get("/{id}", h.GetArtwork)
		r.Patch("/{id}", h.UpdateArtwork)
		r.Delete("/{id}", h.DeleteArtwork)
	})
	r.Delete("/me/data", h.ClearUserData)
}

// RegisterStorageRoutes - перенос файлов. Скачивание и проверка доступности
// идут дольше обычного запроса.
func (h *Handler) RegisterStorageRoutes(r chi.Router) {
	r.Post("/storage/mirror", h.MirrorFile)
}

func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	userID, ok := User(w, r)
	if !ok {
		return
	}
	list, err := h.store.ListConversations(r.Context(), userID, r.URL.Query().Get("tool_id"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	userID, ok := User(w, r)
	if !ok {
		return
	}
	var req struct {
		ToolID         string  `json:"tool_id"`
		Title          *string `json:"title"`
		ConversationID *string `json:"conversation_id"`
	}
	if err := Decode(r, &req); err != nil {
		WriteError(w, r, err)
		return
	}
	if req.ToolID == "" {
		WriteErrorStatus(w, http.StatusBadRequest, "tool_id is required", nil)
		return
	}
	conv, err := h.store.CreateConversation(r.Context(), userID, req.ToolID, req.Title, req.ConversationID)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, conv)
}

// GetConversation отдает беседу вместе с сообщениями.
func (h *Handler) GetConversation(w http.ResponseWriter, r *http.Request) {
	userID, ok := User(w, r)
	if !ok {
		return
	}
	full, err := h.store.GetFullConversation(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, full)
}

func (h *Handler) UpdateConversation(w http.ResponseWriter, r *http.Request) {
	userID, ok := User(w, r)
	if !ok {
		return
	}
	var upd models.ConversationUpdate
	if err := Decode(r, &upd); err != nil {
		WriteError(w, r, err)
		return
	}
	conv, err := h.store.UpdateConversation(r.Context(), userID, chi.URLParam(r, "id"), upd)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, conv)
}

func (h *Handler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	h.delete(w, r, h.store.DeleteConversation)
}

func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := User(w, r)
	if !ok {
		return
	}
	list, err := h.store.ListMessages(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	h.delete(w, r, h.store.DeleteMessage)
}

func (h *Handler) ListFiles(w http.ResponseWriter, r *http.Request) {
	userID, ok := User(w, r)
	if !ok {
		return
	}
	list, err := h.store.ListFiles(r.Context(), userID, r.URL.Query().Get("conversation_id"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	h.delete(w, r, h.store.DeleteFile)
}

func (h *Handler) ListArtworks(w http.ResponseWriter, r *http.Request) {
	userID, ok := User(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filter := models.ArtworkFilter{
		ToolID:      q.Get("tool_id"),
		ContentType: q.Get("content_type"),
		Search:      q.Get("search"),
	}
	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		WriteError(w, r, err)
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		WriteError(w, r, err)
		return
	}
	list, err := h.store.ListArtworks(r.Context(), userID, filter)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) CreateArtwork(w http.ResponseWriter, r *http.Request) {
	userID, ok := User(w, r)
	if !ok {
		return
	}
	var a models.Artwork
	if err := Decode(r, &a); err != nil {
		WriteError(w, r, err)
		return
	}
	if a.ToolID == "" || a.Title == "" {
		WriteErrorStatus(w, http.StatusBadRequest, "tool_id and title are required", nil)
		return
	}
	if a.ContentType == "" {
		a.ContentType = models.ContentImage
	}
	a.ID = ""
	a.UserID = userID
	saved, err := h.store.CreateArtwork(r.Context(), a)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, saved)
}

func (h *Handler) GetArtwork(w http.ResponseWriter, r *http.Request) {
	userID, ok := User(w, r)
	if !ok {
		return
	}
	a, err := h.store.GetArtwork(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, a)
}

func (h *Handler) UpdateArtwork(w http.ResponseWriter, r *http.Request) {
	userID, ok := User(w, r)
	if !ok {
		return
	}
	var upd models.ArtworkUpdate
	if err := Decode(r, &upd); err != nil {
		WriteError(w, r, err)
		return
	}
	a, err := h.store.UpdateArtwork(r.Context(), userID, chi.URLParam(r, "id"), upd)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, a)
}

func (h *Handler) DeleteArtwork(w http.ResponseWriter, r *http.Request) {
	h.delete(w, r, h.store.DeleteArtwork)
}

// ClearUserData удаляет все беседы пользователя вместе с сообщениями.
func (h *Handler) ClearUserData(w http.ResponseWriter, r *http.Request) {
	userID, ok := User(w, r)
	if !ok {
		return
	}
	n, err := h.store.ClearUserData(r.Context(), userID)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]int64{"deleted_conversations": n})
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, userID, id string) error) {
	userID, ok := User(w, r)
	if !ok {
		return
	}
	if err := fn(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, ErrBadRequest
	}
	return n, nil
}
