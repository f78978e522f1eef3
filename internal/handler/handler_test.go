package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Jamolkhon5/aistudio/internal/ai/gateway"
	"github.com/Jamolkhon5/aistudio/internal/auth"
	"github.com/Jamolkhon5/aistudio/internal/models"
	"github.com/Jamolkhon5/aistudio/internal/repository"
	"github.com/Jamolkhon5/aistudio/internal/storage"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) CreateConversation(ctx context.Context, userID, toolID string, title, gatewayID *string) (*models.Conversation, error) {
	args := m.Called(userID, toolID, title, gatewayID)
	return ptr[models.Conversation](args.Get(0)), args.Error(1)
}

func (m *MockStore) ListConversations(ctx context.Context, userID, toolID string) ([]models.Conversation, error) {
	args := m.Called(userID, toolID)
	list, _ := args.Get(0).([]models.Conversation)
	return list, args.Error(1)
}

func (m *MockStore) GetFullConversation(ctx context.Context, userID, id string) (*models.FullConversation, error) {
	args := m.Called(userID, id)
	return ptr[models.FullConversation](args.Get(0)), args.Error(1)
}

func (m *MockStore) UpdateConversation(ctx context.Context, userID, id string, upd models.ConversationUpdate) (*models.Conversation, error) {
	args := m.Called(userID, id, upd)
	return ptr[models.Conversation](args.Get(0)), args.Error(1)
}

func (m *MockStore) DeleteConversation(ctx context.Context, userID, id string) error {
	return m.Called(userID, id).Error(0)
}

func (m *MockStore) ListMessages(ctx context.Context, userID, conversationID string) ([]models.Message, error) {
	args := m.Called(userID, conversationID)
	list, _ := args.Get(0).([]models.Message)
	return list, args.Error(1)
}

func (m *MockStore) DeleteMessage(ctx context.Context, userID, id string) error {
	return m.Called(userID, id).Error(0)
}

func (m *MockStore) ListFiles(ctx context.Context, userID, conversationID string) ([]models.UserFile, error) {
	args := m.Called(userID, conversationID)
	list, _ := args.Get(0).([]models.UserFile)
	return list, args.Error(1)
}

func (m *MockStore) DeleteFile(ctx context.Context, userID, id string) error {
	return m.Called(userID, id).Error(0)
}

func (m *MockStore) CreateArtwork(ctx context.Context, a models.Artwork) (*models.Artwork, error) {
	args := m.Called(a)
	return ptr[models.Artwork](args.Get(0)), args.Error(1)
}

func (m *MockStore) ListArtworks(ctx context.Context, userID string, f models.ArtworkFilter) ([]models.Artwork, error) {
	args := m.Called(userID, f)
	list, _ := args.Get(0).([]models.Artwork)
	return list, args.Error(1)
}

func (m *MockStore) GetArtwork(ctx context.Context, userID, id string) (*models.Artwork, error) {
	args := m.Called(userID, id)
	return ptr[models.Artwork](args.Get(0)), args.Error(1)
}

func (m *MockStore) UpdateArtwork(ctx context.Context, userID, id string, upd models.ArtworkUpdate) (*models.Artwork, error) {
	args := m.Called(userID, id, upd)
	return ptr[models.Artwork](args.Get(0)), args.Error(1)
}

func (m *MockStore) DeleteArtwork(ctx context.Context, userID, id string) error {
	return m.Called(userID, id).Error(0)
}

func (m *MockStore) ClearUserData(ctx context.Context, userID string) (int64, error) {
	args := m.Called(userID)
	return args.Get(0).(int64), args.Error(1)
}

func ptr[T any](v any) *T {
	p, _ := v.(*T)
	return p
}

type fakeMirror struct {
	result    *storage.MirrorResult
	err       error
	available bool
	name      string
	thumb     bool
}

func (f *fakeMirror) MirrorWithThumbnail(_ context.Context, _ string, customName string, generateThumb bool) (*storage.MirrorResult, error) {
	f.name, f.thumb = customName, generateThumb
	return f.result, f.err
}

func (f *fakeMirror) ContinuousPreload(_ context.Context, _ string, onSuccess func(), _ storage.PreloadOptions) func() {
	if f.available {
		onSuccess()
	}
	return func() {}
}

// newServer собирает роутер так же, как main, но пользователь подставляется без токена.
func newServer(t *testing.T, store *MockStore, mirror *fakeMirror) *httptest.Server {
	t.Helper()
	h := NewHandler(store, mirror)
	h.preload.Timeout = 10 * time.Millisecond
	h.preload.RetryDelay = time.Millisecond

	r := chi.NewRouter()
	r.Route("/v1", func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if id := r.Header.Get("X-Test-User"); id != "" {
					r = r.WithContext(auth.WithUserID(r.Context(), id))
				}
				next.ServeHTTP(w, r)
			})
		})
		h.RegisterRoutes(r)
		h.RegisterStorageRoutes(r)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		srv.Close()
		store.AssertExpectations(t)
	})
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("X-Test-User", "user-1")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	if resp.StatusCode != http.StatusNoContent {
		var raw any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
		out, _ = raw.(map[string]any)
		if list, ok := raw.([]any); ok {
			out = map[string]any{"items": list}
		}
	}
	return resp, out
}

func TestConversationRoutes(t *testing.T) {
	store := new(MockStore)
	srv := newServer(t, store, &fakeMirror{})

	title := "Первая беседа"
	store.On("CreateConversation", "user-1", "interview", &title, (*string)(nil)).
		Return(&models.Conversation{ID: "c-1", ToolID: "interview", Title: &title}, nil)
	resp, body := do(t, srv, http.MethodPost, "/v1/conversations", `{"tool_id":"interview","title":"Первая беседа"}`)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "c-1", body["id"])

	store.On("ListConversations", "user-1", "interview").Return([]models.Conversation{{ID: "c-1"}, {ID: "c-2"}}, nil)
	resp, body = do(t, srv, http.MethodGet, "/v1/conversations?tool_id=interview", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["items"], 2)

	store.On("GetFullConversation", "user-1", "c-1").Return(&models.FullConversation{
		Conversation: models.Conversation{ID: "c-1"},
		Messages:     []models.Message{{ID: "m-1", Content: "привет"}},
	}, nil)
	resp, body = do(t, srv, http.MethodGet, "/v1/conversations/c-1", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["messages"], 1)

	newTitle := "Другое"
	store.On("UpdateConversation", "user-1", "c-1", models.ConversationUpdate{Title: &newTitle}).
		Return(&models.Conversation{ID: "c-1", Title: &newTitle}, nil)
	resp, body = do(t, srv, http.MethodPatch, "/v1/conversations/c-1", `{"title":"Другое"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Другое", body["title"])

	store.On("DeleteConversation", "user-1", "c-1").Return(nil)
	resp, _ = do(t, srv, http.MethodDelete, "/v1/conversations/c-1", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestCreateConversationRequiresTool(t *testing.T) {
	srv := newServer(t, new(MockStore), &fakeMirror{})

	resp, body := do(t, srv, http.MethodPost, "/v1/conversations", `{"title":"x"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "tool_id is required", body["error"])

	resp, _ = do(t, srv, http.MethodPost, "/v1/conversations", `{not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestNotFoundIsMapped(t *testing.T) {
	store := new(MockStore)
	srv := newServer(t, store, &fakeMirror{})
	notFound := fmt.Errorf("failed to delete message: %w", repository.ErrNotFound)

	store.On("DeleteMessage", "user-1", "foreign").Return(notFound)
	resp, body := do(t, srv, http.MethodDelete, "/v1/messages/foreign", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Not found", body["error"])

	store.On("GetArtwork", "user-1", "nope").Return(nil, notFound)
	resp, _ = do(t, srv, http.MethodGet, "/v1/artworks/nope", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMalformedIDIsNotFound(t *testing.T) {
	db, sqlMock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	h := NewHandler(repository.NewRepository(sqlx.NewDb(db, "sqlmock")), &fakeMirror{})

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(auth.WithUserID(r.Context(), "user-1")))
		})
	})
	h.RegisterRoutes(r)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/conversations/x"},
		{http.MethodGet, "/conversations/x/messages"},
		{http.MethodPatch, "/conversations/x"},
		{http.MethodDelete, "/conversations/x"},
		{http.MethodDelete, "/messages/x"},
		{http.MethodGet, "/files?conversation_id=x"},
		{http.MethodDelete, "/files/x"},
		{http.MethodGet, "/artworks/x"},
		{http.MethodPatch, "/artworks/x"},
		{http.MethodDelete, "/artworks/x"},
	} {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(tc.method, tc.path, strings.NewReader(`{}`)))
			assert.Equal(t, http.StatusNotFound, w.Code)
		})
	}
	// ни одного запроса к БД
	assert.NoError(t, sqlMock.ExpectationsWereMet())
}

func TestArtworkRoutes(t *testing.T) {
	store := new(MockStore)
	srv := newServer(t, store, &fakeMirror{})

	store.On("ListArtworks", "user-1", models.ArtworkFilter{ToolID: "text-to-image", Search: "кот", Offset: 20}).
		Return([]models.Artwork{{ID: "a-1"}}, nil)
	resp, body := do(t, srv, http.MethodGet, "/v1/artworks?tool_id=text-to-image&search=%D0%BA%D0%BE%D1%82&offset=20", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["items"], 1)

	resp, _ = do(t, srv, http.MethodGet, "/v1/artworks?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	store.On("CreateArtwork", mock.MatchedBy(func(a models.Artwork) bool {
		return a.UserID == "user-1" && a.ID == "" && a.ContentType == models.ContentImage
	})).Return(&models.Artwork{ID: "a-2"}, nil)
	resp, body = do(t, srv, http.MethodPost, "/v1/artworks",
		`{"id":"forged","user_id":"other","tool_id":"text-to-image","title":"Кот","content_url":"https://x/1.png"}`)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "a-2", body["id"])

	fav := true
	store.On("UpdateArtwork", "user-1", "a-2", models.ArtworkUpdate{IsFavorite: &fav}).
		Return(&models.Artwork{ID: "a-2", IsFavorite: true}, nil)
	resp, body = do(t, srv, http.MethodPatch, "/v1/artworks/a-2", `{"is_favorite":true}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["is_favorite"])

	store.On("DeleteArtwork", "user-1", "a-2").Return(nil)
	resp, _ = do(t, srv, http.MethodDelete, "/v1/artworks/a-2", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestFilesMessagesAndClear(t *testing.T) {
	store := new(MockStore)
	srv := newServer(t, store, &fakeMirror{})

	store.On("ListMessages", "user-1", "c-1").Return([]models.Message{{ID: "m-1"}, {ID: "m-2"}}, nil)
	_, body := do(t, srv, http.MethodGet, "/v1/conversations/c-1/messages", "")
	assert.Len(t, body["items"], 2)

	store.On("ListFiles", "user-1", "c-1").Return([]models.UserFile{{ID: "f-1"}}, nil)
	_, body = do(t, srv, http.MethodGet, "/v1/files?conversation_id=c-1", "")
	assert.Len(t, body["items"], 1)

	store.On("DeleteFile", "user-1", "f-1").Return(nil)
	resp, _ := do(t, srv, http.MethodDelete, "/v1/files/f-1", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	store.On("ClearUserData", "user-1").Return(int64(3), nil)
	resp, body = do(t, srv, http.MethodDelete, "/v1/me/data", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(3), body["deleted_conversations"])
}

func TestInternalErrorHidesCause(t *testing.T) {
	store := new(MockStore)
	srv := newServer(t, store, &fakeMirror{})
	store.On("ListConversations", "user-1", "").Return(nil, errors.New("pq: connection refused"))

	resp, body := do(t, srv, http.MethodGet, "/v1/conversations", "")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "Internal server error", body["error"])
}

func TestUnauthenticated(t *testing.T) {
	srv := newServer(t, new(MockStore), &fakeMirror{})
	resp, err := http.Get(srv.URL + "/v1/artworks")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestMirrorFile(t *testing.T) {
	mirror := &fakeMirror{
		result: &storage.MirrorResult{
			OriginalURL:  "https://store/dify-images/cat.png",
			ThumbnailURL: "https://store/dify-images/thumbnails/cat.jpg",
			Path:         "cat.png",
			ContentType:  "image/png",
			Size:         2048,
			Width:        640,
			Height:       480,
		},
		available: true,
	}
	srv := newServer(t, new(MockStore), mirror)

	resp, body := do(t, srv, http.MethodPost, "/v1/storage/mirror",
		`{"url":"https://tmp/cat.png","file_name":"cat","thumbnail":true,"verify":true}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "https://store/dify-images/cat.png", body["url"])
	assert.Equal(t, "2.0 KiB", body["file_size"])
	assert.Equal(t, true, body["available"])
	assert.Equal(t, "cat", mirror.name)
	assert.True(t, mirror.thumb)

	resp, _ = do(t, srv, http.MethodPost, "/v1/storage/mirror", `{"url":"ftp://x"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMirrorFileUnavailable(t *testing.T) {
	mirror := &fakeMirror{result: &storage.MirrorResult{OriginalURL: "https://store/a.png"}}
	srv := newServer(t, new(MockStore), mirror)

	resp, body := do(t, srv, http.MethodPost, "/v1/storage/mirror", `{"url":"https://tmp/a.png","verify":true}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["available"])
}

func TestWriteErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"missing key", fmt.Errorf("%w: VITE_DIFY_API_KEY", gateway.ErrMissingAPIKey), http.StatusServiceUnavailable},
		{"api error", &gateway.APIError{StatusCode: 400, StatusText: "Bad Request"}, http.StatusBadGateway},
		{"parse failed", gateway.ErrParseFailed, http.StatusBadGateway},
		{"storage", fmt.Errorf("upload: %w", &storage.StorageError{StatusCode: 403, Message: "denied"}), http.StatusBadGateway},
		{"app type", gateway.ErrUnsupportedAppType, http.StatusBadRequest},
		{"not found", repository.ErrNotFound, http.StatusNotFound},
		{"invalid message", repository.ErrInvalidMessage, http.StatusBadRequest},
		{"internal host", fmt.Errorf("failed to download image: %w", storage.ErrForbiddenHost), http.StatusBadRequest},
		{"not an image", storage.ErrNotImage, http.StatusBadRequest},
		{"too large", fmt.Errorf("failed to read image: %w", storage.ErrTooLarge), http.StatusRequestEntityTooLarge},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, httptest.NewRequest(http.MethodGet, "/", nil), tc.err)
			assert.Equal(t, tc.status, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
		})
	}
}
