package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Jamolkhon5/aistudio/internal/ai/gateway"
	"github.com/Jamolkhon5/aistudio/internal/cache"
	"github.com/Jamolkhon5/aistudio/internal/config"
	dbmodels "github.com/Jamolkhon5/aistudio/internal/models"
	"github.com/Jamolkhon5/aistudio/internal/storage"
)

type MockGateway struct {
	mock.Mock
	events []gateway.StreamEvent
}

func (m *MockGateway) StreamChatMessages(ctx context.Context, toolID string, req gateway.ChatRequest, h gateway.StreamHandlers) error {
	args := m.Called(toolID, req)
	for _, ev := range m.events {
		if err := h.OnChunk(ev); err != nil {
			return err
		}
	}
	return args.Error(0)
}

func (m *MockGateway) RunWorkflow(ctx context.Context, toolID string, req gateway.WorkflowRequest) (*gateway.WorkflowResponse, error) {
	args := m.Called(toolID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.WorkflowResponse), args.Error(1)
}

func (m *MockGateway) CallApp(ctx context.Context, toolID, appType string, inputs map[string]any, query, user string) (*gateway.AppResult, error) {
	args := m.Called(toolID, appType, inputs, query, user)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.AppResult), args.Error(1)
}

func (m *MockGateway) Parameters(ctx context.Context, toolID, user string) (*gateway.Parameters, error) {
	args := m.Called(toolID, user)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.Parameters), args.Error(1)
}

func (m *MockGateway) UploadFile(ctx context.Context, toolID, user string, f gateway.FileUpload) (*gateway.FileInfo, error) {
	args := m.Called(toolID, user, f.Name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.FileInfo), args.Error(1)
}

func (m *MockGateway) CheckConfig(toolID string) bool {
	return m.Called(toolID).Bool(0)
}

func (m *MockGateway) ConfigInfo(toolID string) gateway.ConfigInfo {
	return m.Called(toolID).Get(0).(gateway.ConfigInfo)
}

type MockStore struct {
	mock.Mock
}

func (m *MockStore) CreateConversation(ctx context.Context, userID, toolID string, title, gatewayID *string) (*dbmodels.Conversation, error) {
	args := m.Called(userID, toolID, title, gatewayID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dbmodels.Conversation), args.Error(1)
}

func (m *MockStore) GetConversation(ctx context.Context, userID, id string) (*dbmodels.Conversation, error) {
	args := m.Called(userID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dbmodels.Conversation), args.Error(1)
}

func (m *MockStore) UpdateConversation(ctx context.Context, userID, id string, upd dbmodels.ConversationUpdate) (*dbmodels.Conversation, error) {
	args := m.Called(userID, id, upd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dbmodels.Conversation), args.Error(1)
}

func (m *MockStore) SaveMessage(ctx context.Context, msg dbmodels.Message) (*dbmodels.Message, error) {
	args := m.Called(msg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dbmodels.Message), args.Error(1)
}

func (m *MockStore) SaveFile(ctx context.Context, f dbmodels.UserFile) (*dbmodels.UserFile, error) {
	args := m.Called(f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dbmodels.UserFile), args.Error(1)
}

func (m *MockStore) CreateArtwork(ctx context.Context, a dbmodels.Artwork) (*dbmodels.Artwork, error) {
	args := m.Called(a)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dbmodels.Artwork), args.Error(1)
}

func (m *MockStore) UpdateArtwork(ctx context.Context, userID, id string, upd dbmodels.ArtworkUpdate) (*dbmodels.Artwork, error) {
	args := m.Called(userID, id, upd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dbmodels.Artwork), args.Error(1)
}

// memoryCache - кеш параметров в памяти.
type memoryCache struct {
	mu    sync.Mutex
	items map[string]*gateway.Parameters
}

func (c *memoryCache) Get(_ context.Context, toolID string) (*gateway.Parameters, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.items[toolID]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return p, nil
}

func (c *memoryCache) Set(_ context.Context, toolID string, p *gateway.Parameters) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[toolID] = p
	return nil
}

func (c *memoryCache) Invalidate(_ context.Context, toolID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, toolID)
	return nil
}

// fakeMirror отдает постоянные URL и ошибается на адресах из failing.
type fakeMirror struct {
	mu      sync.Mutex
	failing map[string]bool
	calls   []string
	active  int
	peak    int
	release chan struct{}
}

func (f *fakeMirror) MirrorWithThumbnail(ctx context.Context, tempURL, customName string, generateThumb bool) (*storage.MirrorResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, tempURL)
	f.active++
	f.peak = max(f.peak, f.active)
	f.mu.Unlock()

	if f.release != nil {
		<-f.release
	}

	f.mu.Lock()
	f.active--
	f.mu.Unlock()

	if f.failing[tempURL] {
		return nil, errors.New("failed to download image: 403 Forbidden")
	}
	name := tempURL[len(tempURL)-5:]
	return &storage.MirrorResult{
		OriginalURL:   "https://store/" + name,
		ThumbnailURL:  "https://store/thumbnails/" + name,
		Path:          name,
		ThumbnailPath: "thumbnails/" + name,
		ContentType:   "image/png",
		Size:          2048,
		Width:         1024,
		Height:        768,
	}, nil
}

type fakeObjects struct {
	mu      sync.Mutex
	paths   []string
	removed []string
}

func (f *fakeObjects) Upload(_ context.Context, path, _ string, _ []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, path)
	return path, nil
}

func (f *fakeObjects) Remove(_ context.Context, paths ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, paths...)
	return nil
}

func (f *fakeObjects) PublicURL(path string) string {
	return "https://store/" + path
}

type fixture struct {
	gw      *MockGateway
	store   *MockStore
	cache   *memoryCache
	mirror  *fakeMirror
	objects *fakeObjects
	studio  *Studio
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	catalog, err := config.NewCatalog(config.DefaultTools())
	require.NoError(t, err)

	f := &fixture{
		gw:      new(MockGateway),
		store:   new(MockStore),
		cache:   &memoryCache{items: map[string]*gateway.Parameters{}},
		mirror:  &fakeMirror{failing: map[string]bool{}},
		objects: &fakeObjects{},
	}
	f.studio = NewStudio(Deps{
		Gateway:     f.gw,
		Store:       f.store,
		Cache:       f.cache,
		Mirror:      f.mirror,
		Objects:     f.objects,
		Catalog:     catalog,
		Concurrency: 2,
	})
	t.Cleanup(func() {
		f.gw.AssertExpectations(t)
		f.store.AssertExpectations(t)
	})
	return f
}

func imageParameters() *gateway.Parameters {
	return &gateway.Parameters{
		UserInputForm: []gateway.InputFormItem{
			{TextInput: &gateway.InputControl{Label: "Промпт", Variable: "prompt", Required: true, MaxLength: 100}},
			{Select: &gateway.InputControl{Label: "Стиль", Variable: "style", Options: []string{"аниме", "фото"}}},
		},
		FileUpload: &gateway.FileUploadSetting{Image: &gateway.UploadTypeSetting{Enabled: true, NumberLimits: 1}},
	}
}
