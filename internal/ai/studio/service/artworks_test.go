package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Jamolkhon5/aistudio/internal/ai/gateway"
	"github.com/Jamolkhon5/aistudio/internal/ai/studio/models"
	dbmodels "github.com/Jamolkhon5/aistudio/internal/models"
)

// updates собирает патчи UpdateArtwork по id работы.
type updates struct {
	mu   sync.Mutex
	byID map[string]dbmodels.ArtworkUpdate
}

func (u *updates) get(id string) dbmodels.ArtworkUpdate {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.byID[id]
}

func expectArtworks(f *fixture, urls ...string) *updates {
	u := &updates{byID: map[string]dbmodels.ArtworkUpdate{}}
	for i, url := range urls {
		id := "a-" + string(rune('1'+i))
		f.store.On("CreateArtwork", mock.MatchedBy(func(a dbmodels.Artwork) bool {
			return a.ContentURL == url
		})).Return(&dbmodels.Artwork{ID: id, ContentURL: url, OutputMetadata: dbmodels.JSONMap{
			dbmodels.MetaTemporaryURL: url,
			dbmodels.MetaUploadStatus: "uploading",
		}}, nil).Once()
		f.store.On("UpdateArtwork", "user-1", id, mock.Anything).Run(func(args mock.Arguments) {
			u.mu.Lock()
			u.byID[id] = args.Get(2).(dbmodels.ArtworkUpdate)
			u.mu.Unlock()
		}).Return(&dbmodels.Artwork{ID: id}, nil).Once()
	}
	return u
}

func workflowResponse(outputs map[string]any) *gateway.WorkflowResponse {
	return &gateway.WorkflowResponse{
		WorkflowRunID: "run-1",
		Data:          gateway.WorkflowRunData{ID: "run-1", Status: "succeeded", Outputs: outputs},
	}
}

func TestGenerateArtworkMirrorsEveryImage(t *testing.T) {
	f := newFixture(t)
	f.gw.On("Parameters", "text-to-image", "user-1").Return(imageParameters(), nil).Once()
	f.gw.On("RunWorkflow", "text-to-image", mock.MatchedBy(func(r gateway.WorkflowRequest) bool {
		return r.User == "user-1" && r.Inputs["prompt"] == "кот в космосе"
	})).Return(workflowResponse(map[string]any{
		"files": []any{
			map[string]any{"type": "image", "url": "https://tmp/1.png"},
			map[string]any{"type": "image", "url": "https://tmp/2.png"},
		},
		"text": "Готово: ![](https://tmp/3.png)",
	}), nil)

	upd := expectArtworks(f, "https://tmp/1.png", "https://tmp/2.png", "https://tmp/3.png")
	f.mirror.failing["https://tmp/2.png"] = true

	res, err := f.studio.GenerateArtwork(context.Background(), "user-1", models.ArtworkInput{
		ToolID: "text-to-image",
		Prompt: "кот в космосе",
		Values: map[string]any{"prompt": "кот в космосе"},
	})
	require.NoError(t, err)
	assert.Equal(t, "run-1", res.WorkflowRunID)
	require.Len(t, res.Artworks, 3)
	assert.Equal(t, "a-1", res.Artworks[0].ID)
	assert.Equal(t, "a-3", res.Artworks[2].ID)

	ok := upd.get("a-1")
	require.NotNil(t, ok.ContentURL)
	assert.Equal(t, "https://store/1.png", *ok.ContentURL)
	assert.Equal(t, "https://store/thumbnails/1.png", *ok.ThumbnailURL)
	assert.Equal(t, "completed", ok.OutputMetadata[dbmodels.MetaUploadStatus])
	assert.Equal(t, "1024x768", ok.OutputMetadata[dbmodels.MetaDimensions])
	assert.Equal(t, "png", ok.OutputMetadata[dbmodels.MetaFormat])
	assert.Equal(t, "https://tmp/1.png", ok.OutputMetadata[dbmodels.MetaTemporaryURL])

	failed := upd.get("a-2")
	assert.Nil(t, failed.ContentURL)
	assert.Equal(t, "failed", failed.OutputMetadata[dbmodels.MetaUploadStatus])
	assert.Contains(t, failed.OutputMetadata[dbmodels.MetaUploadError], "403")
	assert.Equal(t, "https://tmp/2.png", failed.OutputMetadata[dbmodels.MetaTemporaryURL])

	assert.Equal(t, "completed", upd.get("a-3").OutputMetadata[dbmodels.MetaUploadStatus])
	assert.Len(t, f.mirror.calls, 3)
}

func TestGenerateArtworkTitles(t *testing.T) {
	f := newFixture(t)
	f.gw.On("Parameters", "text-to-image", "user-1").Return(imageParameters(), nil).Once()
	f.gw.On("RunWorkflow", "text-to-image", mock.Anything).Return(workflowResponse(map[string]any{
		"images": "https://tmp/1.png https://tmp/2.png",
	}), nil)

	var (
		mu     sync.Mutex
		titles []string
	)
	f.store.On("CreateArtwork", mock.Anything).Run(func(args mock.Arguments) {
		a := args.Get(0).(dbmodels.Artwork)
		mu.Lock()
		titles = append(titles, a.Title)
		mu.Unlock()
		assert.Equal(t, dbmodels.ContentImage, a.ContentType)
		assert.Equal(t, "кот", *a.Prompt)
		assert.Equal(t, "AI绘画大师", *a.ToolName)
	}).Return(&dbmodels.Artwork{ID: "a", ContentURL: "https://tmp/1.png"}, nil).Twice()
	f.store.On("UpdateArtwork", "user-1", "a", mock.Anything).Return(&dbmodels.Artwork{ID: "a"}, nil).Twice()

	_, err := f.studio.GenerateArtwork(context.Background(), "user-1", models.ArtworkInput{
		ToolID: "text-to-image",
		Title:  "Кот",
		Values: map[string]any{"prompt": "кот"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Кот #1", "Кот #2"}, titles)
}

func TestGenerateArtworkTextOnly(t *testing.T) {
	f := newFixture(t)
	f.gw.On("Parameters", "text-to-image", "user-1").Return(imageParameters(), nil).Once()
	f.gw.On("RunWorkflow", "text-to-image", mock.Anything).Return(workflowResponse(map[string]any{
		"text": "Не удалось нарисовать, вот описание.",
	}), nil)
	f.store.On("CreateArtwork", mock.MatchedBy(func(a dbmodels.Artwork) bool {
		return a.ContentType == dbmodels.ContentText &&
			a.OutputMetadata["text"] == "Не удалось нарисовать, вот описание." &&
			a.Title == "AI绘画大师"
	})).Return(&dbmodels.Artwork{ID: "t-1"}, nil)

	res, err := f.studio.GenerateArtwork(context.Background(), "user-1", models.ArtworkInput{
		ToolID: "text-to-image",
		Values: map[string]any{"prompt": "кот"},
	})
	require.NoError(t, err)
	require.Len(t, res.Artworks, 1)
	assert.Equal(t, "t-1", res.Artworks[0].ID)
	assert.Empty(t, f.mirror.calls)
}

func TestGenerateArtworkWorkflowFailed(t *testing.T) {
	f := newFixture(t)
	f.gw.On("Parameters", "text-to-image", "user-1").Return(imageParameters(), nil).Once()
	f.gw.On("RunWorkflow", "text-to-image", mock.Anything).Return(&gateway.WorkflowResponse{
		WorkflowRunID: "run-2",
		Data:          gateway.WorkflowRunData{Status: "failed", Error: "node timeout"},
	}, nil)

	_, err := f.studio.GenerateArtwork(context.Background(), "user-1", models.ArtworkInput{
		ToolID: "text-to-image",
		Values: map[string]any{"prompt": "кот"},
	})
	assert.ErrorIs(t, err, gateway.ErrRequestFailed)
	assert.ErrorContains(t, err, "node timeout")
}

func TestGenerateArtworkInvalidValues(t *testing.T) {
	f := newFixture(t)
	f.gw.On("Parameters", "text-to-image", "user-1").Return(imageParameters(), nil).Once()

	_, err := f.studio.GenerateArtwork(context.Background(), "user-1", models.ArtworkInput{
		ToolID: "text-to-image",
		Values: map[string]any{},
	})
	var vErr *ValidationError
	assert.ErrorAs(t, err, &vErr)

	_, err = f.studio.GenerateArtwork(context.Background(), "user-1", models.ArtworkInput{ToolID: "interview"})
	assert.ErrorIs(t, err, gateway.ErrUnsupportedAppType)
}

func TestGenerateArtworkBoundsConcurrency(t *testing.T) {
	f := newFixture(t)
	f.mirror.release = make(chan struct{})
	f.gw.On("Parameters", "text-to-image", "user-1").Return(imageParameters(), nil).Once()
	f.gw.On("RunWorkflow", "text-to-image", mock.Anything).Return(workflowResponse(map[string]any{
		"text": "https://tmp/1.png https://tmp/2.png https://tmp/3.png https://tmp/4.png",
	}), nil)
	expectArtworks(f, "https://tmp/1.png", "https://tmp/2.png", "https://tmp/3.png", "https://tmp/4.png")

	done := make(chan error, 1)
	go func() {
		_, err := f.studio.GenerateArtwork(context.Background(), "user-1", models.ArtworkInput{
			ToolID: "text-to-image",
			Values: map[string]any{"prompt": "кот"},
		})
		done <- err
	}()

	active := func() int {
		f.mirror.mu.Lock()
		defer f.mirror.mu.Unlock()
		return f.mirror.active
	}
	require.Eventually(t, func() bool { return active() == 2 }, time.Second, 5*time.Millisecond)
	close(f.mirror.release)

	require.NoError(t, <-done)
	assert.Equal(t, 2, f.mirror.peak)
	assert.Len(t, f.mirror.calls, 4)
}

func TestGenerateArtworkRemovesCopiesWhenUpdateFails(t *testing.T) {
	f := newFixture(t)
	f.gw.On("Parameters", "text-to-image", "user-1").Return(imageParameters(), nil).Once()
	f.gw.On("RunWorkflow", "text-to-image", mock.Anything).
		Return(workflowResponse(map[string]any{"files": []any{map[string]any{"type": "image", "url": "https://tmp/1.png"}}}), nil)
	f.store.On("CreateArtwork", mock.Anything).
		Return(&dbmodels.Artwork{ID: "a-1", ContentURL: "https://tmp/1.png"}, nil).Once()
	f.store.On("UpdateArtwork", "user-1", "a-1", mock.Anything).Return(nil, errors.New("connection reset")).Once()

	res, err := f.studio.GenerateArtwork(context.Background(), "user-1", models.ArtworkInput{
		ToolID: "text-to-image",
		Values: map[string]any{"prompt": "кот"},
	})
	require.NoError(t, err)
	require.Len(t, res.Artworks, 1)
	assert.Equal(t, "https://tmp/1.png", res.Artworks[0].ContentURL)
	assert.Equal(t, []string{"1.png", "thumbnails/1.png"}, f.objects.removed)
}
