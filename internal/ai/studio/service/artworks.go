package service

import (
	"context"
	"fmt"
	"log"
	"path"
	"strings"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/Jamolkhon5/aistudio/internal/ai/gateway"
	"github.com/Jamolkhon5/aistudio/internal/ai/studio/form"
	"github.com/Jamolkhon5/aistudio/internal/ai/studio/models"
	dbmodels "github.com/Jamolkhon5/aistudio/internal/models"
)

const workflowFailed = "failed"

// MirrorTimeout ограничивает перенос изображений одной генерации.
const MirrorTimeout = 3 * time.Minute

// GenerateArtwork запускает workflow, создает работу на каждое изображение
// и переносит изображения в постоянное хранилище ограниченным пулом.
func (s *Studio) GenerateArtwork(ctx context.Context, userID string, in models.ArtworkInput) (*models.ArtworkResult, error) {
	t, err := s.tool(in.ToolID, gateway.AppTypeWorkflow)
	if err != nil {
		return nil, err
	}
	inputs, err := s.BuildInputs(ctx, userID, t.ID, in.Values)
	if err != nil {
		return nil, err
	}

	resp, err := s.gw.RunWorkflow(ctx, t.ID, gateway.WorkflowRequest{
		Inputs: inputs,
		User:   userID,
		Files:  form.FilesToGateway(in.Files),
	})
	if err != nil {
		return nil, err
	}
	if resp.Data.Status == workflowFailed {
		return nil, fmt.Errorf("%w: workflow %s failed: %s", gateway.ErrRequestFailed, resp.WorkflowRunID, resp.Data.Error)
	}

	out := s.analyzer.Analyze(resp.Data.Outputs)
	base := dbmodels.Artwork{
		UserID:        userID,
		ToolID:        t.ID,
		Title:         artworkTitle(in, t.Name),
		Prompt:        optional(artworkPrompt(in, inputs)),
		InputImageURL: optional(in.InputImageURL),
		ToolName:      optional(t.Name),
	}

	result := &models.ArtworkResult{WorkflowRunID: resp.WorkflowRunID}
	if len(out.Images) == 0 {
		a := base
		a.ContentType = dbmodels.ContentText
		a.OutputMetadata = dbmodels.JSONMap{"text": out.Text}
		saved, err := s.store.CreateArtwork(ctx, a)
		if err != nil {
			return nil, err
		}
		result.Artworks = []*dbmodels.Artwork{saved}
		return result, nil
	}

	created := make([]*dbmodels.Artwork, 0, len(out.Images))
	for i, url := range out.Images {
		a := base
		if len(out.Images) > 1 {
			a.Title = fmt.Sprintf("%s #%d", base.Title, i+1)
		}
		a.ContentType = dbmodels.ContentImage
		a.ContentURL = url
		a.OutputImageURL = optional(url)
		a.OutputMetadata = dbmodels.JSONMap{
			dbmodels.MetaTemporaryURL: url,
			dbmodels.MetaUploadStatus: string(dbmodels.UploadUploading),
		}
		saved, err := s.store.CreateArtwork(ctx, a)
		if err != nil {
			return nil, err
		}
		created = append(created, saved)
	}

	result.Artworks = s.mirrorArtworks(ctx, userID, created)
	return result, nil
}

// mirrorArtworks переносит изображения параллельно, не больше s.concurrency одновременно.
// Ошибка одной работы отмечается в ее метаданных и не мешает остальным.
func (s *Studio) mirrorArtworks(ctx context.Context, userID string, artworks []*dbmodels.Artwork) []*dbmodels.Artwork {
	// загрузка не должна обрываться вместе с запросом клиента
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), MirrorTimeout)
	defer cancel()

	updated := make([]*dbmodels.Artwork, len(artworks))
	p := pool.New().WithMaxGoroutines(s.concurrency)
	for i, a := range artworks {
		p.Go(func() {
			updated[i] = s.mirrorArtwork(ctx, userID, a)
		})
	}
	p.Wait()
	return updated
}

func (s *Studio) mirrorArtwork(ctx context.Context, userID string, a *dbmodels.Artwork) *dbmodels.Artwork {
	res, err := s.mirror.MirrorWithThumbnail(ctx, a.ContentURL, "", true)
	if err != nil {
		log.Printf("ERROR: [Studio] mirror of artwork %s failed: %v", a.ID, err)
		meta := a.OutputMetadata.Merge(dbmodels.JSONMap{
			dbmodels.MetaUploadStatus:   string(dbmodels.UploadFailed),
			dbmodels.MetaUploadError:    err.Error(),
			dbmodels.MetaUploadFailedAt: time.Now().UTC().Format(time.RFC3339),
		})
		return s.applyUpdate(ctx, userID, a, dbmodels.ArtworkUpdate{OutputMetadata: meta})
	}

	patch := dbmodels.JSONMap{
		dbmodels.MetaPermanentURL:      res.OriginalURL,
		dbmodels.MetaUploadStatus:      string(dbmodels.UploadCompleted),
		dbmodels.MetaUploadCompletedAt: time.Now().UTC().Format(time.RFC3339),
		dbmodels.MetaFileSize:          res.FileSize(),
		dbmodels.MetaFormat:            strings.TrimPrefix(res.ContentType, "image/"),
	}
	if res.Width > 0 && res.Height > 0 {
		patch[dbmodels.MetaDimensions] = fmt.Sprintf("%dx%d", res.Width, res.Height)
	}
	upd := dbmodels.ArtworkUpdate{
		ContentURL:     &res.OriginalURL,
		OutputImageURL: &res.OriginalURL,
		OutputMetadata: a.OutputMetadata.Merge(patch),
	}
	if res.ThumbnailURL != "" {
		upd.ThumbnailURL = &res.ThumbnailURL
	}
	saved, err := s.store.UpdateArtwork(ctx, userID, a.ID, upd)
	if err != nil {
		// работа ссылается на временный URL, копии никому не нужны
		log.Printf("ERROR: [Studio] failed to update artwork %s: %v", a.ID, err)
		paths := []string{res.Path}
		if res.ThumbnailPath != "" {
			paths = append(paths, res.ThumbnailPath)
		}
		s.removeOrphans(ctx, paths...)
		return a
	}
	return saved
}

func (s *Studio) applyUpdate(ctx context.Context, userID string, a *dbmodels.Artwork, upd dbmodels.ArtworkUpdate) *dbmodels.Artwork {
	saved, err := s.store.UpdateArtwork(ctx, userID, a.ID, upd)
	if err != nil {
		log.Printf("ERROR: [Studio] failed to update artwork %s: %v", a.ID, err)
		return a
	}
	return saved
}

func artworkTitle(in models.ArtworkInput, toolName string) string {
	if t := strings.TrimSpace(in.Title); t != "" {
		return t
	}
	if p := title(in.Prompt); p != "" {
		return p
	}
	return toolName
}

func artworkPrompt(in models.ArtworkInput, inputs map[string]any) string {
	if in.Prompt != "" {
		return in.Prompt
	}
	for _, key := range []string{"prompt", "query", "text"} {
		if v, ok := inputs[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func uploadPath(userID, fileID, name string) string {
	return path.Join("uploads", userID, fileID+strings.ToLower(path.Ext(name)))
}
