package handler

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/Jamolkhon5/aistudio/internal/storage"
)

type mirrorRequest struct {
	URL       string `json:"url"`
	FileName  string `json:"file_name"`
	Thumbnail bool   `json:"thumbnail"`
	Verify    bool   `json:"verify"`
}

type mirrorResponse struct {
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	Path         string `json:"path"`
	ContentType  string `json:"content_type"`
	Size         int64  `json:"size"`
	FileSize     string `json:"file_size"`
	Width        int    `json:"width,omitempty"`
	Height       int    `json:"height,omitempty"`
	Available    *bool  `json:"available,omitempty"`
}

// MirrorFile копирует файл по временной ссылке в постоянное хранилище.
// С verify=true ждет, пока постоянная ссылка начнет отдавать изображение.
func (h *Handler) MirrorFile(w http.ResponseWriter, r *http.Request) {
	if _, ok := User(w, r); !ok {
		return
	}
	var req mirrorRequest
	if err := Decode(r, &req); err != nil {
		WriteError(w, r, err)
		return
	}
	if !strings.HasPrefix(req.URL, "http://") && !strings.HasPrefix(req.URL, "https://") {
		WriteErrorStatus(w, http.StatusBadRequest, "url must be an absolute http(s) URL", nil)
		return
	}

	res, err := h.mirror.MirrorWithThumbnail(r.Context(), req.URL, req.FileName, req.Thumbnail)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	resp := mirrorResponse{
		URL:          res.OriginalURL,
		ThumbnailURL: res.ThumbnailURL,
		Path:         res.Path,
		ContentType:  res.ContentType,
		Size:         res.Size,
		FileSize:     res.FileSize(),
		Width:        res.Width,
		Height:       res.Height,
	}
	if req.Verify {
		available := h.waitAvailable(r.Context(), res.OriginalURL)
		resp.Available = &available
	}
	WriteJSON(w, http.StatusOK, resp)
}

// waitAvailable повторяет preload, пока изображение не загрузится или не кончатся попытки.
func (h *Handler) waitAvailable(ctx context.Context, url string) bool {
	ready := make(chan struct{})
	ctx, cancel := context.WithTimeout(ctx, h.preloadBudget())
	defer cancel()

	stop := h.mirror.ContinuousPreload(ctx, url, func() { close(ready) }, h.preload)
	defer stop()

	select {
	case <-ready:
		return true
	case <-ctx.Done():
		log.Printf("WARN: [Storage] %s is not available after %d attempts", url, h.preload.MaxRetries+1)
		return false
	}
}

func (h *Handler) preloadBudget() time.Duration {
	opts := h.preload
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = storage.DefaultPreloadTimeout
	}
	return time.Duration(opts.MaxRetries+1)*timeout + time.Duration(opts.MaxRetries)*opts.RetryDelay
}
