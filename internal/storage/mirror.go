package storage

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

const (
	DefaultDownloadTimeout = 60 * time.Second
	DefaultMaxDownloadSize = 20 << 20
)

// Mirror переносит изображения с временных адресов шлюза в постоянное хранилище.
type Mirror struct {
	store   ObjectStore
	http    *http.Client // внешние источники
	own     *http.Client // собственный бакет
	timeout time.Duration
	maxSize int64
	now     func() time.Time
}

func NewMirror(store ObjectStore, downloadTimeout time.Duration) *Mirror {
	if downloadTimeout <= 0 {
		downloadTimeout = DefaultDownloadTimeout
	}
	return &Mirror{
		store:   store,
		http:    publicClient(),
		own:     &http.Client{},
		timeout: downloadTimeout,
		maxSize: DefaultMaxDownloadSize,
		now:     time.Now,
	}
}

// WithMaxSize задает предел размера скачиваемого изображения.
func (m *Mirror) WithMaxSize(n int64) *Mirror {
	if n > 0 {
		m.maxSize = n
	}
	return m
}

// WithPrivateHosts разрешает источники во внутренних сетях.
func (m *Mirror) WithPrivateHosts() *Mirror {
	m.http = &http.Client{}
	return m
}

func (m *Mirror) clientFor(rawURL string) *http.Client {
	if strings.HasPrefix(rawURL, m.store.PublicURL("")) {
		return m.own
	}
	return m.http
}

// MirrorResult описывает сохраненную копию.
type MirrorResult struct {
	OriginalURL   string `json:"original_url"`
	ThumbnailURL  string `json:"thumbnail_url,omitempty"`
	Path          string `json:"path"`
	ThumbnailPath string `json:"thumbnail_path,omitempty"`
	ContentType   string `json:"content_type"`
	Size          int64  `json:"size"`
	Width         int    `json:"width,omitempty"`
	Height        int    `json:"height,omitempty"`
}

// FileSize - размер в человекочитаемом виде.
func (r *MirrorResult) FileSize() string {
	return humanize.IBytes(uint64(r.Size))
}

// download читает изображение не больше maxSize байт. Тип определяется по содержимому,
// все, что не image/*, отклоняется.
func (m *Mirror) download(ctx context.Context, rawURL string) ([]byte, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, "", fmt.Errorf("invalid image url %q: %w", rawURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, "", fmt.Errorf("%w: scheme %q", ErrForbiddenHost, u.Scheme)
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("invalid image url %q: %w", rawURL, err)
	}
	resp, err := m.clientFor(rawURL).Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", fmt.Errorf("failed to download image: %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	if resp.ContentLength > m.maxSize {
		return nil, "", fmt.Errorf("failed to download image: %w: %d bytes", ErrTooLarge, resp.ContentLength)
	}
	data, err := readLimited(resp.Body, m.maxSize)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read image: %w", err)
	}

	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		return nil, "", fmt.Errorf("%w: %s", ErrNotImage, contentType)
	}
	return data, contentType, nil
}

func (m *Mirror) mirror(ctx context.Context, tempURL, customName string) (*MirrorResult, error) {
	log.Printf("INFO: [Mirror] downloading %s", tempURL)
	data, contentType, err := m.download(ctx, tempURL)
	if err != nil {
		return nil, err
	}
	log.Printf("INFO: [Mirror] downloaded %s", humanize.IBytes(uint64(len(data))))

	name := customName
	if name == "" {
		name = uniqueName(tempURL, contentType, m.now())
	}

	stored, err := m.store.Upload(ctx, name, contentType, data)
	if err != nil {
		return nil, err
	}
	publicURL := m.store.PublicURL(stored)
	log.Printf("INFO: [Mirror] stored %s as %s", tempURL, publicURL)

	return &MirrorResult{
		OriginalURL: publicURL,
		Path:        stored,
		ContentType: contentType,
		Size:        int64(len(data)),
	}, nil
}

// MirrorURL сохраняет изображение по временному URL и возвращает постоянный публичный URL.
func (m *Mirror) MirrorURL(ctx context.Context, tempURL, customName string) (string, error) {
	res, err := m.mirror(ctx, tempURL, customName)
	if err != nil {
		return "", err
	}
	return res.OriginalURL, nil
}

// MirrorWithThumbnail сохраняет изображение и строит миниатюру по постоянной копии.
// Если миниатюру сделать не удалось, в ThumbnailURL попадает сам оригинал.
func (m *Mirror) MirrorWithThumbnail(ctx context.Context, tempURL, customName string, generateThumb bool) (*MirrorResult, error) {
	res, err := m.mirror(ctx, tempURL, customName)
	if err != nil {
		return nil, err
	}
	if !generateThumb {
		return res, nil
	}

	thumb, err := m.GenerateThumbnail(ctx, res.OriginalURL, ThumbnailOptions{})
	if err != nil {
		log.Printf("WARN: [Mirror] thumbnail for %s failed, using original: %v", res.OriginalURL, err)
		res.ThumbnailURL = res.OriginalURL
		return res, nil
	}
	res.ThumbnailURL = thumb.URL
	res.ThumbnailPath = thumb.Path
	res.Width = thumb.SourceWidth
	res.Height = thumb.SourceHeight
	return res, nil
}
