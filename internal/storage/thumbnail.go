package storage

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"log"
	"math"

	"github.com/dustin/go-humanize"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	DefaultThumbnailWidth   = 200
	DefaultThumbnailQuality = 80
	maxHeightRatio          = 1.5
)

type ThumbnailOptions struct {
	MaxWidth int
	Quality  int
}

func (o ThumbnailOptions) withDefaults() ThumbnailOptions {
	if o.MaxWidth <= 0 {
		o.MaxWidth = DefaultThumbnailWidth
	}
	if o.Quality <= 0 || o.Quality > 100 {
		o.Quality = DefaultThumbnailQuality
	}
	return o
}

type Thumbnail struct {
	URL          string `json:"url"`
	Path         string `json:"path"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	SourceWidth  int    `json:"source_width"`
	SourceHeight int    `json:"source_height"`
}

// thumbnailSize сохраняет пропорции; слишком высокие картинки ограничиваются по высоте.
func thumbnailSize(width, height, maxWidth int) (int, int) {
	aspect := float64(height) / float64(width)

	w := min(maxWidth, width)
	h := int(math.Round(float64(w) * aspect))

	if limit := float64(maxWidth) * maxHeightRatio; float64(h) > limit {
		h = int(math.Round(limit))
		w = int(math.Round(float64(h) / aspect))
	}
	return max(w, 1), max(h, 1)
}

// GenerateThumbnail скачивает изображение, уменьшает его и сохраняет JPEG в thumbnails/.
func (m *Mirror) GenerateThumbnail(ctx context.Context, imageURL string, opts ThumbnailOptions) (*Thumbnail, error) {
	opts = opts.withDefaults()

	data, _, err := m.download(ctx, imageURL)
	if err != nil {
		return nil, err
	}

	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	bounds := src.Bounds()
	w, h := thumbnailSize(bounds.Dx(), bounds.Dy(), opts.MaxWidth)
	log.Printf("INFO: [Mirror] thumbnail %dx%d from %s %dx%d", w, h, format, bounds.Dx(), bounds.Dy())

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: opts.Quality}); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	log.Printf("INFO: [Mirror] thumbnail encoded, %s", humanize.IBytes(uint64(buf.Len())))

	name := thumbnailName(imageURL, w, h, m.now())
	stored, err := m.store.Upload(ctx, name, "image/jpeg", buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("failed to upload thumbnail: %w", err)
	}

	return &Thumbnail{
		URL:          m.store.PublicURL(stored),
		Path:         stored,
		Width:        w,
		Height:       h,
		SourceWidth:  bounds.Dx(),
		SourceHeight: bounds.Dy(),
	}, nil
}
