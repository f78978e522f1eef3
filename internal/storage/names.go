package storage

import (
	"fmt"
	"mime"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	defaultBaseName = "image"
	defaultExt      = ".jpg"
	maxBaseName     = 20
)

var (
	unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)
	trailingExt     = regexp.MustCompile(`\.[^.]+$`)
)

var mimeExtensions = map[string]string{
	"image/jpeg":    ".jpg",
	"image/jpg":     ".jpg",
	"image/png":     ".png",
	"image/gif":     ".gif",
	"image/webp":    ".webp",
	"image/svg+xml": ".svg",
	"image/bmp":     ".bmp",
	"image/tiff":    ".tiff",
}

// extensionFor возвращает расширение по MIME-типу, по умолчанию .jpg.
func extensionFor(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = contentType
	}
	if ext, ok := mimeExtensions[strings.ToLower(mediaType)]; ok {
		return ext
	}
	return defaultExt
}

// uniqueName строит имя вида <base>_<unix-ms>_<rand6><ext>.
func uniqueName(rawURL, contentType string, now time.Time) string {
	base := defaultBaseName
	if u, err := url.Parse(rawURL); err == nil {
		last := path.Base(u.Path)
		if strings.Contains(last, ".") {
			base, _, _ = strings.Cut(last, ".")
		}
	}
	base = unsafeNameChars.ReplaceAllString(base, "")
	if len(base) > maxBaseName {
		base = base[:maxBaseName]
	}
	if base == "" {
		base = defaultBaseName
	}

	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return fmt.Sprintf("%s_%d_%s%s", base, now.UnixMilli(), random, extensionFor(contentType))
}

// fileNameFromURL - последний сегмент пути URL.
func fileNameFromURL(rawURL string, now time.Time) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Path == "" || strings.HasSuffix(u.Path, "/") {
		return fmt.Sprintf("%s_%d", defaultBaseName, now.UnixMilli())
	}
	return path.Base(u.Path)
}

func thumbnailName(sourceURL string, width, height int, now time.Time) string {
	name := trailingExt.ReplaceAllString(fileNameFromURL(sourceURL, now), "")
	return fmt.Sprintf("thumbnails/%s_thumb_%dx%d.jpg", name, width, height)
}
