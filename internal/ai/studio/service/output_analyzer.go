package service

import (
	"net/url"
	"path"
	"regexp"
	"sort"
	"strings"
)

// Output - то, что удалось извлечь из outputs workflow.
type Output struct {
	Images []string
	Text   string
}

type OutputAnalyzer struct {
	markdownImage *regexp.Regexp
	bareURL       *regexp.Regexp
	imageExts     map[string]bool
}

func NewOutputAnalyzer() *OutputAnalyzer {
	return &OutputAnalyzer{
		markdownImage: regexp.MustCompile(`!\[[^\]]*\]\((https?://[^)\s]+)\)`),
		bareURL:       regexp.MustCompile(`https?://[^\s"'<>()\[\]]+`),
		imageExts: map[string]bool{
			".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
			".webp": true, ".bmp": true, ".svg": true, ".tiff": true,
		},
	}
}

// Analyze собирает ссылки на изображения в порядке появления без повторов
// и текст из строковых значений. Ключи верхнего уровня обходятся по алфавиту.
func (oa *OutputAnalyzer) Analyze(outputs map[string]any) Output {
	keys := make([]string, 0, len(outputs))
	for k := range outputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var (
		out   Output
		seen  = make(map[string]bool)
		texts []string
	)
	add := func(u string) {
		if !seen[u] {
			seen[u] = true
			out.Images = append(out.Images, u)
		}
	}

	var walk func(v any, top bool)
	walk = func(v any, top bool) {
		switch val := v.(type) {
		case string:
			for _, u := range oa.imagesInText(val) {
				add(u)
			}
			if top {
				if text := strings.TrimSpace(oa.markdownImage.ReplaceAllString(val, "")); text != "" {
					texts = append(texts, text)
				}
			}
		case map[string]any:
			if u, ok := oa.fileURL(val); ok {
				add(u)
				return
			}
			nested := make([]string, 0, len(val))
			for k := range val {
				nested = append(nested, k)
			}
			sort.Strings(nested)
			for _, k := range nested {
				walk(val[k], false)
			}
		case []any:
			for _, item := range val {
				walk(item, false)
			}
		}
	}

	for _, k := range keys {
		walk(outputs[k], true)
	}
	out.Text = strings.Join(texts, "\n\n")
	return out
}

// fileURL распознает файловый объект шлюза с изображением.
func (oa *OutputAnalyzer) fileURL(obj map[string]any) (string, bool) {
	u, ok := obj["url"].(string)
	if !ok || !strings.HasPrefix(u, "http") {
		return "", false
	}
	if t, _ := obj["type"].(string); t == "image" {
		return u, true
	}
	if mt, _ := obj["mime_type"].(string); strings.HasPrefix(mt, "image/") {
		return u, true
	}
	return u, oa.isImageURL(u)
}

// imagesInText находит картинки markdown и голые ссылки на изображения по порядку в тексте.
func (oa *OutputAnalyzer) imagesInText(s string) []string {
	markdown := make(map[int]string)
	for _, m := range oa.markdownImage.FindAllStringSubmatchIndex(s, -1) {
		markdown[m[2]] = s[m[2]:m[3]]
	}

	var found []string
	for _, m := range oa.bareURL.FindAllStringIndex(s, -1) {
		if u, ok := markdown[m[0]]; ok {
			found = append(found, u)
			continue
		}
		u := strings.TrimRight(s[m[0]:m[1]], ".,;:!?")
		if oa.isImageURL(u) {
			found = append(found, u)
		}
	}
	return found
}

func (oa *OutputAnalyzer) isImageURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return oa.imageExts[strings.ToLower(path.Ext(u.Path))]
}
