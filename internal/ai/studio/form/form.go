// Package form превращает схему параметров приложения шлюза в описание формы
// для UI и обратно, значения формы во входы шлюза.
package form

import (
	"strings"

	"github.com/Jamolkhon5/aistudio/internal/ai/gateway"
	"github.com/Jamolkhon5/aistudio/internal/ai/studio/models"
)

const (
	FilesField    = "files"
	documentTypes = ".pdf,.doc,.docx,.txt,.md"
)

// Convert строит форму по схеме параметров. Неизвестные элементы пропускаются.
func Convert(p gateway.Parameters) models.AdaptedForm {
	fields := make([]models.FormField, 0, len(p.UserInputForm)+1)
	for _, item := range p.UserInputForm {
		if field, ok := convertItem(item); ok {
			fields = append(fields, field)
		}
	}

	upload := convertFileUpload(p.FileUpload)
	if upload.Enabled {
		fields = append(fields, models.FormField{
			Name:     FilesField,
			Label:    "Загрузить файлы",
			Type:     models.FieldFile,
			Required: false,
			FileConfig: &models.FileConfig{
				Accept:   strings.Join(upload.Types, ","),
				Multiple: upload.MaxCount > 1,
				MaxSize:  upload.MaxSize,
				MaxCount: upload.MaxCount,
			},
		})
	}

	return models.AdaptedForm{
		Fields:             fields,
		FileUpload:         upload,
		OpeningStatement:   p.OpeningStatement,
		SuggestedQuestions: p.SuggestedQuestions,
	}
}

func convertItem(item gateway.InputFormItem) (models.FormField, bool) {
	switch {
	case item.TextInput != nil:
		return textField(item.TextInput, models.FieldText), true
	case item.Paragraph != nil:
		return textField(item.Paragraph, models.FieldTextarea), true
	case item.Select != nil:
		s := item.Select
		options := make([]models.FieldOption, 0, len(s.Options))
		for _, o := range s.Options {
			options = append(options, models.FieldOption{Label: o, Value: o})
		}
		return models.FormField{
			Name:         s.Variable,
			Label:        s.Label,
			Type:         models.FieldSelect,
			Required:     s.Required,
			DefaultValue: s.Default,
			Options:      options,
		}, true
	default:
		return models.FormField{}, false
	}
}

func textField(c *gateway.InputControl, fieldType string) models.FormField {
	return models.FormField{
		Name:         c.Variable,
		Label:        c.Label,
		Type:         fieldType,
		Required:     c.Required,
		DefaultValue: c.Default,
		Placeholder:  "Введите " + c.Label,
		Validation:   &models.FieldValidation{MaxLength: c.MaxLength},
	}
}

func convertFileUpload(fu *gateway.FileUploadSetting) models.FileUploadConfig {
	cfg := models.FileUploadConfig{
		Types:    []string{},
		MaxCount: 1,
		MaxSize:  models.DefaultMaxFileSize,
	}
	if fu == nil {
		return cfg
	}

	kinds := []struct {
		setting *gateway.UploadTypeSetting
		accept  string
	}{
		{fu.Image, "image/*"},
		{fu.Audio, "audio/*"},
		{fu.Video, "video/*"},
		{fu.Document, documentTypes},
	}
	for _, k := range kinds {
		if k.setting == nil || !k.setting.Enabled {
			continue
		}
		cfg.Enabled = true
		cfg.Types = append(cfg.Types, k.accept)
		cfg.MaxCount = max(cfg.MaxCount, k.setting.NumberLimits)
	}
	return cfg
}

// ToInputs оставляет значения нефайловых полей формы без изменений.
// Файловые поля и значения без поля в форме отбрасываются.
func ToInputs(values map[string]any, fields []models.FormField) map[string]any {
	inputs := make(map[string]any, len(fields))
	for _, f := range fields {
		if f.Type == models.FieldFile {
			continue
		}
		if v, ok := values[f.Name]; ok {
			inputs[f.Name] = v
		}
	}
	return inputs
}

// FilesToGateway переводит загруженные файлы в формат files запроса шлюза.
func FilesToGateway(files []models.UploadedFile) []gateway.File {
	out := make([]gateway.File, 0, len(files))
	for _, f := range files {
		gf := gateway.File{Type: fileKind(f.MimeType)}
		if f.ID != "" {
			gf.TransferMethod = gateway.TransferLocalFile
			gf.UploadFileID = f.ID
		} else if f.URL != "" {
			gf.TransferMethod = gateway.TransferRemoteURL
			gf.URL = f.URL
		} else {
			continue
		}
		out = append(out, gf)
	}
	return out
}

func fileKind(mimeType string) string {
	major, _, _ := strings.Cut(strings.ToLower(mimeType), "/")
	switch major {
	case "image", "audio", "video":
		return major
	default:
		return "document"
	}
}
