package validator

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/Jamolkhon5/aistudio/internal/ai/studio/models"
)

// ValidateFormData проверяет значения формы по описанию полей
func ValidateFormData(values map[string]any, fields []models.FormField) models.ValidationState {
	state := models.ValidationState{
		Errors: make(map[string]string),
	}

	for _, field := range fields {
		value, present := values[field.Name]

		// Обязательные поля
		if field.Required && isEmpty(value, present) {
			state.Errors[field.Name] = fmt.Sprintf("поле «%s» обязательно для заполнения", field.Label)
			continue
		}

		s, ok := value.(string)
		if !ok || s == "" || field.Validation == nil {
			continue
		}
		if err := validateString(s, field.Label, field.Validation); err != nil {
			state.Errors[field.Name] = err.Error()
		}
	}

	state.IsValid = len(state.Errors) == 0
	return state
}

func validateString(s, label string, v *models.FieldValidation) error {
	length := utf8.RuneCountInString(s)
	if v.MaxLength > 0 && length > v.MaxLength {
		return fmt.Errorf("поле «%s» не может быть длиннее %d символов", label, v.MaxLength)
	}
	if v.MinLength > 0 && length < v.MinLength {
		return fmt.Errorf("поле «%s» должно содержать минимум %d символов", label, v.MinLength)
	}
	if v.Pattern != "" {
		re, err := regexp.Compile(v.Pattern)
		if err != nil {
			return fmt.Errorf("поле «%s»: некорректный шаблон проверки", label)
		}
		if !re.MatchString(s) {
			return fmt.Errorf("поле «%s» имеет неверный формат", label)
		}
	}
	return nil
}

func isEmpty(value any, present bool) bool {
	if !present || value == nil {
		return true
	}
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v) == ""
	case bool:
		return false
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	}
	return false
}
