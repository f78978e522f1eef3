package gateway

import (
	"fmt"
	"strings"
)

const (
	DefaultKeyName = "VITE_DIFY_API_KEY"
	toolKeyPrefix  = DefaultKeyName + "_"
	minKeyLength   = 10
)

type KeyResolver interface {
	APIKey(toolID string) (string, error)
}

// EnvKeyResolver ищет ключ инструмента по именам переменных:
// имя из каталога, VITE_DIFY_API_KEY_<TOOL>, затем ключ по умолчанию.
type EnvKeyResolver struct {
	Lookup  func(name string) string
	KeyName func(toolID string) string
}

// ToolKeyName строит имя переменной из идентификатора инструмента.
func ToolKeyName(toolID string) string {
	return toolKeyPrefix + strings.ToUpper(strings.ReplaceAll(toolID, "-", "_"))
}

func (r EnvKeyResolver) APIKey(toolID string) (string, error) {
	names := make([]string, 0, 3)
	if r.KeyName != nil {
		if name := r.KeyName(toolID); name != "" {
			names = append(names, name)
		}
	}
	names = append(names, ToolKeyName(toolID), DefaultKeyName)

	for _, name := range names {
		if key := strings.TrimSpace(r.Lookup(name)); key != "" {
			return key, nil
		}
	}
	return "", fmt.Errorf("%w: set %s or %s", ErrMissingAPIKey, ToolKeyName(toolID), DefaultKeyName)
}

func maskKey(key string) string {
	if len(key) <= minKeyLength {
		return key[:len(key)/2] + "..."
	}
	return key[:minKeyLength] + "..."
}
