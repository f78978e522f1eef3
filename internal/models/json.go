package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONMap хранится в jsonb-колонках. nil пишется как NULL.
type JSONMap map[string]any

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal json map: %w", err)
	}
	return b, nil
}

func (m *JSONMap) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*m = nil
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported json map source %T", src)
	}
	if len(data) == 0 {
		*m = nil
		return nil
	}
	out := make(map[string]any)
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("failed to unmarshal json map: %w", err)
	}
	*m = out
	return nil
}

// Merge возвращает копию m с наложенными значениями patch.
func (m JSONMap) Merge(patch JSONMap) JSONMap {
	out := make(JSONMap, len(m)+len(patch))
	for k, v := range m {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}
