package gateway

import (
	"context"
	"fmt"
	"strings"
)

const (
	AppTypeChat     = "chat"
	AppTypeWorkflow = "workflow"

	defaultTestQuery = "Hello, this is a test message."
)

// AppResult - ответ блокирующего вызова; заполнено одно из полей по типу приложения.
type AppResult struct {
	AppType  string            `json:"app_type"`
	Chat     *ChatResponse     `json:"chat,omitempty"`
	Workflow *WorkflowResponse `json:"workflow,omitempty"`
}

// CallApp выбирает эндпоинт по типу приложения.
func (c *Client) CallApp(ctx context.Context, toolID, appType string, inputs map[string]any, query, user string) (*AppResult, error) {
	switch appType {
	case AppTypeChat:
		if query == "" {
			if q, ok := inputs["query"].(string); ok && strings.TrimSpace(q) != "" {
				query = q
			} else {
				query = defaultTestQuery
			}
		}
		resp, err := c.ChatMessages(ctx, toolID, ChatRequest{Inputs: inputs, Query: query, User: user})
		if err != nil {
			return nil, err
		}
		return &AppResult{AppType: appType, Chat: resp}, nil
	case AppTypeWorkflow:
		resp, err := c.RunWorkflow(ctx, toolID, WorkflowRequest{Inputs: inputs, User: user})
		if err != nil {
			return nil, err
		}
		return &AppResult{AppType: appType, Workflow: resp}, nil
	default:
		return nil, fmt.Errorf("%w: %q, supported: %s, %s", ErrUnsupportedAppType, appType, AppTypeChat, AppTypeWorkflow)
	}
}

// CheckConfig сообщает, настроен ли для инструмента ключ правдоподобной длины.
func (c *Client) CheckConfig(toolID string) bool {
	key, err := c.keys.APIKey(toolID)
	return err == nil && len(key) >= minKeyLength
}

// ConfigInfo не содержит ни ключа, ни его фрагментов.
type ConfigInfo struct {
	HasAPIKey bool   `json:"has_api_key"`
	BaseURL   string `json:"base_url"`
}

func (c *Client) ConfigInfo(toolID string) ConfigInfo {
	info := ConfigInfo{BaseURL: c.baseURL}
	if _, err := c.keys.APIKey(toolID); err == nil {
		info.HasAPIKey = true
	}
	return info
}
