package gateway

import (
	"context"
)

func (r *ChatRequest) normalize(mode string) {
	r.ResponseMode = mode
	r.User = userOrDefault(r.User)
	if r.Inputs == nil {
		r.Inputs = map[string]any{}
	}
	if r.Files == nil {
		r.Files = []File{}
	}
}

// ChatMessages - блокирующий вызов чат-приложения.
func (c *Client) ChatMessages(ctx context.Context, toolID string, req ChatRequest) (*ChatResponse, error) {
	req.normalize(ResponseModeBlocking)

	httpReq, info, err := c.newJSONRequest(ctx, toolID, "/chat-messages", req)
	if err != nil {
		return nil, err
	}

	var out ChatResponse
	if err := c.doBlocking(httpReq, info, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StreamChatMessages - потоковый вызов чат-приложения. События передаются в h.OnChunk по порядку.
func (c *Client) StreamChatMessages(ctx context.Context, toolID string, req ChatRequest, h StreamHandlers) error {
	req.normalize(ResponseModeStreaming)
	return c.stream(ctx, toolID, "/chat-messages", req, h)
}
