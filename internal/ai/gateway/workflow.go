package gateway

import "context"

func (r *WorkflowRequest) normalize(mode string) {
	r.ResponseMode = mode
	r.User = userOrDefault(r.User)
	if r.Inputs == nil {
		r.Inputs = map[string]any{}
	}
	if r.Files == nil {
		r.Files = []File{}
	}
}

// RunWorkflow - блокирующий запуск workflow-приложения.
func (c *Client) RunWorkflow(ctx context.Context, toolID string, req WorkflowRequest) (*WorkflowResponse, error) {
	req.normalize(ResponseModeBlocking)

	httpReq, info, err := c.newJSONRequest(ctx, toolID, "/workflows/run", req)
	if err != nil {
		return nil, err
	}

	var out WorkflowResponse
	if err := c.doBlocking(httpReq, info, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) StreamWorkflow(ctx context.Context, toolID string, req WorkflowRequest, h StreamHandlers) error {
	req.normalize(ResponseModeStreaming)
	return c.stream(ctx, toolID, "/workflows/run", req, h)
}
