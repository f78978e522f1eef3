package gateway

import (
	"context"
	"net/http"
	"net/url"
)

// Parameters запрашивает схему входов приложения.
func (c *Client) Parameters(ctx context.Context, toolID, user string) (*Parameters, error) {
	path := "/parameters?user=" + url.QueryEscape(userOrDefault(user))
	req, info, err := c.newRequest(ctx, toolID, http.MethodGet, path, nil, "")
	if err != nil {
		return nil, err
	}

	var out Parameters
	if err := c.doBlocking(req, info, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
