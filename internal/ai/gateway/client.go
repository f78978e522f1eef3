package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "https://api.dify.ai/v1"

	// DefaultMaxResponseSize ограничивает тело блокирующего ответа.
	DefaultMaxResponseSize = 10 << 20
	// тело ошибки читается только для диагностики
	maxErrorBody = 64 << 10
)

// Client вызывает приложения шлюза от имени инструмента. Повторов нет.
type Client struct {
	baseURL string
	keys    KeyResolver
	http    *http.Client
	timeout time.Duration
	maxBody int64
}

// NewClient создает клиента. timeout ограничивает блокирующие вызовы,
// потоковые живут столько, сколько контекст вызывающего.
func NewClient(baseURL string, keys KeyResolver, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		keys:    keys,
		http:    &http.Client{},
		timeout: timeout,
		maxBody: DefaultMaxResponseSize,
	}
}

func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) newRequest(ctx context.Context, toolID, method, path string, body io.Reader, contentType string) (*http.Request, RequestInfo, error) {
	info := RequestInfo{URL: c.baseURL + path, Method: method}

	apiKey, err := c.keys.APIKey(toolID)
	if err != nil {
		return nil, info, err
	}

	req, err := http.NewRequestWithContext(ctx, method, info.URL, body)
	if err != nil {
		return nil, info, fmt.Errorf("%w: error creating request: %v", ErrRequestFailed, err)
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	log.Printf("INFO: [Gateway] %s %s tool=%s key=%s", method, info.URL, toolID, maskKey(apiKey))
	return req, info, nil
}

func (c *Client) newJSONRequest(ctx context.Context, toolID, path string, payload any) (*http.Request, RequestInfo, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, RequestInfo{}, fmt.Errorf("error marshaling request: %w", err)
	}
	req, info, err := c.newRequest(ctx, toolID, http.MethodPost, path, bytes.NewReader(data), "application/json")
	info.BodyKeys = bodyKeys(data)
	return req, info, err
}

// doBlocking выполняет запрос и раскладывает успешный JSON-ответ в out.
func (c *Client) doBlocking(req *http.Request, info RequestInfo, out any) error {
	if c.timeout > 0 {
		ctx, cancel := context.WithTimeout(req.Context(), c.timeout)
		defer cancel()
		req = req.WithContext(ctx)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: error making request: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	failed := resp.StatusCode < 200 || resp.StatusCode > 299
	limit := c.maxBody
	if failed {
		limit = maxErrorBody
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return fmt.Errorf("%w: error reading response: %v", ErrRequestFailed, err)
	}
	if int64(len(body)) > limit {
		if !failed {
			return fmt.Errorf("%w: %w: more than %d bytes", ErrRequestFailed, ErrResponseTooLarge, limit)
		}
		body = body[:limit]
	}
	log.Printf("INFO: [Gateway] %s %s -> %d (%d bytes)", info.Method, info.URL, resp.StatusCode, len(body))

	if failed {
		return newAPIError(resp, body, info)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %v, body: %s", ErrParseFailed, err, truncate(body, 256))
	}
	return nil
}

// parseLoose разбирает тело как JSON, а если не вышло - заворачивает текст в {"raw": ...}.
func parseLoose(body []byte) any {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return map[string]any{"raw": string(body)}
	}
	return v
}

func bodyKeys(data []byte) []string {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil
	}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

func userOrDefault(user string) string {
	if user == "" {
		return DefaultUser
	}
	return user
}
