package gateway

import (
	"errors"
	"fmt"
	"net/http"
)

// Классы ошибок шлюза: запрос не удался, нет конфигурации, ответ не разобрать.
var (
	ErrRequestFailed      = errors.New("gateway request failed")
	ErrMissingAPIKey      = errors.New("gateway api key is not configured")
	ErrParseFailed        = errors.New("gateway response parse failed")
	ErrUnsupportedAppType = errors.New("unsupported app type")
	ErrResponseTooLarge   = errors.New("gateway response is too large")
)

// RequestInfo - сведения о запросе для диагностики. Ключ сюда не попадает.
type RequestInfo struct {
	URL      string   `json:"url"`
	Method   string   `json:"method"`
	BodyKeys []string `json:"body_keys,omitempty"`
}

// APIError - ответ шлюза с кодом не 2xx.
// Body содержит разобранный JSON или {"raw": текст}, если тело не JSON.
type APIError struct {
	StatusCode int         `json:"status"`
	StatusText string      `json:"status_text"`
	Body       any         `json:"response_data"`
	Request    RequestInfo `json:"request_details"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.StatusText)
}

func (e *APIError) Unwrap() error { return ErrRequestFailed }

// StreamError - событие "error" внутри потока.
type StreamError struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("stream error %d %s: %s", e.Status, e.Code, e.Message)
}

func (e *StreamError) Unwrap() error { return ErrRequestFailed }

func newAPIError(resp *http.Response, body []byte, info RequestInfo) *APIError {
	return &APIError{
		StatusCode: resp.StatusCode,
		StatusText: http.StatusText(resp.StatusCode),
		Body:       parseLoose(body),
		Request:    info,
	}
}
