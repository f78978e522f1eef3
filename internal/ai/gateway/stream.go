package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
)

const (
	EventMessage        = "message"
	EventAgentMessage   = "agent_message"
	EventAgentThought   = "agent_thought"
	EventMessageFile    = "message_file"
	EventMessageEnd     = "message_end"
	EventWorkflowFinish = "workflow_finished"
	EventError          = "error"

	doneMarker = "[DONE]"

	// maxStreamLine - предел одной строки SSE без перевода строки.
	maxStreamLine = 1 << 20
)

// StreamEvent - одна строка data: из SSE-потока шлюза.
type StreamEvent struct {
	Event          string          `json:"event"`
	TaskID         string          `json:"task_id,omitempty"`
	ID             string          `json:"id,omitempty"`
	MessageID      string          `json:"message_id,omitempty"`
	ConversationID string          `json:"conversation_id,omitempty"`
	WorkflowRunID  string          `json:"workflow_run_id,omitempty"`
	Answer         string          `json:"answer,omitempty"`
	Thought        string          `json:"thought,omitempty"`
	Observation    string          `json:"observation,omitempty"`
	Tool           string          `json:"tool,omitempty"`
	Type           string          `json:"type,omitempty"`
	URL            string          `json:"url,omitempty"`
	Status         int             `json:"status,omitempty"`
	Code           string          `json:"code,omitempty"`
	Message        string          `json:"message,omitempty"`
	Data           json.RawMessage `json:"data,omitempty"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	CreatedAt      int64           `json:"created_at,omitempty"`

	// Raw - исходный JSON события без изменений.
	Raw json.RawMessage `json:"-"`
}

// StreamHandlers - колбэки потока. Любой из них может быть nil.
type StreamHandlers struct {
	OnChunk    func(StreamEvent) error
	OnError    func(error)
	OnComplete func()
}

func (c *Client) stream(ctx context.Context, toolID, path string, payload any, h StreamHandlers) error {
	err := c.doStream(ctx, toolID, path, payload, h.OnChunk)
	if err != nil {
		log.Printf("ERROR: [Gateway] stream %s for tool %s: %v", path, toolID, err)
		if h.OnError != nil {
			h.OnError(err)
		}
		return err
	}
	if h.OnComplete != nil {
		h.OnComplete()
	}
	return nil
}

func (c *Client) doStream(ctx context.Context, toolID, path string, payload any, onChunk func(StreamEvent) error) error {
	req, info, err := c.newJSONRequest(ctx, toolID, path, payload)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: error making request: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return newAPIError(resp, body, info)
	}

	return decodeStream(resp.Body, func(ev StreamEvent) error {
		if ev.Event == EventError {
			return &StreamError{Status: ev.Status, Code: ev.Code, Message: ev.Message}
		}
		if onChunk != nil {
			return onChunk(ev)
		}
		return nil
	})
}

var errStreamDone = errors.New("stream done")

// decodeStream читает SSE-тело порциями и отдает события в fn по порядку.
// Границы порций на результат не влияют.
func decodeStream(r io.Reader, fn func(StreamEvent) error) error {
	d := &eventDecoder{fn: fn, limit: maxStreamLine}
	buf := make([]byte, 4096)
	for {
		n, readErr := r.Read(buf)
		if n > 0 {
			if err := d.feed(buf[:n]); err != nil {
				if errors.Is(err, errStreamDone) {
					return nil
				}
				return err
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return fmt.Errorf("%w: error reading stream: %v", ErrRequestFailed, readErr)
		}
	}
	if err := d.flush(); err != nil && !errors.Is(err, errStreamDone) {
		return err
	}
	return nil
}

type eventDecoder struct {
	pending []byte
	limit   int
	fn      func(StreamEvent) error
}

// feed добавляет порцию и обрабатывает все завершенные строки.
// Незавершенный хвост остается в буфере до следующей порции.
func (d *eventDecoder) feed(chunk []byte) error {
	d.pending = append(d.pending, chunk...)
	for {
		i := bytes.IndexByte(d.pending, '\n')
		if i < 0 {
			if d.limit > 0 && len(d.pending) > d.limit {
				return fmt.Errorf("%w: %w: stream line exceeds %d bytes", ErrRequestFailed, ErrResponseTooLarge, d.limit)
			}
			return nil
		}
		line := d.pending[:i]
		d.pending = d.pending[i+1:]
		if err := d.line(line); err != nil {
			return err
		}
	}
}

func (d *eventDecoder) flush() error {
	if len(d.pending) == 0 {
		return nil
	}
	line := d.pending
	d.pending = nil
	return d.line(line)
}

func (d *eventDecoder) line(line []byte) error {
	line = bytes.TrimSuffix(line, []byte("\r"))
	payload, ok := bytes.CutPrefix(line, []byte("data:"))
	if !ok {
		return nil
	}
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return nil
	}
	if string(payload) == doneMarker {
		return errStreamDone
	}

	var ev StreamEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		log.Printf("WARN: [Gateway] skipping malformed stream line: %v", err)
		return nil
	}
	ev.Raw = append(json.RawMessage(nil), payload...)
	return d.fn(ev)
}
