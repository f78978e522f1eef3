package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/Jamolkhon5/aistudio/internal/ai/gateway"
	"github.com/Jamolkhon5/aistudio/internal/ai/studio/form"
	"github.com/Jamolkhon5/aistudio/internal/ai/studio/models"
	dbmodels "github.com/Jamolkhon5/aistudio/internal/models"
	"github.com/Jamolkhon5/aistudio/internal/repository"
)

const titleLength = 30

// Emitter получает события потока по мере их прихода.
type Emitter func(gateway.StreamEvent) error

// reply накапливает ответ ассистента из событий потока.
type reply struct {
	answer         strings.Builder
	thoughts       []any
	files          []any
	conversationID string
}

func (r *reply) add(ev gateway.StreamEvent) {
	if ev.ConversationID != "" {
		r.conversationID = ev.ConversationID
	}
	switch ev.Event {
	case gateway.EventMessage, gateway.EventAgentMessage:
		r.answer.WriteString(ev.Answer)
	case gateway.EventAgentThought:
		if ev.Thought == "" && ev.Observation == "" {
			return
		}
		r.thoughts = append(r.thoughts, map[string]any{
			"thought":     ev.Thought,
			"observation": ev.Observation,
			"tool":        ev.Tool,
		})
	case gateway.EventMessageFile:
		if ev.URL != "" {
			r.files = append(r.files, ev.URL)
		}
	}
}

func (r *reply) metadata() dbmodels.JSONMap {
	meta := dbmodels.JSONMap{}
	if len(r.thoughts) > 0 {
		meta[dbmodels.MetaAgentThoughts] = r.thoughts
	}
	if len(r.files) > 0 {
		meta[dbmodels.MetaFiles] = r.files
	}
	if len(meta) == 0 {
		return nil
	}
	return meta
}

func title(query string) string {
	runes := []rune(strings.TrimSpace(query))
	if len(runes) > titleLength {
		runes = runes[:titleLength]
	}
	return string(runes)
}

// Chat отправляет сообщение в чат-инструмент, пересылает события в emit
// и сохраняет обе реплики в беседе пользователя.
func (s *Studio) Chat(ctx context.Context, userID string, in models.ChatInput, emit Emitter) (*models.ChatResult, error) {
	t, err := s.tool(in.ToolID, gateway.AppTypeChat)
	if err != nil {
		return nil, err
	}
	query := strings.TrimSpace(in.Query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	conv, err := s.conversation(ctx, userID, t.ID, in.ConversationID, query)
	if err != nil {
		return nil, err
	}

	userMsg := dbmodels.Message{
		ConversationID: conv.ID,
		UserID:         userID,
		ToolID:         t.ID,
		MessageType:    dbmodels.MessageTypeUser,
		Content:        query,
	}
	if len(in.Files) > 0 {
		files := make([]any, 0, len(in.Files))
		for _, f := range in.Files {
			files = append(files, map[string]any{"id": f.ID, "url": f.URL, "mime_type": f.MimeType})
		}
		userMsg.Metadata = dbmodels.JSONMap{dbmodels.MetaFiles: files}
	}
	if _, err := s.store.SaveMessage(ctx, userMsg); err != nil {
		return nil, err
	}

	req := gateway.ChatRequest{
		Inputs: in.Inputs,
		Query:  query,
		User:   userID,
		Files:  form.FilesToGateway(in.Files),
	}
	if conv.ConversationID != nil {
		req.ConversationID = *conv.ConversationID
	}

	var r reply
	err = s.gw.StreamChatMessages(ctx, t.ID, req, gateway.StreamHandlers{
		OnChunk: func(ev gateway.StreamEvent) error {
			r.add(ev)
			if emit != nil {
				return emit(ev)
			}
			return nil
		},
	})
	if err != nil {
		return nil, err
	}

	if conv.ConversationID == nil && r.conversationID != "" {
		conv, err = s.store.UpdateConversation(ctx, userID, conv.ID, dbmodels.ConversationUpdate{ConversationID: &r.conversationID})
		if err != nil {
			return nil, err
		}
	}

	saved, err := s.store.SaveMessage(ctx, dbmodels.Message{
		ConversationID: conv.ID,
		UserID:         userID,
		ToolID:         t.ID,
		MessageType:    dbmodels.MessageTypeAssistant,
		Content:        r.answer.String(),
		Metadata:       r.metadata(),
	})
	if err != nil {
		return nil, err
	}
	return &models.ChatResult{Conversation: conv, Message: saved}, nil
}

// conversation продолжает беседу того же инструмента или начинает новую.
// Беседа другого инструмента считается ненайденной: ее идентификатор шлюза
// принадлежит другому приложению.
func (s *Studio) conversation(ctx context.Context, userID, toolID, id, query string) (*dbmodels.Conversation, error) {
	if id != "" {
		conv, err := s.store.GetConversation(ctx, userID, id)
		if err != nil {
			return nil, err
		}
		if conv.ToolID != toolID {
			return nil, fmt.Errorf("%w: conversation %s belongs to tool %s", repository.ErrNotFound, id, conv.ToolID)
		}
		return conv, nil
	}
	t := title(query)
	return s.store.CreateConversation(ctx, userID, toolID, &t, nil)
}
