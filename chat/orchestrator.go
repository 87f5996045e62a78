// Package chat composes personas, models, the conversation store and the
// provider client into conversational turns.
//
// Information Hiding:
// - Turn discipline: user message recorded first, assistant message only on success
// - Prompt assembly (persona system prompt + full history)
// - Translation of provider and store failures into Error envelopes

package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/richinex/companion/llm"
	"github.com/richinex/companion/persona"
	"github.com/richinex/companion/storage"
)

// Request is one user turn.
type Request struct {
	Message string
	// Model overrides the session's current model for this call only.
	Model string
	// ConversationID targets an existing conversation and makes it current.
	ConversationID string
}

// Reply is the result of a successful Generate.
type Reply struct {
	Message        string            `json:"message"`
	ConversationID string            `json:"conversation_id"`
	History        []storage.Message `json:"history"`
	Conversations  []storage.Summary `json:"conversations"`
}

// Orchestrator runs conversational turns. It holds no selection state of
// its own; that lives in Session.
type Orchestrator struct {
	client   *llm.Client
	personas *persona.Catalog
	models   *llm.ModelRegistry
	logger   *slog.Logger
}

// New creates an orchestrator. models supplies the allow-list and default
// selection copied into each new session.
func New(client *llm.Client, personas *persona.Catalog, models *llm.ModelRegistry, logger *slog.Logger) (*Orchestrator, error) {
	if client == nil {
		return nil, errors.New("provider client is required")
	}
	if personas == nil {
		return nil, errors.New("persona catalog is required")
	}
	if models == nil {
		return nil, errors.New("model registry is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		client:   client,
		personas: personas,
		models:   models,
		logger:   logger.With("component", "chat"),
	}, nil
}

// Generate records the user message, asks the provider for a complete
// reply and records it. On provider failure the user message stays, no
// assistant message is written, and the returned *Error carries the history.
func (o *Orchestrator) Generate(ctx context.Context, s *Session, req Request) (reply *Reply, err error) {
	const op = "generate"
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("panic during generate", "panic", r)
			reply, err = nil, internal(op, r)
		}
	}()

	model, e := o.validate(op, s, req)
	if e != nil {
		return nil, e
	}

	turn := s.Store.BeginTurn(ctx, req.ConversationID, req.Message)
	logger := o.logger.With("session_id", s.ID, "conversation_id", turn.ConversationID, "model", model)
	logger.Debug("user turn recorded", "created", turn.Created, "history_len", len(turn.History))

	content, callErr := o.client.Complete(ctx, model, o.prompt(s, turn.History, logger))
	if callErr != nil {
		return nil, o.providerError(logger, op, callErr, turn)
	}

	history, appendErr := s.Store.AppendTo(ctx, turn.ConversationID, llm.RoleAssistant, content)
	if appendErr != nil {
		// Deleted while the provider was answering.
		logger.Warn("conversation gone before reply was recorded", "error", appendErr)
	}

	return &Reply{
		Message:        content,
		ConversationID: turn.ConversationID,
		History:        history,
		Conversations:  s.Store.ListSummaries(),
	}, nil
}

func (o *Orchestrator) validate(op string, s *Session, req Request) (string, *Error) {
	if s == nil || s.Store == nil {
		return "", invalidRequest(op, errors.New("session is required"))
	}
	if strings.TrimSpace(req.Message) == "" {
		return "", invalidRequest(op, errEmptyMessage)
	}
	if req.Model == "" {
		return s.Models.Current(), nil
	}
	if !s.Models.Contains(req.Model) {
		return "", notFound(op, MsgInvalidModel, fmt.Errorf("model %q is not in the allow-list", req.Model))
	}
	return req.Model, nil
}

// prompt is the persona system message followed by the full history.
func (o *Orchestrator) prompt(s *Session, history []storage.Message, logger *slog.Logger) []llm.ChatMessage {
	system := s.Personas.SystemPrompt()
	logger.Debug("prompt assembled", "persona", s.Personas.Current(), "system_prompt", system)

	messages := make([]llm.ChatMessage, 0, len(history)+1)
	messages = append(messages, llm.SystemMessage(system))
	return append(messages, storage.ChatMessages(history)...)
}

func (o *Orchestrator) providerError(logger *slog.Logger, op string, err error, turn storage.Turn) *Error {
	failure := llm.Classify(err)
	logger.Error("provider call failed", "op", op, "failure", failure.String(), "error", err)

	e := &Error{
		Kind:           KindProvider,
		Op:             op,
		Message:        MsgProviderUnavailable,
		Err:            err,
		ConversationID: turn.ConversationID,
		History:        turn.History,
	}
	if failure == llm.FailureTimeout {
		e.Kind = KindTimeout
		e.Message = MsgProviderTimeout
	}
	return e
}

// ModelList is the model allow-list with the session's selection.
type ModelList struct {
	Models  []string `json:"models"`
	Current string   `json:"current_model"`
}

// ListModels returns the allow-list and current selection.
func (o *Orchestrator) ListModels(s *Session) ModelList {
	return ModelList{Models: s.Models.List(), Current: s.Models.Current()}
}

// SetModel selects a model from the allow-list.
func (o *Orchestrator) SetModel(s *Session, id string) error {
	if !s.Models.SetCurrent(id) {
		return notFound("set_model", MsgInvalidModel, fmt.Errorf("model %q is not in the allow-list", id))
	}
	o.logger.Info("model changed", "session_id", s.ID, "model", id)
	return nil
}

// PersonaList is the persona catalog with the session's selection.
type PersonaList struct {
	Personas []persona.Info `json:"personas"`
	Current  string         `json:"current_persona"`
}

// ListPersonas returns the catalog without system prompts.
func (o *Orchestrator) ListPersonas(s *Session) PersonaList {
	return PersonaList{Personas: s.Personas.List(), Current: s.Personas.Current()}
}

// SetPersona selects a persona from the catalog.
func (o *Orchestrator) SetPersona(s *Session, id string) error {
	if !s.Personas.SetCurrent(id) {
		return notFound("set_persona", MsgInvalidPersona, fmt.Errorf("%w: %s", persona.ErrUnknownPersona, id))
	}
	o.logger.Info("persona changed", "session_id", s.ID, "persona", id)
	return nil
}

// ConversationList is the listing view with the current pointer.
type ConversationList struct {
	Conversations []storage.Summary `json:"conversations"`
	Current       string            `json:"current_conversation,omitempty"`
}

// ListConversations returns summaries, most recently updated first.
func (o *Orchestrator) ListConversations(s *Session) ConversationList {
	current, _ := s.Store.Current()
	return ConversationList{Conversations: s.Store.ListSummaries(), Current: current}
}

// CreateConversation starts an empty conversation and makes it current.
func (o *Orchestrator) CreateConversation(ctx context.Context, s *Session) string {
	id := s.Store.Create(ctx)
	o.logger.Info("conversation created", "session_id", s.ID, "conversation_id", id)
	return id
}

// ConversationView is a full conversation as returned by GetConversation.
type ConversationView struct {
	ConversationID string            `json:"conversation_id"`
	Title          string            `json:"title"`
	Messages       []storage.Message `json:"messages"`
}

// GetConversation makes id current and returns it.
func (o *Orchestrator) GetConversation(s *Session, id string) (*ConversationView, error) {
	const op = "get_conversation"
	if id == "" {
		return nil, invalidRequest(op, errors.New("conversation id is required"))
	}
	if !s.Store.SetCurrent(id) {
		return nil, notFound(op, MsgConversationNotFound, fmt.Errorf("%w: %s", storage.ErrNotFound, id))
	}
	c, err := s.Store.Get(id)
	if err != nil {
		return nil, notFound(op, MsgConversationNotFound, err)
	}
	return &ConversationView{ConversationID: c.ID, Title: c.Title, Messages: c.Messages}, nil
}

// History returns the messages of id, or of the current conversation when
// id is empty.
func (o *Orchestrator) History(s *Session, id string) ([]storage.Message, error) {
	history, err := s.Store.History(id)
	if err != nil {
		return nil, notFound("history", MsgConversationNotFound, err)
	}
	return history, nil
}

// DeleteConversation removes id and returns the resulting current pointer
// ("" when no conversations remain).
func (o *Orchestrator) DeleteConversation(ctx context.Context, s *Session, id string) (string, error) {
	current, ok := s.Store.Delete(ctx, id)
	if !ok {
		return current, notFound("delete_conversation", MsgConversationNotFound, fmt.Errorf("%w: %s", storage.ErrNotFound, id))
	}
	o.logger.Info("conversation deleted", "session_id", s.ID, "conversation_id", id, "current", current)
	return current, nil
}

// ClearHistory empties id, or the current conversation when id is empty.
func (o *Orchestrator) ClearHistory(ctx context.Context, s *Session, id string) error {
	if err := s.Store.Clear(ctx, id); err != nil {
		return notFound("clear_history", MsgConversationNotFound, err)
	}
	return nil
}

// Status describes a session and the health of its persistence.
type Status struct {
	SessionID     string                `json:"session_id"`
	Persona       string                `json:"persona"`
	Model         string                `json:"model"`
	Conversation  string                `json:"current_conversation,omitempty"`
	Conversations int                   `json:"conversations"`
	Provider      string                `json:"provider"`
	Persistence   storage.PersistStatus `json:"persistence"`
}

// Status reports session selections and persistence health.
func (o *Orchestrator) Status(s *Session) Status {
	current, _ := s.Store.Current()
	return Status{
		SessionID:     s.ID,
		Persona:       s.Personas.Current(),
		Model:         s.Models.Current(),
		Conversation:  current,
		Conversations: s.Store.Len(),
		Provider:      o.client.Provider().Name(),
		Persistence:   s.Store.Status(),
	}
}

// Health is process liveness.
type Health struct {
	Status string `json:"status"`
}

// Liveness reports process health. It touches no provider, store or session.
func Liveness() Health {
	return Health{Status: "healthy"}
}

// Health reports liveness without touching the store.
func (o *Orchestrator) Health() Health {
	return Liveness()
}
