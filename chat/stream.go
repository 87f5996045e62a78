package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/richinex/companion/llm"
	"github.com/richinex/companion/storage"
)

// EventType identifies a stream event.
type EventType int

const (
	// EventText carries one fragment, in provider order.
	EventText EventType = iota
	// EventDone ends a successful stream. Text holds the committed reply.
	EventDone
	// EventError ends a failed stream. Nothing was committed.
	EventError
)

func (t EventType) String() string {
	switch t {
	case EventText:
		return "text"
	case EventDone:
		return "done"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one item on a Stream.
type Event struct {
	Type EventType
	Text string
	Err  *Error
}

// Stream is an in-flight streamed turn. Events is closed after the final
// Done or Error event, or after cancellation.
type Stream struct {
	ConversationID string
	Events         <-chan Event
}

// Stream records the user message and relays provider fragments as they
// arrive. The reply is committed only when the provider finishes cleanly.
// Canceling ctx stops the relay, releases the provider stream and commits
// nothing; callers that stop reading must cancel ctx.
func (o *Orchestrator) Stream(ctx context.Context, s *Session, req Request) (stream *Stream, err error) {
	const op = "stream"
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("panic during stream", "panic", r)
			stream, err = nil, internal(op, r)
		}
	}()

	model, e := o.validate(op, s, req)
	if e != nil {
		return nil, e
	}

	turn := s.Store.BeginTurn(ctx, req.ConversationID, req.Message)
	logger := o.logger.With("session_id", s.ID, "conversation_id", turn.ConversationID, "model", model)
	logger.Debug("user turn recorded", "created", turn.Created, "history_len", len(turn.History))

	out := make(chan Event, 16)
	go o.relay(ctx, s, turn, model, o.prompt(s, turn.History, logger), out, logger)

	return &Stream{ConversationID: turn.ConversationID, Events: out}, nil
}

func (o *Orchestrator) relay(ctx context.Context, s *Session, turn storage.Turn, model string, prompt []llm.ChatMessage, out chan<- Event, logger *slog.Logger) {
	const op = "stream"
	defer close(out)

	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	chunks := make(chan string)
	errc := make(chan error, 1)
	go func() {
		defer close(chunks)
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic in provider stream", "panic", r)
				errc <- internal(op, r)
			}
		}()
		errc <- o.client.Stream(callCtx, model, prompt, chunks)
	}()

	var buf strings.Builder
	for chunk := range chunks {
		buf.WriteString(chunk)
		select {
		case out <- Event{Type: EventText, Text: chunk}:
		case <-ctx.Done():
			cancel()
			for range chunks {
			}
			logger.Debug("stream canceled by caller", "forwarded_bytes", buf.Len())
			return
		}
	}

	if err := <-errc; err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			logger.Debug("stream canceled by caller", "error", err)
			return
		}
		var e *Error
		if !errors.As(err, &e) {
			e = o.providerError(logger, op, err, turn)
		}
		o.emit(ctx, out, Event{Type: EventError, Err: e})
		return
	}

	content := buf.String()
	if content == "" {
		e := o.providerError(logger, op, &llm.CallError{
			Kind:     llm.FailureMalformed,
			Provider: o.client.Provider().Name(),
			Model:    model,
			Err:      llm.ErrEmptyResponse,
		}, turn)
		o.emit(ctx, out, Event{Type: EventError, Err: e})
		return
	}

	if _, err := s.Store.AppendTo(ctx, turn.ConversationID, llm.RoleAssistant, content); err != nil {
		logger.Warn("conversation gone before reply was recorded", "error", err)
	}
	o.emit(ctx, out, Event{Type: EventDone, Text: content})
}

// emit sends a terminal event unless the caller has gone away.
func (o *Orchestrator) emit(ctx context.Context, out chan<- Event, ev Event) {
	select {
	case out <- ev:
	case <-ctx.Done():
	}
}
