package chat

import (
	"errors"
	"fmt"

	"github.com/richinex/companion/storage"
)

// Kind classifies an orchestrator failure.
type Kind string

const (
	KindInvalidRequest Kind = "invalid_request"
	KindNotFound       Kind = "not_found"
	KindProvider       Kind = "provider"
	KindTimeout        Kind = "timeout"
	KindPersistence    Kind = "persistence"
	KindInternal       Kind = "internal"
)

// User-facing fallback messages.
const (
	MsgProviderUnavailable  = "I'm having trouble connecting right now. Could you please try again?"
	MsgProviderTimeout      = "I'm taking too long to respond right now. Could you please try again?"
	MsgInvalidRequest       = "Invalid request format"
	MsgConversationNotFound = "Conversation not found"
	MsgInvalidPersona       = "Invalid persona"
	MsgInvalidModel         = "Invalid model"
	MsgInternal             = "Something went wrong. Please try again."
)

var errEmptyMessage = errors.New("message is required")

// Error is the envelope returned for every failed orchestrator call.
// Message is always safe to show to a user; Err holds the diagnostic cause.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error

	// Set for provider failures so the caller can resynchronize.
	ConversationID string
	History        []storage.Message
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Detail returns the diagnostic text of the cause.
func (e *Error) Detail() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

// KindOf returns the Kind of err, KindInternal for foreign errors, and ""
// for nil.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func invalidRequest(op string, err error) *Error {
	return &Error{Kind: KindInvalidRequest, Op: op, Message: MsgInvalidRequest, Err: err}
}

func notFound(op, msg string, err error) *Error {
	return &Error{Kind: KindNotFound, Op: op, Message: msg, Err: err}
}

func internal(op string, cause any) *Error {
	return &Error{Kind: KindInternal, Op: op, Message: MsgInternal, Err: fmt.Errorf("panic: %v", cause)}
}
