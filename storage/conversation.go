// Package storage provides the conversation store and its durable record.
//
// Information Hiding:
// - Conversation map and current pointer hidden behind ConversationStore
// - Record layout and serialization owned by Persister backends
// - Allows swapping between memory, JSON file, SQLite without API changes

package storage

import (
	"errors"
	"slices"
	"time"
	"unicode/utf8"

	"github.com/richinex/companion/llm"
)

// DefaultTitle is the title of a conversation before its first user message.
const DefaultTitle = "New Conversation"

const (
	titleLimit    = 30
	titleEllipsis = "…"
)

var (
	// ErrNotFound is returned for unknown conversation ids.
	ErrNotFound = errors.New("conversation not found")

	// ErrInvalidRole is returned when appending a message with an unknown role.
	ErrInvalidRole = errors.New("invalid message role")
)

// Message is a single turn. Immutable once appended.
type Message struct {
	Role      llm.Role  `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Conversation is a titled, ordered sequence of messages.
type Conversation struct {
	ID        string    `json:"-"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Title     string    `json:"title"`
	// Titled records that the title was assigned from a user message.
	Titled bool `json:"titled,omitempty"`
}

// Summary is the listing view of a conversation. It never carries messages.
type Summary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ChatMessages strips timestamps for a provider call.
func ChatMessages(history []Message) []llm.ChatMessage {
	out := make([]llm.ChatMessage, len(history))
	for i, m := range history {
		out[i] = llm.ChatMessage{Role: m.Role, Content: m.Content}
	}
	return out
}

// TitleFor derives a conversation title from the first user message.
func TitleFor(content string) string {
	if utf8.RuneCountInString(content) <= titleLimit {
		return content
	}
	runes := []rune(content)
	return string(runes[:titleLimit]) + titleEllipsis
}

func (c *Conversation) clone() Conversation {
	out := *c
	out.Messages = slices.Clone(c.Messages)
	if out.Messages == nil {
		out.Messages = []Message{}
	}
	return out
}

func (c *Conversation) summary() Summary {
	return Summary{ID: c.ID, Title: c.Title, UpdatedAt: c.UpdatedAt}
}
