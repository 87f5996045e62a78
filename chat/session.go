package chat

import (
	"github.com/google/uuid"

	"github.com/richinex/companion/llm"
	"github.com/richinex/companion/persona"
	"github.com/richinex/companion/storage"
)

// Session is the selection state a caller threads through every
// orchestrator call: which persona, which model, and which store (whose
// current pointer selects the conversation). Sessions are independent of
// each other.
type Session struct {
	ID       string
	Personas *persona.Registry
	Models   *llm.ModelRegistry
	Store    *storage.ConversationStore
}

// NewSession creates a session over store with the default persona and model.
func (o *Orchestrator) NewSession(store *storage.ConversationStore) *Session {
	return &Session{
		ID:       uuid.NewString(),
		Personas: persona.NewRegistry(o.personas),
		Models:   o.models.Clone(),
		Store:    store,
	}
}
