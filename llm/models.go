// Package llm provides shared data models for LLM providers.
package llm

// Role is the author of a chat turn sent to a provider.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// ChatMessage represents a chat message with role and content.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// SystemMessage creates a system message.
func SystemMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleSystem, Content: content}
}

// ChatRequest is a single provider call. An empty Model means the
// provider's configured default.
type ChatRequest struct {
	Model    string
	Messages []ChatMessage
}

// LLMResponse represents a response from an LLM provider.
type LLMResponse struct {
	Content string
	Usage   *TokenUsage
}

// TokenUsage contains token usage statistics.
type TokenUsage struct {
	PromptTokens     uint32
	CompletionTokens uint32
	TotalTokens      uint32
}

// splitSystem separates the system prompt from the conversational turns.
// Multiple system messages are joined in order.
func splitSystem(messages []ChatMessage) (string, []ChatMessage) {
	var system string
	turns := make([]ChatMessage, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += msg.Content
			continue
		}
		turns = append(turns, msg)
	}
	return system, turns
}
