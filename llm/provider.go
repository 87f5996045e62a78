// Package llm provides LLM provider abstractions.
//
// LLM Provider interface - the abstract interface for text-generation backends.
// Each provider implementation hides:
// - API client initialization and authentication
// - Request/response format conversion
// - Streaming protocol details

package llm

import (
	"context"
)

// Provider defines the abstract interface for LLM providers.
type Provider interface {
	// Name returns the provider name (for logging/debugging).
	Name() string

	// Model returns the default model used when a request leaves Model empty.
	Model() string

	// Chat sends a blocking chat completion request.
	Chat(ctx context.Context, req ChatRequest) (LLMResponse, error)

	// StreamChat streams a chat completion, sending text fragments to chunks
	// in arrival order. It returns when the provider stream ends, fails, or
	// ctx is done. It never closes chunks.
	StreamChat(ctx context.Context, req ChatRequest, chunks chan<- string) (*TokenUsage, error)
}

func modelOr(requested, fallback string) string {
	if requested != "" {
		return requested
	}
	return fallback
}
