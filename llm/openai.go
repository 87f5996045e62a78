// OpenAI-compatible Provider implementation using go-openai library.
//
// Information Hiding:
// - API endpoint and authentication
// - Request/response format for the Chat Completions API
// - Attribution headers required by OpenRouter
// - Streaming via go-openai library
//
// The same type serves OpenRouter, OpenAI and DeepSeek; only the base URL
// and headers differ.

package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

const (
	openRouterBaseURL = "https://openrouter.ai/api/v1"
	deepseekBaseURL   = "https://api.deepseek.com/v1"
)

// OpenAIProvider implements the Provider interface for any OpenAI-compatible API.
type OpenAIProvider struct {
	name        string
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
}

// OpenAIOptions configures an OpenAI-compatible endpoint.
type OpenAIOptions struct {
	// Name is reported by Name(); defaults to "openai".
	Name string
	// BaseURL overrides the API endpoint; empty keeps the OpenAI default.
	BaseURL string
	// Headers are added to every request.
	Headers map[string]string
	// HTTPClient is used as the underlying transport; nil means http.DefaultClient.
	HTTPClient *http.Client
}

// NewOpenAIProvider creates a new OpenAI-compatible provider.
func NewOpenAIProvider(apiKey, model string, maxTokens uint32, temperature float32, opts OpenAIOptions) *OpenAIProvider {
	config := openai.DefaultConfig(apiKey)
	if opts.BaseURL != "" {
		config.BaseURL = opts.BaseURL
	}

	base := opts.HTTPClient
	if base == nil {
		base = http.DefaultClient
	}
	if len(opts.Headers) > 0 {
		transport := base.Transport
		if transport == nil {
			transport = http.DefaultTransport
		}
		wrapped := *base
		wrapped.Transport = &headerTransport{headers: opts.Headers, next: transport}
		base = &wrapped
	}
	config.HTTPClient = base

	name := opts.Name
	if name == "" {
		name = "openai"
	}

	return &OpenAIProvider{
		name:        name,
		client:      openai.NewClientWithConfig(config),
		model:       model,
		maxTokens:   int(maxTokens),
		temperature: temperature,
	}
}

// Name returns the provider name.
func (p *OpenAIProvider) Name() string {
	return p.name
}

// Model returns the default model.
func (p *OpenAIProvider) Model() string {
	return p.model
}

// Chat sends a chat completion request.
func (p *OpenAIProvider) Chat(ctx context.Context, req ChatRequest) (LLMResponse, error) {
	resp, err := p.client.CreateChatCompletion(ctx, p.buildRequest(req, false))
	if err != nil {
		return LLMResponse{}, fmt.Errorf("chat completion failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return LLMResponse{}, ErrEmptyResponse
	}

	usage := &TokenUsage{
		PromptTokens:     uint32(resp.Usage.PromptTokens),
		CompletionTokens: uint32(resp.Usage.CompletionTokens),
		TotalTokens:      uint32(resp.Usage.TotalTokens),
	}

	return LLMResponse{Content: resp.Choices[0].Message.Content, Usage: usage}, nil
}

// StreamChat streams a chat completion.
func (p *OpenAIProvider) StreamChat(ctx context.Context, req ChatRequest, chunks chan<- string) (*TokenUsage, error) {
	stream, err := p.client.CreateChatCompletionStream(ctx, p.buildRequest(req, true))
	if err != nil {
		return nil, fmt.Errorf("stream creation failed: %w", err)
	}
	defer stream.Close()

	var usage *TokenUsage
	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return usage, nil
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return usage, ctxErr
			}
			return usage, fmt.Errorf("stream recv failed: %w", err)
		}

		// Usage arrives on the final chunk when requested
		if response.Usage != nil {
			usage = &TokenUsage{
				PromptTokens:     uint32(response.Usage.PromptTokens),
				CompletionTokens: uint32(response.Usage.CompletionTokens),
				TotalTokens:      uint32(response.Usage.TotalTokens),
			}
		}

		if len(response.Choices) > 0 {
			content := response.Choices[0].Delta.Content
			if content != "" {
				select {
				case chunks <- content:
				case <-ctx.Done():
					return usage, ctx.Err()
				}
			}
		}
	}
}

func (p *OpenAIProvider) buildRequest(req ChatRequest, stream bool) openai.ChatCompletionRequest {
	out := openai.ChatCompletionRequest{
		Model:       modelOr(req.Model, p.model),
		Messages:    convertToOpenAIMessages(req.Messages),
		MaxTokens:   p.maxTokens,
		Temperature: p.temperature,
	}
	if stream {
		out.Stream = true
		out.StreamOptions = &openai.StreamOptions{IncludeUsage: true}
	}
	return out
}

// convertToOpenAIMessages converts our ChatMessage to openai.ChatCompletionMessage
func convertToOpenAIMessages(messages []ChatMessage) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		result[i] = openai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		}
	}
	return result
}

// headerTransport adds fixed headers to every outgoing request.
type headerTransport struct {
	headers map[string]string
	next    http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}
	return t.next.RoundTrip(req)
}

// Verify OpenAIProvider implements Provider
var _ Provider = (*OpenAIProvider)(nil)
