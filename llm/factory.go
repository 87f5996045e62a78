// LLM Provider Factory - builder API for creating LLM providers.
//
// Quick Start:
//
//	// Defaults, API key from OPENROUTER_API_KEY
//	p, err := llm.ProviderOpenRouter.FromEnv()
//
//	// Full configuration
//	p, err := llm.ProviderOpenRouter.
//	    Model(llm.ModelGemma3).
//	    MaxTokens(1000).
//	    Temperature(0.7).
//	    Header("X-Title", "Mindful Companion").
//	    FromEnv()

package llm

import (
	"fmt"
	"net/http"
	"os"
	"strings"
)

// ProviderType represents supported LLM providers.
type ProviderType int

const (
	// ProviderOpenRouter is OpenRouter's OpenAI-compatible gateway.
	ProviderOpenRouter ProviderType = iota
	// ProviderOpenAI is the OpenAI provider (GPT models).
	ProviderOpenAI
	// ProviderDeepSeek is the DeepSeek provider.
	ProviderDeepSeek
	// ProviderAnthropic is the Anthropic provider (Claude models).
	ProviderAnthropic
	// ProviderGemini is the Google Gemini provider.
	ProviderGemini
)

// String returns the string representation of the provider type.
func (p ProviderType) String() string {
	switch p {
	case ProviderOpenRouter:
		return "openrouter"
	case ProviderOpenAI:
		return "openai"
	case ProviderDeepSeek:
		return "deepseek"
	case ProviderAnthropic:
		return "anthropic"
	case ProviderGemini:
		return "gemini"
	default:
		return "unknown"
	}
}

// EnvVar returns the environment variable name for this provider's API key.
func (p ProviderType) EnvVar() string {
	switch p {
	case ProviderOpenRouter:
		return "OPENROUTER_API_KEY"
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	case ProviderDeepSeek:
		return "DEEPSEEK_API_KEY"
	case ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	case ProviderGemini:
		return "GEMINI_API_KEY"
	default:
		return ""
	}
}

// DefaultModel returns the default model for this provider.
func (p ProviderType) DefaultModel() string {
	switch p {
	case ProviderOpenRouter:
		return ModelGemma3
	case ProviderOpenAI:
		return ModelOpenAIGPT4oMini
	case ProviderDeepSeek:
		return ModelDeepSeekChat
	case ProviderAnthropic:
		return ModelAnthropicClaudeSonnet4
	case ProviderGemini:
		return ModelGeminiFlash25
	default:
		return ""
	}
}

// ParseProviderType parses a provider from string (case-insensitive).
func ParseProviderType(s string) (ProviderType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "openrouter", "":
		return ProviderOpenRouter, nil
	case "openai", "gpt":
		return ProviderOpenAI, nil
	case "deepseek":
		return ProviderDeepSeek, nil
	case "anthropic", "claude":
		return ProviderAnthropic, nil
	case "gemini", "google":
		return ProviderGemini, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnknownProvider, s)
	}
}

// FromEnv creates a provider with defaults, reading API key from environment.
func (p ProviderType) FromEnv() (Provider, error) {
	return NewProviderBuilder(p).FromEnv()
}

// Model starts configuring this provider with a specific model.
func (p ProviderType) Model(model string) *ProviderBuilder {
	return NewProviderBuilder(p).Model(model)
}

// ProviderBuilder is a builder for configuring LLM providers.
type ProviderBuilder struct {
	providerType ProviderType
	model        string
	maxTokens    uint32
	temperature  *float32
	baseURL      string
	headers      map[string]string
	httpClient   *http.Client
}

// NewProviderBuilder creates a new builder for the given provider.
func NewProviderBuilder(providerType ProviderType) *ProviderBuilder {
	return &ProviderBuilder{
		providerType: providerType,
		headers:      map[string]string{},
	}
}

// Model sets the default model to use.
func (b *ProviderBuilder) Model(model string) *ProviderBuilder {
	b.model = model
	return b
}

// MaxTokens sets maximum tokens for responses.
func (b *ProviderBuilder) MaxTokens(tokens uint32) *ProviderBuilder {
	b.maxTokens = tokens
	return b
}

// Temperature sets temperature (0.0 = deterministic, 1.0 = creative).
func (b *ProviderBuilder) Temperature(temp float32) *ProviderBuilder {
	b.temperature = &temp
	return b
}

// BaseURL overrides the endpoint of OpenAI-compatible providers.
func (b *ProviderBuilder) BaseURL(url string) *ProviderBuilder {
	b.baseURL = url
	return b
}

// Header adds a header sent with every request (OpenAI-compatible providers only).
func (b *ProviderBuilder) Header(key, value string) *ProviderBuilder {
	b.headers[key] = value
	return b
}

// HTTPClient sets the transport for OpenAI-compatible providers.
func (b *ProviderBuilder) HTTPClient(c *http.Client) *ProviderBuilder {
	b.httpClient = c
	return b
}

// FromEnv builds the provider, reading API key from environment.
func (b *ProviderBuilder) FromEnv() (Provider, error) {
	envVar := b.providerType.EnvVar()
	apiKey := os.Getenv(envVar)
	if apiKey == "" {
		return nil, fmt.Errorf("%s: %s environment variable not set", b.providerType, envVar)
	}
	return b.build(apiKey)
}

// APIKey builds the provider with an explicit API key.
func (b *ProviderBuilder) APIKey(key string) (Provider, error) {
	return b.build(key)
}

func (b *ProviderBuilder) build(apiKey string) (Provider, error) {
	model := b.model
	if model == "" {
		model = b.providerType.DefaultModel()
	}

	maxTokens := b.maxTokens
	if maxTokens == 0 {
		maxTokens = 1000
	}

	temperature := float32(0.7)
	if b.temperature != nil {
		temperature = *b.temperature
	}

	switch b.providerType {
	case ProviderOpenRouter:
		return NewOpenAIProvider(apiKey, model, maxTokens, temperature, b.openAIOptions("openrouter", openRouterBaseURL)), nil
	case ProviderOpenAI:
		return NewOpenAIProvider(apiKey, model, maxTokens, temperature, b.openAIOptions("openai", "")), nil
	case ProviderDeepSeek:
		return NewOpenAIProvider(apiKey, model, maxTokens, temperature, b.openAIOptions("deepseek", deepseekBaseURL)), nil
	case ProviderAnthropic:
		return NewAnthropicProvider(apiKey, model, maxTokens, temperature), nil
	case ProviderGemini:
		return NewGeminiProvider(apiKey, model, maxTokens, temperature), nil
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownProvider, b.providerType)
	}
}

func (b *ProviderBuilder) openAIOptions(name, defaultURL string) OpenAIOptions {
	url := b.baseURL
	if url == "" {
		url = defaultURL
	}
	return OpenAIOptions{
		Name:       name,
		BaseURL:    url,
		Headers:    b.headers,
		HTTPClient: b.httpClient,
	}
}

// Model identifier constants.

// OpenRouter free-tier models.
const (
	ModelGemma3       = "google/gemma-3-27b-it:free"
	ModelDeepSeekR1   = "deepseek/deepseek-r1:free"
	ModelLlama33Large = "meta-llama/llama-3.3-70b-instruct:free"
)

// Direct vendor models.
const (
	ModelOpenAIGPT4o            = "gpt-4o"
	ModelOpenAIGPT4oMini        = "gpt-4o-mini"
	ModelDeepSeekChat           = "deepseek-chat"
	ModelAnthropicClaudeSonnet4 = "claude-sonnet-4-20250514"
	ModelGeminiFlash25          = "gemini-2.5-flash"
)

// DefaultModels is the allow-list used when none is configured.
var DefaultModels = []string{ModelGemma3, ModelDeepSeekR1, ModelLlama33Large}
