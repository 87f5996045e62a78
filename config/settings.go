// Package config provides application settings loaded from environment variables.
//
// Settings are created via New() which handles:
// - Environment variable parsing with validation
// - Default value application
// - Provider-specific configuration lookup

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/richinex/companion/llm"
	"github.com/richinex/companion/persona"
)

// Settings holds all application configuration.
type Settings struct {
	LLM     LLMConfig
	Store   StoreConfig
	Persona PersonaConfig
	Log     LogConfig
}

// LLMConfig holds LLM provider configuration.
type LLMConfig struct {
	Provider    llm.ProviderType
	BaseURL     string
	Models      []string
	MaxTokens   uint32
	Temperature float64
	Timeout     time.Duration
	// OpenRouter attribution headers
	Referer string
	Title   string
}

// StoreConfig selects the conversation record backend.
type StoreConfig struct {
	Backend string // "file" or "sqlite"
	Path    string
}

// PersonaConfig locates the persona catalog.
type PersonaConfig struct {
	File    string // optional YAML catalog; empty uses the built-in one
	Default string
}

const (
	StoreFile   = "file"
	StoreSqlite = "sqlite"
)

// New creates settings, loading values from environment variables.
// Returns an error if the provider is unknown or environment variables contain invalid values.
func New() (Settings, error) {
	provider, err := llm.ParseProviderType(os.Getenv("COMPANION_PROVIDER"))
	if err != nil {
		return Settings{}, fmt.Errorf("invalid value for COMPANION_PROVIDER: %w (supported: %s)",
			err, strings.Join(SupportedProviders(), ", "))
	}

	maxTokens, err := getEnvUint32("LLM_MAX_TOKENS", 1000)
	if err != nil {
		return Settings{}, err
	}

	temperature, err := getEnvFloat64("LLM_TEMPERATURE", 0.7)
	if err != nil {
		return Settings{}, err
	}
	if temperature < 0 || temperature > 2 {
		return Settings{}, fmt.Errorf("invalid value for LLM_TEMPERATURE: %v: must be between 0 and 2", temperature)
	}

	timeout, err := getEnvDuration("COMPANION_PROVIDER_TIMEOUT", 60*time.Second)
	if err != nil {
		return Settings{}, err
	}

	backend := strings.ToLower(getEnv("COMPANION_STORE", StoreFile))
	if backend != StoreFile && backend != StoreSqlite {
		return Settings{}, fmt.Errorf("invalid value for COMPANION_STORE: %q", backend)
	}
	path := getEnv("COMPANION_STORE_PATH", DefaultStorePath(backend))

	logConfig, err := newLogConfig()
	if err != nil {
		return Settings{}, err
	}

	return Settings{
		LLM: LLMConfig{
			Provider:    provider,
			BaseURL:     os.Getenv("COMPANION_BASE_URL"),
			Models:      ModelsFor(provider),
			MaxTokens:   maxTokens,
			Temperature: temperature,
			Timeout:     timeout,
			Referer:     getEnv("OPENROUTER_REFERER", "http://localhost:5000"),
			Title:       getEnv("OPENROUTER_TITLE", "Mindful Companion"),
		},
		Store: StoreConfig{
			Backend: backend,
			Path:    path,
		},
		Persona: PersonaConfig{
			File:    os.Getenv("COMPANION_PERSONAS_FILE"),
			Default: getEnv("COMPANION_DEFAULT_PERSONA", persona.DefaultID),
		},
		Log: logConfig,
	}, nil
}

// ModelsFor returns the model allow-list for a provider. COMPANION_MODELS
// wins when set; otherwise OpenRouter gets the curated list and the
// direct vendors get their single default model.
func ModelsFor(provider llm.ProviderType) []string {
	defaults := []string{provider.DefaultModel()}
	if provider == llm.ProviderOpenRouter {
		defaults = llm.DefaultModels
	}
	return getEnvList("COMPANION_MODELS", defaults)
}

// DefaultStorePath is the record location used when COMPANION_STORE_PATH is unset.
func DefaultStorePath(backend string) string {
	if backend == StoreSqlite {
		return filepath.Join("data", "conversations.db")
	}
	return filepath.Join("data", "conversations.json")
}

// SupportedProviders returns the list of supported provider names.
func SupportedProviders() []string {
	return []string{
		llm.ProviderOpenRouter.String(),
		llm.ProviderOpenAI.String(),
		llm.ProviderDeepSeek.String(),
		llm.ProviderAnthropic.String(),
		llm.ProviderGemini.String(),
	}
}

// Environment variable helpers with proper error handling

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvUint32(key string, defaultVal uint32) (uint32, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.ParseUint(val, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return uint32(i), nil
}

func getEnvFloat64(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return f, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid value for %s: %q: must not be negative", key, val)
	}
	return d, nil
}

// getEnvList splits a comma-separated value, dropping blanks.
func getEnvList(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
