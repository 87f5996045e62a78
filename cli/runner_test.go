package cli

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richinex/companion/chat"
	"github.com/richinex/companion/config"
	"github.com/richinex/companion/llm"
	"github.com/richinex/companion/persona"
	"github.com/richinex/companion/storage"
)

type echoProvider struct {
	chunks []string
	err    error
}

func (p *echoProvider) Name() string  { return "echo" }
func (p *echoProvider) Model() string { return "echo-model" }

func (p *echoProvider) Chat(ctx context.Context, req llm.ChatRequest) (llm.LLMResponse, error) {
	if p.err != nil {
		return llm.LLMResponse{}, p.err
	}
	return llm.LLMResponse{Content: strings.Join(p.chunks, "")}, nil
}

func (p *echoProvider) StreamChat(ctx context.Context, req llm.ChatRequest, chunks chan<- string) (*llm.TokenUsage, error) {
	for _, c := range p.chunks {
		select {
		case chunks <- c:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, p.err
}

func newTestApp(t *testing.T, p llm.Provider, input string) (*App, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	models, err := llm.NewModelRegistry(llm.DefaultModels)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	orch, err := chat.New(llm.NewClient(p, time.Second), persona.Builtin(), models, logger)
	require.NoError(t, err)

	store := storage.Open(context.Background(), storage.NewMemoryPersister(nil), storage.WithLogger(logger))
	var out, errOut bytes.Buffer
	return NewApp(orch, orch.NewSession(store), strings.NewReader(input), &out, &errOut), &out, &errOut
}

func TestChatStreamsAndHandlesCommands(t *testing.T) {
	input := strings.Join([]string{
		"hello there",
		"/persona coach",
		"/model nope",
		"/new",
		"/list",
		"/bogus",
		"/exit",
		"never sent",
	}, "\n")
	app, out, errOut := newTestApp(t, &echoProvider{chunks: []string{"Hi, ", "friend."}}, input)

	require.NoError(t, app.Chat(context.Background(), true))

	assert.Contains(t, out.String(), "Hi, friend.")
	assert.Contains(t, out.String(), "Persona set to coach")
	assert.Contains(t, out.String(), "Started conversation")
	assert.Contains(t, out.String(), "hello there")
	assert.Contains(t, errOut.String(), chat.MsgInvalidModel)
	assert.Contains(t, errOut.String(), "unknown command /bogus")

	assert.Equal(t, "coach", app.Session.Personas.Current())
	assert.Equal(t, 2, app.Session.Store.Len())
}

func TestChatBlockingReply(t *testing.T) {
	app, out, _ := newTestApp(t, &echoProvider{chunks: []string{"steady reply"}}, "hi\nquit\n")

	require.NoError(t, app.Chat(context.Background(), false))

	assert.Contains(t, out.String(), "steady reply")
	history, err := app.Session.Store.History("")
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestSendShowsSafeMessage(t *testing.T) {
	app, _, errOut := newTestApp(t, &echoProvider{err: errors.New("upstream exploded")}, "")

	err := app.Send(context.Background(), chat.Request{Message: "hi"}, false)
	require.Error(t, err)
	app.printError(err)
	assert.Contains(t, errOut.String(), chat.MsgProviderUnavailable)
	assert.NotContains(t, errOut.String(), "upstream exploded")

	errOut.Reset()
	app.Verbose = true
	app.printError(err)
	assert.Contains(t, errOut.String(), "upstream exploded")
}

func TestStreamErrorReturned(t *testing.T) {
	app, out, _ := newTestApp(t, &echoProvider{chunks: []string{"half "}, err: errors.New("reset")}, "")

	err := app.Send(context.Background(), chat.Request{Message: "hi"}, true)
	assert.Equal(t, chat.KindProvider, chat.KindOf(err))
	assert.Contains(t, out.String(), "half ")
}

func TestConversationCommandsJSON(t *testing.T) {
	app, out, _ := newTestApp(t, &echoProvider{chunks: []string{"ok"}}, "")
	app.JSON = true
	ctx := context.Background()

	require.NoError(t, app.Send(ctx, chat.Request{Message: "first words"}, false))
	id, ok := app.Session.Store.Current()
	require.True(t, ok)

	out.Reset()
	require.NoError(t, app.ListConversations())
	assert.Contains(t, out.String(), `"title": "first words"`)
	assert.Contains(t, out.String(), `"current_conversation": "`+id+`"`)

	out.Reset()
	require.NoError(t, app.Status())
	assert.Contains(t, out.String(), `"provider": "echo"`)

	require.NoError(t, app.ClearConversation(ctx, id))
	require.NoError(t, app.DeleteConversation(ctx, id))
	assert.Zero(t, app.Session.Store.Len())

	assert.Equal(t, chat.KindNotFound, chat.KindOf(app.ShowConversation(id)))
}

func TestApplyOverrides(t *testing.T) {
	t.Setenv("COMPANION_MODELS", "")
	t.Setenv("COMPANION_STORE_PATH", "")

	settings := config.Settings{
		LLM:   config.LLMConfig{Provider: llm.ProviderOpenRouter, Models: llm.DefaultModels},
		Store: config.StoreConfig{Backend: config.StoreFile, Path: "data/conversations.json"},
	}
	err := applyOverrides(&settings, Options{Provider: "claude", Store: config.StoreSqlite, Verbose: true})
	require.NoError(t, err)

	assert.Equal(t, llm.ProviderAnthropic, settings.LLM.Provider)
	assert.Equal(t, []string{llm.ModelAnthropicClaudeSonnet4}, settings.LLM.Models)
	assert.Equal(t, config.StoreSqlite, settings.Store.Backend)
	assert.True(t, strings.HasSuffix(settings.Store.Path, "conversations.db"))
	assert.Equal(t, slog.LevelDebug, settings.Log.Level)

	assert.Error(t, applyOverrides(&settings, Options{Store: "postgres"}))

	err = applyOverrides(&settings, Options{Provider: "nope"})
	require.ErrorIs(t, err, llm.ErrUnknownProvider)
	assert.Contains(t, err.Error(), "supported: openrouter, openai, deepseek, anthropic, gemini")
}

func TestHealthNeedsNoSetup(t *testing.T) {
	// No provider key and a provider that would fail to parse.
	t.Setenv("COMPANION_PROVIDER", "nope")
	t.Setenv("OPENROUTER_API_KEY", "")

	var out bytes.Buffer
	require.NoError(t, Health(&out, false))
	assert.Equal(t, "healthy\n", out.String())

	out.Reset()
	require.NoError(t, Health(&out, true))
	assert.JSONEq(t, `{"status":"healthy"}`, out.String())
}
