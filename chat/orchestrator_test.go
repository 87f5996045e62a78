package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richinex/companion/llm"
	"github.com/richinex/companion/persona"
	"github.com/richinex/companion/storage"
)

// fakeProvider answers from a script and records every request.
type fakeProvider struct {
	mu       sync.Mutex
	reply    string
	chunks   []string
	err      error
	block    bool
	requests []llm.ChatRequest
	released chan struct{}
}

func (p *fakeProvider) Name() string  { return "fake" }
func (p *fakeProvider) Model() string { return "fake-model" }

func (p *fakeProvider) record(req llm.ChatRequest) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	p.mu.Unlock()
}

func (p *fakeProvider) lastRequest() llm.ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests[len(p.requests)-1]
}

func (p *fakeProvider) Chat(ctx context.Context, req llm.ChatRequest) (llm.LLMResponse, error) {
	p.record(req)
	if p.block {
		<-ctx.Done()
		return llm.LLMResponse{}, ctx.Err()
	}
	if p.err != nil {
		return llm.LLMResponse{}, p.err
	}
	return llm.LLMResponse{Content: p.reply}, nil
}

func (p *fakeProvider) StreamChat(ctx context.Context, req llm.ChatRequest, chunks chan<- string) (*llm.TokenUsage, error) {
	p.record(req)
	if p.released != nil {
		defer close(p.released)
	}
	for _, c := range p.chunks {
		select {
		case chunks <- c:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return nil, p.err
}

type fixture struct {
	orch      *Orchestrator
	session   *Session
	provider  *fakeProvider
	persister *storage.MemoryPersister
}

func newFixture(t *testing.T, p *fakeProvider, timeout time.Duration) *fixture {
	t.Helper()
	models, err := llm.NewModelRegistry(llm.DefaultModels)
	require.NoError(t, err)

	orch, err := New(llm.NewClient(p, timeout), persona.Builtin(), models, nil)
	require.NoError(t, err)

	persister := storage.NewMemoryPersister(nil)
	store := storage.Open(context.Background(), persister)
	return &fixture{orch: orch, session: orch.NewSession(store), provider: p, persister: persister}
}

func TestNewRequiresCollaborators(t *testing.T) {
	models, _ := llm.NewModelRegistry(llm.DefaultModels)
	client := llm.NewClient(&fakeProvider{}, 0)

	_, err := New(nil, persona.Builtin(), models, nil)
	assert.Error(t, err)
	_, err = New(client, nil, models, nil)
	assert.Error(t, err)
	_, err = New(client, persona.Builtin(), nil, nil)
	assert.Error(t, err)
}

func TestGenerateOnEmptyStore(t *testing.T) {
	f := newFixture(t, &fakeProvider{reply: "Hi, how are you feeling?"}, time.Second)
	ctx := context.Background()

	reply, err := f.orch.Generate(ctx, f.session, Request{Message: "hello"})
	require.NoError(t, err)

	assert.Equal(t, "Hi, how are you feeling?", reply.Message)
	require.Len(t, reply.History, 2)
	assert.Equal(t, llm.RoleUser, reply.History[0].Role)
	assert.Equal(t, "hello", reply.History[0].Content)
	assert.Equal(t, llm.RoleAssistant, reply.History[1].Role)
	assert.Equal(t, "Hi, how are you feeling?", reply.History[1].Content)

	current, ok := f.session.Store.Current()
	require.True(t, ok)
	assert.Equal(t, current, reply.ConversationID)
	require.Len(t, reply.Conversations, 1)
	assert.Equal(t, "hello", reply.Conversations[0].Title)
}

func TestGeneratePromptAssembly(t *testing.T) {
	f := newFixture(t, &fakeProvider{reply: "ok"}, time.Second)
	ctx := context.Background()

	_, err := f.orch.Generate(ctx, f.session, Request{Message: "first"})
	require.NoError(t, err)
	require.NoError(t, f.orch.SetPersona(f.session, "coach"))
	_, err = f.orch.Generate(ctx, f.session, Request{Message: "second"})
	require.NoError(t, err)

	req := f.provider.lastRequest()
	assert.Equal(t, llm.ModelGemma3, req.Model)

	coach, _ := persona.Builtin().Get("coach")
	assert.Equal(t, []llm.ChatMessage{
		llm.SystemMessage(coach.SystemPrompt),
		{Role: llm.RoleUser, Content: "first"},
		{Role: llm.RoleAssistant, Content: "ok"},
		{Role: llm.RoleUser, Content: "second"},
	}, req.Messages)
}

func TestGenerateProviderFailure(t *testing.T) {
	f := newFixture(t, &fakeProvider{err: errors.New("connection refused")}, time.Second)
	ctx := context.Background()

	reply, err := f.orch.Generate(ctx, f.session, Request{Message: "x"})
	assert.Nil(t, reply)

	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, KindProvider, e.Kind)
	assert.Equal(t, MsgProviderUnavailable, e.Message)
	assert.Contains(t, e.Detail(), "connection refused")
	require.Len(t, e.History, 1)
	assert.Equal(t, "x", e.History[0].Content)

	history, err := f.session.Store.History(e.ConversationID)
	require.NoError(t, err)
	assert.Len(t, history, 1, "only the user turn is recorded")
}

func TestGenerateEmptyReplyIsProviderFailure(t *testing.T) {
	f := newFixture(t, &fakeProvider{reply: ""}, time.Second)

	_, err := f.orch.Generate(context.Background(), f.session, Request{Message: "x"})
	assert.Equal(t, KindProvider, KindOf(err))

	history, _ := f.session.Store.History("")
	assert.Len(t, history, 1)
}

func TestGenerateTimeout(t *testing.T) {
	f := newFixture(t, &fakeProvider{block: true}, 20*time.Millisecond)

	_, err := f.orch.Generate(context.Background(), f.session, Request{Message: "slow"})

	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, KindTimeout, e.Kind)
	assert.Equal(t, MsgProviderTimeout, e.Message)
	assert.Len(t, e.History, 1)
}

func TestGenerateInvalidRequest(t *testing.T) {
	f := newFixture(t, &fakeProvider{reply: "ok"}, time.Second)

	_, err := f.orch.Generate(context.Background(), f.session, Request{Message: "   "})
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, KindInvalidRequest, e.Kind)
	assert.Equal(t, MsgInvalidRequest, e.Message)

	assert.Zero(t, f.session.Store.Len(), "rejected requests have no side effects")
	assert.Empty(t, f.provider.requests)

	_, err = f.orch.Generate(context.Background(), nil, Request{Message: "hi"})
	assert.Equal(t, KindInvalidRequest, KindOf(err))
}

func TestGenerateModelOverride(t *testing.T) {
	f := newFixture(t, &fakeProvider{reply: "ok"}, time.Second)
	ctx := context.Background()

	_, err := f.orch.Generate(ctx, f.session, Request{Message: "hi", Model: llm.ModelDeepSeekR1})
	require.NoError(t, err)
	assert.Equal(t, llm.ModelDeepSeekR1, f.provider.lastRequest().Model)
	assert.Equal(t, llm.ModelGemma3, f.session.Models.Current(), "override is per call")

	_, err = f.orch.Generate(ctx, f.session, Request{Message: "hi", Model: "not-allowed"})
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, KindNotFound, e.Kind)
	assert.Equal(t, MsgInvalidModel, e.Message)

	history, _ := f.session.Store.History("")
	assert.Len(t, history, 2, "rejected override must not record a user turn")
}

func TestGenerateConversationOverride(t *testing.T) {
	f := newFixture(t, &fakeProvider{reply: "ok"}, time.Second)
	ctx := context.Background()

	first := f.orch.CreateConversation(ctx, f.session)
	second := f.orch.CreateConversation(ctx, f.session)

	reply, err := f.orch.Generate(ctx, f.session, Request{Message: "back to first", ConversationID: first})
	require.NoError(t, err)
	assert.Equal(t, first, reply.ConversationID)

	current, _ := f.session.Store.Current()
	assert.Equal(t, first, current)

	h, _ := f.session.Store.History(second)
	assert.Empty(t, h)
}

func TestGeneratePersistenceFailureDoesNotAbort(t *testing.T) {
	f := newFixture(t, &fakeProvider{reply: "still here"}, time.Second)
	f.persister.FailWith(errors.New("read-only filesystem"))

	reply, err := f.orch.Generate(context.Background(), f.session, Request{Message: "hi"})
	require.NoError(t, err)
	assert.Len(t, reply.History, 2)

	status := f.orch.Status(f.session)
	assert.False(t, status.Persistence.Healthy())
	assert.Contains(t, status.Persistence.LastError, "read-only filesystem")
}

func TestSetModel(t *testing.T) {
	f := newFixture(t, &fakeProvider{}, time.Second)

	require.NoError(t, f.orch.SetModel(f.session, llm.ModelLlama33Large))
	assert.Equal(t, llm.ModelLlama33Large, f.orch.ListModels(f.session).Current)

	err := f.orch.SetModel(f.session, "gpt-99")
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.Equal(t, llm.ModelLlama33Large, f.session.Models.Current())
}

func TestSetPersonaUnknown(t *testing.T) {
	f := newFixture(t, &fakeProvider{}, time.Second)

	err := f.orch.SetPersona(f.session, "unknown-id")
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, MsgInvalidPersona, e.Message)

	list := f.orch.ListPersonas(f.session)
	assert.Equal(t, "therapist", list.Current)
	assert.Len(t, list.Personas, 5)
}

func TestDeleteCurrentRepoints(t *testing.T) {
	f := newFixture(t, &fakeProvider{}, time.Second)
	ctx := context.Background()

	c1 := f.orch.CreateConversation(ctx, f.session)
	c2 := f.orch.CreateConversation(ctx, f.session)
	_, err := f.orch.GetConversation(f.session, c1)
	require.NoError(t, err)

	current, err := f.orch.DeleteConversation(ctx, f.session, c1)
	require.NoError(t, err)
	assert.Equal(t, c2, current)
	assert.Equal(t, c2, f.orch.ListConversations(f.session).Current)

	_, err = f.orch.DeleteConversation(ctx, f.session, c1)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestGetConversationSelects(t *testing.T) {
	f := newFixture(t, &fakeProvider{reply: "ok"}, time.Second)
	ctx := context.Background()

	reply, err := f.orch.Generate(ctx, f.session, Request{Message: "a memorable opening"})
	require.NoError(t, err)
	other := f.orch.CreateConversation(ctx, f.session)

	view, err := f.orch.GetConversation(f.session, reply.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, "a memorable opening", view.Title)
	assert.Len(t, view.Messages, 2)

	current, _ := f.session.Store.Current()
	assert.Equal(t, reply.ConversationID, current)
	assert.NotEqual(t, other, current)

	_, err = f.orch.GetConversation(f.session, "missing")
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, MsgConversationNotFound, e.Message)
}

func TestClearHistory(t *testing.T) {
	f := newFixture(t, &fakeProvider{reply: "ok"}, time.Second)
	ctx := context.Background()

	reply, err := f.orch.Generate(ctx, f.session, Request{Message: "hi"})
	require.NoError(t, err)

	require.NoError(t, f.orch.ClearHistory(ctx, f.session, ""))
	history, err := f.orch.History(f.session, reply.ConversationID)
	require.NoError(t, err)
	assert.Empty(t, history)

	assert.Equal(t, KindNotFound, KindOf(f.orch.ClearHistory(ctx, f.session, "missing")))
}

func TestSessionsAreIndependent(t *testing.T) {
	f := newFixture(t, &fakeProvider{reply: "ok"}, time.Second)
	other := f.orch.NewSession(storage.Open(context.Background(), storage.NewMemoryPersister(nil)))

	require.NoError(t, f.orch.SetPersona(f.session, "friend"))
	require.NoError(t, f.orch.SetModel(f.session, llm.ModelDeepSeekR1))

	assert.Equal(t, "therapist", other.Personas.Current())
	assert.Equal(t, llm.ModelGemma3, other.Models.Current())
	assert.NotEqual(t, f.session.ID, other.ID)

	_, err := f.orch.Generate(context.Background(), f.session, Request{Message: "hi"})
	require.NoError(t, err)
	assert.Zero(t, other.Store.Len())
}

func TestStatusAndHealth(t *testing.T) {
	f := newFixture(t, &fakeProvider{reply: "ok"}, time.Second)

	assert.Equal(t, Health{Status: "healthy"}, f.orch.Health())
	assert.Equal(t, Liveness(), f.orch.Health())

	_, err := f.orch.Generate(context.Background(), f.session, Request{Message: "hi"})
	require.NoError(t, err)

	status := f.orch.Status(f.session)
	assert.Equal(t, "therapist", status.Persona)
	assert.Equal(t, llm.ModelGemma3, status.Model)
	assert.Equal(t, 1, status.Conversations)
	assert.Equal(t, "fake", status.Provider)
	assert.True(t, status.Persistence.Healthy())
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(nil))
	assert.Equal(t, KindInternal, KindOf(errors.New("foreign")))
	assert.Equal(t, KindNotFound, KindOf(notFound("op", MsgConversationNotFound, nil)))
}
