// ConversationStore - in-memory conversation state with synchronous durable writes.
//
// Information Hiding:
// - Conversation map, current pointer and clock hidden behind methods
// - One mutex serializes every mutation together with its persist
// - Persistence failures are logged and recorded, never returned

package storage

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/richinex/companion/llm"
)

// PersistStatus reports the health of durable writes.
type PersistStatus struct {
	Backend             string    `json:"backend"`
	LastSuccess         time.Time `json:"last_success,omitzero"`
	LastFailure         time.Time `json:"last_failure,omitzero"`
	LastError           string    `json:"last_error,omitempty"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
}

// Healthy reports whether the most recent write succeeded.
func (s PersistStatus) Healthy() bool {
	return s.ConsecutiveFailures == 0
}

// Turn is the result of BeginTurn.
type Turn struct {
	ConversationID string
	Created        bool
	History        []Message
}

// Option configures a ConversationStore.
type Option func(*ConversationStore)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *ConversationStore) { s.now = now }
}

// WithLogger sets the logger. Nil keeps slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *ConversationStore) {
		if logger != nil {
			s.logger = logger.With("component", "store")
		}
	}
}

// WithIDGenerator replaces uuid-based conversation ids.
func WithIDGenerator(newID func() string) Option {
	return func(s *ConversationStore) { s.newID = newID }
}

// WithBackend names the persister in Status.
func WithBackend(name string) Option {
	return func(s *ConversationStore) { s.status.Backend = name }
}

// ConversationStore owns every conversation and the current pointer.
// All methods are safe for concurrent use.
type ConversationStore struct {
	mu            sync.Mutex
	conversations map[string]*Conversation
	current       string

	persister Persister
	status    PersistStatus
	disabled  bool

	now    func() time.Time
	newID  func() string
	logger *slog.Logger
}

// Open loads the persisted record into a new store. A missing record gives
// an empty store. An unreadable one gives an empty store too, after the
// record is moved aside or, failing that, with writes disabled.
func Open(ctx context.Context, persister Persister, opts ...Option) *ConversationStore {
	s := &ConversationStore{
		conversations: make(map[string]*Conversation),
		persister:     persister,
		now:           time.Now,
		newID:         uuid.NewString,
		logger:        slog.Default().With("component", "store"),
	}
	for _, opt := range opts {
		opt(s)
	}

	record, err := persister.Load(ctx)
	switch {
	case errors.Is(err, ErrNoRecord):
		s.logger.Info("no saved conversations, starting empty")
		return s
	case err != nil:
		s.recordFailure(err)
		s.setAside(ctx, err)
		return s
	}

	for id, c := range record {
		c.ID = id
		if c.Messages == nil {
			c.Messages = []Message{}
		}
		// Records written before the flag existed.
		if !c.Titled && c.Title != "" && c.Title != DefaultTitle {
			c.Titled = true
		}
		s.conversations[id] = &c
	}
	s.current = mostRecent(s.conversations)
	s.logger.Info("loaded conversations", "count", len(s.conversations), "current", s.current)
	return s
}

// setAside moves a corrupt record out of the way. When that is not possible
// the store keeps working in memory but never writes, so the saved record
// survives for manual recovery.
func (s *ConversationStore) setAside(ctx context.Context, loadErr error) {
	q, ok := s.persister.(Quarantiner)
	if !errors.Is(loadErr, ErrCorruptRecord) || !ok {
		s.disabled = true
		s.logger.Error("failed to load conversations, starting empty with persistence disabled", "error", loadErr)
		return
	}

	moved, err := q.Quarantine(ctx, strconv.FormatInt(s.now().Unix(), 10))
	if err != nil {
		s.disabled = true
		s.logger.Error("failed to move unreadable conversations aside, persistence disabled",
			"error", loadErr, "move_error", err)
		return
	}
	s.logger.Error("unreadable conversations moved aside, starting empty", "error", loadErr, "moved_to", moved)
}

// mostRecent picks the latest updated_at, ties broken by the smallest id.
func mostRecent(conversations map[string]*Conversation) string {
	var best *Conversation
	for _, c := range conversations {
		if best == nil || c.UpdatedAt.After(best.UpdatedAt) ||
			(c.UpdatedAt.Equal(best.UpdatedAt) && c.ID < best.ID) {
			best = c
		}
	}
	if best == nil {
		return ""
	}
	return best.ID
}

// Create starts an empty conversation, makes it current and returns its id.
func (s *ConversationStore) Create(ctx context.Context) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.createLocked()
	s.persistLocked(ctx)
	return id
}

// AppendToCurrent appends to the current conversation, creating one first
// when none is current. Returns the conversation id.
func (s *ConversationStore) AppendToCurrent(ctx context.Context, role llm.Role, content string) (string, error) {
	if !role.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == "" {
		s.createLocked()
	}
	id := s.current
	s.appendLocked(s.conversations[id], role, content)
	s.persistLocked(ctx)
	return id, nil
}

// AppendTo appends to an explicit conversation and returns its updated history.
func (s *ConversationStore) AppendTo(ctx context.Context, id string, role llm.Role, content string) ([]Message, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.appendLocked(c, role, content)
	s.persistLocked(ctx)
	return slices.Clone(c.Messages), nil
}

// BeginTurn resolves the target conversation (override if it exists, then
// current, then a new one), makes it current and appends the user message,
// all under one lock.
func (s *ConversationStore) BeginTurn(ctx context.Context, override, content string) Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	var turn Turn
	switch {
	case override != "" && s.conversations[override] != nil:
		s.current = override
	case s.current != "":
	default:
		s.createLocked()
		turn.Created = true
	}

	c := s.conversations[s.current]
	s.appendLocked(c, llm.RoleUser, content)
	s.persistLocked(ctx)

	turn.ConversationID = c.ID
	turn.History = slices.Clone(c.Messages)
	return turn
}

// History returns the messages of id, or of the current conversation when id
// is empty. No current conversation yields an empty history.
func (s *ConversationStore) History(id string) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == "" {
		id = s.current
		if id == "" {
			return []Message{}, nil
		}
	}
	c, ok := s.conversations[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return slices.Clone(c.Messages), nil
}

// Get returns a copy of the conversation.
func (s *ConversationStore) Get(id string) (Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[id]
	if !ok {
		return Conversation{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return c.clone(), nil
}

// ListSummaries returns every conversation, most recently updated first.
func (s *ConversationStore) ListSummaries() []Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Summary, 0, len(s.conversations))
	for _, c := range s.conversations {
		out = append(out, c.summary())
	}
	slices.SortFunc(out, func(a, b Summary) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// Delete removes id. Deleting the current conversation repoints current to
// the smallest remaining id, or to none. Returns the resulting current id
// and whether anything was deleted.
func (s *ConversationStore) Delete(ctx context.Context, id string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[id]; !ok {
		return s.current, false
	}
	delete(s.conversations, id)

	if s.current == id {
		s.current = ""
		for other := range s.conversations {
			if s.current == "" || other < s.current {
				s.current = other
			}
		}
	}
	s.persistLocked(ctx)
	return s.current, true
}

// SetCurrent selects id if it exists.
func (s *ConversationStore) SetCurrent(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[id]; !ok {
		return false
	}
	s.current = id
	return true
}

// Current returns the current conversation id.
func (s *ConversationStore) Current() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.current != ""
}

// Clear empties the messages of id, or of the current conversation when id
// is empty. The title is kept. Clearing with no current conversation is a no-op.
func (s *ConversationStore) Clear(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == "" {
		id = s.current
		if id == "" {
			return nil
		}
	}
	c, ok := s.conversations[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	c.Messages = []Message{}
	c.UpdatedAt = s.stamp(c)
	s.persistLocked(ctx)
	return nil
}

// Len returns the number of conversations.
func (s *ConversationStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conversations)
}

// Status returns the outcome of recent durable writes.
func (s *ConversationStore) Status() PersistStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *ConversationStore) createLocked() string {
	id := s.newID()
	for s.conversations[id] != nil {
		id = s.newID()
	}
	now := s.now()
	s.conversations[id] = &Conversation{
		ID:        id,
		Messages:  []Message{},
		CreatedAt: now,
		UpdatedAt: now,
		Title:     DefaultTitle,
	}
	s.current = id
	s.logger.Debug("created conversation", "conversation_id", id)
	return id
}

func (s *ConversationStore) appendLocked(c *Conversation, role llm.Role, content string) {
	ts := s.stamp(c)
	if role == llm.RoleUser && len(c.Messages) == 0 && !c.Titled {
		c.Title = TitleFor(content)
		c.Titled = true
	}
	c.Messages = append(c.Messages, Message{Role: role, Content: content, Timestamp: ts})
	c.UpdatedAt = ts
}

// stamp returns now, never earlier than the conversation's updated_at.
func (s *ConversationStore) stamp(c *Conversation) time.Time {
	now := s.now()
	if now.Before(c.UpdatedAt) {
		return c.UpdatedAt
	}
	return now
}

func (s *ConversationStore) persistLocked(ctx context.Context) {
	if s.disabled {
		s.recordFailure(ErrPersistenceDisabled)
		return
	}

	record := make(Record, len(s.conversations))
	for id, c := range s.conversations {
		record[id] = *c
	}

	// A caller that goes away must not leave the record stale.
	err := s.persister.Save(context.WithoutCancel(ctx), record)
	if err != nil {
		s.logger.Error("failed to persist conversations", "error", err)
		s.recordFailure(err)
		return
	}
	s.status.LastSuccess = s.now()
	s.status.ConsecutiveFailures = 0
	s.status.LastError = ""
}

func (s *ConversationStore) recordFailure(err error) {
	s.status.LastFailure = s.now()
	s.status.LastError = err.Error()
	s.status.ConsecutiveFailures++
}
