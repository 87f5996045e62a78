package storage

import (
	"context"
	"errors"
)

var (
	// ErrNoRecord is returned by Persister.Load when nothing has been saved yet.
	ErrNoRecord = errors.New("no persisted record")

	// ErrCorruptRecord is returned by Persister.Load when the record cannot be decoded.
	ErrCorruptRecord = errors.New("corrupt persisted record")

	// ErrPersistenceDisabled is recorded for writes skipped because the saved
	// record could not be loaded and could not be moved aside.
	ErrPersistenceDisabled = errors.New("persistence disabled: saved record could not be loaded")
)

// Record is the full durable state: conversation id to conversation.
type Record map[string]Conversation

// Persister stores the whole Record as a single durable object.
// Implementations can use different backends (memory, file, database).
type Persister interface {
	// Load returns the last saved record, ErrNoRecord if none exists, or an
	// error wrapping ErrCorruptRecord if it cannot be decoded.
	Load(ctx context.Context) (Record, error)

	// Save replaces the record. A failed or interrupted Save must leave the
	// previous record intact.
	Save(ctx context.Context, record Record) error
}

// Quarantiner is implemented by persisters that can move an unreadable
// record aside, so the next Save does not overwrite it.
type Quarantiner interface {
	// Quarantine renames the current record using suffix and returns where
	// it went.
	Quarantine(ctx context.Context, suffix string) (string, error)
}

func (r Record) clone() Record {
	out := make(Record, len(r))
	for id, c := range r {
		out[id] = c.clone()
	}
	return out
}
