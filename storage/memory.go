// In-memory Persister.
//
// Information Hiding:
// - Record kept as a private deep copy
// - Thread-safe access via RWMutex
// - Suitable for testing and ephemeral sessions

package storage

import (
	"context"
	"sync"
)

// MemoryPersister keeps the record in process memory.
// Data is lost when the process terminates.
type MemoryPersister struct {
	mu     sync.RWMutex
	record Record
	saves  int
	err    error
}

// NewMemoryPersister creates a persister, optionally seeded with a record.
func NewMemoryPersister(seed Record) *MemoryPersister {
	p := &MemoryPersister{}
	if seed != nil {
		p.record = seed.clone()
	}
	return p
}

// Load returns a copy of the stored record.
func (p *MemoryPersister) Load(ctx context.Context) (Record, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.record == nil {
		return nil, ErrNoRecord
	}
	return p.record.clone(), nil
}

// Save stores a copy of record, or returns the error set by FailWith.
func (p *MemoryPersister) Save(ctx context.Context, record Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.err != nil {
		return p.err
	}
	p.record = record.clone()
	p.saves++
	return nil
}

// FailWith makes subsequent saves fail with err. Nil restores normal saves.
func (p *MemoryPersister) FailWith(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

// Saves returns the number of successful saves.
func (p *MemoryPersister) Saves() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.saves
}

// Verify MemoryPersister implements Persister
var _ Persister = (*MemoryPersister)(nil)
